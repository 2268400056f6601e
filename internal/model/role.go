package model

// Role identifies which side of a conversation an actor is on. The system
// models exactly one owner; every other participant is a visitor.
type Role string

const (
	RoleVisitor Role = "visitor"
	RoleOwner   Role = "owner"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleVisitor || r == RoleOwner
}

// Opposite returns the other role. A message authored by one role is unread
// for the opposite one.
func (r Role) Opposite() Role {
	if r == RoleOwner {
		return RoleVisitor
	}
	return RoleOwner
}
