package chat

import (
	"errors"
	"fmt"

	"github.com/estatedesk/internal/repository"
)

// ErrForbidden is returned when an actor attempts an operation outside its
// role's permission, e.g. a visitor touching a conversation that is not
// their own. It is never retried.
var ErrForbidden = errors.New("forbidden")

// ValidationError reports caller-supplied input that violates a
// precondition. It is always recoverable by correcting the input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
