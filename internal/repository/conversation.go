package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatedesk/internal/logger"
	"github.com/estatedesk/internal/model"
)

// ErrNotFound is returned when a referenced record does not exist (e.g. a
// conversation already purged by the owner).
var ErrNotFound = errors.New("not found")

const conversationColumns = `id, visitor_id, visitor_name, visitor_email, visitor_phone,
	last_message_preview, last_message_at, unread_for_owner, unread_for_visitor, created_at`

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := row.Scan(&c.ID, &c.VisitorID, &c.VisitorName, &c.VisitorEmail, &c.VisitorPhone,
		&c.LastMessagePreview, &c.LastMessageAt, &c.UnreadForOwner, &c.UnreadForVisitor, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	defer logger.DeferLogDuration("conv.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (id, visitor_id, visitor_name, visitor_email, visitor_phone,
		    last_message_preview, last_message_at, unread_for_owner, unread_for_visitor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.VisitorID, c.VisitorName, c.VisitorEmail, c.VisitorPhone,
		c.LastMessagePreview, c.LastMessageAt, c.UnreadForOwner, c.UnreadForVisitor, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("convRepo.Create: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByID", time.Now())()
	c, err := scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("convRepo.GetByID: %w", err)
	}
	return c, err
}

// GetByVisitor returns the conversation owned by visitorID. There is at most
// one (visitor_id is unique), which backs createConversation idempotence.
func (r *ConversationRepository) GetByVisitor(ctx context.Context, visitorID string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByVisitor", time.Now())()
	c, err := scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE visitor_id = $1`, visitorID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("convRepo.GetByVisitor: %w", err)
	}
	return c, err
}

// List returns every conversation, most recently active first. The owner's
// dashboard view is unfiltered by design: the model has exactly one owner.
func (r *ConversationRepository) List(ctx context.Context) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conv.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("convRepo.List query: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows, "convRepo.List")
}

// Search filters conversations by visitor name, email or last message
// preview using ILIKE.
func (r *ConversationRepository) Search(ctx context.Context, q string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conv.Search", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE visitor_name ILIKE '%' || $1 || '%'
		    OR visitor_email ILIKE '%' || $1 || '%'
		    OR last_message_preview ILIKE '%' || $1 || '%'
		 ORDER BY last_message_at DESC`, q)
	if err != nil {
		return nil, fmt.Errorf("convRepo.Search query: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows, "convRepo.Search")
}

func collectConversations(rows pgx.Rows, op string) ([]model.Conversation, error) {
	convs := make([]model.Conversation, 0, 16)
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.VisitorID, &c.VisitorName, &c.VisitorEmail, &c.VisitorPhone,
			&c.LastMessagePreview, &c.LastMessageAt, &c.UnreadForOwner, &c.UnreadForVisitor, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return convs, nil
}

// Delete hard-deletes the conversation; messages go with it via
// ON DELETE CASCADE.
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("conv.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("convRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetUnread zeroes the counter belonging to the viewing role. The column
// is updated in place, never read-modify-written from client state.
func (r *ConversationRepository) ResetUnread(ctx context.Context, id string, role model.Role) error {
	defer logger.DeferLogDuration("conv.ResetUnread", time.Now())()
	col := "unread_for_visitor"
	if role == model.RoleOwner {
		col = "unread_for_owner"
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET `+col+` = 0 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("convRepo.ResetUnread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
