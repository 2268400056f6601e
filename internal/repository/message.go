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

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Append inserts a message and updates the owning conversation in one
// transaction: the per-conversation sequence counter, the preview, the
// last-message timestamp and the opposite role's unread counter (atomic
// SQL increment, so concurrent appends from both roles never lose updates).
// The assigned sequence is written back into m.Seq.
func (r *MessageRepository) Append(ctx context.Context, m *model.Message, preview string) error {
	defer logger.DeferLogDuration("msg.Append", time.Now())()

	ownerInc, visitorInc := 0, 1
	if m.Sender == model.RoleVisitor {
		ownerInc, visitorInc = 1, 0
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("msgRepo.Append begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE conversations
		 SET message_seq = message_seq + 1,
		     last_message_preview = $2,
		     last_message_at = $3,
		     unread_for_owner = unread_for_owner + $4,
		     unread_for_visitor = unread_for_visitor + $5
		 WHERE id = $1
		 RETURNING message_seq`,
		m.ConversationID, preview, m.CreatedAt, ownerInc, visitorInc,
	).Scan(&m.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("msgRepo.Append seq: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender, text, seq, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ConversationID, m.Sender, m.Text, m.Seq, m.Read, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Append insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("msgRepo.Append commit: %w", err)
	}
	return nil
}

// ListByConversation returns the full log in createdAt order; ties are
// broken by the insert sequence.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListByConversation", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, sender, text, seq, read, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListByConversation query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, 32)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Text, &m.Seq, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("msgRepo.ListByConversation scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListByConversation rows: %w", err)
	}
	return msgs, nil
}

// MarkRead flips read=true on every message authored by the given role.
// Marking an already-read log is a no-op, not an error.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID string, author model.Role) error {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET read = true
		 WHERE conversation_id = $1 AND sender = $2 AND read = false`,
		conversationID, author)
	if err != nil {
		return fmt.Errorf("msgRepo.MarkRead: %w", err)
	}
	return nil
}
