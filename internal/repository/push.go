package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatedesk/internal/logger"
)

// PushSubscription is one browser's Web Push registration for the owner.
// The endpoint is the natural key: re-subscribing the same browser upserts.
type PushSubscription struct {
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

type PushSubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewPushSubscriptionRepository(pool *pgxpool.Pool) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{pool: pool}
}

func (r *PushSubscriptionRepository) Save(ctx context.Context, s *PushSubscription) error {
	defer logger.DeferLogDuration("push.Save", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO push_subscriptions (endpoint, p256dh, auth, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (endpoint) DO UPDATE SET p256dh = $2, auth = $3`,
		s.Endpoint, s.P256dh, s.Auth, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("pushRepo.Save: %w", err)
	}
	return nil
}

func (r *PushSubscriptionRepository) Delete(ctx context.Context, endpoint string) error {
	defer logger.DeferLogDuration("push.Delete", time.Now())()
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("pushRepo.Delete: %w", err)
	}
	return nil
}

func (r *PushSubscriptionRepository) List(ctx context.Context) ([]PushSubscription, error) {
	defer logger.DeferLogDuration("push.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT endpoint, p256dh, auth, created_at FROM push_subscriptions`)
	if err != nil {
		return nil, fmt.Errorf("pushRepo.List query: %w", err)
	}
	defer rows.Close()

	subs := make([]PushSubscription, 0, 4)
	for rows.Next() {
		var s PushSubscription
		if err := rows.Scan(&s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("pushRepo.List scan: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pushRepo.List rows: %w", err)
	}
	return subs, nil
}
