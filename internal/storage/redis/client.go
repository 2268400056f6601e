package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/estatedesk/internal/model"
)

// Owner sessions expire server-side after 30 days; visitor identities are
// kept without a TTL (a visitor's local identity never expires).
const ownerSessionTTL = 30 * 24 * time.Hour

const (
	identityKeyPrefix = "visitor:"
	sessionKeyPrefix  = "session:owner:"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SaveIdentity stores the identity as JSON under visitor:{token}, no TTL.
func (c *Client) SaveIdentity(ctx context.Context, token string, ident *model.VisitorIdentity) error {
	raw, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("redis marshal identity: %w", err)
	}
	return c.cli.Set(ctx, identityKeyPrefix+token, raw, 0).Err()
}

// GetIdentity returns the identity for token, or (nil, nil) when absent.
func (c *Client) GetIdentity(ctx context.Context, token string) (*model.VisitorIdentity, error) {
	raw, err := c.cli.Get(ctx, identityKeyPrefix+token).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get identity: %w", err)
	}
	ident := &model.VisitorIdentity{}
	if err := json.Unmarshal([]byte(raw), ident); err != nil {
		return nil, fmt.Errorf("redis unmarshal identity: %w", err)
	}
	return ident, nil
}

func (c *Client) DeleteIdentity(ctx context.Context, token string) error {
	return c.cli.Del(ctx, identityKeyPrefix+token).Err()
}

func (c *Client) SetOwnerSession(ctx context.Context, sessionID string) error {
	return c.cli.Set(ctx, sessionKeyPrefix+sessionID, "1", ownerSessionTTL).Err()
}

func (c *Client) HasOwnerSession(ctx context.Context, sessionID string) (bool, error) {
	_, err := c.cli.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get session: %w", err)
	}
	return true, nil
}

func (c *Client) DeleteOwnerSession(ctx context.Context, sessionID string) error {
	return c.cli.Del(ctx, sessionKeyPrefix+sessionID).Err()
}
