package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/estatedesk/internal/logger"
	"github.com/estatedesk/internal/repository"
)

const sendTimeout = 10 * time.Second

// Sender delivers Web Push notifications to every browser the owner
// subscribed from. Subscriptions whose endpoint is gone (404/410) are removed.
type Sender struct {
	subs  *repository.PushSubscriptionRepository
	vapid *webpush.Options
}

// NewSender returns nil when the key pair is empty, which callers treat as
// push disabled.
func NewSender(subs *repository.PushSubscriptionRepository, keys *VAPIDKeys, subscriber string) *Sender {
	if keys == nil || keys.PublicKey == "" || keys.PrivateKey == "" {
		return nil
	}
	return &Sender{
		subs: subs,
		vapid: &webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		},
	}
}

func (s *Sender) Notify(ctx context.Context, title, body string, data map[string]string) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	list, err := s.subs.List(ctx)
	if err != nil {
		logger.Errorf("push: list subscriptions: %v", err)
		return
	}
	if len(list) == 0 {
		return
	}
	payload, err := json.Marshal(map[string]any{"title": title, "body": body, "data": data})
	if err != nil {
		logger.Errorf("push: encode payload: %v", err)
		return
	}

	sent := 0
	for _, sub := range list {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, s.vapid)
		if err != nil {
			logger.Errorf("push: send: %v", err)
			continue
		}
		status := resp.StatusCode
		resp.Body.Close()
		if status == http.StatusNotFound || status == http.StatusGone {
			if err := s.subs.Delete(ctx, sub.Endpoint); err != nil {
				logger.Errorf("push: prune stale subscription: %v", err)
			}
			continue
		}
		if status >= 400 {
			logger.Errorf("push: push service returned %d", status)
			continue
		}
		sent++
	}
	if sent > 0 {
		logger.Infof("push: notified %d subscription(s)", sent)
	}
}
