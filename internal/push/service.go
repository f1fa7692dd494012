package push

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/creatify/internal/logger"
	"github.com/creatify/internal/storage"
)

// ErrInvalidSubscription reports a malformed browser subscription object.
var ErrInvalidSubscription = errors.New("push: invalid subscription payload")

// Subscription mirrors the browser PushSubscription object the frontend
// posts when it subscribes.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Service sends Web Push notifications to users' subscribed browsers.
// Subscriptions live in the storage.Store keyed by user id.
type Service struct {
	store storage.Store
	vapid *webpush.Options
}

// New returns a Service. keys may be nil, in which case sends are no-ops
// (subscriptions are still stored).
func New(store storage.Store, keys *VAPIDKeys, subscriberEmail string) *Service {
	s := &Service{store: store}
	if keys != nil && keys.PrivateKey != "" {
		s.vapid = &webpush.Options{
			Subscriber:      subscriberEmail,
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             60,
		}
	}
	return s
}

// Subscribe stores a serialized subscription for the user.
func (s *Service) Subscribe(ctx context.Context, userID int64, raw []byte) error {
	var sub Subscription
	if err := json.Unmarshal(raw, &sub); err != nil || sub.Endpoint == "" {
		return ErrInvalidSubscription
	}
	return s.store.AddPushSubscription(ctx, userID, string(raw))
}

// Unsubscribe removes a previously stored subscription.
func (s *Service) Unsubscribe(ctx context.Context, userID int64, raw []byte) error {
	return s.store.RemovePushSubscription(ctx, userID, string(raw))
}

// Notify sends a notification to every subscription the user holds.
// Endpoints that answer 404/410 are dropped from the store. Errors are
// logged, never returned: push is best-effort.
func (s *Service) Notify(ctx context.Context, userID int64, title, body string, data map[string]string) {
	if s.vapid == nil {
		return
	}
	subs, err := s.store.PushSubscriptions(ctx, userID)
	if err != nil {
		logger.Errorf("push: subscriptions for user %d: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	payload, _ := json.Marshal(map[string]any{"title": title, "body": body, "data": data})
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, raw := range subs {
		var sub Subscription
		if json.Unmarshal([]byte(raw), &sub) != nil || sub.Endpoint == "" {
			continue
		}
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(sendCtx, payload, wpSub, s.vapid)
		if err != nil {
			logger.Errorf("push: send to user %d: %v", userID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 410 || resp.StatusCode == 404 {
			if err := s.store.RemovePushSubscription(sendCtx, userID, raw); err != nil {
				logger.Errorf("push: drop stale subscription for user %d: %v", userID, err)
			}
		}
	}
}
