package storage

import "context"

// Store holds the ephemeral state the API keeps outside Postgres:
// verification-code rate limits and web-push subscriptions.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type Store interface {
	CheckRateLimit(ctx context.Context, email string) (allowed bool, err error)
	AddPushSubscription(ctx context.Context, userID int64, subscription string) error
	RemovePushSubscription(ctx context.Context, userID int64, subscription string) error
	PushSubscriptions(ctx context.Context, userID int64) ([]string, error)
	Close() error
}
