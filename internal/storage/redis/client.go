package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate limit: 10 verification-code requests per 10 minutes per email.
const (
	CodeRateLimitWindow = 600
	CodeRateLimitMax    = 10
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

// CheckRateLimit checks code_limit:{email}: at most CodeRateLimitMax code
// requests per window. Exceeding it maps to HTTP 429.
func (c *Client) CheckRateLimit(ctx context.Context, email string) (allowed bool, err error) {
	key := "code_limit:" + email
	n, err := c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, key, CodeRateLimitWindow*time.Second)
	}
	return n <= int64(CodeRateLimitMax), nil
}

func subsKey(userID int64) string {
	return "push:subs:" + strconv.FormatInt(userID, 10)
}

// AddPushSubscription stores a serialized browser push subscription in the
// user's set. A user can hold one subscription per device.
func (c *Client) AddPushSubscription(ctx context.Context, userID int64, subscription string) error {
	return c.cli.SAdd(ctx, subsKey(userID), subscription).Err()
}

// RemovePushSubscription drops a subscription (unsubscribe, or a push
// endpoint that the push service reports as gone).
func (c *Client) RemovePushSubscription(ctx context.Context, userID int64, subscription string) error {
	return c.cli.SRem(ctx, subsKey(userID), subscription).Err()
}

// PushSubscriptions returns all stored subscriptions for the user.
func (c *Client) PushSubscriptions(ctx context.Context, userID int64) ([]string, error) {
	subs, err := c.cli.SMembers(ctx, subsKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return subs, err
}

// FlushDB clears the current Redis DB (rate limits and subscriptions) for
// tests and resets.
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
