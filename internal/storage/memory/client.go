package memory

import (
	"context"
	"sync"
	"time"
)

const (
	codeRateLimitWindow = 600 * time.Second
	codeRateLimitMax    = 10
)

type Client struct {
	mu    sync.RWMutex
	limit map[string][]time.Time
	subs  map[int64]map[string]struct{}
}

func New() *Client {
	return &Client{
		limit: make(map[string][]time.Time),
		subs:  make(map[int64]map[string]struct{}),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) CheckRateLimit(ctx context.Context, email string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cut := now.Add(-codeRateLimitWindow)
	slice := c.limit[email]
	var kept []time.Time
	for _, t := range slice {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= codeRateLimitMax {
		return false, nil
	}
	kept = append(kept, now)
	c.limit[email] = kept
	return true, nil
}

func (c *Client) AddPushSubscription(ctx context.Context, userID int64, subscription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.subs[userID]
	if !ok {
		set = make(map[string]struct{})
		c.subs[userID] = set
	}
	set[subscription] = struct{}{}
	return nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID int64, subscription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.subs[userID]; ok {
		delete(set, subscription)
		if len(set) == 0 {
			delete(c.subs, userID)
		}
	}
	return nil
}

func (c *Client) PushSubscriptions(ctx context.Context, userID int64) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.subs[userID]
	if len(set) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out, nil
}
