package memory

import (
	"context"
	"sync"
)

// Client keeps push subscriptions in memory for -dev without Redis. They are
// lost on restart; browsers re-subscribe on page load.
type Client struct {
	mu   sync.RWMutex
	subs map[string][]string
}

func New() *Client {
	return &Client{subs: make(map[string][]string)}
}

func (c *Client) Close() error { return nil }

func (c *Client) AddSubscription(ctx context.Context, userID, subscription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs[userID] {
		if s == subscription {
			return nil
		}
	}
	c.subs[userID] = append(c.subs[userID], subscription)
	return nil
}

func (c *Client) Subscriptions(ctx context.Context, userID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.subs[userID]))
	copy(out, c.subs[userID])
	return out, nil
}

func (c *Client) RemoveSubscription(ctx context.Context, userID, subscription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.subs[userID][:0]
	for _, s := range c.subs[userID] {
		if s != subscription {
			kept = append(kept, s)
		}
	}
	c.subs[userID] = kept
	return nil
}
