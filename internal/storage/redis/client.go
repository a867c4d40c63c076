package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Subscriptions expire after 30 days without a refresh; browsers re-subscribe
// on page load, so active users keep their keys alive. A user keeps at most
// MaxSubscriptions endpoints (multiple browsers/devices).
const (
	SubscriptionTTL  = 30 * 24 * 3600
	MaxSubscriptions = 8
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

func subKey(userID string) string { return "push_subs:" + userID }

// AddSubscription appends the subscription to push_subs:{userID}, removing
// any previous copy first so re-subscribing does not duplicate it.
func (c *Client) AddSubscription(ctx context.Context, userID, subscription string) error {
	key := subKey(userID)
	pipe := c.cli.TxPipeline()
	pipe.LRem(ctx, key, 0, subscription)
	pipe.RPush(ctx, key, subscription)
	pipe.LTrim(ctx, key, -MaxSubscriptions, -1)
	pipe.Expire(ctx, key, SubscriptionTTL*time.Second)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Client) Subscriptions(ctx context.Context, userID string) ([]string, error) {
	vals, err := c.cli.LRange(ctx, subKey(userID), 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return vals, err
}

func (c *Client) RemoveSubscription(ctx context.Context, userID, subscription string) error {
	return c.cli.LRem(ctx, subKey(userID), 0, subscription).Err()
}
