package storage

import "context"

// SubscriptionStore keeps web-push subscriptions per user.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type SubscriptionStore interface {
	// AddSubscription stores a serialized subscription for the user.
	// Re-adding an existing subscription is a no-op.
	AddSubscription(ctx context.Context, userID, subscription string) error
	Subscriptions(ctx context.Context, userID string) ([]string, error)
	// RemoveSubscription drops a stale subscription (endpoint gone or expired).
	RemoveSubscription(ctx context.Context, userID, subscription string) error
	Close() error
}
