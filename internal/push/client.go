// Package push delivers Web Push notifications to subscribed browsers.
package push

import (
	"context"
	"encoding/json"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/blogchat/internal/logger"
	"github.com/blogchat/internal/storage"
)

const notificationTTL = 60 * 60 // seconds the push service may hold the message

// Notifier sends notifications directly through the push services (FCM,
// Mozilla autopush, ...) using stored browser subscriptions.
type Notifier struct {
	store      storage.SubscriptionStore
	keys       *VAPIDKeys
	subscriber string
}

// NewNotifier wires the notifier. subscriber is the contact embedded in the
// VAPID claims (mailto: or https: URL).
func NewNotifier(store storage.SubscriptionStore, keys *VAPIDKeys, subscriber string) *Notifier {
	return &Notifier{store: store, keys: keys, subscriber: subscriber}
}

// PublicKey returns the VAPID public key browsers need to subscribe.
func (n *Notifier) PublicKey() string {
	return n.keys.PublicKey
}

// Subscribe stores a browser subscription for the user.
func (n *Notifier) Subscribe(ctx context.Context, userID string, sub *webpush.Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return n.store.AddSubscription(ctx, userID, string(raw))
}

// Unsubscribe removes the user's subscription with the given endpoint.
func (n *Notifier) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	subs, err := n.store.Subscriptions(ctx, userID)
	if err != nil {
		return err
	}
	for _, raw := range subs {
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			continue
		}
		if sub.Endpoint == endpoint {
			return n.store.RemoveSubscription(ctx, userID, raw)
		}
	}
	return nil
}

type notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notify sends the notification to every subscription the user has. Gone
// endpoints (404/410) are pruned. Failures are logged, never surfaced: a
// push is a courtesy, not part of the mutation.
func (n *Notifier) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	subs, err := n.store.Subscriptions(ctx, userID)
	if err != nil {
		logger.Errorf("push subscriptions user=%s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(notification{Title: title, Body: body, Data: data})
	if err != nil {
		logger.Errorf("push marshal user=%s: %v", userID, err)
		return
	}

	opts := &webpush.Options{
		Subscriber:      n.subscriber,
		VAPIDPublicKey:  n.keys.PublicKey,
		VAPIDPrivateKey: n.keys.PrivateKey,
		TTL:             notificationTTL,
	}
	for _, raw := range subs {
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			logger.Errorf("push bad subscription user=%s: %v", userID, err)
			continue
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, opts)
		if err != nil {
			logger.Errorf("push send user=%s: %v", userID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			if err := n.store.RemoveSubscription(ctx, userID, raw); err != nil {
				logger.Errorf("push prune user=%s: %v", userID, err)
			}
		}
	}
}
