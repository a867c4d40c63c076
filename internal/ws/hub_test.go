package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogchat/internal/access"
	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/model"
	"github.com/blogchat/internal/storage/memstore"
)

func seedStore(t *testing.T) *memstore.Store {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.CreateRoom(ctx, &model.Room{
		ID:             "room-1",
		Kind:           model.RoomKindGroup,
		Name:           "team",
		CreatedBy:      "alice",
		Settings:       model.DefaultRoomSettings(),
		Active:         true,
		LastActivityAt: now,
		CreatedAt:      now,
	}))
	for _, uid := range []string{"alice", "bob"} {
		require.NoError(t, store.AddParticipant(ctx, &model.Participant{
			RoomID: "room-1", UserID: uid, Role: model.RoleMember, JoinedAt: now, LastSeenAt: now,
		}))
	}
	return store
}

func newTestHub(t *testing.T) (*Hub, *memstore.Store) {
	t.Helper()
	store := seedStore(t)
	hub := NewHub(access.NewGuard(store), 100)
	hub.BindService(chat.New(access.NewGuard(store), store, store, nil, nil, hub, nil))
	return hub, store
}

func attach(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	c := NewClient(hub, nil, userID)
	hub.Register(c)
	return c
}

func drain(c *Client) []chat.Event {
	var out []chat.Event
	for {
		select {
		case ev := <-c.send:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishTargetsSubscribedRoom(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	require.NoError(t, hub.subscribe(ctx, alice, "room-1"))
	require.NoError(t, hub.subscribe(ctx, bob, "room-1"))
	drain(alice)
	drain(bob)

	hub.Publish("room-1", chat.Event{Type: chat.EventMessageReceived, RoomID: "room-1"})

	assert.Len(t, drain(alice), 1)
	assert.Len(t, drain(bob), 1)

	// events for other rooms do not leak
	hub.Publish("room-2", chat.Event{Type: chat.EventMessageReceived, RoomID: "room-2"})
	assert.Empty(t, drain(alice))
}

func TestPublishExcludesUser(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	require.NoError(t, hub.subscribe(ctx, alice, "room-1"))
	require.NoError(t, hub.subscribe(ctx, bob, "room-1"))
	drain(alice)
	drain(bob)

	hub.Publish("room-1", chat.Event{
		Type:        chat.EventTypingIndicator,
		RoomID:      "room-1",
		ExcludeUser: "alice",
	})

	assert.Empty(t, drain(alice))
	assert.Len(t, drain(bob), 1)
}

// A subscribe arriving immediately after the connection is registered must
// land: registration is synchronous, there is no window where the client is
// known to the read pump but not to the hub.
func TestSubscribeImmediatelyAfterRegister(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	c := NewClient(hub, nil, "alice")
	hub.Register(c)
	require.NoError(t, hub.subscribe(ctx, c, "room-1"))

	acks := drain(c)
	require.Len(t, acks, 1)
	assert.Equal(t, EventSubscribed, acks[0].Type)

	hub.Publish("room-1", chat.Event{Type: chat.EventMessageReceived, RoomID: "room-1"})
	assert.Len(t, drain(c), 1)
}

func TestSubscribeRequiresMembership(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	carol := attach(t, hub, "carol")
	err := hub.subscribe(ctx, carol, "room-1")
	assert.ErrorIs(t, err, chat.ErrForbidden)

	hub.Publish("room-1", chat.Event{Type: chat.EventMessageReceived, RoomID: "room-1"})
	assert.Empty(t, drain(carol))

	assert.ErrorIs(t, hub.subscribe(ctx, carol, ""), chat.ErrValidation)
}

func TestSubscribeAcksAndIsIdempotent(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	alice := attach(t, hub, "alice")
	require.NoError(t, hub.subscribe(ctx, alice, "room-1"))
	require.NoError(t, hub.subscribe(ctx, alice, "room-1"))

	acks := drain(alice)
	require.Len(t, acks, 2)
	assert.Equal(t, EventSubscribed, acks[0].Type)

	hub.Publish("room-1", chat.Event{Type: chat.EventMessageReceived, RoomID: "room-1"})
	// one subscription, one delivery
	assert.Len(t, drain(alice), 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	alice := attach(t, hub, "alice")
	require.NoError(t, hub.subscribe(ctx, alice, "room-1"))
	drain(alice)

	hub.unsubscribe(alice, "room-1")
	hub.Publish("room-1", chat.Event{Type: chat.EventMessageReceived, RoomID: "room-1"})
	assert.Empty(t, drain(alice))

	// unknown room is a no-op
	hub.unsubscribe(alice, "never-subscribed")
}

func TestHandleMessageDispatch(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	require.NoError(t, hub.subscribe(ctx, alice, "room-1"))
	require.NoError(t, hub.subscribe(ctx, bob, "room-1"))
	drain(alice)
	drain(bob)

	hub.HandleMessage(ctx, alice, IncomingMessage{Action: ActionSendMessage, RoomID: "room-1", Content: "hi"})

	msgs, err := store.ListMessages(ctx, "room-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	// the append fans out to everyone subscribed, sender included
	assert.Len(t, drain(alice), 1)
	assert.Len(t, drain(bob), 1)
}

func TestHandleMessageErrors(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	alice := attach(t, hub, "alice")

	hub.HandleMessage(ctx, alice, IncomingMessage{Action: "explode", RoomID: "room-1"})
	evs := drain(alice)
	require.Len(t, evs, 1)
	assert.Equal(t, EventError, evs[0].Type)
	payload, ok := evs[0].Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "unknown action", payload.Error)

	// service errors come back as short client-safe strings
	hub.HandleMessage(ctx, alice, IncomingMessage{Action: ActionSendMessage, RoomID: "no-such-room", Content: "hi"})
	evs = drain(alice)
	require.Len(t, evs, 1)
	payload, ok = evs[0].Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "not found", payload.Error)
}

func TestActionError(t *testing.T) {
	assert.Equal(t, "not found", actionError(chat.ErrNotFound))
	assert.Equal(t, "forbidden", actionError(chat.ErrForbidden))
	assert.Equal(t, "invalid request", actionError(chat.ErrValidation))
	assert.Equal(t, "temporarily unavailable", actionError(chat.ErrTransientStore))
	assert.Equal(t, "internal error", actionError(assert.AnError))
}
