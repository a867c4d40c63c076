// Package ws is the real-time fan-out relay: room-keyed WebSocket
// subscriptions with best-effort, at-most-once delivery. Authoritative state
// is always the store; a missed event is recovered by refetching the room.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/logger"
)

type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]map[*Client]struct{}
	clientRooms map[*Client]map[string]struct{}
	total       int
	maxConns    int
	closed      bool

	svc  *chat.Service
	auth chat.Authorizer

	done chan struct{}
}

func NewHub(auth chat.Authorizer, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		rooms:       make(map[string]map[*Client]struct{}),
		clientRooms: make(map[*Client]map[string]struct{}),
		maxConns:    maxConns,
		auth:        auth,
		done:        make(chan struct{}),
	}
}

// BindService attaches the chat service after both sides are constructed:
// the service publishes through the relay, the hub dispatches client actions
// into the service. Must be called before Run.
func (h *Hub) BindService(svc *chat.Service) {
	h.svc = svc
}

// Run blocks until ctx is cancelled, then closes every connection.
// Registration itself is synchronous (see Register), so Run owns only the
// shutdown.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	<-ctx.Done()
	h.shutdown()
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	h.closed = true
	allClients := make([]*Client, 0, h.total)
	for c := range h.clientRooms {
		allClients = append(allClients, c)
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.clientRooms = make(map[*Client]map[string]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.Close()
		return
	}
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	h.clientRooms[c] = make(map[string]struct{})
	h.total++
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	subs, ok := h.clientRooms[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	for roomID := range subs {
		delete(h.rooms[roomID], c)
		if len(h.rooms[roomID]) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.clientRooms, c)
	h.total--
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
}

// Publish fans the event out to all connections subscribed to the room,
// skipping the excluded user's connections. Never blocks: a client whose send
// buffer is full is closed instead.
func (h *Hub) Publish(roomID string, ev chat.Event) {
	h.mu.RLock()
	subs, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		if ev.ExcludeUser != "" && c.userID == ev.ExcludeUser {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, ev)
	}
}

// HandleMessage dispatches an incoming client action.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	switch msg.Action {
	case ActionSubscribe:
		err = h.subscribe(ctx, c, msg.RoomID)
	case ActionUnsubscribe:
		h.unsubscribe(c, msg.RoomID)
	case ActionSendMessage:
		_, err = h.svc.Append(ctx, msg.RoomID, c.userID, chat.AppendInput{
			Content: msg.Content,
			Kind:    msg.Kind,
			BlogID:  msg.BlogID,
			Media:   msg.Media,
		})
	case ActionEditMessage:
		_, err = h.svc.Edit(ctx, msg.RoomID, msg.MessageID, c.userID, msg.Content)
	case ActionDeleteMessage:
		err = h.svc.Delete(ctx, msg.RoomID, msg.MessageID, c.userID)
	case ActionTyping:
		err = h.svc.Typing(ctx, msg.RoomID, c.userID, msg.IsTyping)
	case ActionMarkRead:
		err = h.svc.MarkAsRead(ctx, msg.RoomID, c.userID)
	case ActionSetReaction:
		err = h.svc.SetReaction(ctx, msg.RoomID, msg.MessageID, c.userID, msg.Emoji)
	case ActionRemoveReaction:
		err = h.svc.RemoveReaction(ctx, msg.RoomID, msg.MessageID, c.userID)
	default:
		h.sendToClient(c, chat.Event{Type: EventError, Payload: ErrorPayload{Action: msg.Action, Error: "unknown action"}})
		return
	}
	if err != nil {
		logger.Errorf("ws action %s user=%s room=%s: %v", msg.Action, c.userID, msg.RoomID, err)
		h.sendToClient(c, chat.Event{Type: EventError, RoomID: msg.RoomID, Payload: ErrorPayload{
			Action: msg.Action,
			Error:  actionError(err),
		}})
	}
}

// subscribe attaches the connection to a room's fan-out group after a
// membership check. Subscribing twice is a no-op.
func (h *Hub) subscribe(ctx context.Context, c *Client, roomID string) error {
	if roomID == "" {
		return chat.ErrValidation
	}
	if _, _, err := h.auth.Authorize(ctx, roomID, c.userID); err != nil {
		return err
	}

	h.mu.Lock()
	subs, ok := h.clientRooms[c]
	if !ok {
		// Client already unregistered; drop the subscribe.
		h.mu.Unlock()
		return nil
	}
	subs[roomID] = struct{}{}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
	h.mu.Unlock()

	h.sendToClient(c, chat.Event{Type: EventSubscribed, RoomID: roomID, Payload: SubscribedPayload{RoomID: roomID}})
	return nil
}

// unsubscribe detaches the connection from a room. Unknown rooms are a no-op.
func (h *Hub) unsubscribe(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.clientRooms[c]; ok {
		delete(subs, roomID)
	}
	delete(h.rooms[roomID], c)
	if len(h.rooms[roomID]) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) sendToClient(c *Client, ev chat.Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

// Register adds the connection to the hub. Synchronous: once it returns, a
// subscribe from this client's read pump lands in the connection map (the read
// pump may start delivering actions before any event loop would have drained a
// queue).
func (h *Hub) Register(c *Client) {
	h.addClient(c)
}

func (h *Hub) Unregister(c *Client) {
	h.removeClient(c)
}

func actionError(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return "not found"
	case errors.Is(err, chat.ErrForbidden):
		return "forbidden"
	case errors.Is(err, chat.ErrValidation):
		return "invalid request"
	case errors.Is(err, chat.ErrTransientStore):
		return "temporarily unavailable"
	default:
		return "internal error"
	}
}
