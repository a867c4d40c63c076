package ws

import (
	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/model"
)

// Incoming message types. Everything else a client may want arrives as
// chat.Event fan-out on rooms it subscribed to.
const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionSendMessage    = "send_message"
	ActionEditMessage    = "edit_message"
	ActionDeleteMessage  = "delete_message"
	ActionTyping         = "typing"
	ActionMarkRead       = "mark_read"
	ActionSetReaction    = "set_reaction"
	ActionRemoveReaction = "remove_reaction"
)

// Server-only event types, outside the chat.Event set.
const (
	EventError      chat.EventType = "error"
	EventSubscribed chat.EventType = "subscribed"
)

// IncomingMessage is what the client sends over the socket.
type IncomingMessage struct {
	Action string `json:"action"`
	RoomID string `json:"room_id,omitempty"`

	// send_message / edit_message
	Content string            `json:"content,omitempty"`
	Kind    model.MessageKind `json:"kind,omitempty"`
	BlogID  string            `json:"blog_id,omitempty"`
	Media   *model.MediaRef   `json:"media,omitempty"`

	// edit_message / delete_message / reactions
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`

	// typing
	IsTyping bool `json:"is_typing,omitempty"`
}

// ErrorPayload is sent back on a failed action.
type ErrorPayload struct {
	Action string `json:"action"`
	Error  string `json:"error"`
}

// SubscribedPayload acknowledges a subscribe.
type SubscribedPayload struct {
	RoomID string `json:"room_id"`
}
