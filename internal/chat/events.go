package chat

import "time"

type EventType string

const (
	EventMessageReceived    EventType = "message_received"
	EventMessageEdited      EventType = "message_edited"
	EventMessageDeleted     EventType = "message_deleted"
	EventTypingIndicator    EventType = "typing_indicator"
	EventReactionSet        EventType = "reaction_set"
	EventReactionRemoved    EventType = "reaction_removed"
	EventParticipantAdded   EventType = "participant_added"
	EventParticipantRemoved EventType = "participant_removed"
)

// Event is a real-time notification fanned out to connections subscribed to a
// room. Delivery is best-effort, at-most-once; authoritative state is always
// the room store.
type Event struct {
	Type    EventType `json:"type"`
	RoomID  string    `json:"room_id"`
	Payload any       `json:"payload"`

	// ExcludeUser suppresses delivery to this user's connections
	// (typing indicators are not echoed back to the typist).
	ExcludeUser string `json:"-"`
}

// Broadcaster fans events out to subscribers of a room. Publish must never
// block the caller and never returns an error: a failed delivery to one
// subscriber must not affect others or the triggering mutation.
type Broadcaster interface {
	Publish(roomID string, ev Event)
}

// --- Typed event payloads ---

type MessageEditedPayload struct {
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"edited_at"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
}

type TypingPayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type ReactionPayload struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji,omitempty"`
}

type ParticipantPayload struct {
	RoomID  string `json:"room_id"`
	UserID  string `json:"user_id"`
	ActorID string `json:"actor_id,omitempty"`
	IsLeave bool   `json:"is_leave,omitempty"`
}
