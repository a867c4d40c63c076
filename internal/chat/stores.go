package chat

import (
	"context"
	"time"

	"github.com/blogchat/internal/model"
)

// RoomStore persists rooms and participant membership. Implementations:
// repository.RoomRepository (Postgres), memstore.Store (tests).
//
// Missing rooms and participants surface ErrNotFound; persistence-layer
// timeouts surface ErrTransientStore after bounded retries.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *model.Room) error
	// GetRoom returns inactive rooms too; callers that require an active
	// room check Room.Active themselves.
	GetRoom(ctx context.Context, id string) (*model.Room, error)
	// FindDirectRoom finds an active direct room containing exactly the two
	// given users, in either order.
	FindDirectRoom(ctx context.Context, userID1, userID2 string) (*model.Room, error)
	RoomsForUser(ctx context.Context, userID string) ([]model.Room, error)
	DeactivateRoom(ctx context.Context, id string) error

	// AddParticipant is idempotent: adding an existing participant is a no-op.
	AddParticipant(ctx context.Context, p *model.Participant) error
	RemoveParticipant(ctx context.Context, roomID, userID string) error
	Participants(ctx context.Context, roomID string) ([]model.Participant, error)
	Participant(ctx context.Context, roomID, userID string) (*model.Participant, error)
	CountParticipants(ctx context.Context, roomID string) (int, error)

	// SetLastSeen advances the participant's read watermark. No-op when the
	// user is not a participant.
	SetLastSeen(ctx context.Context, roomID, userID string, t time.Time) error
	// UnreadCount counts non-deleted messages from other senders created
	// after the participant's watermark.
	UnreadCount(ctx context.Context, roomID, userID string) (int, error)
}

// MessageStore persists the append-only message log. Insertion order (Seq) is
// authoritative; created_at timestamps may collide.
type MessageStore interface {
	// AppendMessage inserts the message, assigns Seq and advances the room's
	// last_activity_at in the same transaction (monotonically: the timestamp
	// never moves backward).
	AppendMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	// ListMessages returns non-deleted messages in insertion order.
	ListMessages(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error)
	// LastMessage returns the latest non-deleted message, or nil when none.
	LastMessage(ctx context.Context, roomID string) (*model.Message, error)
	// MarkEdited replaces content and sets state=edited. ErrNotFound when the
	// message is missing or already deleted (a concurrent delete wins).
	MarkEdited(ctx context.Context, id, content string, at time.Time) error
	MarkDeleted(ctx context.Context, id string, at time.Time) error

	// SetReaction upserts the user's reaction (one per user per message,
	// last write wins).
	SetReaction(ctx context.Context, messageID, userID, emoji string, at time.Time) error
	RemoveReaction(ctx context.Context, messageID, userID string) error
	Reactions(ctx context.Context, messageID string) ([]model.Reaction, error)
}

// BlogLookup resolves a shared blog id to its cached summary. The external
// blog service owns the data; a failed lookup degrades the share, it never
// fails the append.
type BlogLookup interface {
	Lookup(ctx context.Context, blogID string) (*model.BlogRef, error)
}

// UserLookup resolves user ids to display data from the external directory.
type UserLookup interface {
	Lookup(ctx context.Context, userID string) (*model.UserPublic, error)
}

// PushNotifier sends push notifications. Nil disables pushes.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}
