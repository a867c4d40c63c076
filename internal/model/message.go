package model

import "time"

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindBlog  MessageKind = "blog"
	MessageKindFile  MessageKind = "file"
)

// KnownMessageKind reports whether k is one of the four supported kinds.
func KnownMessageKind(k MessageKind) bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindBlog, MessageKindFile:
		return true
	}
	return false
}

// MessageState is the lifecycle of a message after creation. A message is
// either active, edited (content replaced by its sender) or deleted
// (tombstoned, excluded from reads). Deleted is terminal.
type MessageState string

const (
	MessageStateActive  MessageState = "active"
	MessageStateEdited  MessageState = "edited"
	MessageStateDeleted MessageState = "deleted"
)

// MaxContentLength bounds message content, in runes.
const MaxContentLength = 2000

// BlogRef is the cached summary of a shared blog post. Title/Excerpt/Cover
// stay empty when the blog lookup failed at append time (degraded share).
type BlogRef struct {
	BlogID     string `json:"blog_id"`
	Title      string `json:"title,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
	CoverImage string `json:"cover_image,omitempty"`
}

// MediaRef carries caller-supplied file/image metadata. The URL is stored as
// given; reachability is not verified.
type MediaRef struct {
	URL      string `json:"url"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type Message struct {
	ID       string      `json:"id"`
	Seq      int64       `json:"seq"`
	RoomID   string      `json:"room_id"`
	SenderID string      `json:"sender_id"`
	Content  string      `json:"content"`
	Kind     MessageKind `json:"kind"`

	SharedBlog *BlogRef  `json:"shared_blog,omitempty"`
	Media      *MediaRef `json:"media,omitempty"`

	State     MessageState `json:"state"`
	EditedAt  *time.Time   `json:"edited_at,omitempty"`
	DeletedAt *time.Time   `json:"deleted_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`

	Sender    *UserPublic `json:"sender,omitempty"`
	Reactions []Reaction  `json:"reactions,omitempty"`
}

// Deleted reports whether the message is tombstoned.
func (m *Message) Deleted() bool { return m.State == MessageStateDeleted }

// Reaction is one user's emoji on a message. A user holds at most one
// reaction per message; setting a new emoji replaces the old one.
type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
