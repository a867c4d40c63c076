package model

import "time"

type RoomKind string

const (
	RoomKindDirect RoomKind = "direct"
	RoomKindGroup  RoomKind = "group"
)

type ParticipantRole string

const (
	RoleMember    ParticipantRole = "member"
	RoleAdmin     ParticipantRole = "admin"
	RoleModerator ParticipantRole = "moderator"
)

// RoomSettings controls what may be shared in a room and how large it can grow.
type RoomSettings struct {
	AllowFileSharing bool `json:"allow_file_sharing"`
	AllowBlogSharing bool `json:"allow_blog_sharing"`
	MaxParticipants  int  `json:"max_participants"`
}

// DefaultRoomSettings mirrors the defaults applied to newly created rooms.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{AllowFileSharing: true, AllowBlogSharing: true, MaxParticipants: 50}
}

type Room struct {
	ID             string       `json:"id"`
	Kind           RoomKind     `json:"kind"`
	Name           string       `json:"name,omitempty"`
	CreatedBy      string       `json:"created_by"`
	Settings       RoomSettings `json:"settings"`
	Active         bool         `json:"active"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Participant is a user's membership record within a room. LastSeenAt is the
// read watermark: messages created after it count as unread.
type Participant struct {
	RoomID     string          `json:"room_id"`
	UserID     string          `json:"user_id"`
	Role       ParticipantRole `json:"role"`
	JoinedAt   time.Time       `json:"joined_at"`
	LastSeenAt time.Time       `json:"last_seen_at"`
	User       *UserPublic     `json:"user,omitempty"`
}

// RoomSummary is the room-list view: last message preview plus unread count
// for the requesting user.
type RoomSummary struct {
	Room         Room          `json:"room"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	Participants []Participant `json:"participants"`
	UnreadCount  int           `json:"unread_count"`
}

// RoomView is the full room fetch: participants and the non-deleted message
// log in insertion order. UnreadCount is computed before the fetch advances
// the caller's read watermark.
type RoomView struct {
	Room         Room          `json:"room"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
	UnreadCount  int           `json:"unread_count"`
}
