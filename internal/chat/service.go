// Package chat implements the room synchronization core: room and participant
// management, the message append engine, read-state tracking and the event
// publication contract used by the real-time relay.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/blogchat/internal/logger"
	"github.com/blogchat/internal/model"
)

// Authorizer gates operations on room membership and role.
// Implemented by access.Guard.
type Authorizer interface {
	Authorize(ctx context.Context, roomID, userID string, requiredRoles ...model.ParticipantRole) (*model.Room, *model.Participant, error)
}

// manageRoles may add or remove other participants.
var manageRoles = []model.ParticipantRole{model.RoleAdmin, model.RoleModerator}

type Service struct {
	auth  Authorizer
	rooms RoomStore
	msgs  MessageStore
	blogs BlogLookup
	users UserLookup
	relay Broadcaster
	push  PushNotifier
}

// New wires the service. blogs, users, relay and push may be nil: blog shares
// then degrade to bare references, sender display stays empty, events are not
// fanned out and pushes are disabled.
func New(auth Authorizer, rooms RoomStore, msgs MessageStore, blogs BlogLookup, users UserLookup, relay Broadcaster, push PushNotifier) *Service {
	return &Service{auth: auth, rooms: rooms, msgs: msgs, blogs: blogs, users: users, relay: relay, push: push}
}

func (s *Service) publish(roomID string, ev Event) {
	if s.relay == nil {
		return
	}
	s.relay.Publish(roomID, ev)
}

// CreateDirectRoom creates (or returns) the direct room between creatorID and
// otherID. Duplicate direct rooms between the same pair are deduplicated: an
// existing active room is reused.
func (s *Service) CreateDirectRoom(ctx context.Context, creatorID, otherID string) (*model.Room, error) {
	defer logger.DeferLogDuration("chat.CreateDirectRoom", time.Now())()
	if otherID == "" {
		return nil, fmt.Errorf("direct room requires exactly one other participant: %w", ErrValidation)
	}
	if otherID == creatorID {
		return nil, fmt.Errorf("cannot create a direct room with yourself: %w", ErrValidation)
	}

	if existing, err := s.rooms.FindDirectRoom(ctx, creatorID, otherID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if s.users != nil {
		if _, err := s.users.Lookup(ctx, otherID); err != nil {
			return nil, fmt.Errorf("user %s: %w", otherID, ErrNotFound)
		}
	}

	now := time.Now().UTC()
	room := &model.Room{
		ID:             uuid.New().String(),
		Kind:           model.RoomKindDirect,
		CreatedBy:      creatorID,
		Settings:       model.DefaultRoomSettings(),
		Active:         true,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	for _, uid := range []string{creatorID, otherID} {
		p := &model.Participant{RoomID: room.ID, UserID: uid, Role: model.RoleMember, JoinedAt: now, LastSeenAt: now}
		if err := s.rooms.AddParticipant(ctx, p); err != nil {
			// A direct room is only valid with both participants; deactivate
			// so a partial create never resolves.
			if derr := s.rooms.DeactivateRoom(ctx, room.ID); derr != nil {
				logger.Errorf("direct room cleanup room=%s: %v", room.ID, derr)
			}
			return nil, err
		}
	}
	return room, nil
}

// CreateGroupRoom creates a group room with the creator as admin and the given
// members. The creator counts toward the participant limit.
func (s *Service) CreateGroupRoom(ctx context.Context, creatorID, name string, memberIDs []string) (*model.Room, error) {
	defer logger.DeferLogDuration("chat.CreateGroupRoom", time.Now())()
	if name == "" {
		return nil, fmt.Errorf("group room requires a name: %w", ErrValidation)
	}

	seen := map[string]struct{}{creatorID: {}}
	members := make([]string, 0, len(memberIDs))
	for _, uid := range memberIDs {
		if uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		members = append(members, uid)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("group room requires at least one other participant: %w", ErrValidation)
	}

	settings := model.DefaultRoomSettings()
	if len(members)+1 > settings.MaxParticipants {
		return nil, fmt.Errorf("group room exceeds %d participants: %w", settings.MaxParticipants, ErrValidation)
	}

	now := time.Now().UTC()
	room := &model.Room{
		ID:             uuid.New().String(),
		Kind:           model.RoomKindGroup,
		Name:           name,
		CreatedBy:      creatorID,
		Settings:       settings,
		Active:         true,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return nil, err
	}

	admin := &model.Participant{RoomID: room.ID, UserID: creatorID, Role: model.RoleAdmin, JoinedAt: now, LastSeenAt: now}
	if err := s.rooms.AddParticipant(ctx, admin); err != nil {
		return nil, err
	}
	for _, uid := range members {
		p := &model.Participant{RoomID: room.ID, UserID: uid, Role: model.RoleMember, JoinedAt: now, LastSeenAt: now}
		if err := s.rooms.AddParticipant(ctx, p); err != nil {
			return nil, err
		}
	}
	return room, nil
}

// Rooms returns the caller's rooms with last-message preview and unread count.
func (s *Service) Rooms(ctx context.Context, userID string) ([]model.RoomSummary, error) {
	defer logger.DeferLogDuration("chat.Rooms", time.Now())()
	rooms, err := s.rooms.RoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]model.RoomSummary, 0, len(rooms))
	for i := range rooms {
		summary, err := s.summarize(ctx, &rooms[i], userID)
		if err != nil {
			logger.Errorf("rooms summarize room=%s: %v", rooms[i].ID, err)
			continue
		}
		result = append(result, *summary)
	}
	return result, nil
}

func (s *Service) summarize(ctx context.Context, room *model.Room, userID string) (*model.RoomSummary, error) {
	participants, err := s.rooms.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	s.attachUsers(ctx, participants)

	last, err := s.msgs.LastMessage(ctx, room.ID)
	if err != nil {
		logger.Errorf("summarize last message room=%s: %v", room.ID, err)
	}

	unread, err := s.rooms.UnreadCount(ctx, room.ID, userID)
	if err != nil {
		logger.Errorf("summarize unread count room=%s: %v", room.ID, err)
	}

	return &model.RoomSummary{
		Room:         *room,
		LastMessage:  last,
		Participants: participants,
		UnreadCount:  unread,
	}, nil
}

// Room fetches a room with its participants and non-deleted messages in
// insertion order. UnreadCount reflects the state before this fetch; the
// fetch itself advances the caller's read watermark (lazy read tracking).
func (s *Service) Room(ctx context.Context, roomID, userID string, limit, offset int) (*model.RoomView, error) {
	defer logger.DeferLogDuration("chat.Room", time.Now())()
	room, _, err := s.auth.Authorize(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	participants, err := s.rooms.Participants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	s.attachUsers(ctx, participants)

	unread, err := s.rooms.UnreadCount(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	messages, err := s.msgs.ListMessages(ctx, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		reactions, err := s.msgs.Reactions(ctx, messages[i].ID)
		if err == nil && len(reactions) > 0 {
			messages[i].Reactions = reactions
		}
	}
	s.attachSenders(ctx, messages)

	if err := s.rooms.SetLastSeen(ctx, roomID, userID, time.Now().UTC()); err != nil {
		logger.Errorf("room fetch set last seen room=%s user=%s: %v", roomID, userID, err)
	}

	return &model.RoomView{
		Room:         *room,
		Participants: participants,
		Messages:     messages,
		UnreadCount:  unread,
	}, nil
}

// MarkAsRead advances the caller's read watermark to now. It is a no-op when
// the user is not a participant.
func (s *Service) MarkAsRead(ctx context.Context, roomID, userID string) error {
	defer logger.DeferLogDuration("chat.MarkAsRead", time.Now())()
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Active {
		return fmt.Errorf("room %s inactive: %w", roomID, ErrNotFound)
	}
	return s.rooms.SetLastSeen(ctx, roomID, userID, time.Now().UTC())
}

// AppendInput is the caller-supplied part of a new message.
type AppendInput struct {
	Content string
	Kind    model.MessageKind
	BlogID  string
	Media   *model.MediaRef
}

// Append validates and appends a message to the room's log, advances the
// room's last activity, fans the message out to subscribers and pushes
// notifications to the other participants. A failed blog lookup degrades the
// share (empty cached summary) instead of failing the append.
func (s *Service) Append(ctx context.Context, roomID, senderID string, in AppendInput) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.Append", time.Now())()
	room, _, err := s.auth.Authorize(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}

	kind := in.Kind
	if kind == "" {
		kind = model.MessageKindText
	}
	if !model.KnownMessageKind(kind) {
		return nil, fmt.Errorf("unknown message kind %q: %w", in.Kind, ErrValidation)
	}
	if utf8.RuneCountInString(in.Content) > model.MaxContentLength {
		return nil, fmt.Errorf("content exceeds %d characters: %w", model.MaxContentLength, ErrValidation)
	}

	now := time.Now().UTC()
	m := &model.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   in.Content,
		Kind:      kind,
		State:     model.MessageStateActive,
		CreatedAt: now,
	}

	switch kind {
	case model.MessageKindText:
		if in.Content == "" {
			return nil, fmt.Errorf("text message requires content: %w", ErrValidation)
		}
	case model.MessageKindBlog:
		if !room.Settings.AllowBlogSharing {
			return nil, fmt.Errorf("blog sharing disabled in room %s: %w", roomID, ErrValidation)
		}
		if in.BlogID == "" {
			return nil, fmt.Errorf("blog message requires blog_id: %w", ErrValidation)
		}
		m.SharedBlog = s.resolveBlog(ctx, in.BlogID)
	case model.MessageKindImage, model.MessageKindFile:
		if !room.Settings.AllowFileSharing {
			return nil, fmt.Errorf("file sharing disabled in room %s: %w", roomID, ErrValidation)
		}
		if in.Media == nil || in.Media.URL == "" {
			return nil, fmt.Errorf("%s message requires a media url: %w", kind, ErrValidation)
		}
		media := *in.Media
		m.Media = &media
	}

	if err := s.msgs.AppendMessage(ctx, m); err != nil {
		return nil, err
	}

	if s.users != nil {
		if sender, err := s.users.Lookup(ctx, senderID); err == nil {
			m.Sender = sender
		}
	}

	s.publish(roomID, Event{Type: EventMessageReceived, RoomID: roomID, Payload: m})
	s.notifyParticipants(roomID, m)
	return m, nil
}

// resolveBlog fetches the shared blog's cached summary. On failure the share
// keeps only the blog id: degraded, not dropped.
func (s *Service) resolveBlog(ctx context.Context, blogID string) *model.BlogRef {
	if s.blogs == nil {
		return &model.BlogRef{BlogID: blogID}
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ref, err := s.blogs.Lookup(lookupCtx, blogID)
	if err != nil {
		logger.Errorf("blog lookup degraded blog=%s: %v", blogID, err)
		return &model.BlogRef{BlogID: blogID}
	}
	return ref
}

func (s *Service) notifyParticipants(roomID string, m *model.Message) {
	if s.push == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	participants, err := s.rooms.Participants(ctx, roomID)
	if err != nil {
		logger.Errorf("push participants room=%s: %v", roomID, err)
		return
	}

	title := "New message"
	if m.Sender != nil && m.Sender.Username != "" {
		title = m.Sender.Username
	}
	body := m.Content
	if m.Kind != model.MessageKindText || body == "" {
		body = "Attachment"
	}
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	data := map[string]string{"room_id": roomID, "message_id": m.ID}
	for _, p := range participants {
		if p.UserID == m.SenderID {
			continue
		}
		uid := p.UserID
		go s.push.Notify(context.Background(), uid, title, body, data)
	}
}

// Edit replaces a message's content. Only the sender may edit; deleted
// messages cannot be edited (they no longer resolve for reads).
func (s *Service) Edit(ctx context.Context, roomID, messageID, editorID, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.Edit", time.Now())()
	if _, _, err := s.auth.Authorize(ctx, roomID, editorID); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("edit requires content: %w", ErrValidation)
	}
	if utf8.RuneCountInString(content) > model.MaxContentLength {
		return nil, fmt.Errorf("content exceeds %d characters: %w", model.MaxContentLength, ErrValidation)
	}

	m, err := s.getRoomMessage(ctx, roomID, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != editorID {
		return nil, fmt.Errorf("user %s cannot edit message %s: %w", editorID, messageID, ErrForbidden)
	}

	now := time.Now().UTC()
	if err := s.msgs.MarkEdited(ctx, messageID, content, now); err != nil {
		return nil, err
	}
	m.Content = content
	m.State = model.MessageStateEdited
	m.EditedAt = &now

	s.publish(roomID, Event{Type: EventMessageEdited, RoomID: roomID, Payload: MessageEditedPayload{
		MessageID: messageID,
		RoomID:    roomID,
		Content:   content,
		EditedAt:  now,
	}})
	return m, nil
}

// Delete tombstones a message. Only the sender may delete; the record stays
// server-side but is excluded from reads.
func (s *Service) Delete(ctx context.Context, roomID, messageID, requesterID string) error {
	defer logger.DeferLogDuration("chat.Delete", time.Now())()
	if _, _, err := s.auth.Authorize(ctx, roomID, requesterID); err != nil {
		return err
	}

	m, err := s.getRoomMessage(ctx, roomID, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != requesterID {
		return fmt.Errorf("user %s cannot delete message %s: %w", requesterID, messageID, ErrForbidden)
	}

	now := time.Now().UTC()
	if err := s.msgs.MarkDeleted(ctx, messageID, now); err != nil {
		return err
	}

	s.publish(roomID, Event{Type: EventMessageDeleted, RoomID: roomID, Payload: MessageDeletedPayload{
		MessageID: messageID,
		RoomID:    roomID,
	}})
	return nil
}

// SetReaction records the user's reaction on a message; a second reaction from
// the same user replaces the first (last write wins).
func (s *Service) SetReaction(ctx context.Context, roomID, messageID, userID, emoji string) error {
	defer logger.DeferLogDuration("chat.SetReaction", time.Now())()
	if _, _, err := s.auth.Authorize(ctx, roomID, userID); err != nil {
		return err
	}
	if emoji == "" {
		return fmt.Errorf("reaction requires an emoji: %w", ErrValidation)
	}
	if _, err := s.getRoomMessage(ctx, roomID, messageID); err != nil {
		return err
	}

	if err := s.msgs.SetReaction(ctx, messageID, userID, emoji, time.Now().UTC()); err != nil {
		return err
	}
	s.publish(roomID, Event{Type: EventReactionSet, RoomID: roomID, Payload: ReactionPayload{
		MessageID: messageID, RoomID: roomID, UserID: userID, Emoji: emoji,
	}})
	return nil
}

// RemoveReaction clears the user's reaction from a message.
func (s *Service) RemoveReaction(ctx context.Context, roomID, messageID, userID string) error {
	defer logger.DeferLogDuration("chat.RemoveReaction", time.Now())()
	if _, _, err := s.auth.Authorize(ctx, roomID, userID); err != nil {
		return err
	}
	if _, err := s.getRoomMessage(ctx, roomID, messageID); err != nil {
		return err
	}

	if err := s.msgs.RemoveReaction(ctx, messageID, userID); err != nil {
		return err
	}
	s.publish(roomID, Event{Type: EventReactionRemoved, RoomID: roomID, Payload: ReactionPayload{
		MessageID: messageID, RoomID: roomID, UserID: userID,
	}})
	return nil
}

// Typing relays a transient typing indicator to the room, excluding the
// typist's own connections. Nothing is persisted; clients expire the
// indicator on their own after a few seconds.
func (s *Service) Typing(ctx context.Context, roomID, userID string, isTyping bool) error {
	defer logger.DeferLogDuration("chat.Typing", time.Now())()
	if _, _, err := s.auth.Authorize(ctx, roomID, userID); err != nil {
		return err
	}
	s.publish(roomID, Event{
		Type:        EventTypingIndicator,
		RoomID:      roomID,
		Payload:     TypingPayload{RoomID: roomID, UserID: userID, IsTyping: isTyping},
		ExcludeUser: userID,
	})
	return nil
}

// AddParticipant adds userID to a group room. Only admins and moderators may
// add; adding an existing participant returns the existing record unchanged.
func (s *Service) AddParticipant(ctx context.Context, roomID, actorID, userID string, role model.ParticipantRole) (*model.Participant, error) {
	defer logger.DeferLogDuration("chat.AddParticipant", time.Now())()
	if role == "" {
		role = model.RoleMember
	}
	switch role {
	case model.RoleMember, model.RoleAdmin, model.RoleModerator:
	default:
		return nil, fmt.Errorf("unknown role %q: %w", role, ErrValidation)
	}
	if userID == "" {
		return nil, fmt.Errorf("participant requires user_id: %w", ErrValidation)
	}

	room, _, err := s.auth.Authorize(ctx, roomID, actorID, manageRoles...)
	if err != nil {
		return nil, err
	}
	if room.Kind == model.RoomKindDirect {
		return nil, fmt.Errorf("direct rooms have exactly two participants: %w", ErrValidation)
	}

	if existing, err := s.rooms.Participant(ctx, roomID, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	count, err := s.rooms.CountParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if count >= room.Settings.MaxParticipants {
		return nil, fmt.Errorf("room %s is full (%d participants): %w", roomID, count, ErrValidation)
	}

	now := time.Now().UTC()
	p := &model.Participant{RoomID: roomID, UserID: userID, Role: role, JoinedAt: now, LastSeenAt: now}
	if err := s.rooms.AddParticipant(ctx, p); err != nil {
		return nil, err
	}

	s.publish(roomID, Event{Type: EventParticipantAdded, RoomID: roomID, Payload: ParticipantPayload{
		RoomID: roomID, UserID: userID, ActorID: actorID,
	}})
	return p, nil
}

// RemoveParticipant removes userID from the room. Self-removal is always
// permitted; removing someone else requires admin or moderator. An emptied
// room is not deactivated automatically.
func (s *Service) RemoveParticipant(ctx context.Context, roomID, actorID, userID string) error {
	defer logger.DeferLogDuration("chat.RemoveParticipant", time.Now())()
	isLeave := actorID == userID
	if isLeave {
		if _, _, err := s.auth.Authorize(ctx, roomID, actorID); err != nil {
			return err
		}
	} else {
		if _, _, err := s.auth.Authorize(ctx, roomID, actorID, manageRoles...); err != nil {
			return err
		}
		if _, err := s.rooms.Participant(ctx, roomID, userID); err != nil {
			return err
		}
	}

	if err := s.rooms.RemoveParticipant(ctx, roomID, userID); err != nil {
		return err
	}

	s.publish(roomID, Event{Type: EventParticipantRemoved, RoomID: roomID, Payload: ParticipantPayload{
		RoomID: roomID, UserID: userID, ActorID: actorID, IsLeave: isLeave,
	}})
	return nil
}

// getRoomMessage resolves a message and verifies it belongs to the room and is
// not tombstoned.
func (s *Service) getRoomMessage(ctx context.Context, roomID, messageID string) (*model.Message, error) {
	m, err := s.msgs.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.RoomID != roomID || m.Deleted() {
		return nil, fmt.Errorf("message %s in room %s: %w", messageID, roomID, ErrNotFound)
	}
	return m, nil
}

func (s *Service) attachUsers(ctx context.Context, participants []model.Participant) {
	if s.users == nil {
		return
	}
	for i := range participants {
		if u, err := s.users.Lookup(ctx, participants[i].UserID); err == nil {
			participants[i].User = u
		}
	}
}

func (s *Service) attachSenders(ctx context.Context, messages []model.Message) {
	if s.users == nil {
		return
	}
	cache := make(map[string]*model.UserPublic, 8)
	for i := range messages {
		uid := messages[i].SenderID
		u, ok := cache[uid]
		if !ok {
			var err error
			u, err = s.users.Lookup(ctx, uid)
			if err != nil {
				u = nil
			}
			cache[uid] = u
		}
		if u != nil {
			messages[i].Sender = u
		}
	}
}
