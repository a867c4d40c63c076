// Package memstore is an in-memory implementation of the chat stores, used by
// tests and as a last-resort fallback when no database is configured.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/model"
)

type Store struct {
	mu           sync.RWMutex
	rooms        map[string]*model.Room
	participants map[string]map[string]*model.Participant
	messages     map[string]*model.Message
	byRoom       map[string][]string
	reactions    map[string]map[string]model.Reaction
	nextSeq      int64
}

func New() *Store {
	return &Store{
		rooms:        make(map[string]*model.Room),
		participants: make(map[string]map[string]*model.Participant),
		messages:     make(map[string]*model.Message),
		byRoom:       make(map[string][]string),
		reactions:    make(map[string]map[string]model.Reaction),
	}
}

func (s *Store) Close() error { return nil }

// --- chat.RoomStore ---

func (s *Store) CreateRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return nil
	}
	cp := *room
	s.rooms[room.ID] = &cp
	s.participants[room.ID] = make(map[string]*model.Participant)
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, chat.ErrNotFound)
	}
	cp := *room
	return &cp, nil
}

func (s *Store) FindDirectRoom(ctx context.Context, userID1, userID2 string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, room := range s.rooms {
		if room.Kind != model.RoomKindDirect || !room.Active {
			continue
		}
		members := s.participants[id]
		if _, ok1 := members[userID1]; !ok1 {
			continue
		}
		if _, ok2 := members[userID2]; !ok2 {
			continue
		}
		cp := *room
		return &cp, nil
	}
	return nil, fmt.Errorf("direct room %s/%s: %w", userID1, userID2, chat.ErrNotFound)
}

func (s *Store) RoomsForUser(ctx context.Context, userID string) ([]model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]model.Room, 0, 8)
	for id, room := range s.rooms {
		if !room.Active {
			continue
		}
		if _, ok := s.participants[id][userID]; !ok {
			continue
		}
		rooms = append(rooms, *room)
	}
	// newest activity first, matching the SQL store
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].LastActivityAt.After(rooms[j].LastActivityAt)
	})
	return rooms, nil
}

func (s *Store) DeactivateRoom(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[id]; ok {
		room.Active = false
	}
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, p *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.participants[p.RoomID]
	if !ok {
		members = make(map[string]*model.Participant)
		s.participants[p.RoomID] = members
	}
	if _, exists := members[p.UserID]; exists {
		return nil
	}
	cp := *p
	members[p.UserID] = &cp
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants[roomID], userID)
	return nil
}

func (s *Store) Participants(ctx context.Context, roomID string) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.participants[roomID]
	out := make([]model.Participant, 0, len(members))
	for _, p := range members {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) Participant(ctx context.Context, roomID, userID string) (*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return nil, fmt.Errorf("participant %s/%s: %w", roomID, userID, chat.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) CountParticipants(ctx context.Context, roomID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants[roomID]), nil
}

func (s *Store) SetLastSeen(ctx context.Context, roomID, userID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return nil
	}
	if t.After(p.LastSeenAt) {
		p.LastSeenAt = t
	}
	return nil
}

func (s *Store) UnreadCount(ctx context.Context, roomID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, id := range s.byRoom[roomID] {
		m := s.messages[id]
		if m.State == model.MessageStateDeleted || m.SenderID == userID {
			continue
		}
		if m.CreatedAt.After(p.LastSeenAt) {
			count++
		}
	}
	return count, nil
}

// --- chat.MessageStore ---

func (s *Store) AppendMessage(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	m.Seq = s.nextSeq
	cp := *m
	s.messages[m.ID] = &cp
	s.byRoom[m.RoomID] = append(s.byRoom[m.RoomID], m.ID)
	if room, ok := s.rooms[m.RoomID]; ok && m.CreatedAt.After(room.LastActivityAt) {
		room.LastActivityAt = m.CreatedAt
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, chat.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, 0, 16)
	skipped := 0
	for _, id := range s.byRoom[roomID] {
		m := s.messages[id]
		if m.State == model.MessageStateDeleted {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, *m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) LastMessage(ctx context.Context, roomID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRoom[roomID]
	for i := len(ids) - 1; i >= 0; i-- {
		m := s.messages[ids[i]]
		if m.State == model.MessageStateDeleted {
			continue
		}
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) MarkEdited(ctx context.Context, id, content string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.State == model.MessageStateDeleted {
		return fmt.Errorf("message %s: %w", id, chat.ErrNotFound)
	}
	m.Content = content
	m.State = model.MessageStateEdited
	t := at
	m.EditedAt = &t
	return nil
}

func (s *Store) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil
	}
	m.State = model.MessageStateDeleted
	m.Content = ""
	t := at
	m.DeletedAt = &t
	return nil
}

func (s *Store) SetReaction(ctx context.Context, messageID, userID, emoji string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.reactions[messageID]
	if !ok {
		set = make(map[string]model.Reaction)
		s.reactions[messageID] = set
	}
	set[userID] = model.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: at}
	return nil
}

func (s *Store) RemoveReaction(ctx context.Context, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reactions[messageID], userID)
	return nil
}

func (s *Store) Reactions(ctx context.Context, messageID string) ([]model.Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.reactions[messageID]
	out := make([]model.Reaction, 0, len(set))
	for _, re := range set {
		out = append(out, re)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
