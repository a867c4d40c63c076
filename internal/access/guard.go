// Package access gates every mutating room operation on membership and role.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/logger"
	"github.com/blogchat/internal/model"
)

type Guard struct {
	rooms chat.RoomStore
}

func NewGuard(rooms chat.RoomStore) *Guard {
	return &Guard{rooms: rooms}
}

// Authorize verifies that the room exists and is active, that userID is a
// participant and, when requiredRoles is non-empty, that the participant's
// role is in the set. It returns the room and the caller's participant record
// so callers do not refetch them.
//
// Inactive or missing rooms surface chat.ErrNotFound; everything else that
// fails the check surfaces chat.ErrForbidden.
func (g *Guard) Authorize(ctx context.Context, roomID, userID string, requiredRoles ...model.ParticipantRole) (*model.Room, *model.Participant, error) {
	defer logger.DeferLogDuration("access.Authorize", time.Now())()

	room, err := g.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("guard room %s: %w", roomID, err)
	}
	if !room.Active {
		return nil, nil, fmt.Errorf("guard room %s inactive: %w", roomID, chat.ErrNotFound)
	}

	p, err := g.rooms.Participant(ctx, roomID, userID)
	if errors.Is(err, chat.ErrNotFound) {
		return nil, nil, fmt.Errorf("guard user %s not in room %s: %w", userID, roomID, chat.ErrForbidden)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("guard participant %s/%s: %w", roomID, userID, err)
	}

	if len(requiredRoles) > 0 {
		allowed := false
		for _, r := range requiredRoles {
			if p.Role == r {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, nil, fmt.Errorf("guard user %s role %s in room %s: %w", userID, p.Role, roomID, chat.ErrForbidden)
		}
	}
	return room, p, nil
}
