package access_test

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

func seedRoom(t *testing.T, store *memstore.Store, active bool) *model.Room {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	room := &model.Room{
		ID:             "room-1",
		Kind:           model.RoomKindGroup,
		Name:           "team",
		CreatedBy:      "alice",
		Settings:       model.DefaultRoomSettings(),
		Active:         active,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	require.NoError(t, store.CreateRoom(ctx, room))
	require.NoError(t, store.AddParticipant(ctx, &model.Participant{
		RoomID: room.ID, UserID: "alice", Role: model.RoleAdmin, JoinedAt: now, LastSeenAt: now,
	}))
	require.NoError(t, store.AddParticipant(ctx, &model.Participant{
		RoomID: room.ID, UserID: "bob", Role: model.RoleMember, JoinedAt: now, LastSeenAt: now,
	}))
	if !active {
		require.NoError(t, store.DeactivateRoom(ctx, room.ID))
	}
	return room
}

func TestAuthorizeMembership(t *testing.T) {
	store := memstore.New()
	room := seedRoom(t, store, true)
	guard := access.NewGuard(store)
	ctx := context.Background()

	gotRoom, gotP, err := guard.Authorize(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, room.ID, gotRoom.ID)
	assert.Equal(t, "bob", gotP.UserID)

	_, _, err = guard.Authorize(ctx, room.ID, "carol")
	assert.ErrorIs(t, err, chat.ErrForbidden)

	_, _, err = guard.Authorize(ctx, "no-such-room", "bob")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestAuthorizeRoles(t *testing.T) {
	store := memstore.New()
	room := seedRoom(t, store, true)
	guard := access.NewGuard(store)
	ctx := context.Background()

	_, _, err := guard.Authorize(ctx, room.ID, "alice", model.RoleAdmin, model.RoleModerator)
	assert.NoError(t, err)

	_, _, err = guard.Authorize(ctx, room.ID, "bob", model.RoleAdmin, model.RoleModerator)
	assert.ErrorIs(t, err, chat.ErrForbidden)

	// no required roles: any participant passes
	_, _, err = guard.Authorize(ctx, room.ID, "bob")
	assert.NoError(t, err)
}

func TestAuthorizeInactiveRoom(t *testing.T) {
	store := memstore.New()
	room := seedRoom(t, store, false)
	guard := access.NewGuard(store)

	_, _, err := guard.Authorize(context.Background(), room.ID, "alice")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}
