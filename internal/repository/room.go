// Package repository implements the Postgres-backed stores on pgxpool.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/logger"
	"github.com/blogchat/internal/model"
)

const roomColumns = `id, kind, COALESCE(name,''), created_by,
	allow_file_sharing, allow_blog_sharing, max_participants,
	active, last_activity_at, created_at`

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	r := &model.Room{}
	err := row.Scan(&r.ID, &r.Kind, &r.Name, &r.CreatedBy,
		&r.Settings.AllowFileSharing, &r.Settings.AllowBlogSharing, &r.Settings.MaxParticipants,
		&r.Active, &r.LastActivityAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RoomRepository) CreateRoom(ctx context.Context, room *model.Room) error {
	defer logger.DeferLogDuration("roomRepo.CreateRoom", time.Now())()
	return withRetry(ctx, "roomRepo.CreateRoom", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO rooms (id, kind, name, created_by, allow_file_sharing, allow_blog_sharing, max_participants, active, last_activity_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO NOTHING`,
			room.ID, room.Kind, room.Name, room.CreatedBy,
			room.Settings.AllowFileSharing, room.Settings.AllowBlogSharing, room.Settings.MaxParticipants,
			room.Active, room.LastActivityAt, room.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("roomRepo.CreateRoom: %w", err)
		}
		return nil
	})
}

func (r *RoomRepository) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	defer logger.DeferLogDuration("roomRepo.GetRoom", time.Now())()
	var room *model.Room
	err := withRetry(ctx, "roomRepo.GetRoom", func() error {
		var err error
		room, err = scanRoom(r.pool.QueryRow(ctx,
			`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("room %s: %w", id, chat.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("roomRepo.GetRoom: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *RoomRepository) FindDirectRoom(ctx context.Context, userID1, userID2 string) (*model.Room, error) {
	defer logger.DeferLogDuration("roomRepo.FindDirectRoom", time.Now())()
	var room *model.Room
	err := withRetry(ctx, "roomRepo.FindDirectRoom", func() error {
		var err error
		room, err = scanRoom(r.pool.QueryRow(ctx,
			`SELECT `+roomColumns+` FROM rooms r
			 WHERE r.kind = 'direct' AND r.active
			   AND EXISTS (SELECT 1 FROM room_participants WHERE room_id = r.id AND user_id = $1)
			   AND EXISTS (SELECT 1 FROM room_participants WHERE room_id = r.id AND user_id = $2)
			 LIMIT 1`, userID1, userID2))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("direct room %s/%s: %w", userID1, userID2, chat.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("roomRepo.FindDirectRoom: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *RoomRepository) RoomsForUser(ctx context.Context, userID string) ([]model.Room, error) {
	defer logger.DeferLogDuration("roomRepo.RoomsForUser", time.Now())()
	var rooms []model.Room
	err := withRetry(ctx, "roomRepo.RoomsForUser", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+roomColumns+` FROM rooms r
			 JOIN room_participants rp ON rp.room_id = r.id
			 WHERE rp.user_id = $1 AND r.active
			 ORDER BY r.last_activity_at DESC`, userID,
		)
		if err != nil {
			return fmt.Errorf("roomRepo.RoomsForUser query: %w", err)
		}
		defer rows.Close()

		rooms = make([]model.Room, 0, 16)
		for rows.Next() {
			room, err := scanRoom(rows)
			if err != nil {
				return fmt.Errorf("roomRepo.RoomsForUser scan: %w", err)
			}
			rooms = append(rooms, *room)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("roomRepo.RoomsForUser rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *RoomRepository) DeactivateRoom(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("roomRepo.DeactivateRoom", time.Now())()
	return withRetry(ctx, "roomRepo.DeactivateRoom", func() error {
		_, err := r.pool.Exec(ctx, `UPDATE rooms SET active = false WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("roomRepo.DeactivateRoom: %w", err)
		}
		return nil
	})
}

func (r *RoomRepository) AddParticipant(ctx context.Context, p *model.Participant) error {
	defer logger.DeferLogDuration("roomRepo.AddParticipant", time.Now())()
	return withRetry(ctx, "roomRepo.AddParticipant", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO room_participants (room_id, user_id, role, joined_at, last_seen_at)
			 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
			p.RoomID, p.UserID, p.Role, p.JoinedAt, p.LastSeenAt,
		)
		if err != nil {
			return fmt.Errorf("roomRepo.AddParticipant: %w", err)
		}
		return nil
	})
}

func (r *RoomRepository) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	defer logger.DeferLogDuration("roomRepo.RemoveParticipant", time.Now())()
	return withRetry(ctx, "roomRepo.RemoveParticipant", func() error {
		_, err := r.pool.Exec(ctx,
			`DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`,
			roomID, userID,
		)
		if err != nil {
			return fmt.Errorf("roomRepo.RemoveParticipant: %w", err)
		}
		return nil
	})
}

func (r *RoomRepository) Participants(ctx context.Context, roomID string) ([]model.Participant, error) {
	defer logger.DeferLogDuration("roomRepo.Participants", time.Now())()
	var participants []model.Participant
	err := withRetry(ctx, "roomRepo.Participants", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT room_id, user_id, role, joined_at, last_seen_at
			 FROM room_participants
			 WHERE room_id = $1
			 ORDER BY joined_at`, roomID,
		)
		if err != nil {
			return fmt.Errorf("roomRepo.Participants query: %w", err)
		}
		defer rows.Close()

		participants = make([]model.Participant, 0, 8)
		for rows.Next() {
			var p model.Participant
			if err := rows.Scan(&p.RoomID, &p.UserID, &p.Role, &p.JoinedAt, &p.LastSeenAt); err != nil {
				return fmt.Errorf("roomRepo.Participants scan: %w", err)
			}
			participants = append(participants, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("roomRepo.Participants rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *RoomRepository) Participant(ctx context.Context, roomID, userID string) (*model.Participant, error) {
	defer logger.DeferLogDuration("roomRepo.Participant", time.Now())()
	p := &model.Participant{}
	err := withRetry(ctx, "roomRepo.Participant", func() error {
		err := r.pool.QueryRow(ctx,
			`SELECT room_id, user_id, role, joined_at, last_seen_at
			 FROM room_participants
			 WHERE room_id = $1 AND user_id = $2`, roomID, userID,
		).Scan(&p.RoomID, &p.UserID, &p.Role, &p.JoinedAt, &p.LastSeenAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("participant %s/%s: %w", roomID, userID, chat.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("roomRepo.Participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *RoomRepository) CountParticipants(ctx context.Context, roomID string) (int, error) {
	defer logger.DeferLogDuration("roomRepo.CountParticipants", time.Now())()
	var count int
	err := withRetry(ctx, "roomRepo.CountParticipants", func() error {
		err := r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM room_participants WHERE room_id = $1`, roomID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("roomRepo.CountParticipants: %w", err)
		}
		return nil
	})
	return count, err
}

func (r *RoomRepository) SetLastSeen(ctx context.Context, roomID, userID string, t time.Time) error {
	defer logger.DeferLogDuration("roomRepo.SetLastSeen", time.Now())()
	return withRetry(ctx, "roomRepo.SetLastSeen", func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE room_participants SET last_seen_at = GREATEST(last_seen_at, $1)
			 WHERE room_id = $2 AND user_id = $3`,
			t, roomID, userID,
		)
		if err != nil {
			return fmt.Errorf("roomRepo.SetLastSeen: %w", err)
		}
		return nil
	})
}

// UnreadCount counts messages from other senders created after the user's
// read watermark, tombstones excluded.
func (r *RoomRepository) UnreadCount(ctx context.Context, roomID, userID string) (int, error) {
	defer logger.DeferLogDuration("roomRepo.UnreadCount", time.Now())()
	var count int
	err := withRetry(ctx, "roomRepo.UnreadCount", func() error {
		err := r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM messages m
			 JOIN room_participants rp ON rp.room_id = m.room_id AND rp.user_id = $2
			 WHERE m.room_id = $1 AND m.sender_id != $2
			   AND m.created_at > rp.last_seen_at AND m.state != 'deleted'`,
			roomID, userID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("roomRepo.UnreadCount: %w", err)
		}
		return nil
	})
	return count, err
}
