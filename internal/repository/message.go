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

const messageColumns = `id, seq, room_id, sender_id, content, kind,
	blog_id, blog_title, blog_excerpt, blog_cover_image,
	media_url, media_file_name, media_file_size,
	state, edited_at, deleted_at, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	m := &model.Message{}
	var blogID, blogTitle, blogExcerpt, blogCover *string
	var mediaURL, mediaName *string
	var mediaSize *int64
	err := row.Scan(&m.ID, &m.Seq, &m.RoomID, &m.SenderID, &m.Content, &m.Kind,
		&blogID, &blogTitle, &blogExcerpt, &blogCover,
		&mediaURL, &mediaName, &mediaSize,
		&m.State, &m.EditedAt, &m.DeletedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if blogID != nil {
		m.SharedBlog = &model.BlogRef{BlogID: *blogID}
		if blogTitle != nil {
			m.SharedBlog.Title = *blogTitle
		}
		if blogExcerpt != nil {
			m.SharedBlog.Excerpt = *blogExcerpt
		}
		if blogCover != nil {
			m.SharedBlog.CoverImage = *blogCover
		}
	}
	if mediaURL != nil {
		m.Media = &model.MediaRef{URL: *mediaURL}
		if mediaName != nil {
			m.Media.FileName = *mediaName
		}
		if mediaSize != nil {
			m.Media.FileSize = *mediaSize
		}
	}
	return m, nil
}

func messageArgs(m *model.Message) []any {
	var blogID, blogTitle, blogExcerpt, blogCover *string
	if m.SharedBlog != nil {
		blogID = &m.SharedBlog.BlogID
		blogTitle = &m.SharedBlog.Title
		blogExcerpt = &m.SharedBlog.Excerpt
		blogCover = &m.SharedBlog.CoverImage
	}
	var mediaURL, mediaName *string
	var mediaSize *int64
	if m.Media != nil {
		mediaURL = &m.Media.URL
		mediaName = &m.Media.FileName
		mediaSize = &m.Media.FileSize
	}
	return []any{
		m.ID, m.RoomID, m.SenderID, m.Content, m.Kind,
		blogID, blogTitle, blogExcerpt, blogCover,
		mediaURL, mediaName, mediaSize,
		m.State, m.CreatedAt,
	}
}

// AppendMessage inserts the message and advances the room's last_activity_at
// in one transaction. The sequence number comes back from the insert; the
// activity timestamp only moves forward.
func (r *MessageRepository) AppendMessage(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msgRepo.AppendMessage", time.Now())()
	return withRetry(ctx, "msgRepo.AppendMessage", func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("msgRepo.AppendMessage begin: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO messages (id, room_id, sender_id, content, kind,
			    blog_id, blog_title, blog_excerpt, blog_cover_image,
			    media_url, media_file_name, media_file_size,
			    state, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 RETURNING seq`,
			messageArgs(m)...,
		).Scan(&m.Seq)
		if err != nil {
			return fmt.Errorf("msgRepo.AppendMessage insert: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE rooms SET last_activity_at = GREATEST(last_activity_at, $1) WHERE id = $2`,
			m.CreatedAt, m.RoomID,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.AppendMessage activity: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("msgRepo.AppendMessage commit: %w", err)
		}
		return nil
	})
}

func (r *MessageRepository) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msgRepo.GetMessage", time.Now())()
	var m *model.Message
	err := withRetry(ctx, "msgRepo.GetMessage", func() error {
		var err error
		m, err = scanMessage(r.pool.QueryRow(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("message %s: %w", id, chat.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("msgRepo.GetMessage: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns non-deleted messages in insertion order (seq).
func (r *MessageRepository) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msgRepo.ListMessages", time.Now())()
	var messages []model.Message
	err := withRetry(ctx, "msgRepo.ListMessages", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+messageColumns+` FROM messages
			 WHERE room_id = $1 AND state != 'deleted'
			 ORDER BY seq
			 LIMIT $2 OFFSET $3`, roomID, limit, offset,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.ListMessages query: %w", err)
		}
		defer rows.Close()

		messages = make([]model.Message, 0, limit)
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				return fmt.Errorf("msgRepo.ListMessages scan: %w", err)
			}
			messages = append(messages, *m)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("msgRepo.ListMessages rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MessageRepository) LastMessage(ctx context.Context, roomID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msgRepo.LastMessage", time.Now())()
	var m *model.Message
	err := withRetry(ctx, "msgRepo.LastMessage", func() error {
		var err error
		m, err = scanMessage(r.pool.QueryRow(ctx,
			`SELECT `+messageColumns+` FROM messages
			 WHERE room_id = $1 AND state != 'deleted'
			 ORDER BY seq DESC
			 LIMIT 1`, roomID))
		if errors.Is(err, pgx.ErrNoRows) {
			m = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("msgRepo.LastMessage: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) MarkEdited(ctx context.Context, id, content string, at time.Time) error {
	defer logger.DeferLogDuration("msgRepo.MarkEdited", time.Now())()
	return withRetry(ctx, "msgRepo.MarkEdited", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE messages SET content = $1, state = 'edited', edited_at = $2
			 WHERE id = $3 AND state != 'deleted'`,
			content, at, id,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.MarkEdited: %w", err)
		}
		// Zero rows: the message vanished or was tombstoned after the caller's
		// pre-check.
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("message %s: %w", id, chat.ErrNotFound)
		}
		return nil
	})
}

// MarkDeleted tombstones the message. Content is cleared; the row stays for
// the sequence and audit trail.
func (r *MessageRepository) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	defer logger.DeferLogDuration("msgRepo.MarkDeleted", time.Now())()
	return withRetry(ctx, "msgRepo.MarkDeleted", func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE messages SET state = 'deleted', deleted_at = $1, content = ''
			 WHERE id = $2`,
			at, id,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.MarkDeleted: %w", err)
		}
		return nil
	})
}

func (r *MessageRepository) SetReaction(ctx context.Context, messageID, userID, emoji string, at time.Time) error {
	defer logger.DeferLogDuration("msgRepo.SetReaction", time.Now())()
	return withRetry(ctx, "msgRepo.SetReaction", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = $3, created_at = $4`,
			messageID, userID, emoji, at,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.SetReaction: %w", err)
		}
		return nil
	})
}

func (r *MessageRepository) RemoveReaction(ctx context.Context, messageID, userID string) error {
	defer logger.DeferLogDuration("msgRepo.RemoveReaction", time.Now())()
	return withRetry(ctx, "msgRepo.RemoveReaction", func() error {
		_, err := r.pool.Exec(ctx,
			`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2`,
			messageID, userID,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.RemoveReaction: %w", err)
		}
		return nil
	})
}

func (r *MessageRepository) Reactions(ctx context.Context, messageID string) ([]model.Reaction, error) {
	defer logger.DeferLogDuration("msgRepo.Reactions", time.Now())()
	var reactions []model.Reaction
	err := withRetry(ctx, "msgRepo.Reactions", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT message_id, user_id, emoji, created_at
			 FROM message_reactions
			 WHERE message_id = $1
			 ORDER BY created_at`, messageID,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.Reactions query: %w", err)
		}
		defer rows.Close()

		reactions = make([]model.Reaction, 0, 4)
		for rows.Next() {
			var re model.Reaction
			if err := rows.Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt); err != nil {
				return fmt.Errorf("msgRepo.Reactions scan: %w", err)
			}
			reactions = append(reactions, re)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("msgRepo.Reactions rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reactions, nil
}
