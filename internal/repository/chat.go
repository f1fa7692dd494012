package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creatify/internal/logger"
	"github.com/creatify/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

func (r *ChatRepository) Create(ctx context.Context, c *model.Chat) error {
	defer logger.DeferLogDuration("chat.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chats (id, room_id, user_id, message, delivered, read, date_created, date_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.RoomID, c.UserID, c.Message, c.Delivered, c.Read, c.DateCreated, c.DateUpdated,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.Create: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	c := &model.Chat{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, room_id, user_id, message, delivered, read, date_created, date_updated
		 FROM chats WHERE id = $1`, id,
	).Scan(&c.ID, &c.RoomID, &c.UserID, &c.Message, &c.Delivered, &c.Read, &c.DateCreated, &c.DateUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	return c, nil
}

// MarkDelivered flips delivered to true for every undelivered chat in the
// room that was not sent by exceptUserID. Delivered never goes back to
// false.
func (r *ChatRepository) MarkDelivered(ctx context.Context, roomID string, exceptUserID int64) error {
	defer logger.DeferLogDuration("chat.MarkDelivered", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chats SET delivered = true, date_updated = $1
		 WHERE room_id = $2 AND user_id != $3 AND delivered = false`,
		time.Now().UTC(), roomID, exceptUserID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.MarkDelivered: %w", err)
	}
	return nil
}

// MarkRead flips read (and delivered, since read implies delivered) for
// every unread chat in the room not sent by exceptUserID.
func (r *ChatRepository) MarkRead(ctx context.Context, roomID string, exceptUserID int64) error {
	defer logger.DeferLogDuration("chat.MarkRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chats SET read = true, delivered = true, date_updated = $1
		 WHERE room_id = $2 AND user_id != $3 AND read = false`,
		time.Now().UTC(), roomID, exceptUserID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.MarkRead: %w", err)
	}
	return nil
}

// ListForRoom returns the room's full history oldest-first, media included.
func (r *ChatRepository) ListForRoom(ctx context.Context, roomID string) ([]model.Chat, error) {
	defer logger.DeferLogDuration("chat.ListForRoom", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, room_id, user_id, message, delivered, read, date_created, date_updated
		 FROM chats WHERE room_id = $1 ORDER BY date_created`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ListForRoom query: %w", err)
	}
	defer rows.Close()

	var chats []model.Chat
	index := make(map[string]int)
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.ID, &c.RoomID, &c.UserID, &c.Message, &c.Delivered, &c.Read, &c.DateCreated, &c.DateUpdated); err != nil {
			return nil, fmt.Errorf("chatRepo.ListForRoom scan: %w", err)
		}
		index[c.ID] = len(chats)
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.ListForRoom rows: %w", err)
	}
	if len(chats) == 0 {
		return chats, nil
	}

	mrows, err := r.pool.Query(ctx,
		`SELECT m.id, m.chat_id, m.url
		 FROM chat_media m
		 JOIN chats c ON c.id = m.chat_id
		 WHERE c.room_id = $1
		 ORDER BY m.id`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ListForRoom media query: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m model.ChatMedia
		if err := mrows.Scan(&m.ID, &m.ChatID, &m.URL); err != nil {
			return nil, fmt.Errorf("chatRepo.ListForRoom media scan: %w", err)
		}
		if i, ok := index[m.ChatID]; ok {
			chats[i].Media = append(chats[i].Media, m)
		}
	}
	if err := mrows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.ListForRoom media rows: %w", err)
	}
	return chats, nil
}

// LastForRoom returns the most recent chat of a room, or nil if the room
// has no history yet.
func (r *ChatRepository) LastForRoom(ctx context.Context, roomID string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.LastForRoom", time.Now())()
	c := &model.Chat{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, room_id, user_id, message, delivered, read, date_created, date_updated
		 FROM chats WHERE room_id = $1
		 ORDER BY date_created DESC LIMIT 1`, roomID,
	).Scan(&c.ID, &c.RoomID, &c.UserID, &c.Message, &c.Delivered, &c.Read, &c.DateCreated, &c.DateUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.LastForRoom: %w", err)
	}
	return c, nil
}

// AddMedia attaches a media URL to an existing chat and returns the new
// media id.
func (r *ChatRepository) AddMedia(ctx context.Context, chatID, url string) (int64, error) {
	defer logger.DeferLogDuration("chat.AddMedia", time.Now())()
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO chat_media (chat_id, url) VALUES ($1, $2) RETURNING id`,
		chatID, url,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("chatRepo.AddMedia: %w", err)
	}
	return id, nil
}

// MediaForChat returns the media attached to one chat.
func (r *ChatRepository) MediaForChat(ctx context.Context, chatID string) ([]model.ChatMedia, error) {
	defer logger.DeferLogDuration("chat.MediaForChat", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, chat_id, url FROM chat_media WHERE chat_id = $1 ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.MediaForChat query: %w", err)
	}
	defer rows.Close()
	var media []model.ChatMedia
	for rows.Next() {
		var m model.ChatMedia
		if err := rows.Scan(&m.ID, &m.ChatID, &m.URL); err != nil {
			return nil, fmt.Errorf("chatRepo.MediaForChat scan: %w", err)
		}
		media = append(media, m)
	}
	return media, rows.Err()
}
