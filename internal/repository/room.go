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

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*model.Room, error) {
	defer logger.DeferLogDuration("room.GetByID", time.Now())()
	room := &model.Room{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM rooms WHERE id = $1`, id,
	).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetByID: %w", err)
	}
	return room, nil
}

func (r *RoomRepository) FindByName(ctx context.Context, name string) (*model.Room, error) {
	defer logger.DeferLogDuration("room.FindByName", time.Now())()
	room := &model.Room{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM rooms WHERE name = $1`, name,
	).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.FindByName: %w", err)
	}
	return room, nil
}

// Create inserts the room and its member rows in one transaction.
func (r *RoomRepository) Create(ctx context.Context, room *model.Room, memberIDs []int64) error {
	defer logger.DeferLogDuration("room.Create", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("roomRepo.Create begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO rooms (id, name, created_at) VALUES ($1, $2, $3)`,
		room.ID, room.Name, room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.Create insert: %w", err)
	}
	for _, uid := range memberIDs {
		_, err = tx.Exec(ctx,
			`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			room.ID, uid,
		)
		if err != nil {
			return fmt.Errorf("roomRepo.Create member: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("roomRepo.Create commit: %w", err)
	}
	return nil
}

// IDsForUser returns the ids of all rooms the user belongs to.
func (r *RoomRepository) IDsForUser(ctx context.Context, userID int64) ([]string, error) {
	defer logger.DeferLogDuration("room.IDsForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT room_id FROM room_members WHERE user_id = $1 ORDER BY room_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.IDsForUser: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("roomRepo.IDsForUser scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsMember reports whether the user belongs to the room.
func (r *RoomRepository) IsMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	defer logger.DeferLogDuration("room.IsMember", time.Now())()
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("roomRepo.IsMember: %w", err)
	}
	return ok, nil
}

// MemberIDs returns the user ids of a room's members.
func (r *RoomRepository) MemberIDs(ctx context.Context, roomID string) ([]int64, error) {
	defer logger.DeferLogDuration("room.MemberIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM room_members WHERE room_id = $1 ORDER BY user_id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.MemberIDs: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("roomRepo.MemberIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Members returns the public profiles of a room's members.
func (r *RoomRepository) Members(ctx context.Context, roomID string) ([]model.UserPublic, error) {
	defer logger.DeferLogDuration("room.Members", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.name, u.email, COALESCE(u.image,''), COALESCE(u.position,''), u.is_online, u.last_seen
		 FROM room_members rm
		 JOIN users u ON u.id = rm.user_id
		 WHERE rm.room_id = $1
		 ORDER BY u.name`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.Members query: %w", err)
	}
	defer rows.Close()
	var members []model.UserPublic
	for rows.Next() {
		var u model.UserPublic
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.Position, &u.IsOnline, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("roomRepo.Members scan: %w", err)
		}
		members = append(members, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.Members rows: %w", err)
	}
	return members, nil
}

// ListForUser returns summaries of the user's rooms ordered by the latest
// activity: members plus the count of unread chats from other senders.
// LastChat is filled by the caller from the chat repository.
func (r *RoomRepository) ListForUser(ctx context.Context, userID int64) ([]model.RoomSummary, error) {
	defer logger.DeferLogDuration("room.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT rm.room_id, r.name, r.created_at,
		        (SELECT COUNT(*) FROM chats c
		          WHERE c.room_id = rm.room_id AND c.user_id != $1 AND c.read = false)
		 FROM room_members rm
		 JOIN rooms r ON r.id = rm.room_id
		 WHERE rm.user_id = $1
		 ORDER BY (SELECT MAX(c.date_created) FROM chats c WHERE c.room_id = rm.room_id) DESC NULLS LAST`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	var summaries []model.RoomSummary
	for rows.Next() {
		var s model.RoomSummary
		if err := rows.Scan(&s.Room.ID, &s.Room.Name, &s.Room.CreatedAt, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("roomRepo.ListForUser scan: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.ListForUser rows: %w", err)
	}

	for i := range summaries {
		members, err := r.Members(ctx, summaries[i].Room.ID)
		if err != nil {
			return nil, err
		}
		summaries[i].Members = members
	}
	return summaries, nil
}
