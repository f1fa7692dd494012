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

var ErrNotFound = errors.New("not found")

const userCols = `id, name, email, password_hash, verification_code, verified, COALESCE(image,''), COALESCE(position,''), is_online, last_seen, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// scanUser scans a row into model.User (order matches userCols).
func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.VerificationCode, &u.Verified, &u.Image, &u.Position, &u.IsOnline, &u.LastSeen, &u.CreatedAt)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, verification_code, verified, image, position, is_online, last_seen, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		u.Name, u.Email, u.PasswordHash, u.VerificationCode, u.Verified, u.Image, u.Position, u.IsOnline, u.LastSeen, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmail", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	return u, nil
}

// SetVerified marks the account verified and clears the stored code so it
// cannot be replayed.
func (r *UserRepository) SetVerified(ctx context.Context, id int64) error {
	defer logger.DeferLogDuration("user.SetVerified", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET verified = true, verification_code = NULL WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetVerified: %w", err)
	}
	return nil
}

// SetVerificationCode stores a new code hash and flips verified back to
// false (used by the forgot-password flow).
func (r *UserRepository) SetVerificationCode(ctx context.Context, id int64, codeHash string) error {
	defer logger.DeferLogDuration("user.SetVerificationCode", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET verification_code = $1, verified = false WHERE id = $2`,
		codeHash, id,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetVerificationCode: %w", err)
	}
	return nil
}

func (r *UserRepository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	defer logger.DeferLogDuration("user.SetPassword", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1 WHERE id = $2`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetPassword: %w", err)
	}
	return nil
}

// SetOnline marks the user online. last_seen is not touched here; it only
// moves when the user goes offline.
func (r *UserRepository) SetOnline(ctx context.Context, id int64) error {
	defer logger.DeferLogDuration("user.SetOnline", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE users SET is_online = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("userRepo.SetOnline: %w", err)
	}
	return nil
}

func (r *UserRepository) SetOffline(ctx context.Context, id int64) error {
	defer logger.DeferLogDuration("user.SetOffline", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET is_online = false, last_seen = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetOffline: %w", err)
	}
	return nil
}

// ResetAllOnline clears is_online for everyone (startup recovery after a
// crash left stale presence rows).
func (r *UserRepository) ResetAllOnline(ctx context.Context) error {
	defer logger.DeferLogDuration("user.ResetAllOnline", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE users SET is_online = false WHERE is_online = true`)
	if err != nil {
		return fmt.Errorf("userRepo.ResetAllOnline: %w", err)
	}
	return nil
}
