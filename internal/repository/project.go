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

type ProjectRepository struct {
	pool *pgxpool.Pool
}

func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	defer logger.DeferLogDuration("project.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO projects (id, user_id, title, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserID, p.Title, p.Description, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("projectRepo.Create: %w", err)
	}
	return nil
}

// ListFeed returns the newest projects with their author and first image.
func (r *ProjectRepository) ListFeed(ctx context.Context, limit, offset int) ([]model.ProjectFeedItem, error) {
	defer logger.DeferLogDuration("project.ListFeed", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.user_id, p.title, p.description, p.created_at,
		        u.id, u.name, COALESCE(u.image,''), u.is_online, u.last_seen,
		        COALESCE((SELECT i.url FROM project_images i WHERE i.project_id = p.id ORDER BY i.id LIMIT 1), '')
		 FROM projects p
		 JOIN users u ON u.id = p.user_id
		 ORDER BY p.created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("projectRepo.ListFeed query: %w", err)
	}
	defer rows.Close()

	items := make([]model.ProjectFeedItem, 0, limit)
	for rows.Next() {
		var it model.ProjectFeedItem
		if err := rows.Scan(&it.Project.ID, &it.Project.UserID, &it.Project.Title, &it.Project.Description, &it.Project.CreatedAt,
			&it.User.ID, &it.User.Name, &it.User.Image, &it.User.IsOnline, &it.User.LastSeen,
			&it.Cover); err != nil {
			return nil, fmt.Errorf("projectRepo.ListFeed scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("projectRepo.ListFeed rows: %w", err)
	}
	return items, nil
}

// ListByUser returns the feed items of one author.
func (r *ProjectRepository) ListByUser(ctx context.Context, userID int64) ([]model.ProjectFeedItem, error) {
	defer logger.DeferLogDuration("project.ListByUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.user_id, p.title, p.description, p.created_at,
		        u.id, u.name, COALESCE(u.image,''), u.is_online, u.last_seen,
		        COALESCE((SELECT i.url FROM project_images i WHERE i.project_id = p.id ORDER BY i.id LIMIT 1), '')
		 FROM projects p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.user_id = $1
		 ORDER BY p.created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("projectRepo.ListByUser query: %w", err)
	}
	defer rows.Close()

	var items []model.ProjectFeedItem
	for rows.Next() {
		var it model.ProjectFeedItem
		if err := rows.Scan(&it.Project.ID, &it.Project.UserID, &it.Project.Title, &it.Project.Description, &it.Project.CreatedAt,
			&it.User.ID, &it.User.Name, &it.User.Image, &it.User.IsOnline, &it.User.LastSeen,
			&it.Cover); err != nil {
			return nil, fmt.Errorf("projectRepo.ListByUser scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("projectRepo.ListByUser rows: %w", err)
	}
	return items, nil
}

// GetDetail returns the full project view for one viewer: images, comments
// with authors, like/view counts and whether the viewer liked it.
func (r *ProjectRepository) GetDetail(ctx context.Context, projectID string, viewerID int64) (*model.ProjectDetail, error) {
	defer logger.DeferLogDuration("project.GetDetail", time.Now())()
	d := &model.ProjectDetail{}
	err := r.pool.QueryRow(ctx,
		`SELECT p.id, p.user_id, p.title, p.description, p.created_at,
		        u.id, u.name, u.email, COALESCE(u.image,''), COALESCE(u.position,''), u.is_online, u.last_seen,
		        (SELECT COUNT(*) FROM likes l WHERE l.project_id = p.id),
		        (SELECT COUNT(*) FROM project_views v WHERE v.project_id = p.id),
		        EXISTS(SELECT 1 FROM likes l WHERE l.project_id = p.id AND l.user_id = $2)
		 FROM projects p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.id = $1`, projectID, viewerID,
	).Scan(&d.Project.ID, &d.Project.UserID, &d.Project.Title, &d.Project.Description, &d.Project.CreatedAt,
		&d.User.ID, &d.User.Name, &d.User.Email, &d.User.Image, &d.User.Position, &d.User.IsOnline, &d.User.LastSeen,
		&d.LikeCount, &d.ViewCount, &d.LikedByMe)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("projectRepo.GetDetail: %w", err)
	}

	images, err := r.Images(ctx, projectID)
	if err != nil {
		return nil, err
	}
	d.Images = images

	comments, err := r.Comments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	d.Comments = comments
	return d, nil
}

func (r *ProjectRepository) Images(ctx context.Context, projectID string) ([]model.ProjectImage, error) {
	defer logger.DeferLogDuration("project.Images", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, project_id, public_id, url FROM project_images WHERE project_id = $1 ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("projectRepo.Images query: %w", err)
	}
	defer rows.Close()
	var images []model.ProjectImage
	for rows.Next() {
		var img model.ProjectImage
		if err := rows.Scan(&img.ID, &img.ProjectID, &img.PublicID, &img.URL); err != nil {
			return nil, fmt.Errorf("projectRepo.Images scan: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// AddImage records an uploaded image for a project and returns its id.
func (r *ProjectRepository) AddImage(ctx context.Context, projectID, publicID, url string) (int64, error) {
	defer logger.DeferLogDuration("project.AddImage", time.Now())()
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO project_images (project_id, public_id, url) VALUES ($1, $2, $3) RETURNING id`,
		projectID, publicID, url,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("projectRepo.AddImage: %w", err)
	}
	return id, nil
}

func (r *ProjectRepository) Comments(ctx context.Context, projectID string) ([]model.Comment, error) {
	defer logger.DeferLogDuration("project.Comments", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.project_id, c.user_id, c.text, c.created_at,
		        u.id, u.name, COALESCE(u.image,''), u.is_online, u.last_seen
		 FROM comments c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.project_id = $1
		 ORDER BY c.created_at`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("projectRepo.Comments query: %w", err)
	}
	defer rows.Close()
	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		author := &model.UserPublic{}
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.UserID, &c.Text, &c.CreatedAt,
			&author.ID, &author.Name, &author.Image, &author.IsOnline, &author.LastSeen); err != nil {
			return nil, fmt.Errorf("projectRepo.Comments scan: %w", err)
		}
		c.User = author
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("projectRepo.Comments rows: %w", err)
	}
	return comments, nil
}

// AddComment inserts a comment and returns its id.
func (r *ProjectRepository) AddComment(ctx context.Context, projectID string, userID int64, text string) (int64, error) {
	defer logger.DeferLogDuration("project.AddComment", time.Now())()
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO comments (project_id, user_id, text, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		projectID, userID, text, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("projectRepo.AddComment: %w", err)
	}
	return id, nil
}

// Like records a like; repeating it is a no-op thanks to the unique
// (user_id, project_id) constraint.
func (r *ProjectRepository) Like(ctx context.Context, projectID string, userID int64) error {
	defer logger.DeferLogDuration("project.Like", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO likes (project_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("projectRepo.Like: %w", err)
	}
	return nil
}

func (r *ProjectRepository) Unlike(ctx context.Context, projectID string, userID int64) error {
	defer logger.DeferLogDuration("project.Unlike", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM likes WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("projectRepo.Unlike: %w", err)
	}
	return nil
}

// RecordView upserts a view: one row per (user, project), viewed_at moves
// forward on every repeat visit.
func (r *ProjectRepository) RecordView(ctx context.Context, projectID string, userID int64) error {
	defer logger.DeferLogDuration("project.RecordView", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO project_views (project_id, user_id, viewed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, user_id) DO UPDATE SET viewed_at = EXCLUDED.viewed_at`,
		projectID, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("projectRepo.RecordView: %w", err)
	}
	return nil
}
