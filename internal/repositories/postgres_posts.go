package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fitfriends/backend/internal/db"
	"github.com/fitfriends/backend/internal/models"
)

// PostgresPostRepository provides PostgreSQL-backed persistence for feed posts.
type PostgresPostRepository struct {
	pool db.Pool
}

// NewPostgresPostRepository constructs a post repository backed by PostgreSQL.
func NewPostgresPostRepository(pool db.Pool) *PostgresPostRepository {
	return &PostgresPostRepository{pool: pool}
}

const postColumns = `id, user_id, content_type, content_data, description, images, visibility, created_at`

// Create stores a new post.
func (r *PostgresPostRepository) Create(ctx context.Context, post models.Post) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var contentData []byte
	if len(post.ContentData) > 0 {
		contentData = post.ContentData
	}
	images := post.Images
	if images == nil {
		images = []string{}
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO posts (`+postColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, post.ID, post.UserID, post.ContentType, contentData, post.Description, images, post.Visibility, post.CreatedAt)
	if err != nil {
		switch {
		case isPgCode(err, pgUniqueViolation):
			return ErrConflict
		case isPgCode(err, pgForeignKeyViolation):
			return ErrNotFound
		}
		return fmt.Errorf("insert post: %w", err)
	}

	return nil
}

// FindByID loads a single post without its profile.
func (r *PostgresPostRepository) FindByID(ctx context.Context, id string) (models.Post, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Post{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("select post: %w", err)
	}

	return post, nil
}

// Delete removes a post owned by ownerID.
func (r *PostgresPostRepository) Delete(ctx context.Context, id, ownerID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM posts WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListPage returns one keyset page ordered by (created_at DESC, id DESC).
// Private posts are only included for their author. With a cursor, only rows
// strictly after it in that order are returned.
func (r *PostgresPostRepository) ListPage(ctx context.Context, viewerID string, cursor *models.Cursor, limit int) ([]models.Post, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	visibility := `visibility <> 'private'`
	args := []any{limit}
	if viewerID != "" {
		args = append(args, viewerID)
		visibility = fmt.Sprintf(`(visibility <> 'private' OR user_id = $%d)`, len(args))
	}

	where := visibility
	if cursor != nil {
		args = append(args, cursor.CreatedAt, cursor.ID)
		ts, id := len(args)-1, len(args)
		where = fmt.Sprintf(`%s AND (created_at < $%d OR (created_at = $%d AND id < $%d))`, visibility, ts, ts, id)
	}

	rows, err := conn.Query(ctx, `
        SELECT `+postColumns+`
        FROM posts
        WHERE `+where+`
        ORDER BY created_at DESC, id DESC
        LIMIT $1
    `, args...)
	if err != nil {
		return nil, fmt.Errorf("query post page: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post page: %w", err)
	}

	return posts, nil
}

func scanPost(row pgx.Row) (models.Post, error) {
	var (
		p           models.Post
		contentData []byte
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.ContentType, &contentData, &p.Description, &p.Images, &p.Visibility, &p.CreatedAt); err != nil {
		return models.Post{}, err
	}
	if len(contentData) > 0 {
		p.ContentData = json.RawMessage(contentData)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// PostgresNotificationRepository provides PostgreSQL-backed persistence for notifications.
type PostgresNotificationRepository struct {
	pool db.Pool
}

// NewPostgresNotificationRepository constructs a notification repository backed by PostgreSQL.
func NewPostgresNotificationRepository(pool db.Pool) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{pool: pool}
}

// Create inserts a notification row.
func (r *PostgresNotificationRepository) Create(ctx context.Context, n models.Notification) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var relatedUser *string
	if n.RelatedUserID != "" {
		relatedUser = &n.RelatedUserID
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO notifications (id, user_id, type, title, message, related_user_id, related_content_type, is_read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, n.ID, n.UserID, n.Type, n.Title, n.Message, relatedUser, n.RelatedContentType, n.IsRead, n.CreatedAt)
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return ErrNotFound
		}
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// ListForUser returns the most recent notifications addressed to userID.
func (r *PostgresNotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, type, title, message, COALESCE(related_user_id::TEXT, ''), related_content_type, is_read, created_at
        FROM notifications
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.RelatedUserID, &n.RelatedContentType, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return notifications, nil
}

var _ PostRepository = (*PostgresPostRepository)(nil)
var _ NotificationRepository = (*PostgresNotificationRepository)(nil)
