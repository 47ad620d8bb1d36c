package repositories

import (
	"context"

	"github.com/fitfriends/backend/internal/models"
)

// PostRepository exposes data access for feed posts.
type PostRepository interface {
	Create(ctx context.Context, post models.Post) error
	FindByID(ctx context.Context, id string) (models.Post, error)
	Delete(ctx context.Context, id, ownerID string) error
	ListPage(ctx context.Context, viewerID string, cursor *models.Cursor, limit int) ([]models.Post, error)
}

// NotificationRepository stores notifications produced by relationship changes.
type NotificationRepository interface {
	Create(ctx context.Context, notification models.Notification) error
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}
