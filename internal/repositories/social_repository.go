package repositories

import (
	"context"
	"time"

	"github.com/fitfriends/backend/internal/models"
)

// FollowRepository persists directional follow edges.
type FollowRepository interface {
	Exists(ctx context.Context, followerID, followeeID string) (bool, error)
	Create(ctx context.Context, follow models.Follow) error
	Delete(ctx context.Context, followerID, followeeID string) error
}

// FriendshipRepository persists friendship rows, unique per unordered pair.
type FriendshipRepository interface {
	FindByPair(ctx context.Context, a, b string) (models.Friendship, error)
	Create(ctx context.Context, friendship models.Friendship) error
	Accept(ctx context.Context, requesterID, addresseeID string, respondedAt time.Time) error
	ListForUser(ctx context.Context, userID string) ([]models.Friendship, error)
}
