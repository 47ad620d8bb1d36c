package handlers

import (
	"context"

	"github.com/fitfriends/backend/internal/models"
	"github.com/fitfriends/backend/internal/posts"
	"github.com/fitfriends/backend/internal/social"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
}

// Relationships exposes the follow and friendship engine.
type Relationships interface {
	CheckFollow(ctx context.Context, observerID, targetID string) (social.FollowStatus, error)
	Follow(ctx context.Context, observerID, targetID string) error
	Unfollow(ctx context.Context, observerID, targetID string) error
	CheckFriendship(ctx context.Context, observerID, targetID string) (social.FriendshipStatus, error)
	SendFriendRequest(ctx context.Context, observerID, targetID string) error
	AcceptFriendRequest(ctx context.Context, observerID, targetID string) error
	ListFriendships(ctx context.Context, userID string) ([]models.Friendship, error)
}

// PostWriter creates and deletes posts.
type PostWriter interface {
	Create(ctx context.Context, authorID string, draft posts.Draft) (models.Post, error)
	Delete(ctx context.Context, authorID, postID string) error
}

// NotificationReader lists a user's notifications.
type NotificationReader interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}
