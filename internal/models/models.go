package models

import (
	"encoding/json"
	"time"
)

// User represents an account within the FitFriends platform.
type User struct {
	ID          string
	Email       string
	Password    string
	Username    string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Profile is the public projection of a user attached to posts and notifications.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Name returns the label shown to other users.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Username != "" {
		return p.Username
	}
	return "Someone"
}

// Follow is a directional edge; its existence means the follower is following.
type Follow struct {
	FollowerID string
	FolloweeID string
	CreatedAt  time.Time
}

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
)

// Friendship represents the request/accept workflow between two users.
type Friendship struct {
	ID          string
	RequesterID string
	AddresseeID string
	Status      string
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// Involves reports whether the friendship row covers the unordered pair a, b.
func (f Friendship) Involves(a, b string) bool {
	return (f.RequesterID == a && f.AddresseeID == b) || (f.RequesterID == b && f.AddresseeID == a)
}

const (
	NotificationFollow         = "follow"
	NotificationFriendRequest  = "friend_request"
	NotificationFriendAccepted = "friend_accepted"
)

// Notification is a side record produced by relationship mutations.
type Notification struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Type               string    `json:"type"`
	Title              string    `json:"title"`
	Message            string    `json:"message"`
	RelatedUserID      string    `json:"relatedUserId,omitempty"`
	RelatedContentType string    `json:"relatedContentType,omitempty"`
	IsRead             bool      `json:"isRead"`
	CreatedAt          time.Time `json:"createdAt"`
}

const (
	VisibilityPublic  = "public"
	VisibilityFriends = "friends"
	VisibilityPrivate = "private"
)

// Post is a shared meal, workout or free-form entry shown in the feed.
type Post struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ContentType string          `json:"content_type"`
	ContentData json.RawMessage `json:"content_data,omitempty"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Visibility  string          `json:"visibility"`
	CreatedAt   time.Time       `json:"created_at"`
	Profile     *Profile        `json:"profile"`
}

// VisibleTo reports whether viewerID may see the post in a feed.
func (p Post) VisibleTo(viewerID string) bool {
	return p.Visibility != VisibilityPrivate || p.UserID == viewerID
}

// Cursor returns the keyset position of the post.
func (p Post) Cursor() Cursor {
	return Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// Cursor is the keyset pagination position (created_at DESC, id DESC).
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// Admits reports whether p sorts strictly after the cursor, i.e. whether it
// belongs to a page requested with this cursor.
func (c Cursor) Admits(p Post) bool {
	if p.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return p.CreatedAt.Equal(c.CreatedAt) && p.ID < c.ID
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
