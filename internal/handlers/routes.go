package handlers

import (
	"net/http"

	"github.com/fitfriends/backend/internal/auth"
	"github.com/fitfriends/backend/internal/feed"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Checks: deps.HealthChecks}
	accounts := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.Limiter}
	relationships := RelationshipHandler{Relationships: deps.Relationships, Limiter: deps.Limiter, Identity: deps.Identity}
	friends := FriendHandler{Relationships: deps.Relationships}
	feeds := FeedHandler{Pager: deps.Pager, Changes: deps.Changes, Recorder: deps.FeedRecorder}
	posts := PostHandler{Posts: deps.Posts, Limiter: deps.Limiter}
	notifications := NotificationHandler{Notifications: deps.Notifications}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", accounts.Login)
	mux.HandleFunc("/api/v1/auth/signup", accounts.SignUp)
	mux.HandleFunc("/api/v1/auth/refresh", accounts.Refresh)
	mux.HandleFunc("/api/v1/auth/password-reset", accounts.RequestPasswordReset)
	mux.HandleFunc("/api/v1/users/{id}/follow", relationships.Follow)
	mux.HandleFunc("/api/v1/users/{id}/friendship", relationships.Friendship)
	mux.HandleFunc("/api/v1/users/{id}/friendship/accept", relationships.AcceptFriendship)
	mux.HandleFunc("/api/v1/friends", friends.List)
	mux.HandleFunc("/api/v1/feed", feeds.Page)
	mux.HandleFunc("/api/v1/feed/stream", feeds.Stream)
	mux.HandleFunc("/api/v1/posts", posts.Create)
	mux.HandleFunc("/api/v1/posts/{id}", posts.Delete)
	mux.HandleFunc("/api/v1/notifications", notifications.List)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users         UserStore
	Sessions      SessionManager
	Relationships Relationships
	Identity      auth.IdentityProvider
	Posts         PostWriter
	Notifications NotificationReader
	Pager         *feed.Pager
	Changes       feed.Subscriber
	FeedRecorder  feed.Recorder
	Limiter       RateLimiter
	HealthChecks  map[string]HealthCheck
}
