package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fitfriends/backend/internal/models"
	"github.com/fitfriends/backend/internal/posts"
)

// PostHandler creates and deletes the caller's posts.
type PostHandler struct {
	Posts   PostWriter
	Limiter RateLimiter
}

const maxPostBody = 1 << 20

// Create handles POST /api/v1/posts.
func (h PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	authorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if limited(w, r, h.Limiter, "posts") {
		return
	}

	var draft posts.Draft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPostBody)).Decode(&draft); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	post, err := h.Posts.Create(ctx, authorID, draft)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, post)
}

// Delete handles DELETE /api/v1/posts/{id}.
func (h PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Posts.Delete(r.Context(), authorID, postID); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NotificationHandler lists the caller's notifications.
type NotificationHandler struct {
	Notifications NotificationReader
}

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// List handles GET /api/v1/notifications?limit=.
func (h NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	notifications, err := h.Notifications.ListForUser(r.Context(), userID, limit)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]any{"notifications": notifications})
}
