package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/fitfriends/backend/internal/auth"
	"github.com/fitfriends/backend/internal/feed"
	"github.com/fitfriends/backend/internal/logging"
	"github.com/fitfriends/backend/internal/posts"
	"github.com/fitfriends/backend/internal/repositories"
	"github.com/fitfriends/backend/internal/social"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, social.ErrNotAuthenticated), errors.Is(err, posts.ErrNotAuthenticated),
		errors.Is(err, auth.ErrSessionNotFound), errors.Is(err, auth.ErrAccessTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, social.ErrInvalidTarget), errors.Is(err, social.ErrSelfRelation),
		errors.Is(err, posts.ErrInvalidPost), errors.Is(err, feed.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, social.ErrRequestNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := errorStatus(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logging.FromContext(ctx).Error("request error", "error", err)
		message = "internal error"
	case http.StatusConflict:
		message = "already exists"
	}
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

// currentUser returns the authenticated user or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondJSON(r.Context(), w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return "", false
	}
	return userID, true
}

// pathID reads and validates a UUID path parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		respondJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return "", false
	}
	return id.String(), true
}
