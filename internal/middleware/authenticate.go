package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fitfriends/backend/internal/auth"
	"github.com/fitfriends/backend/internal/logging"
)

// Authenticator resolves the user behind an access token.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// Authenticate attaches the caller's user id to the request context when a
// valid access token is presented. Requests without a token pass through
// anonymously; requests with an invalid token are rejected.
func Authenticate(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || authenticator == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			userID, err := authenticator.Authenticate(ctx, token)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				if !errors.Is(err, auth.ErrSessionNotFound) && !errors.Is(err, auth.ErrAccessTokenExpired) {
					logging.FromContext(ctx).Error("resolve access token", "error", err)
					w.WriteHeader(http.StatusServiceUnavailable)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication unavailable"})
					return
				}
				logging.FromContext(ctx).Warn("rejected access token", "error", err)
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid or expired access token"})
				return
			}

			ctx = auth.WithUserID(ctx, userID)
			ctx = logging.With(ctx, "user_id", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter used by websocket clients.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
