package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fitfriends/backend/internal/auth"
	"github.com/fitfriends/backend/internal/logging"
	"github.com/fitfriends/backend/internal/models"
	"github.com/fitfriends/backend/internal/repositories"
)

const (
	minPasswordLength = 8
	maxNameLength     = 50
	maxAuthBody       = 64 << 10
)

// AuthHandler implements user authentication endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	Limiter  RateLimiter
	NowFunc  func() time.Time
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type authResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
	UserID string               `json:"userId,omitempty"`
}

// badRequest carries a client facing validation message.
type badRequest string

func (b badRequest) Error() string { return string(b) }

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.begin(w, r, "login", &req) {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		h.reject(w, r, badRequest("email and password are required"))
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password))
	}
	if err != nil {
		// Unknown email and wrong password look the same to the caller.
		logger.Warn("login rejected", "email", req.Email, "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	h.issue(w, r, http.StatusOK, user.ID)
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !h.begin(w, r, "signup", &req) {
		return
	}
	ctx := r.Context()

	user, err := req.toUser(h.now())
	if err != nil {
		h.reject(w, r, err)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logging.FromContext(ctx).Error("hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}
	user.Password = string(hashed)

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "account already exists"})
			return
		}
		logging.FromContext(ctx).Error("create user", "error", err, "email", user.Email)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create account"})
		return
	}

	h.issue(w, r, http.StatusCreated, user.ID)
}

// toUser validates the request and builds the account it describes.
func (req signUpRequest) toUser(now time.Time) (models.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return models.User{}, badRequest("email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, badRequest("invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		return models.User{}, badRequest("password must be at least 8 characters")
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if len(username) > maxNameLength || len(displayName) > maxNameLength {
		return models.User{}, badRequest("username and display name must be at most 50 characters")
	}

	return models.User{
		ID:          uuid.NewString(),
		Email:       email,
		Username:    username,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.begin(w, r, "refresh", &req) {
		return
	}
	ctx := r.Context()

	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		h.reject(w, r, badRequest("refresh token is required"))
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, token)
	switch {
	case err == nil:
		respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
	case errors.Is(err, auth.ErrRefreshTokenExpired), errors.Is(err, auth.ErrSessionNotFound):
		logging.FromContext(ctx).Warn("refresh rejected", "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unable to refresh session"})
	default:
		logging.FromContext(ctx).Error("refresh session", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to refresh session"})
	}
}

// RequestPasswordReset handles POST /api/v1/auth/password-reset requests.
// The response never reveals whether the account exists.
func (h AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !h.begin(w, r, "password-reset", &req) {
		return
	}
	ctx := r.Context()

	email := normalizeEmail(req.Email)
	if email == "" {
		h.reject(w, r, badRequest("email is required"))
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		h.reject(w, r, badRequest("invalid email address"))
		return
	}

	if _, err := h.Users.FindByEmail(ctx, email); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logging.FromContext(ctx).Error("password reset lookup", "error", err, "email", email)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to process password reset"})
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{
		"status": "If an account exists for that email, password reset instructions have been sent.",
	})
}

// begin runs the checks shared by every auth endpoint and decodes the body
// into dst. It reports false after writing a response.
func (h AuthHandler) begin(w http.ResponseWriter, r *http.Request, scope string, dst any) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if limited(w, r, h.Limiter, scope) {
		return false
	}

	ctx := r.Context()
	needsUsers := scope != "refresh"
	needsSessions := scope != "password-reset"
	if (needsUsers && h.Users == nil) || (needsSessions && h.Sessions == nil) {
		logging.FromContext(ctx).Error("authentication dependencies unavailable", "scope", scope)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authentication services unavailable"})
		return false
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(dst); err != nil {
		logging.FromContext(ctx).Warn("invalid auth payload", "scope", scope, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (h AuthHandler) reject(w http.ResponseWriter, r *http.Request, err error) {
	respondJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func (h AuthHandler) issue(w http.ResponseWriter, r *http.Request, status int, userID string) {
	ctx := r.Context()
	tokens, err := h.Sessions.Issue(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("issue session", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}
	respondJSON(ctx, w, status, authResponse{Tokens: tokens, UserID: userID})
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
