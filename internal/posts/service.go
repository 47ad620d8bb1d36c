package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitfriends/backend/internal/logging"
	"github.com/fitfriends/backend/internal/models"
	"github.com/fitfriends/backend/internal/realtime"
	"github.com/fitfriends/backend/internal/repositories"
)

// Table is the change-stream table posts are published on.
const Table = "posts"

var (
	// ErrNotAuthenticated indicates the author could not be resolved.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidPost indicates the post payload failed validation.
	ErrInvalidPost = errors.New("invalid post")
)

var contentTypes = map[string]struct{}{
	"meal":    {},
	"workout": {},
	"recipe":  {},
	"text":    {},
}

// Draft is the author supplied part of a new post.
type Draft struct {
	ContentType string          `json:"content_type"`
	ContentData json.RawMessage `json:"content_data,omitempty"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Visibility  string          `json:"visibility"`
}

// Service writes posts and publishes the resulting changes.
type Service struct {
	repo      repositories.PostRepository
	publisher realtime.Publisher
	now       func() time.Time
}

// NewService constructs a post service. publisher may be nil.
func NewService(repo repositories.PostRepository, publisher realtime.Publisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (d Draft) validate() error {
	if _, ok := contentTypes[d.ContentType]; !ok {
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidPost, d.ContentType)
	}
	switch d.Visibility {
	case models.VisibilityPublic, models.VisibilityFriends, models.VisibilityPrivate:
	default:
		return fmt.Errorf("%w: unknown visibility %q", ErrInvalidPost, d.Visibility)
	}
	if len(d.ContentData) > 0 && !json.Valid(d.ContentData) {
		return fmt.Errorf("%w: content data must be JSON", ErrInvalidPost)
	}
	return nil
}

// Create stores a post for authorID and announces it to live feeds.
func (s *Service) Create(ctx context.Context, authorID string, draft Draft) (models.Post, error) {
	if authorID == "" {
		return models.Post{}, ErrNotAuthenticated
	}
	if draft.Visibility == "" {
		draft.Visibility = models.VisibilityPublic
	}
	draft.Description = strings.TrimSpace(draft.Description)
	if err := draft.validate(); err != nil {
		return models.Post{}, err
	}

	post := models.Post{
		ID:          uuid.NewString(),
		UserID:      authorID,
		ContentType: draft.ContentType,
		ContentData: draft.ContentData,
		Description: draft.Description,
		Images:      draft.Images,
		Visibility:  draft.Visibility,
		CreatedAt:   s.now(),
	}
	if post.Images == nil {
		post.Images = []string{}
	}

	if err := s.repo.Create(ctx, post); err != nil {
		return models.Post{}, fmt.Errorf("insert post: %w", err)
	}

	s.publish(ctx, realtime.EventInsert, post)
	return post, nil
}

// Delete removes authorID's post and announces the removal.
func (s *Service) Delete(ctx context.Context, authorID, postID string) error {
	if authorID == "" {
		return ErrNotAuthenticated
	}

	if err := s.repo.Delete(ctx, postID, authorID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	s.publish(ctx, realtime.EventDelete, models.Post{ID: postID, UserID: authorID})
	return nil
}

// publish is best-effort; the stored row is the source of truth.
func (s *Service) publish(ctx context.Context, event realtime.Event, post models.Post) {
	if s.publisher == nil {
		return
	}

	change, err := realtime.NewChange(event, Table, post)
	if err == nil {
		err = s.publisher.Publish(ctx, change)
	}
	if err != nil {
		logging.FromContext(ctx).Warn("publish post change", "event", event, "postId", post.ID, "error", err)
	}
}
