package feed

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fitfriends/backend/internal/logging"
	"github.com/fitfriends/backend/internal/models"
)

// PageSize is the number of posts requested per page.
const PageSize = 15

// ErrInvalidCursor is returned when a client supplied cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid feed cursor")

// PostSource reads one keyset page of posts visible to viewerID.
type PostSource interface {
	ListPage(ctx context.Context, viewerID string, cursor *models.Cursor, limit int) ([]models.Post, error)
}

// ProfileLookup resolves author profiles in one batch.
type ProfileLookup interface {
	FindProfiles(ctx context.Context, ids []string) (map[string]models.Profile, error)
}

// Page is one fetched page of the feed.
type Page struct {
	Posts []models.Post
	// Next is the position of the last post, nil when the page is empty.
	Next *models.Cursor
	// HasMore is true when the page came back full. A full final page makes
	// the next fetch return empty.
	HasMore bool
}

// Pager fetches pages and attaches author profiles.
type Pager struct {
	source   PostSource
	profiles ProfileLookup
}

// NewPager constructs a Pager. profiles may be nil.
func NewPager(source PostSource, profiles ProfileLookup) *Pager {
	return &Pager{source: source, profiles: profiles}
}

// Page returns the posts strictly after cursor, or the first page when cursor is nil.
func (p *Pager) Page(ctx context.Context, viewerID string, cursor *models.Cursor) (Page, error) {
	posts, err := p.source.ListPage(ctx, viewerID, cursor, PageSize)
	if err != nil {
		return Page{}, fmt.Errorf("list posts: %w", err)
	}

	p.attachProfiles(ctx, posts)

	page := Page{Posts: posts, HasMore: len(posts) == PageSize}
	if len(posts) > 0 {
		next := posts[len(posts)-1].Cursor()
		page.Next = &next
	}
	return page, nil
}

// attachProfiles sets Profile on each post. Lookup failures leave profiles nil.
func (p *Pager) attachProfiles(ctx context.Context, posts []models.Post) {
	if len(posts) == 0 {
		return
	}
	for i := range posts {
		posts[i].Profile = nil
	}
	if p.profiles == nil {
		return
	}

	ids := make([]string, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))
	for _, post := range posts {
		if _, ok := seen[post.UserID]; ok || post.UserID == "" {
			continue
		}
		seen[post.UserID] = struct{}{}
		ids = append(ids, post.UserID)
	}

	found, err := p.profiles.FindProfiles(ctx, ids)
	if err != nil {
		logging.FromContext(ctx).Warn("resolve post authors", slog.Int("authors", len(ids)), slog.Any("error", err))
		return
	}

	for i := range posts {
		if profile, ok := found[posts[i].UserID]; ok {
			posts[i].Profile = &profile
		}
	}
}

// EncodeCursor renders a cursor as an opaque URL-safe token.
func EncodeCursor(c models.Cursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token means
// no cursor. Post ids are UUIDs, so any other id is rejected.
func DecodeCursor(token string) (*models.Cursor, error) {
	if token == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var c models.Cursor
	if err := json.Unmarshal(data, &c); err != nil || c.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}
