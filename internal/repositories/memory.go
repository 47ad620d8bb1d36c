package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fitfriends/backend/internal/models"
)

// MemoryUserRepository keeps users in memory for tests and local tooling.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewMemoryUserRepository returns an empty in-memory user store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User)}
}

// Create stores the user. Emails are unique.
func (r *MemoryUserRepository) Create(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email || existing.ID == user.ID {
			return ErrConflict
		}
	}
	r.users[user.ID] = user
	return nil
}

// FindByEmail looks a user up by email.
func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

// Update replaces a stored user.
func (r *MemoryUserRepository) Update(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return ErrNotFound
	}
	r.users[user.ID] = user
	return nil
}

// FindProfiles returns the profiles of the known ids.
func (r *MemoryUserRepository) FindProfiles(_ context.Context, ids []string) (map[string]models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.Profile, len(ids))
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			out[id] = models.Profile{ID: user.ID, Username: user.Username, DisplayName: user.DisplayName, AvatarURL: user.AvatarURL}
		}
	}
	return out, nil
}

type followKey struct{ follower, followee string }

// MemoryFollowRepository keeps follow edges in memory.
type MemoryFollowRepository struct {
	mu    sync.RWMutex
	edges map[followKey]models.Follow
}

// NewMemoryFollowRepository returns an empty in-memory follow store.
func NewMemoryFollowRepository() *MemoryFollowRepository {
	return &MemoryFollowRepository{edges: make(map[followKey]models.Follow)}
}

// Exists reports whether the edge is present.
func (r *MemoryFollowRepository) Exists(_ context.Context, followerID, followeeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.edges[followKey{followerID, followeeID}]
	return ok, nil
}

// Create inserts the edge; a duplicate yields ErrConflict.
func (r *MemoryFollowRepository) Create(_ context.Context, follow models.Follow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := followKey{follow.FollowerID, follow.FolloweeID}
	if _, ok := r.edges[key]; ok {
		return ErrConflict
	}
	r.edges[key] = follow
	return nil
}

// Delete removes the edge if present.
func (r *MemoryFollowRepository) Delete(_ context.Context, followerID, followeeID string) error {
	r.mu.Lock()
	delete(r.edges, followKey{followerID, followeeID})
	r.mu.Unlock()
	return nil
}

// Len returns the number of stored edges.
func (r *MemoryFollowRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.edges)
}

type pairKey struct{ low, high string }

func unorderedPair(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// MemoryFriendshipRepository keeps friendships in memory. The check and the
// insert for a pair happen under one lock, mirroring the unique pair index.
type MemoryFriendshipRepository struct {
	mu   sync.RWMutex
	rows map[pairKey]models.Friendship
}

// NewMemoryFriendshipRepository returns an empty in-memory friendship store.
func NewMemoryFriendshipRepository() *MemoryFriendshipRepository {
	return &MemoryFriendshipRepository{rows: make(map[pairKey]models.Friendship)}
}

// FindByPair returns the row for the unordered pair.
func (r *MemoryFriendshipRepository) FindByPair(_ context.Context, a, b string) (models.Friendship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[unorderedPair(a, b)]
	if !ok {
		return models.Friendship{}, ErrNotFound
	}
	return row, nil
}

// Create inserts a row; any existing row for the pair yields ErrConflict.
func (r *MemoryFriendshipRepository) Create(_ context.Context, friendship models.Friendship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := unorderedPair(friendship.RequesterID, friendship.AddresseeID)
	if _, ok := r.rows[key]; ok {
		return ErrConflict
	}
	r.rows[key] = friendship
	return nil
}

// Accept marks the directed request as accepted.
func (r *MemoryFriendshipRepository) Accept(_ context.Context, requesterID, addresseeID string, respondedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := unorderedPair(requesterID, addresseeID)
	row, ok := r.rows[key]
	if !ok || row.RequesterID != requesterID {
		return ErrNotFound
	}
	responded := respondedAt.UTC()
	row.Status = models.FriendshipAccepted
	row.RespondedAt = &responded
	r.rows[key] = row
	return nil
}

// ListForUser returns the user's friendships, newest first.
func (r *MemoryFriendshipRepository) ListForUser(_ context.Context, userID string) ([]models.Friendship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Friendship
	for _, row := range r.rows {
		if row.RequesterID == userID || row.AddresseeID == userID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Len returns the number of stored rows.
func (r *MemoryFriendshipRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// MemoryPostRepository keeps posts in memory and pages them with the same
// keyset rule as the SQL implementation.
type MemoryPostRepository struct {
	mu    sync.RWMutex
	posts map[string]models.Post
}

// NewMemoryPostRepository returns an in-memory post store seeded with posts.
func NewMemoryPostRepository(posts ...models.Post) *MemoryPostRepository {
	r := &MemoryPostRepository{posts: make(map[string]models.Post, len(posts))}
	for _, post := range posts {
		r.posts[post.ID] = post
	}
	return r
}

// Create stores a post; a duplicate id yields ErrConflict.
func (r *MemoryPostRepository) Create(_ context.Context, post models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[post.ID]; ok {
		return ErrConflict
	}
	post.Profile = nil
	r.posts[post.ID] = post
	return nil
}

// FindByID returns a single post.
func (r *MemoryPostRepository) FindByID(_ context.Context, id string) (models.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	post, ok := r.posts[id]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return post, nil
}

// Delete removes a post owned by ownerID.
func (r *MemoryPostRepository) Delete(_ context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok || post.UserID != ownerID {
		return ErrNotFound
	}
	delete(r.posts, id)
	return nil
}

// ListPage returns up to limit posts visible to viewerID strictly after cursor.
func (r *MemoryPostRepository) ListPage(_ context.Context, viewerID string, cursor *models.Cursor, limit int) ([]models.Post, error) {
	r.mu.RLock()
	all := make([]models.Post, 0, len(r.posts))
	for _, post := range r.posts {
		if !post.VisibleTo(viewerID) {
			continue
		}
		if cursor != nil && !cursor.Admits(post) {
			continue
		}
		all = append(all, post)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// MemoryNotificationRepository keeps notifications in memory.
type MemoryNotificationRepository struct {
	mu    sync.RWMutex
	items []models.Notification
}

// NewMemoryNotificationRepository returns an empty in-memory notification store.
func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{}
}

// Create appends a notification.
func (r *MemoryNotificationRepository) Create(_ context.Context, notification models.Notification) error {
	r.mu.Lock()
	r.items = append(r.items, notification)
	r.mu.Unlock()
	return nil
}

// ListForUser returns the user's notifications, newest first.
func (r *MemoryNotificationRepository) ListForUser(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Notification
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].UserID != userID {
			continue
		}
		out = append(out, r.items[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

var (
	_ UserRepository         = (*MemoryUserRepository)(nil)
	_ FollowRepository       = (*MemoryFollowRepository)(nil)
	_ FriendshipRepository   = (*MemoryFriendshipRepository)(nil)
	_ PostRepository         = (*MemoryPostRepository)(nil)
	_ NotificationRepository = (*MemoryNotificationRepository)(nil)
)
