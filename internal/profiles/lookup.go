package profiles

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fitfriends/backend/internal/models"
)

// ErrLookupUnavailable is returned when no backing lookup was configured.
var ErrLookupUnavailable = errors.New("profile lookup unavailable")

// Lookup resolves display profiles for a batch of user ids. Ids with no
// profile are absent from the result.
type Lookup interface {
	FindProfiles(ctx context.Context, ids []string) (map[string]models.Profile, error)
}

type cacheEntry struct {
	profile models.Profile
	expires time.Time
}

// CachingLookup wraps another Lookup with a TTL-based in-memory cache.
type CachingLookup struct {
	base Lookup
	ttl  time.Duration

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingLookup returns a Lookup that caches resolved profiles for the provided TTL.
func NewCachingLookup(base Lookup, ttl time.Duration) *CachingLookup {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingLookup{
		base:  base,
		ttl:   ttl,
		items: make(map[string]cacheEntry),
	}
}

// FindProfiles serves cached profiles and asks the underlying lookup only for
// the ids it has not seen recently.
func (c *CachingLookup) FindProfiles(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	if c == nil || c.base == nil {
		return nil, ErrLookupUnavailable
	}

	now := time.Now()
	result := make(map[string]models.Profile, len(ids))
	var misses []string

	c.mu.RLock()
	for _, id := range Distinct(ids) {
		entry, ok := c.items[id]
		if ok && now.Before(entry.expires) {
			result[id] = entry.profile
			continue
		}
		misses = append(misses, id)
	}
	c.mu.RUnlock()

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := c.base.FindProfiles(ctx, misses)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for id, profile := range fetched {
		c.items[id] = cacheEntry{profile: profile, expires: now.Add(c.ttl)}
		result[id] = profile
	}
	c.mu.Unlock()

	return result, nil
}

// Invalidate drops a cached profile, typically after the user edits it.
func (c *CachingLookup) Invalidate(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

// Distinct returns the non-empty ids in first-seen order.
func Distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
