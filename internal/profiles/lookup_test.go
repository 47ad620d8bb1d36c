package profiles

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fitfriends/backend/internal/models"
)

type stubLookup struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
	err      error
	calls    int
	asked    [][]string
}

func (s *stubLookup) FindProfiles(_ context.Context, ids []string) (map[string]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.asked = append(s.asked, append([]string(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]models.Profile)
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newStub() *stubLookup {
	return &stubLookup{profiles: map[string]models.Profile{
		"u1": {ID: "u1", DisplayName: "Ana"},
		"u2": {ID: "u2", Username: "bo"},
	}}
}

func TestCachingLookupFindProfiles(t *testing.T) {
	base := newStub()
	cache := NewCachingLookup(base, time.Minute)
	ctx := context.Background()

	got, err := cache.FindProfiles(ctx, []string{"u1", "u2", "u1", "missing"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 || got["u1"].DisplayName != "Ana" {
		t.Fatalf("unexpected profiles: %+v", got)
	}
	if base.calls != 1 {
		t.Fatalf("expected base called once got %d", base.calls)
	}
	if len(base.asked[0]) != 3 {
		t.Fatalf("expected duplicate ids to be collapsed got %v", base.asked[0])
	}

	if _, err := cache.FindProfiles(ctx, []string{"u1", "u2"}); err != nil {
		t.Fatalf("find: %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected cached result got %d calls", base.calls)
	}

	if _, err := cache.FindProfiles(ctx, []string{"u1", "missing"}); err != nil {
		t.Fatalf("find: %v", err)
	}
	if base.calls != 2 || len(base.asked[1]) != 1 || base.asked[1][0] != "missing" {
		t.Fatalf("expected only the miss to be requested got %v", base.asked)
	}
}

func TestCachingLookupErrors(t *testing.T) {
	cache := NewCachingLookup(nil, time.Minute)
	if _, err := cache.FindProfiles(context.Background(), []string{"u1"}); !errors.Is(err, ErrLookupUnavailable) {
		t.Fatalf("expected lookup unavailable got %v", err)
	}

	base := &stubLookup{err: errors.New("db down")}
	cache = NewCachingLookup(base, time.Minute)
	if _, err := cache.FindProfiles(context.Background(), []string{"u1"}); err == nil {
		t.Fatal("expected base error to surface")
	}
}

func TestCachingLookupExpiryAndInvalidate(t *testing.T) {
	base := newStub()
	cache := NewCachingLookup(base, time.Millisecond)

	if _, err := cache.FindProfiles(context.Background(), []string{"u1"}); err != nil {
		t.Fatalf("find: %v", err)
	}

	time.Sleep(2 * time.Millisecond)

	if _, err := cache.FindProfiles(context.Background(), []string{"u1"}); err != nil {
		t.Fatalf("find: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected cache miss after expiry got %d calls", base.calls)
	}

	cache = NewCachingLookup(base, time.Hour)
	_, _ = cache.FindProfiles(context.Background(), []string{"u2"})
	cache.Invalidate("u2")
	_, _ = cache.FindProfiles(context.Background(), []string{"u2"})
	if base.calls != 4 {
		t.Fatalf("expected invalidated entry to be refetched got %d calls", base.calls)
	}
}

func TestCachingLookupDefaultTTL(t *testing.T) {
	cache := NewCachingLookup(newStub(), 0)
	if cache.ttl <= 0 {
		t.Fatalf("expected ttl to default positive got %v", cache.ttl)
	}
}

func TestDistinct(t *testing.T) {
	got := Distinct([]string{"b", "", "a", "b"})
	want := []string{"b", "a"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v got %v", want, got)
	}
}

func TestRedisCacheFallsBackWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	base := newStub()
	cache := NewRedisCache(client, base, time.Minute)

	got, err := cache.FindProfiles(context.Background(), []string{"u2", "u1"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	ids := make([]string, 0, len(got))
	for id := range got {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
		t.Fatalf("expected profiles from base lookup got %v", ids)
	}
	if base.calls != 1 {
		t.Fatalf("expected one base call got %d", base.calls)
	}
}
