package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fitfriends/backend/internal/logging"
	"github.com/fitfriends/backend/internal/models"
)

const keyPrefix = "profile:"

// RedisCache is a Lookup that shares resolved profiles between instances
// through Redis. Redis failures degrade to the underlying lookup.
type RedisCache struct {
	client *redis.Client
	base   Lookup
	ttl    time.Duration
}

// NewRedisCache wraps base with a Redis read-through cache.
func NewRedisCache(client *redis.Client, base Lookup, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, base: base, ttl: ttl}
}

func key(id string) string {
	return keyPrefix + id
}

// FindProfiles reads every id with one MGET and resolves the misses through the base lookup.
func (r *RedisCache) FindProfiles(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	if r == nil || r.base == nil {
		return nil, ErrLookupUnavailable
	}

	ids = Distinct(ids)
	result := make(map[string]models.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	logger := logging.FromContext(ctx)
	misses := ids

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn("profile cache read failed", "error", err)
	} else {
		misses = misses[:0:0]
		for i, value := range values {
			raw, ok := value.(string)
			if !ok {
				misses = append(misses, ids[i])
				continue
			}
			var profile models.Profile
			if err := json.Unmarshal([]byte(raw), &profile); err != nil {
				misses = append(misses, ids[i])
				continue
			}
			result[ids[i]] = profile
		}
	}

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := r.base.FindProfiles(ctx, misses)
	if err != nil {
		return nil, err
	}

	pipe := r.client.Pipeline()
	for id, profile := range fetched {
		result[id] = profile
		data, err := json.Marshal(profile)
		if err != nil {
			continue
		}
		pipe.Set(ctx, key(id), data, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("profile cache write failed", slog.Int("profiles", len(fetched)), slog.Any("error", err))
	}

	return result, nil
}

// Invalidate removes a cached profile.
func (r *RedisCache) Invalidate(ctx context.Context, id string) error {
	return r.client.Del(ctx, key(id)).Err()
}
