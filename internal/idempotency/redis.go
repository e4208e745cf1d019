// Package idempotency remembers which booking a client supplied
// Idempotency-Key produced, so a retried create returns the first booking
// instead of reserving twice.
package idempotency

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const pending = "pending"

// abandonScript deletes the key only while it still holds the pending
// marker, so a late Abandon never erases a completed entry.
var abandonScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisStore keeps keys in Redis with a TTL.  A key is first written as a
// pending marker with SET NX and later overwritten with the booking id.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore returns a store writing keys under prefix with the given ttl.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if prefix == "" {
		prefix = "idem"
	}
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + ":" + k }

// Claim reserves k for the caller.  When another request already holds it,
// claimed is false and bookingID is the stored booking or zero while that
// request is still running.
func (s *RedisStore) Claim(ctx context.Context, k string) (int64, bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.key(k), pending, s.ttl).Result()
	if err != nil {
		return 0, false, err
	}
	if ok {
		return 0, true, nil
	}

	v, err := s.rdb.Get(ctx, s.key(k)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = s.rdb.SetNX(ctx, s.key(k), pending, s.ttl).Result()
		if err != nil {
			return 0, false, err
		}
		return 0, ok, nil
	}
	if err != nil {
		return 0, false, err
	}
	if v == pending {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

// Complete records bookingID for k and restarts its TTL.
func (s *RedisStore) Complete(ctx context.Context, k string, bookingID int64) error {
	return s.rdb.Set(ctx, s.key(k), strconv.FormatInt(bookingID, 10), s.ttl).Err()
}

// Abandon frees k after a failed create so the client may retry.
func (s *RedisStore) Abandon(ctx context.Context, k string) error {
	return abandonScript.Run(ctx, s.rdb, []string{s.key(k)}, pending).Err()
}
