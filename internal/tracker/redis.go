package tracker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hookrelay/pkg/metrics"
)

const redisBackend = "redis"

// advanceScript creates or moves the tracker hash forward only when the
// incoming timestamp is strictly newer. Returns 1 when it wrote.
var advanceScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'updated')
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
if not current then
	redis.call('HSET', KEYS[1], 'id', ARGV[2], 'resource_id', ARGV[3], 'event_type', ARGV[4])
end
redis.call('HSET', KEYS[1], 'updated', ARGV[1])
return 1
`)

type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key Key) string {
	return s.prefix + key.String()
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Record, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveTrackerOperationDuration(redisBackend, "get", time.Since(start))
	}()

	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		metrics.IncTrackerOperation(redisBackend, "get", "error")
		return nil, fmt.Errorf("redis HGETALL failed: %w", err)
	}
	if len(fields) == 0 {
		metrics.IncTrackerOperation(redisBackend, "get", "miss")
		return nil, nil
	}

	updated, err := strconv.ParseInt(fields["updated"], 10, 64)
	if err != nil {
		metrics.IncTrackerOperation(redisBackend, "get", "error")
		return nil, fmt.Errorf("corrupt tracker %s: %w", s.key(key), err)
	}

	metrics.IncTrackerOperation(redisBackend, "get", "hit")
	return &Record{
		ID:         fields["id"],
		ResourceID: fields["resource_id"],
		EventType:  fields["event_type"],
		Updated:    updated,
	}, nil
}

func (s *RedisStore) Advance(ctx context.Context, key Key, created int64) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveTrackerOperationDuration(redisBackend, "advance", time.Since(start))
	}()

	wrote, err := advanceScript.Run(ctx, s.client,
		[]string{s.key(key)},
		created, uuid.NewString(), key.ResourceID, key.EventType,
	).Int()
	if err != nil {
		metrics.IncTrackerOperation(redisBackend, "advance", "error")
		return false, fmt.Errorf("redis advance script failed: %w", err)
	}

	if wrote == 0 {
		metrics.IncTrackerOperation(redisBackend, "advance", "stale")
		return false, nil
	}

	metrics.IncTrackerOperation(redisBackend, "advance", "ok")
	return true, nil
}
