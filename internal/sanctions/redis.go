package sanctions

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKey = "sanctions:flagged"

// RedisRegistry layers a Redis hash over a local MemoryRegistry so several
// engine instances see the same flagged-name list. The local map is the
// fast path; Redis is best-effort — a write failure is logged and the local
// entry still stands, matching the engine's in-memory-first design.
type RedisRegistry struct {
	local *MemoryRegistry
	rdb   *redis.Client
}

// NewRedisRegistry creates a registry mirrored into Redis and loads any
// entries previously published by other instances.
func NewRedisRegistry(ctx context.Context, rdb *redis.Client) *RedisRegistry {
	r := &RedisRegistry{
		local: NewMemoryRegistry(),
		rdb:   rdb,
	}

	pairs, err := rdb.HGetAll(ctx, redisKey).Result()
	if err != nil {
		slog.Warn("sanctions: redis load failed, starting empty", "err", err)
		return r
	}
	for name, raw := range pairs {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		r.local.Add(name, time.Unix(unix, 0).UTC())
	}
	if len(pairs) > 0 {
		slog.Info("sanctions: loaded mirrored entries", "count", len(pairs))
	}
	return r
}

func (r *RedisRegistry) Add(name string, ts time.Time) {
	r.local.Add(name, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.HSet(ctx, redisKey, name, strconv.FormatInt(ts.Unix(), 10)).Err(); err != nil {
		slog.Warn("sanctions: redis mirror write failed", "name", name, "err", err)
	}
}

func (r *RedisRegistry) Lookup(name string) (time.Time, bool) {
	if ts, ok := r.local.Lookup(name); ok {
		return ts, true
	}

	// Another instance may have flagged the name after startup.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := r.rdb.HGet(ctx, redisKey, name).Result()
	if err != nil {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	ts := time.Unix(unix, 0).UTC()
	r.local.Add(name, ts)
	return ts, true
}

func (r *RedisRegistry) Entries() []Entry {
	return r.local.Entries()
}
