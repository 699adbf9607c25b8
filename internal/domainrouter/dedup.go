package domainrouter

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup claims a key exactly once. ClaimOnce returns true the first time
// key is claimed and false on every subsequent call for the same key,
// which is what makes translation safe to retry or run redundantly
// across processes.
type Dedup interface {
	ClaimOnce(ctx context.Context, key string) (bool, error)
}

// MemDedup is an in-process Dedup backed by a mutex-guarded set, for
// single-process deployments and tests running against eventlog.MemLog.
type MemDedup struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

func NewMemDedup() *MemDedup {
	return &MemDedup{claims: make(map[string]struct{})}
}

func (d *MemDedup) ClaimOnce(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.claims[key]; ok {
		return false, nil
	}
	d.claims[key] = struct{}{}
	return true, nil
}

// RedisDedup claims keys with SETNX so multiple Router instances across
// processes agree on exactly one translation per source offset. ttl
// bounds memory use; it must exceed how long a translated event could
// plausibly still be in flight (the router never needs to re-claim a key
// once the translated event has been durably appended).
type RedisDedup struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDedup(rdb *redis.Client, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedup{rdb: rdb, ttl: ttl}
}

func (d *RedisDedup) ClaimOnce(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, "weaver:domainrouter:"+key, 1, d.ttl).Result()
}
