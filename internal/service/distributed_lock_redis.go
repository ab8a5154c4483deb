package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/collabtask/authcore/internal/observability"
)

// releaseScript deletes the lock entry only when the caller still holds it,
// so a guard that outlived its lease cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

const lockRetryInterval = 50 * time.Millisecond

// RedisLockManager is a cross-process mutex on a redis entry with a lease:
// the entry auto-expires if the holder crashes. The lease fences deadlock,
// not long critical sections; callers size it generously.
type RedisLockManager struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLockManager(client redis.UniversalClient, prefix string) *RedisLockManager {
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLockManager{
		client: client,
		prefix: prefix,
	}
}

// TryAcquire blocks up to wait for the lock. It returns ErrLockTimeout when
// the wait window closes without an acquisition, never a silent pass.
func (m *RedisLockManager) TryAcquire(ctx context.Context, key string, wait, lease time.Duration) (*LockGuard, error) {
	holder := uuid.NewString()
	lockKey := m.lockKey(key)
	deadline := time.Now().Add(wait)

	for {
		acquired, err := m.client.SetNX(ctx, lockKey, holder, lease).Result()
		if err != nil {
			observability.RecordLockAcquisition(ctx, "error")
			return nil, fmt.Errorf("acquire lock %q: %w", key, err)
		}
		if acquired {
			observability.RecordLockAcquisition(ctx, "acquired")
			return &LockGuard{manager: m, key: lockKey, holder: holder}, nil
		}
		if !time.Now().Add(lockRetryInterval).Before(deadline) {
			observability.RecordLockAcquisition(ctx, "timeout")
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			observability.RecordLockAcquisition(ctx, "canceled")
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (m *RedisLockManager) lockKey(key string) string {
	return m.prefix + ":" + key
}

// LockGuard releases at most once; further Release calls are no-ops.
type LockGuard struct {
	manager *RedisLockManager
	key     string
	holder  string
	once    sync.Once
}

func (g *LockGuard) Release(ctx context.Context) error {
	var err error
	g.once.Do(func() {
		err = releaseScript.Run(ctx, g.manager.client, []string{g.key}, g.holder).Err()
		if err == redis.Nil {
			err = nil
		}
	})
	return err
}
