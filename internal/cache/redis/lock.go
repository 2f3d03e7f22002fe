package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// unlockLua deletes a lock only if the caller still owns it.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua pushes a lock's TTL out only if the caller still owns it.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager with SETNX plus token-checked
// Lua scripts. The live trader holds one lock so that two instances never
// trade the same wallet.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
	extendSc *redis.Script
	logger   *slog.Logger
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
		extendSc: redis.NewScript(extendLua),
		logger:   logger.With(slog.String("component", "redis_lock")),
	}
}

func (lm *LockManager) lockKey(key string) string {
	return lm.c.Key("lock:" + key)
}

// Acquire takes the lock for ttl. It returns domain.ErrLockHeld when another
// holder owns it. The returned unlock is safe to call more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	unlock, _, err := lm.acquire(ctx, key, ttl)
	return unlock, err
}

func (lm *LockManager) acquire(ctx context.Context, key string, ttl time.Duration) (func(), string, error) {
	token := uuid.New().String()
	lk := lm.lockKey(key)

	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, "", fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, "", fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true
		// The caller's context is usually cancelled by the time we unlock.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlockSc.Run(unlockCtx, lm.c.rdb, []string{lk}, token).Err()
	}
	return unlock, token, nil
}

// Lease is a held lock. Keep extends it until its context ends.
type Lease struct {
	lm     *LockManager
	key    string
	token  string
	ttl    time.Duration
	unlock func()
}

// Lease acquires key for ttl and returns it held. The caller must run Keep
// or Release.
func (lm *LockManager) Lease(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	unlock, token, err := lm.acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	lm.logger.InfoContext(ctx, "lock acquired", slog.String("key", key), slog.Duration("ttl", ttl))
	return &Lease{lm: lm, key: key, token: token, ttl: ttl, unlock: unlock}, nil
}

// Release gives the lock up.
func (l *Lease) Release() { l.unlock() }

// Keep extends the lease every ttl/3 until ctx is cancelled, then releases
// it. It returns an error if the lock is lost.
func (l *Lease) Keep(ctx context.Context) error {
	defer l.unlock()

	lk := l.lm.lockKey(l.key)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := l.lm.extendSc.Run(ctx, l.lm.c.rdb, []string{lk}, l.token, l.ttl.Milliseconds()).Int64()
			if err != nil {
				l.lm.logger.WarnContext(ctx, "lock extend failed", slog.String("key", l.key), slog.String("error", err.Error()))
				continue
			}
			if n == 0 {
				return fmt.Errorf("redis: lock %s lost: %w", l.key, domain.ErrLockHeld)
			}
		}
	}
}

// Hold is Lease followed by Keep.
func (lm *LockManager) Hold(ctx context.Context, key string, ttl time.Duration) error {
	lease, err := lm.Lease(ctx, key, ttl)
	if err != nil {
		return err
	}
	return lease.Keep(ctx)
}
