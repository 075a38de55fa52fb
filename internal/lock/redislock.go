package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is already held by another owner.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker provides a Redis-backed distributed lock. Checkout uses it to keep a
// shopper's order submission single-flight across API replicas.
type Locker struct {
	R *redis.Client
}

// Acquire takes the lock without blocking. It returns an owner token that
// must be passed back to Release, or ErrNotAcquired when another holder owns
// the key.
func (l Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.R == nil {
		return "", errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotAcquired
	}
	return token, nil
}

// Release frees the lock when the token still owns it. Releasing a lock that
// expired or was taken over is a no-op.
func (l Locker) Release(ctx context.Context, key, token string) {
	if l.R == nil || token == "" {
		return
	}
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
