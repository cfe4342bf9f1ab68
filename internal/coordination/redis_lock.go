package coordination

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

const lockKeyPrefix = "driftmend:lock:"

var lockReleaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var lockRenewScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// redisLocker implements the lease lock with SET NX PX. The PX expiry is the
// lease: a holder that crashes without releasing stops blocking the resource
// as soon as the lease lapses.
type redisLocker struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewRedisLocker(rdb *goredis.Client, log *logger.Logger) Locker {
	return &redisLocker{
		rdb: rdb,
		log: log.With("component", "RedisLocker"),
	}
}

func (l *redisLocker) Degraded() bool { return false }

func (l *redisLocker) Acquire(ctx context.Context, resourceKey, holderID string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		lease = 30 * time.Second
	}
	ok, err := l.rdb.SetNX(ctx, lockKeyPrefix+resourceKey, holderID, lease).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	return ok, nil
}

func (l *redisLocker) Release(ctx context.Context, resourceKey, holderID string) (bool, error) {
	res, err := lockReleaseScript.Run(ctx, l.rdb, []string{lockKeyPrefix + resourceKey}, holderID).Int()
	if err != nil {
		return false, fmt.Errorf("lock release: %w", err)
	}
	return res == 1, nil
}

func (l *redisLocker) Renew(ctx context.Context, resourceKey, holderID string, lease time.Duration) (bool, error) {
	res, err := lockRenewScript.Run(ctx, l.rdb, []string{lockKeyPrefix + resourceKey}, holderID, lease.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("lock renew: %w", err)
	}
	return res == 1, nil
}
