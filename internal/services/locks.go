package services

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const lockPrefix = "gigbook:lock:"

// Locker grants short-lived named leases. A nil Locker means every acquire
// succeeds.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker implements Locker with SET NX. Leases expire on their own, so a
// crashed holder never blocks a sweep for longer than the TTL.
type RedisLocker struct {
	rdb   redis.Cmdable
	owner string
}

func NewRedisLocker(rdb redis.Cmdable) *RedisLocker {
	return &RedisLocker{rdb: rdb, owner: uuid.NewString()}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, lockPrefix+key, l.owner, ttl).Result()
}

// releaseScript deletes the lease only while it still carries our owner
// token, so an instance whose lease expired cannot drop a newer holder's.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.rdb, []string{lockPrefix + key}, l.owner).Err()
}
