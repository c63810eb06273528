package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries our token, so an
// expired lock taken over by another run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RunLock is a Redis SET NX lock with a TTL. The TTL bounds how long a
// crashed run can block the next one.
type RunLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRunLock returns a lock stored under key.
func NewRunLock(rdb *redis.Client, key string, ttl time.Duration) *RunLock {
	return &RunLock{rdb: rdb, key: key, ttl: ttl}
}

// Acquire tries to take the lock. ok is false when another holder has it.
func (l *RunLock) Acquire(ctx context.Context) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
	}
	return release, true, nil
}
