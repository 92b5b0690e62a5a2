package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired means another worker already holds the key.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld means the key expired or was taken over before release.
	ErrLockNotHeld = errors.New("lock not held")
)

// releaseScript deletes the key only when the stored token matches, so a
// worker whose lock expired cannot release a lock acquired by someone else.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// Locker hands out non-blocking advisory locks. Sync workers lock the
// composite identity of the record they are reconciling and the scheduler
// locks each poll group, so contention is expected and callers treat
// ErrLockNotAcquired as "someone else is already on it".
type Locker struct {
	client *Client
	prefix string
}

// NewLocker creates a Locker whose keys are namespaced by prefix.
func NewLocker(client *Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &Locker{client: client, prefix: prefix}
}

// Lock is a single held lock. It is released explicitly or falls away when
// its TTL expires, whichever comes first.
type Lock struct {
	client *Client
	key    string
	token  string
}

// Acquire takes the lock or fails immediately with ErrLockNotAcquired.
// There is no blocking variant: a contended identity means another worker
// is already syncing it, and waiting would just duplicate that work.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock %s", key)

	return &Lock{client: l.client, key: l.prefix + key, token: token}, nil
}

// Release gives the lock back. Returns ErrLockNotHeld when the TTL already
// expired, which callers usually log and ignore.
func (lock *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}

	lock.client.logger.WithContext(ctx).Debugf("Released lock %s", lock.key)
	return nil
}

// Extend pushes the TTL out for work that outlives the original estimate,
// such as a product sync that walks a long variation list.
func (lock *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
