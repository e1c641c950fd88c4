package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when the mutex expired before it was released.
var ErrLockNotHeld = errors.New("platform/cache: lock was not held or already expired")

// LockOptions tunes acquisition of the distributed mutex.
type LockOptions struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultLockOptions returns defaults suited to short critical sections.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 100 * time.Millisecond,
	}
}

// Locker provides Redlock mutual exclusion backed by a single Redis client.
type Locker struct {
	rs   *redsync.Redsync
	opts LockOptions
}

// NewLocker wires redsync onto client.
func NewLocker(client redis.UniversalClient, opts LockOptions) *Locker {
	defaults := DefaultLockOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = defaults.Expiry
	}
	if opts.Tries <= 0 {
		opts.Tries = defaults.Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	return &Locker{rs: redsync.New(goredis.NewPool(client)), opts: opts}
}

// WithLock runs fn while holding the mutex named key.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if key == "" {
		return errors.New("platform/cache: lock key cannot be empty")
	}
	if fn == nil {
		return errors.New("platform/cache: lock function is nil")
	}
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("platform/cache: acquire %s: %w", key, err)
	}

	fnErr := fn(ctx)

	// Release on a context that survives caller cancellation.
	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	ok, err := mutex.UnlockContext(unlockCtx)
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("platform/cache: release %s: %w", key, err)
	}
	if !ok {
		return ErrLockNotHeld
	}
	return nil
}
