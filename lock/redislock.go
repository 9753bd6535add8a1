// Package lock implements cash.DrawerLocker on Redis so that several server
// instances can share one till.
//
// A lease is a SET NX key holding a random token. While the callback runs the
// lease is extended every third of its TTL, and the callback's context is
// cancelled as soon as an extension finds the key gone or owned by another
// token. A lease cannot fence a holder that stalls past its TTL, so drawer
// consistency still rests on the version check in CommitTender: a tender
// computed against a drawer version that has since moved is rejected as a
// stale ledger.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/warp/tender-engine/cash"
)

const keyPrefix = "tender:lock:"

const (
	defaultTTL     = 30 * time.Second
	defaultBackoff = 50 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker serializes drawer commits across server instances.
type Locker struct {
	R *redis.Client
	// RetryBackoff is the pause between acquisition attempts.
	RetryBackoff time.Duration
}

var _ cash.DrawerLocker = Locker{}

// WithLock runs fn while holding the lease for key and releases it when fn
// returns. If the lease cannot be taken before ctx is done the error wraps
// cash.ErrLockTimeout.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	ls := lease{client: l.R, name: key, key: keyPrefix + key, token: uuid.NewString(), ttl: ttl}
	if err := ls.acquire(ctx, l.backoff()); err != nil {
		return err
	}
	defer ls.release()

	held, cancel := context.WithCancel(ctx)
	renewing := make(chan struct{})
	go func() {
		defer close(renewing)
		ls.keepAlive(held, cancel)
	}()

	err := fn(held)
	cancel()
	<-renewing
	return err
}

func (l Locker) backoff() time.Duration {
	if l.RetryBackoff > 0 {
		return l.RetryBackoff
	}
	return defaultBackoff
}

// lease is one holder's claim on a Redis key.
type lease struct {
	client *redis.Client
	name   string
	key    string
	token  string
	ttl    time.Duration
}

func (ls lease) acquire(ctx context.Context, backoff time.Duration) error {
	for {
		ok, err := ls.client.SetNX(ctx, ls.key, ls.token, ls.ttl).Result()
		switch {
		case err == nil && ok:
			return nil
		case err != nil && ctx.Err() == nil:
			return fmt.Errorf("lock %s: %w", ls.name, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", cash.ErrLockTimeout, ls.name, ctx.Err())
		case <-time.After(backoff):
		}
	}
}

// keepAlive extends the lease until ctx is done. It calls lost when the key
// no longer carries this lease's token. Failed extensions are retried on the
// next tick.
func (ls lease) keepAlive(ctx context.Context, lost context.CancelFunc) {
	interval := ls.ttl / 3
	if interval <= 0 {
		interval = ls.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := extendScript.Run(ctx, ls.client, []string{ls.key}, ls.token, ls.ttl.Milliseconds()).Int()
		if err != nil {
			continue
		}
		if n == 0 {
			lost()
			return
		}
	}
}

// release deletes the key if it still carries this lease's token. A lease
// that cannot be released expires after its TTL.
func (ls lease) release() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	_ = releaseScript.Run(ctx, ls.client, []string{ls.key}, ls.token).Err()
}
