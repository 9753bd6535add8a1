package cash

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DrawerLocker serializes the read-modify-write of one drawer. fn runs while
// the lock for key is held; the lock is released when fn returns.
type DrawerLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// MutexLocker is an in-process DrawerLocker, one lock per key. It is enough
// when every register talks to a single server instance; use the Redis
// locker in package lock otherwise. The ttl is ignored.
type MutexLocker struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{keys: make(map[string]*keyLock)}
}

func (m *MutexLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	kl := m.ref(key)
	defer m.unref(key)

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
	}
	defer func() { <-kl.sem }()

	return fn(ctx)
}

func (m *MutexLocker) ref(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]*keyLock)
	}
	kl, ok := m.keys[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		m.keys[key] = kl
	}
	kl.refs++
	return kl
}

func (m *MutexLocker) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kl := m.keys[key]
	kl.refs--
	if kl.refs == 0 {
		delete(m.keys, key)
	}
}
