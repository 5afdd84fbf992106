package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/fekuna/omnipos-ledger-service/pkg/cache"
)

var _ cache.Locker = (*Locker)(nil)

// Locker is an in-process cache.Locker. Obtain waits for a held key until the
// context ends, unless NoWait is set. TTLs are ignored.
type Locker struct {
	NoWait bool

	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocker() *Locker {
	return &Locker{held: map[string]chan struct{}{}}
}

func (l *Locker) Obtain(ctx context.Context, key string, _ time.Duration) (cache.Lock, error) {
	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			ch = make(chan struct{})
			l.held[key] = ch
			l.mu.Unlock()
			return &lock{l: l, key: key, ch: ch}, nil
		}
		l.mu.Unlock()

		if l.NoWait {
			return nil, cache.ErrLockNotObtained
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, cache.ErrLockNotObtained
		}
	}
}

// Held reports whether key is currently locked.
func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

type lock struct {
	l   *Locker
	key string
	ch  chan struct{}
}

func (k *lock) Release(context.Context) error {
	k.l.mu.Lock()
	defer k.l.mu.Unlock()
	if k.l.held[k.key] == k.ch {
		delete(k.l.held, k.key)
		close(k.ch)
	}
	return nil
}
