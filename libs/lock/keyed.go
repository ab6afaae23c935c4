package lock

import (
	"context"
	"sync"
	"time"
)

// Keyed is an in-process Locker. Each key maps to a one-slot channel; entries
// are refcounted and dropped once no goroutine holds or waits for them.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{slots: map[string]*slot{}}
}

func (k *Keyed) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	s := k.ref(key)

	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case s.ch <- struct{}{}:
	case <-timeout:
		k.unref(key)
		return nil, ErrTimeout
	case <-ctx.Done():
		k.unref(key)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.unref(key)
		})
	}, nil
}

// Len reports how many keys are currently tracked.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func (k *Keyed) ref(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.slots[key]
	if s == nil {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *Keyed) unref(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.slots[key]
	if s == nil {
		return
	}
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}
