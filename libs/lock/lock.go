// Package lock provides per-key mutual exclusion with a bounded wait.
//
// A booking write holds the lock for its doctor for the whole
// read-check-insert sequence. Keyed serves a single process; Redis serves a
// fleet of replicas sharing one Redis.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the lock could not be acquired before the wait expired.
var ErrTimeout = errors.New("lock: acquire timed out")

// Locker acquires the lock for key, waiting at most wait. The returned release
// func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string, wait time.Duration) (release func(), err error)
}
