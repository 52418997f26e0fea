package cache

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrForegroundBusy is returned when a user-initiated extraction is already
// running.
var ErrForegroundBusy = errors.New("another extraction is already in progress")

// Foreground is the token held by the user-initiated extraction. Background
// warming checks it and stays out of the way while it is held.
type Foreground struct {
	sem  *semaphore.Weighted
	held atomic.Bool
}

// NewForeground returns a free token.
func NewForeground() *Foreground {
	return &Foreground{sem: semaphore.NewWeighted(1)}
}

// TryAcquire takes the token without blocking. The returned release func is
// idempotent.
func (f *Foreground) TryAcquire() (release func(), ok bool) {
	if !f.sem.TryAcquire(1) {
		return nil, false
	}
	f.held.Store(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			f.held.Store(false)
			f.sem.Release(1)
		})
	}, true
}

// Busy reports whether the token is held.
func (f *Foreground) Busy() bool {
	return f.held.Load()
}
