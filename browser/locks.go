package browser

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// ProfileLocks serializes sessions per profile directory. Two browsers on
// one user data dir corrupt its cookie and session stores, so Open takes
// the profile's lock and Close gives it back.
type ProfileLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
	held  atomic.Int32
}

// NewProfileLocks creates an empty lock table.
func NewProfileLocks() *ProfileLocks {
	return &ProfileLocks{locks: make(map[string]chan struct{})}
}

// Acquire blocks until dir is free or ctx is done. The returned release
// func is idempotent.
func (l *ProfileLocks) Acquire(ctx context.Context, dir string) (func(), error) {
	ch := l.slot(profileKey(dir))

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	l.held.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.held.Add(-1)
			<-ch
		})
	}, nil
}

// Held returns the number of profiles currently locked.
func (l *ProfileLocks) Held() int {
	return int(l.held.Load())
}

func (l *ProfileLocks) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

func profileKey(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}
