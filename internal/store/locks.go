package store

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// sessionLocks is an in-process lock per session ID. Waiting respects
// context cancellation.
type sessionLocks struct {
	mu    sync.Mutex
	slots map[string]*semaphore.Weighted
}

func (l *sessionLocks) slot(sessionID string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.slots == nil {
		l.slots = make(map[string]*semaphore.Weighted)
	}
	sem, ok := l.slots[sessionID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.slots[sessionID] = sem
	}
	return sem
}

func (l *sessionLocks) lock(ctx context.Context, sessionID string) (UnlockFunc, error) {
	sem := l.slot(sessionID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() error {
		once.Do(func() { sem.Release(1) })
		return nil
	}, nil
}
