package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/bayestune/internal/store"
	"github.com/cwbudde/bayestune/internal/tuner"
)

// SessionManager serializes steps per session within this process and
// fans results out to stream subscribers. Cross-process exclusion is left
// to the store.
type SessionManager struct {
	tuner *tuner.Tuner
	store store.Store

	mu          sync.Mutex
	locks       map[string]*sessionLock
	broadcaster *EventBroadcaster
}

// sessionLock is dropped from the map once nobody holds or waits on it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionManager creates a SessionManager
func NewSessionManager(t *tuner.Tuner, st store.Store) *SessionManager {
	return &SessionManager{
		tuner:       t,
		store:       st,
		locks:       make(map[string]*sessionLock),
		broadcaster: NewEventBroadcaster(),
	}
}

// NewSessionID returns a fresh session identifier
func NewSessionID() string {
	return uuid.New().String()
}

func (sm *SessionManager) lock(id string) func() {
	sm.mu.Lock()
	l, ok := sm.locks[id]
	if !ok {
		l = &sessionLock{}
		sm.locks[id] = l
	}
	l.refs++
	sm.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		sm.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(sm.locks, id)
		}
		sm.mu.Unlock()
	}
}

// activeLocks reports how many sessions currently have a lock entry.
func (sm *SessionManager) activeLocks() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.locks)
}

// Step runs one loop iteration and broadcasts the result
func (sm *SessionManager) Step(ctx context.Context, id string, in tuner.Input) (*tuner.Result, error) {
	unlock := sm.lock(id)
	defer unlock()

	res, err := sm.tuner.Step(ctx, id, in)
	if err != nil {
		return nil, err
	}

	sm.broadcaster.Broadcast(StepEvent{
		SessionID: id,
		State:     res.State,
		Done:      res.Done,
		Iteration: res.Iteration,
		Params:    res.Params,
		Y:         res.Y,
		Timestamp: time.Now(),
	})
	return res, nil
}

// Status reports a session without modifying it
func (sm *SessionManager) Status(ctx context.Context, id string) (*tuner.Status, error) {
	return sm.tuner.Status(ctx, id)
}

// History returns the stored observations of a session
func (sm *SessionManager) History(ctx context.Context, id string) ([]store.Observation, error) {
	return sm.tuner.History(ctx, id)
}

// List returns summaries of all sessions with history
func (sm *SessionManager) List(ctx context.Context) ([]store.SessionInfo, error) {
	return sm.store.List(ctx)
}

// Reset clears a session and disconnects its stream subscribers
func (sm *SessionManager) Reset(ctx context.Context, id string) error {
	unlock := sm.lock(id)
	defer unlock()

	if err := sm.tuner.Reset(ctx, id); err != nil {
		return err
	}
	sm.broadcaster.CleanupSession(id)
	return nil
}
