package store

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MemoryStore keeps histories in process memory. It is used by the
// simulate command and by tests; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Observation
	locks    sessionLocks
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Observation)}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]Observation, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Observation, len(m.sessions[sessionID]))
	for i, o := range m.sessions[sessionID] {
		out[i] = cloneObservation(o)
	}
	return out, nil
}

func (m *MemoryStore) Append(ctx context.Context, sessionID string, obs Observation) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := obs.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[sessionID] = append(m.sessions[sessionID], cloneObservation(obs))
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions[sessionID]) == 0 {
		return &NotFoundError{SessionID: sessionID}
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for id, obs := range m.sessions {
		if len(obs) > 0 {
			infos = append(infos, Summarize(id, obs))
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionID < infos[j].SessionID })
	return infos, nil
}

func (m *MemoryStore) Lock(ctx context.Context, sessionID string) (UnlockFunc, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	return m.locks.lock(ctx, sessionID)
}

func (m *MemoryStore) Close() error {
	return nil
}

func cloneObservation(o Observation) Observation {
	o.X = slices.Clone(o.X)
	o.Manual = slices.Clone(o.Manual)
	o.Auto = slices.Clone(o.Auto)
	return o
}

var _ Store = (*MemoryStore)(nil)
