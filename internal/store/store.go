package store

import (
	"context"
	"fmt"
	"regexp"
)

// Store defines the interface for observation history persistence.
// Implementations must be safe for concurrent use and keep sessions
// isolated from one another.
//
// Error handling conventions:
//   - Return nil error on success
//   - Load on an unknown session returns an empty history, not an error
//   - Return ErrNotFound from Clear if the session has no history
//   - Return a CorruptHistoryError if stored rows cannot be decoded
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// Load returns every observation of the session in insertion order.
	Load(ctx context.Context, sessionID string) ([]Observation, error)

	// Append durably adds one observation at the end of the session history.
	// The write must survive a process restart once Append returns.
	Append(ctx context.Context, sessionID string, obs Observation) error

	// Clear deletes the entire history of the session.
	// Returns ErrNotFound if nothing is stored for sessionID.
	Clear(ctx context.Context, sessionID string) error

	// List returns summaries of all sessions that have history.
	// Sessions whose history cannot be decoded are skipped.
	List(ctx context.Context) ([]SessionInfo, error)

	// Lock serializes a load-then-append cycle on one session across
	// every process sharing the store. The returned function releases it.
	Lock(ctx context.Context, sessionID string) (UnlockFunc, error)

	// Close releases resources held by the store.
	Close() error
}

// UnlockFunc releases a session lock acquired with Store.Lock.
type UnlockFunc func() error

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateSessionID rejects identifiers that are empty, too long, or
// unsafe to use as a path component.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return &ValidationError{Field: "SessionID", Reason: fmt.Sprintf("%q must match %s", id, sessionIDPattern)}
	}
	return nil
}

// ErrNotFound is returned when a requested session does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing session.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	if e.SessionID != "" {
		return "session not found: " + e.SessionID
	}
	return "session not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ErrCorruptHistory matches any CorruptHistoryError with errors.Is.
var ErrCorruptHistory = &CorruptHistoryError{}

// CorruptHistoryError reports persisted history that cannot be decoded.
// It is fatal to the session: the history is never discarded
// automatically, an operator has to inspect or reset it.
type CorruptHistoryError struct {
	SessionID string
	Line      int // 1-based record position, 0 if unknown
	Err       error
}

func (e *CorruptHistoryError) Error() string {
	msg := "corrupt history"
	if e.SessionID != "" {
		msg += " for session " + e.SessionID
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" at record %d", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptHistoryError) Unwrap() error {
	return e.Err
}

func (e *CorruptHistoryError) Is(target error) bool {
	_, ok := target.(*CorruptHistoryError)
	return ok
}

// checkHistory verifies that a decoded history is internally consistent.
func checkHistory(sessionID string, obs []Observation) error {
	for i := range obs {
		if err := obs[i].Validate(); err != nil {
			return &CorruptHistoryError{SessionID: sessionID, Line: i + 1, Err: err}
		}
		if i > 0 && len(obs[i].X) != len(obs[0].X) {
			return &CorruptHistoryError{
				SessionID: sessionID,
				Line:      i + 1,
				Err:       fmt.Errorf("vector has %d components, first record has %d", len(obs[i].X), len(obs[0].X)),
			}
		}
	}
	return nil
}
