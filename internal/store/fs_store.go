package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout bounds how long a store operation waits for a file lock.
const DefaultLockTimeout = 10 * time.Second

const lockRetryDelay = 20 * time.Millisecond

// FSStore implements the Store interface using filesystem-based persistence.
// Each session is an append-only JSONL journal:
//
//	<baseDir>/sessions/<sessionID>/observations.jsonl
//
// Thread-safety: reads take a shared and writes an exclusive advisory file
// lock, so several processes may share baseDir. Lock files live under
// <baseDir>/locks and survive Clear, which keeps lock identity stable
// while a session is reset.
type FSStore struct {
	baseDir     string // Root directory for all session data (e.g., "./data")
	lockTimeout time.Duration
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist. A non-positive
// lockTimeout selects DefaultLockTimeout.
func NewFSStore(baseDir string, lockTimeout time.Duration) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	return &FSStore{
		baseDir:     baseDir,
		lockTimeout: lockTimeout,
	}, nil
}

// sessionDir returns the directory path for a given session ID.
func (fs *FSStore) sessionDir(sessionID string) string {
	return filepath.Join(fs.baseDir, "sessions", sessionID)
}

// journalPath returns the path to the observations.jsonl file for a session.
func (fs *FSStore) journalPath(sessionID string) string {
	return filepath.Join(fs.sessionDir(sessionID), "observations.jsonl")
}

func (fs *FSStore) lockPath(sessionID, kind string) string {
	return filepath.Join(fs.baseDir, "locks", sessionID+"."+kind+".lock")
}

// acquire takes the file lock at path, shared or exclusive, within the
// store's lock timeout.
func (fs *FSStore) acquire(ctx context.Context, path string, exclusive bool) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, fs.lockTimeout)
	defer cancel()

	fl := flock.New(path)
	var locked bool
	var err error
	if exclusive {
		locked, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", filepath.Base(path), err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock %s: timed out", filepath.Base(path))
	}
	return fl, nil
}

// Load returns the session history in insertion order.
func (fs *FSStore) Load(ctx context.Context, sessionID string) ([]Observation, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	fl, err := fs.acquire(ctx, fs.lockPath(sessionID, "io"), false)
	if err != nil {
		return nil, err
	}
	defer fl.Unlock()

	return fs.readJournal(sessionID)
}

func (fs *FSStore) readJournal(sessionID string) ([]Observation, error) {
	reader, err := openJournalReader(fs.journalPath(sessionID), sessionID)
	if os.IsNotExist(err) {
		return []Observation{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	obs, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if err := checkHistory(sessionID, obs); err != nil {
		return nil, err
	}

	slog.Debug("History loaded", "sessionID", sessionID, "observations", len(obs))
	return obs, nil
}

// Append adds one observation to the session journal and syncs it to disk.
func (fs *FSStore) Append(ctx context.Context, sessionID string, obs Observation) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := obs.Validate(); err != nil {
		return err
	}

	fl, err := fs.acquire(ctx, fs.lockPath(sessionID, "io"), true)
	if err != nil {
		return err
	}
	defer fl.Unlock()

	if err := os.MkdirAll(fs.sessionDir(sessionID), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	writer, err := openJournalWriter(fs.journalPath(sessionID))
	if err != nil {
		return err
	}
	if err := writer.Write(obs); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	slog.Debug("Observation appended", "sessionID", sessionID, "y", obs.Y)
	return nil
}

// Clear removes the session directory and everything in it.
func (fs *FSStore) Clear(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	fl, err := fs.acquire(ctx, fs.lockPath(sessionID, "io"), true)
	if err != nil {
		return err
	}
	defer fl.Unlock()

	sessionDir := fs.sessionDir(sessionID)
	if _, err := os.Stat(fs.journalPath(sessionID)); os.IsNotExist(err) {
		return &NotFoundError{SessionID: sessionID}
	} else if err != nil {
		return fmt.Errorf("failed to stat journal: %w", err)
	}

	if err := os.RemoveAll(sessionDir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}

	slog.Debug("Session cleared", "sessionID", sessionID, "path", sessionDir)
	return nil
}

// List returns summaries for every session with a readable journal.
func (fs *FSStore) List(ctx context.Context) ([]SessionInfo, error) {
	sessionsDir := filepath.Join(fs.baseDir, "sessions")

	entries, err := os.ReadDir(sessionsDir)
	if os.IsNotExist(err) {
		// No sessions exist yet
		return []SessionInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	infos := []SessionInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sessionID := entry.Name()
		if ValidateSessionID(sessionID) != nil {
			continue
		}

		obs, err := fs.Load(ctx, sessionID)
		if err != nil {
			slog.Warn("Failed to load session for listing", "sessionID", sessionID, "error", err)
			continue
		}
		if len(obs) == 0 {
			continue
		}
		infos = append(infos, Summarize(sessionID, obs))
	}

	slog.Debug("Listed sessions", "count", len(infos))
	return infos, nil
}

// Lock takes the exclusive session lock shared by all processes using baseDir.
func (fs *FSStore) Lock(ctx context.Context, sessionID string) (UnlockFunc, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	fl, err := fs.acquire(ctx, fs.lockPath(sessionID, "session"), true)
	if err != nil {
		return nil, err
	}
	return fl.Unlock, nil
}

// Close is a no-op; every operation opens and closes its own files.
func (fs *FSStore) Close() error {
	return nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

var _ Store = (*FSStore)(nil)
