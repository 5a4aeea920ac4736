package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS observations (
    session_id   TEXT NOT NULL,
    seq          INTEGER NOT NULL,
    x            BLOB NOT NULL,
    y            REAL NOT NULL,
    space        TEXT NOT NULL,
    manual       BLOB,
    auto         BLOB,
    recorded_at  TEXT NOT NULL,
    PRIMARY KEY (session_id, seq)
);
`

// SQLiteStore keeps every session in one SQLite database file.
// Vectors are stored as little-endian float64 BLOBs.
type SQLiteStore struct {
	db          *sql.DB
	path        string
	lockTimeout time.Duration
	locks       sessionLocks
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string, lockTimeout time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	return &SQLiteStore{db: db, path: path, lockTimeout: lockTimeout}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) ([]Observation, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, x, y, space, manual, auto, recorded_at
		FROM observations WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	obs := []Observation{}
	for rows.Next() {
		var (
			seq                 int
			xBlob, mBlob, aBlob []byte
			o                   Observation
			recordedAt          string
		)
		if err := rows.Scan(&seq, &xBlob, &o.Y, &o.Space, &mBlob, &aBlob, &recordedAt); err != nil {
			return nil, &CorruptHistoryError{SessionID: sessionID, Line: len(obs) + 1, Err: err}
		}
		if o.X, err = decodeVector(xBlob); err != nil {
			return nil, &CorruptHistoryError{SessionID: sessionID, Line: seq, Err: err}
		}
		if o.Manual, err = decodeVector(mBlob); err != nil {
			return nil, &CorruptHistoryError{SessionID: sessionID, Line: seq, Err: err}
		}
		if o.Auto, err = decodeVector(aBlob); err != nil {
			return nil, &CorruptHistoryError{SessionID: sessionID, Line: seq, Err: err}
		}
		if o.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, &CorruptHistoryError{SessionID: sessionID, Line: seq, Err: err}
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	if err := checkHistory(sessionID, obs); err != nil {
		return nil, err
	}
	return obs, nil
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, obs Observation) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := obs.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var last int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM observations WHERE session_id = ?`, sessionID,
	).Scan(&last); err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO observations (session_id, seq, x, y, space, manual, auto, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, last+1,
		encodeVector(obs.X), obs.Y, obs.Space,
		encodeVector(obs.Manual), encodeVector(obs.Auto),
		obs.RecordedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Debug("Observation appended", "sessionID", sessionID, "seq", last+1, "y", obs.Y)
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete observations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &NotFoundError{SessionID: sessionID}
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT session_id FROM observations ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	infos := []SessionInfo{}
	for _, id := range ids {
		obs, err := s.Load(ctx, id)
		if err != nil {
			slog.Warn("Failed to load session for listing", "sessionID", id, "error", err)
			continue
		}
		infos = append(infos, Summarize(id, obs))
	}
	return infos, nil
}

// Lock serializes sessions in-process, and across processes through an
// advisory lock file next to the database when it lives on disk.
func (s *SQLiteStore) Lock(ctx context.Context, sessionID string) (UnlockFunc, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	unlock, err := s.locks.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.path == ":memory:" || s.path == "" {
		return unlock, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	fl := flock.New(s.path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		unlock()
		if err == nil {
			err = fmt.Errorf("timed out")
		}
		return nil, fmt.Errorf("failed to lock database: %w", err)
	}
	return func() error {
		ferr := fl.Unlock()
		unlock()
		return ferr
	}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float64) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float64, error) {
	if b == nil {
		return nil, nil
	}
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("vector blob has %d bytes, not a multiple of 8", len(b))
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v, nil
}

var _ Store = (*SQLiteStore)(nil)
