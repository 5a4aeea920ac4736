package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS bayestune_observations (
    session_id   TEXT NOT NULL,
    seq          INTEGER NOT NULL,
    x            DOUBLE PRECISION[] NOT NULL,
    y            DOUBLE PRECISION NOT NULL,
    space        TEXT NOT NULL,
    manual       DOUBLE PRECISION[],
    auto         DOUBLE PRECISION[],
    recorded_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (session_id, seq)
);
`

// Advisory lock classes; the session id hash is the second key.
const (
	pgLockAppend  = 1
	pgLockSession = 2
)

// PostgresStore keeps histories in a shared PostgreSQL database, so
// several hosts can drive the same sessions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) ([]Observation, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT seq, x, y, space, manual, auto, recorded_at
		FROM bayestune_observations WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	obs := []Observation{}
	for rows.Next() {
		var seq int
		var o Observation
		if err := rows.Scan(&seq, &o.X, &o.Y, &o.Space, &o.Manual, &o.Auto, &o.RecordedAt); err != nil {
			return nil, &CorruptHistoryError{SessionID: sessionID, Line: len(obs) + 1, Err: err}
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

func (s *PostgresStore) Append(ctx context.Context, sessionID string, obs Observation) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := obs.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize sequence allocation per session
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, pgLockAppend, sessionID); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}

	var last int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM bayestune_observations WHERE session_id = $1`, sessionID,
	).Scan(&last); err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bayestune_observations (session_id, seq, x, y, space, manual, auto, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sessionID, last+1, obs.X, obs.Y, obs.Space, obs.Manual, obs.Auto, obs.RecordedAt,
	); err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Debug("Observation appended", "sessionID", sessionID, "seq", last+1, "y", obs.Y)
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM bayestune_observations WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete observations: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{SessionID: sessionID}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (session_id)
		       session_id,
		       COUNT(*) OVER (PARTITION BY session_id),
		       MIN(y) OVER (PARTITION BY session_id),
		       space,
		       recorded_at
		FROM bayestune_observations
		ORDER BY session_id, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	infos := []SessionInfo{}
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.SessionID, &info.Observations, &info.BestY, &info.Space, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return infos, nil
}

// Lock holds a session-level advisory lock on a dedicated connection
// until the returned function is called.
func (s *PostgresStore) Lock(ctx context.Context, sessionID string) (UnlockFunc, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1, hashtext($2))`, pgLockSession, sessionID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock session: %w", err)
	}

	return func() error {
		defer conn.Release()
		_, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1, hashtext($2))`, pgLockSession, sessionID)
		return err
	}, nil
}

var _ Store = (*PostgresStore)(nil)
