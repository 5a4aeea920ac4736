package store

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by Open.
const (
	BackendFS       = "fs"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend     string
	Dir         string
	SQLitePath  string
	PostgresURL string
	LockTimeout time.Duration
}

// Open creates the Store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFS, "":
		s, err := NewFSStore(opts.Dir, opts.LockTimeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		s, err := NewSQLiteStore(opts.SQLitePath, opts.LockTimeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		if opts.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires a database URL")
		}
		s, err := NewPostgresStore(ctx, opts.PostgresURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}
