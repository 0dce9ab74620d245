package storage

import (
	"context"
	"errors"
	"strings"

	logx "albowatch/pkg/logx"
)

// HistoryStore is the persistence API used by the run pipeline.
type HistoryStore interface {
	// Load returns the stored ids. With no prior state it returns an empty
	// set and nil. With unreadable state it returns an empty set and a
	// *ReadError.
	Load(ctx context.Context) (Set, error)
	// Commit atomically replaces the stored ids with exactly ids.
	// Failures are reported as *WriteError.
	Commit(ctx context.Context, ids Set) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (HistoryStore, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: history path is required")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("storage: unknown driver: " + driver)
	}
}
