package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "albowatch/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// sqliteStore keeps history in one table. Commit swaps the whole table
// content inside a single transaction, so a crash rolls back to the
// previous set.
//
// A database that cannot be migrated (not a SQLite file, damaged header)
// does not fail Open: Load reports it as a *ReadError and the next Commit
// moves the bad file aside and starts a fresh database.
type sqliteStore struct {
	path string
	busy time.Duration
	log  logx.Logger

	mu     sync.Mutex
	db     *sql.DB
	broken error
}

func openSQLite(cfg Config, log logx.Logger) (HistoryStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	st := &sqliteStore{path: path, busy: busy, log: log}
	if err := st.connect(); err != nil {
		st.broken = err
		log.Warn("history database unusable; next commit recreates it",
			logx.String("path", path), logx.Err(err))
	}
	return st, nil
}

// connect opens the database and applies the schema. On failure s.db is
// left nil.
func (s *sqliteStore) connect() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", s.busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	s.db = db
	return nil
}

// quarantine renames the unusable database (and its WAL files) to
// "<path>.corrupt-<unix>" and connects to a fresh one.
func (s *sqliteStore) quarantine() error {
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(s.path + suffix)
	}
	if err := s.connect(); err != nil {
		return err
	}
	s.log.Warn("unusable history database moved aside",
		logx.String("path", s.path), logx.String("moved_to", aside))
	s.broken = nil
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqliteStore) Load(ctx context.Context) (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return Set{}, &ReadError{Path: s.path, Err: s.broken}
	}
	if s.db == nil {
		return Set{}, &ReadError{Path: s.path, Err: ErrClosed}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM history`)
	if err != nil {
		return Set{}, &ReadError{Path: s.path, Err: err}
	}
	defer rows.Close()

	out := Set{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Set{}, &ReadError{Path: s.path, Err: err}
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return Set{}, &ReadError{Path: s.path, Err: err}
	}
	return out, nil
}

func (s *sqliteStore) Commit(ctx context.Context, ids Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		if err := s.quarantine(); err != nil {
			return &WriteError{Path: s.path, Err: err}
		}
	}
	if s.db == nil {
		return &WriteError{Path: s.path, Err: ErrClosed}
	}
	if err := s.commit(ctx, ids); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	s.log.Debug("history committed", logx.String("path", s.path), logx.Int("ids", ids.Len()))
	return nil
}

func (s *sqliteStore) commit(ctx context.Context, ids Set) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO history(id) VALUES(?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids.Sorted() {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
