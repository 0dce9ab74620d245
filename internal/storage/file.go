package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "albowatch/pkg/logx"
)

// fileStore keeps history as a single JSON array of ids:
//
//	["10","11","12"]
//
// This is the same shape the first version of the tool wrote, so an old
// history file is picked up as-is. Commit writes a temp file in the same
// directory, fsyncs it and renames it over the target.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (HistoryStore, error) {
	path := filepath.Clean(strings.TrimSpace(cfg.Path))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) Load(ctx context.Context) (Set, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Set{}, &ReadError{Path: s.path, Err: ErrClosed}
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Set{}, nil
	}
	if err != nil {
		return Set{}, &ReadError{Path: s.path, Err: err}
	}

	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return Set{}, &ReadError{Path: s.path, Err: fmt.Errorf("decode: %w", err)}
	}
	return NewSet(ids...), nil
}

func (s *fileStore) Commit(ctx context.Context, ids Set) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &WriteError{Path: s.path, Err: ErrClosed}
	}

	b, err := json.Marshal(ids.Sorted())
	if err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, b, 0o644); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	s.log.Debug("history committed", logx.String("path", s.path), logx.Int("ids", ids.Len()))
	return nil
}

// writeFileAtomic replaces path with data so that readers observe either the
// old content or the new one, never a prefix.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	committed = true

	// Persist the rename itself. Not every platform lets you fsync a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
