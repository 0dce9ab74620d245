package storage

import (
	"errors"
	"sort"
	"time"

	"albowatch/internal/bulletin"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON file (default when empty)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Set is an unordered set of listing ids.
type Set map[string]struct{}

// NewSet builds a set from ids; duplicates collapse.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// SetOf collects the ids of records.
func SetOf(records []bulletin.Record) Set {
	s := make(Set, len(records))
	for _, r := range records {
		s[r.ID] = struct{}{}
	}
	return s
}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Len() int { return len(s) }

// Sorted returns the ids in lexical order, for stable serialisation.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// DiffNew returns the records whose id is not in previous, in current's order.
func DiffNew(current []bulletin.Record, previous Set) []bulletin.Record {
	var out []bulletin.Record
	for _, r := range current {
		if !previous.Has(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// ReadError means stored history could not be read. Callers degrade to an
// empty history (everything looks new) rather than failing the run.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return "storage: read " + e.Path + ": " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError means a commit did not happen. The previous history is intact.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return "storage: commit " + e.Path + ": " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }
