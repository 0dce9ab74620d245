// Package storage persists the history: the set of listing ids seen by the
// last successful run.
//
// History is a set, not a log. Commit replaces it wholesale with the ids of
// the current extraction, so entries that vanish from the live listing are
// forgotten too. Commits are atomic: a crash mid-write leaves the previous
// state readable, never a truncated one.
//
// Drivers:
//   - "file": a JSON array of ids, replaced via temp file + rename (default)
//   - "sqlite": a single-table SQLite database replaced in one transaction
package storage
