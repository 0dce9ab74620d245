package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"albowatch/internal/bulletin"
	logx "albowatch/pkg/logx"
)

func openTestStore(t *testing.T, driver string) (HistoryStore, string) {
	t.Helper()
	name := "storia.json"
	if driver == "sqlite" {
		name = "history.db"
	}
	path := filepath.Join(t.TempDir(), name)
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestStoreRoundTrip(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st, _ := openTestStore(t, driver)

			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load on fresh store: %v", err)
			}
			if got.Len() != 0 {
				t.Fatalf("expected empty history, got %v", got.Sorted())
			}

			if err := st.Commit(ctx, NewSet("10", "11", "11")); err != nil {
				t.Fatalf("Commit: %v", err)
			}
			got, err = st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !got.Equal(NewSet("10", "11")) {
				t.Fatalf("Load = %v, want [10 11]", got.Sorted())
			}

			// Full replace: ids missing from the new set are forgotten.
			if err := st.Commit(ctx, NewSet("10", "12")); err != nil {
				t.Fatalf("Commit: %v", err)
			}
			got, _ = st.Load(ctx)
			if !got.Equal(NewSet("10", "12")) {
				t.Fatalf("Load after replace = %v, want [10 12]", got.Sorted())
			}

			// Re-committing the same set is harmless.
			if err := st.Commit(ctx, NewSet("10", "12")); err != nil {
				t.Fatalf("idempotent Commit: %v", err)
			}
			got, _ = st.Load(ctx)
			if !got.Equal(NewSet("10", "12")) {
				t.Fatalf("Load after re-commit = %v", got.Sorted())
			}
		})
	}
}

func TestFileStoreReadsLegacyFormat(t *testing.T) {
	st, path := openTestStore(t, "file")
	if err := os.WriteFile(path, []byte(`["31", "30", "29"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(NewSet("29", "30", "31")) {
		t.Fatalf("Load = %v", got.Sorted())
	}
}

func TestFileStoreCorruptDegradesToEmpty(t *testing.T) {
	tests := map[string]string{
		"truncated":  `["10","1`,
		"wrong type": `{"ids": ["10"]}`,
		"binary":     "\x00\x01\x02",
	}
	for name, content := range tests {
		content := content
		t.Run(name, func(t *testing.T) {
			st, path := openTestStore(t, "file")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := st.Load(context.Background())
			var re *ReadError
			if !errors.As(err, &re) {
				t.Fatalf("expected *ReadError, got %v", err)
			}
			if got == nil || got.Len() != 0 {
				t.Fatalf("corrupt history must load as empty set, got %v", got)
			}
		})
	}
}

func TestSQLiteStoreCorruptDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")
	garbage := []byte("this is not a sqlite database, just some bytes long enough to fill a header")
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open on corrupt database: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	got, err := st.Load(ctx)
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("expected *ReadError, got %v", err)
	}
	if got == nil || got.Len() != 0 {
		t.Fatalf("corrupt history must load as empty set, got %v", got)
	}

	if err := st.Commit(ctx, NewSet("10", "12")); err != nil {
		t.Fatalf("Commit after corrupt load: %v", err)
	}
	got, err = st.Load(ctx)
	if err != nil {
		t.Fatalf("Load after recreate: %v", err)
	}
	if !got.Equal(NewSet("10", "12")) {
		t.Fatalf("Load = %v, want [10 12]", got.Sorted())
	}

	aside, _ := filepath.Glob(path + ".corrupt-*")
	if len(aside) != 1 {
		t.Fatalf("expected the bad file moved aside, found %v", aside)
	}
	if b, _ := os.ReadFile(aside[0]); string(b) != string(garbage) {
		t.Fatalf("moved-aside file content changed: %q", b)
	}
}

func TestFileStoreCommitLeavesNoTempFiles(t *testing.T) {
	st, path := openTestStore(t, "file")
	if err := st.Commit(context.Background(), NewSet("b", "a")); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != filepath.Base(path) {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected files after commit: %v", names)
	}
	b, _ := os.ReadFile(path)
	if string(b) != `["a","b"]` {
		t.Fatalf("file content = %s", b)
	}
}

func TestFileStoreCommitFailureKeepsPreviousState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storia.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := st.Commit(ctx, NewSet("10")); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// A directory squatting on the target makes the rename fail.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	err = st.Commit(ctx, NewSet("11"))
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis", Path: filepath.Join(t.TempDir(), "x")}, logx.Nop())
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestDiffNew(t *testing.T) {
	t.Parallel()
	current := []bulletin.Record{{ID: "12"}, {ID: "10"}, {ID: "14"}, {ID: "11"}}
	tests := []struct {
		name     string
		previous Set
		want     []string
	}{
		{name: "empty history", previous: NewSet(), want: []string{"12", "10", "14", "11"}},
		{name: "partial overlap", previous: NewSet("10", "11", "99"), want: []string{"12", "14"}},
		{name: "all seen", previous: NewSet("10", "11", "12", "14"), want: []string{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bulletin.IDs(DiffNew(current, tt.previous))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("DiffNew = %v, want %v", got, tt.want)
			}
		})
	}
}
