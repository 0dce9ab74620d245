package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"albowatch/internal/bulletin"
	"albowatch/internal/notifier"
	"albowatch/internal/storage"
	logx "albowatch/pkg/logx"
)

type fakeFetcher struct {
	doc   string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context) (string, error) {
	f.calls++
	return f.doc, f.err
}

type fakeNotifier struct {
	sent []string
	fail map[string]error
	all  error
}

func (n *fakeNotifier) Notify(_ context.Context, r bulletin.Record) error {
	if n.all != nil {
		return n.all
	}
	if err := n.fail[r.ID]; err != nil {
		return err
	}
	n.sent = append(n.sent, r.ID)
	return nil
}

type failingStore struct {
	storage.HistoryStore
	commitErr error
	commits   int
}

func (s *failingStore) Commit(ctx context.Context, ids storage.Set) error {
	s.commits++
	if s.commitErr != nil {
		return s.commitErr
	}
	return s.HistoryStore.Commit(ctx, ids)
}

type row struct{ id, subject, requester, link string }

func listing(rows ...row) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="table_albo"><thead><tr><th>N.</th></tr></thead><tbody>`)
	for _, r := range rows {
		cell := r.subject
		if r.link != "" {
			cell = fmt.Sprintf(`<a href="%s">%s</a>`, r.link, r.subject)
		}
		fmt.Fprintf(&b, `<tr><td>%s</td><td>01/02/2026</td><td>%s</td><td>%s</td></tr>`, r.id, cell, r.requester)
	}
	b.WriteString(`</tbody></table></body></html>`)
	return b.String()
}

type harness struct {
	fetch  *fakeFetcher
	notify *fakeNotifier
	store  storage.HistoryStore
	runner *Runner
}

func newHarness(t *testing.T, doc string, history []string, keywords, departments []string) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "storia.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if history != nil {
		if err := st.Commit(context.Background(), storage.NewSet(history...)); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}
	h := &harness{
		fetch:  &fakeFetcher{doc: doc},
		notify: &fakeNotifier{},
		store:  st,
	}
	h.runner = New(h.fetch, bulletin.NewExtractor(""), bulletin.NewFilter(keywords, departments), h.notify, st, logx.Nop())
	return h
}

func (h *harness) history(t *testing.T) storage.Set {
	t.Helper()
	s, err := h.store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func TestRun_EndToEnd(t *testing.T) {
	doc := listing(
		row{id: "10", subject: "Avviso generico", requester: "AMMINISTRAZIONE"},
		row{id: "12", subject: "Concorso genetica", requester: "DIP. DARU – SCIENZE", link: "https://x"},
	)
	h := newHarness(t, doc, []string{"10", "11"}, []string{"genetica"}, []string{"DARU"})

	rep := h.runner.Run(context.Background())

	if rep.Outcome != OutcomeCompleted || !rep.Committed || rep.Stage != StageDone {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Seen != 2 || rep.New != 1 || rep.Notified != 1 || rep.Ignored != 0 || rep.Failed != 0 {
		t.Fatalf("counts = seen %d new %d notified %d ignored %d failed %d", rep.Seen, rep.New, rep.Notified, rep.Ignored, rep.Failed)
	}
	if len(h.notify.sent) != 1 || h.notify.sent[0] != "12" {
		t.Fatalf("sent = %v", h.notify.sent)
	}
	if got := h.history(t); !got.Equal(storage.NewSet("10", "12")) {
		t.Fatalf("history = %v, want [10 12]", got.Sorted())
	}
	if rep.RunID == "" {
		t.Fatal("missing run id")
	}
}

func TestRun_DepartmentMismatchIgnoredButCommitted(t *testing.T) {
	doc := listing(
		row{id: "10", subject: "Avviso", requester: "AMM"},
		row{id: "12", subject: "Concorso genetica", requester: "DIP. ASTRO", link: "https://x"},
	)
	h := newHarness(t, doc, []string{"10", "11"}, []string{"genetica"}, []string{"DARU"})

	rep := h.runner.Run(context.Background())

	if rep.Notified != 0 || rep.Ignored != 1 || len(h.notify.sent) != 0 {
		t.Fatalf("report = %+v sent = %v", rep, h.notify.sent)
	}
	if len(rep.Items) != 1 || rep.Items[0].Verdict.Reason() != "no_department_match" {
		t.Fatalf("items = %+v", rep.Items)
	}
	if got := h.history(t); !got.Equal(storage.NewSet("10", "12")) {
		t.Fatalf("history = %v, want [10 12]", got.Sorted())
	}
}

func TestRun_Idempotent(t *testing.T) {
	doc := listing(
		row{id: "12", subject: "Concorso genetica", requester: "DARU"},
		row{id: "13", subject: "genetica bis", requester: "DARU"},
	)
	h := newHarness(t, doc, nil, []string{"genetica"}, nil)

	first := h.runner.Run(context.Background())
	if first.Notified != 2 {
		t.Fatalf("first run notified %d, want 2", first.Notified)
	}
	before := h.history(t)

	second := h.runner.Run(context.Background())
	if second.New != 0 || second.Notified != 0 {
		t.Fatalf("second run = %+v", second)
	}
	if !second.Committed {
		t.Fatal("second run should still commit")
	}
	if len(h.notify.sent) != 2 {
		t.Fatalf("total sends = %d, want 2", len(h.notify.sent))
	}
	if got := h.history(t); !got.Equal(before) {
		t.Fatalf("history changed: %v -> %v", before.Sorted(), got.Sorted())
	}
}

func TestRun_EmptyExtractionDoesNotCommit(t *testing.T) {
	docs := map[string]string{
		"empty table": listing(),
		"no table":    `<html><body><p>manutenzione</p></body></html>`,
		"empty body":  "",
	}
	for name, doc := range docs {
		doc := doc
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, doc, []string{"10", "11"}, []string{"genetica"}, nil)

			rep := h.runner.Run(context.Background())

			if rep.Outcome != OutcomeAborted || rep.Committed || rep.Stage != StageExtracting {
				t.Fatalf("report = %+v", rep)
			}
			if !errors.Is(rep.Err, ErrEmptyExtraction) {
				t.Fatalf("err = %v", rep.Err)
			}
			if got := h.history(t); !got.Equal(storage.NewSet("10", "11")) {
				t.Fatalf("history = %v, want untouched [10 11]", got.Sorted())
			}
		})
	}
}

func TestRun_FetchFailureAborts(t *testing.T) {
	h := newHarness(t, "", []string{"10"}, []string{"genetica"}, nil)
	h.fetch.err = errors.New("connection refused")

	rep := h.runner.Run(context.Background())

	if rep.Outcome != OutcomeAborted || rep.Stage != StageFetching || rep.Committed {
		t.Fatalf("report = %+v", rep)
	}
	if len(h.notify.sent) != 0 {
		t.Fatalf("sent = %v", h.notify.sent)
	}
	if got := h.history(t); !got.Equal(storage.NewSet("10")) {
		t.Fatalf("history = %v", got.Sorted())
	}
}

func TestRun_SendFailureContinues(t *testing.T) {
	doc := listing(
		row{id: "20", subject: "genetica A", requester: "DARU"},
		row{id: "21", subject: "genetica B", requester: "DARU"},
		row{id: "22", subject: "genetica C", requester: "DARU"},
	)
	h := newHarness(t, doc, nil, []string{"genetica"}, []string{"DARU"})
	h.notify.fail = map[string]error{"21": &notifier.SendError{RecordID: "21", Err: errors.New("boom")}}

	rep := h.runner.Run(context.Background())

	if rep.Notified != 2 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if strings.Join(h.notify.sent, ",") != "20,22" {
		t.Fatalf("sent = %v", h.notify.sent)
	}
	if !rep.Committed {
		t.Fatal("send failure must not prevent commit")
	}
	if rep.Items[1].Delivered || rep.Items[1].Err == nil {
		t.Fatalf("item 21 = %+v", rep.Items[1])
	}
}

func TestRun_DisabledSendingStillCommits(t *testing.T) {
	doc := listing(row{id: "30", subject: "genetica", requester: "DARU"})
	h := newHarness(t, doc, nil, []string{"genetica"}, nil)
	h.notify.all = notifier.ErrDisabled

	rep := h.runner.Run(context.Background())

	if rep.Failed != 1 || !rep.Committed {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRun_CommitFailure(t *testing.T) {
	doc := listing(row{id: "40", subject: "genetica", requester: "DARU"})
	h := newHarness(t, doc, []string{"39"}, []string{"genetica"}, nil)
	fs := &failingStore{HistoryStore: h.store, commitErr: &storage.WriteError{Path: "x", Err: errors.New("disk full")}}
	h.runner = New(h.fetch, bulletin.NewExtractor(""), bulletin.NewFilter([]string{"genetica"}, nil), h.notify, fs, logx.Nop())

	rep := h.runner.Run(context.Background())

	if rep.Outcome != OutcomeCommitFailed || rep.Committed || rep.Stage != StageCommitting {
		t.Fatalf("report = %+v", rep)
	}
	var we *storage.WriteError
	if !errors.As(rep.Err, &we) {
		t.Fatalf("err = %v", rep.Err)
	}
	if rep.Notified != 1 {
		t.Fatalf("notified = %d", rep.Notified)
	}
	if got := h.history(t); !got.Equal(storage.NewSet("39")) {
		t.Fatalf("history = %v", got.Sorted())
	}
}

func TestRun_CancelledBeforeCommitLeavesHistory(t *testing.T) {
	doc := listing(row{id: "50", subject: "genetica", requester: "DARU"})
	h := newHarness(t, doc, []string{"49"}, []string{"genetica"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := h.runner.Run(ctx)

	if rep.Committed || rep.Outcome != OutcomeAborted {
		t.Fatalf("report = %+v", rep)
	}
	if got := h.history(t); !got.Equal(storage.NewSet("49")) {
		t.Fatalf("history = %v", got.Sorted())
	}
}

func TestRun_CorruptHistoryTreatsAllAsNew(t *testing.T) {
	doc := listing(
		row{id: "60", subject: "genetica", requester: "DARU"},
		row{id: "61", subject: "altro", requester: "DARU"},
	)
	h := newHarness(t, doc, nil, []string{"genetica"}, nil)
	h.runner.history = corruptStore{h.store}

	rep := h.runner.Run(context.Background())

	if rep.New != 2 || rep.Notified != 1 || rep.Ignored != 1 || !rep.Committed {
		t.Fatalf("report = %+v", rep)
	}
}

type corruptStore struct{ storage.HistoryStore }

func (corruptStore) Load(context.Context) (storage.Set, error) {
	return storage.Set{}, &storage.ReadError{Path: "storia.json", Err: errors.New("unexpected EOF")}
}
