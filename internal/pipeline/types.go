// Package pipeline runs one monitoring pass: fetch the listing, extract
// records, diff against history, notify interesting new records and commit
// the current id set.
package pipeline

import (
	"context"
	"errors"
	"time"

	"albowatch/internal/bulletin"
)

// Stage is a step of a run.
type Stage string

const (
	StageFetching   Stage = "fetching"
	StageExtracting Stage = "extracting"
	StageDiffing    Stage = "diffing"
	StageNotifying  Stage = "notifying"
	StageCommitting Stage = "committing"
	StageDone       Stage = "done"
)

// Outcome summarizes how a run ended.
type Outcome string

const (
	// OutcomeCompleted: history was committed.
	OutcomeCompleted Outcome = "completed"
	// OutcomeAborted: the run stopped before committing; history is unchanged.
	OutcomeAborted Outcome = "aborted"
	// OutcomeCommitFailed: notifications may have gone out but history was
	// not updated, so the same records will be evaluated again next run.
	OutcomeCommitFailed Outcome = "commit_failed"
)

var (
	// ErrEmptyExtraction aborts a run whose listing yielded no records.
	ErrEmptyExtraction = errors.New("listing produced no records")
)

// Fetcher returns the raw listing document.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Extractor turns a document into records. A non-nil error is a warning and
// comes with an empty slice.
type Extractor interface {
	Extract(document string) ([]bulletin.Record, error)
}

// Classifier decides whether a record is worth a notification.
type Classifier interface {
	Explain(r bulletin.Record) bulletin.Verdict
}

// Notifier delivers one record alert.
type Notifier interface {
	Notify(ctx context.Context, r bulletin.Record) error
}

// ItemResult is the per-record outcome for a new record.
type ItemResult struct {
	ID        string
	Verdict   bulletin.Verdict
	Delivered bool
	Err       error
}

// Report is the final account of a run.
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Seen     int // records extracted
	New      int // records not in history
	Notified int // interesting and delivered
	Ignored  int // new but not interesting
	Failed   int // interesting but not delivered

	Committed bool
	Outcome   Outcome
	// Stage is where the run ended: StageDone, or the stage that aborted.
	Stage Stage
	Err   error

	Items []ItemResult
}

// OK reports whether history was committed.
func (r Report) OK() bool { return r.Outcome == OutcomeCompleted }
