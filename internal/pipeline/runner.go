package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"albowatch/internal/bulletin"
	"albowatch/internal/notifier"
	"albowatch/internal/storage"
	logx "albowatch/pkg/logx"
)

// Runner executes runs. It holds no state between runs beyond its
// collaborators; the history store is the only memory.
type Runner struct {
	fetch    Fetcher
	extract  Extractor
	classify Classifier
	notify   Notifier
	history  storage.HistoryStore
	log      logx.Logger
	now      func() time.Time
}

func New(f Fetcher, e Extractor, c Classifier, n Notifier, h storage.HistoryStore, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		fetch:    f,
		extract:  e,
		classify: c,
		notify:   n,
		history:  h,
		log:      log,
		now:      time.Now,
	}
}

// Run performs one pass. It never panics on collaborator errors; every
// failure is reflected in the returned report.
func (r *Runner) Run(ctx context.Context) (rep Report) {
	rep = Report{RunID: uuid.NewString(), StartedAt: r.now()}
	log := r.log.With(logx.String("run_id", rep.RunID))
	defer func() {
		rep.Duration = r.now().Sub(rep.StartedAt)
		r.logReport(log, &rep)
	}()

	// Fetching
	rep.Stage = StageFetching
	log.Debug("stage", logx.String("stage", string(rep.Stage)))
	doc, err := r.fetch.Fetch(ctx)
	if err != nil {
		return abort(rep, fmt.Errorf("fetch: %w", err))
	}

	// Extracting
	rep.Stage = StageExtracting
	log.Debug("stage", logx.String("stage", string(rep.Stage)), logx.Int("bytes", len(doc)))
	records, warn := r.extract.Extract(doc)
	if warn != nil {
		log.Warn("listing parse warning", logx.Err(warn))
	}
	rep.Seen = len(records)
	if len(records) == 0 {
		if warn != nil {
			return abort(rep, fmt.Errorf("%w: %w", ErrEmptyExtraction, warn))
		}
		return abort(rep, ErrEmptyExtraction)
	}

	// Diffing
	rep.Stage = StageDiffing
	log.Debug("stage", logx.String("stage", string(rep.Stage)), logx.Int("seen", rep.Seen))
	previous, err := r.history.Load(ctx)
	if err != nil {
		// Degrade to an empty history: every record is new.
		log.Warn("history unreadable, treating all records as new", logx.Err(err))
		previous = storage.NewSet()
	}
	fresh := storage.DiffNew(records, previous)
	rep.New = len(fresh)

	// Notifying
	rep.Stage = StageNotifying
	log.Debug("stage", logx.String("stage", string(rep.Stage)), logx.Int("history", previous.Len()), logx.Int("new", rep.New),
		logx.Strs("ids", bulletin.IDs(fresh)))
	for _, rec := range fresh {
		rep.Items = append(rep.Items, r.handle(ctx, log, rec, &rep))
	}

	// A run cut short by shutdown must not record records it never got to
	// deliver. Leaving history untouched re-evaluates them next time.
	if err := ctx.Err(); err != nil {
		return abort(rep, err)
	}

	// Committing
	rep.Stage = StageCommitting
	log.Debug("stage", logx.String("stage", string(rep.Stage)))
	if err := r.history.Commit(ctx, storage.SetOf(records)); err != nil {
		rep.Outcome = OutcomeCommitFailed
		rep.Err = err
		return rep
	}
	rep.Committed = true
	rep.Outcome = OutcomeCompleted
	rep.Stage = StageDone
	return rep
}

func (r *Runner) handle(ctx context.Context, log logx.Logger, rec bulletin.Record, rep *Report) ItemResult {
	item := ItemResult{ID: rec.ID, Verdict: r.classify.Explain(rec)}
	if !item.Verdict.Interesting() {
		rep.Ignored++
		log.Info("new record ignored",
			logx.String("id", rec.ID),
			logx.String("reason", item.Verdict.Reason()),
			logx.String("keyword", item.Verdict.Keyword),
			logx.String("department", item.Verdict.Department),
		)
		return item
	}

	err := r.notify.Notify(ctx, rec)
	if err != nil {
		rep.Failed++
		item.Err = err
		if errors.Is(err, notifier.ErrDisabled) {
			log.Warn("record not delivered, sending disabled", logx.String("id", rec.ID))
		} else {
			log.Error("record notification failed", logx.String("id", rec.ID), logx.Err(err))
		}
		return item
	}
	rep.Notified++
	item.Delivered = true
	log.Info("record notified", logx.String("id", rec.ID), logx.String("keyword", item.Verdict.Keyword))
	return item
}

func abort(rep Report, err error) Report {
	rep.Outcome = OutcomeAborted
	rep.Err = err
	return rep
}

func (r *Runner) logReport(log logx.Logger, rep *Report) {
	fields := []logx.Field{
		logx.String("outcome", string(rep.Outcome)),
		logx.String("stage", string(rep.Stage)),
		logx.Int("seen", rep.Seen),
		logx.Int("new", rep.New),
		logx.Int("notified", rep.Notified),
		logx.Int("ignored", rep.Ignored),
		logx.Int("failed", rep.Failed),
		logx.Bool("committed", rep.Committed),
		logx.Duration("took", rep.Duration),
	}
	switch rep.Outcome {
	case OutcomeCompleted:
		log.Info("run completed", fields...)
	case OutcomeAborted:
		log.Warn("run aborted", append(fields, logx.Err(rep.Err))...)
	default:
		log.Error("run finished without commit", append(fields, logx.Err(rep.Err))...)
	}
}
