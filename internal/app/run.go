package app

import (
	"context"
	"errors"
	"fmt"

	"albowatch/internal/pipeline"
	"albowatch/internal/runlock"
	logx "albowatch/pkg/logx"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitConfig       = 1
	ExitAborted      = 2
	ExitCommitFailed = 3
)

// Result is the outcome of one invocation.
type Result struct {
	Report pipeline.Report
	// Skipped is set when another run held the lock; nothing was touched.
	Skipped bool
	// HeartbeatSent is set when the daily liveness message went out.
	HeartbeatSent bool
}

// ExitCode maps the result to the process exit status.
func (r Result) ExitCode() int {
	if r.Skipped {
		return ExitOK
	}
	switch r.Report.Outcome {
	case pipeline.OutcomeCompleted:
		return ExitOK
	case pipeline.OutcomeCommitFailed:
		return ExitCommitFailed
	default:
		return ExitAborted
	}
}

// RunOnce performs a single monitoring pass under the history lock: the
// heartbeat check first, then the pipeline.
func (a *App) RunOnce(ctx context.Context) Result {
	lock, err := runlock.Acquire(a.lockPath)
	if errors.Is(err, runlock.ErrLocked) {
		a.log.Info("another run is in progress; skipping", logx.String("lock", a.lockPath))
		return Result{Skipped: true}
	}
	if err != nil {
		a.log.Error("run lock failed", logx.String("lock", a.lockPath), logx.Err(err))
		return Result{Report: pipeline.Report{
			Outcome: pipeline.OutcomeAborted,
			Err:     fmt.Errorf("run lock: %w", err),
		}}
	}
	a.log.Debug("run lock acquired", logx.String("lock", lock.Path()))
	defer func() {
		if err := lock.Release(); err != nil {
			a.log.Warn("run lock release failed", logx.String("lock", lock.Path()), logx.Err(err))
		}
	}()

	var res Result
	if hb := a.currentBeat(); hb != nil {
		sent, err := hb.Tick(ctx, a.now())
		if err != nil {
			a.log.Warn("heartbeat failed", logx.Err(err))
		}
		res.HeartbeatSent = sent
	}

	res.Report = a.runner.Run(ctx)
	return res
}
