// Package heartbeat sends a daily "still alive" message.
//
// The process is started periodically by an outside scheduler (or by watch
// mode), so there is no timer here: each run asks whether it falls inside
// the window that opens at a cron fire time, and sends if so.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "albowatch/pkg/logx"
)

// Sender delivers the liveness message.
type Sender interface {
	Heartbeat(ctx context.Context, now time.Time) error
}

type Config struct {
	Enabled  bool
	Schedule string // 5-field cron, e.g. "0 6 * * *"
	Window   time.Duration
	Location *time.Location
}

// Heartbeat decides when a liveness message is due. Within one process the
// same fire slot is only sent once.
type Heartbeat struct {
	cfg    Config
	sched  cron.Schedule
	sender Sender
	log    logx.Logger

	mu   sync.Mutex
	last time.Time
}

func New(cfg Config, sender Sender, log logx.Logger) (*Heartbeat, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	h := &Heartbeat{cfg: cfg, sender: sender, log: log}
	if !cfg.Enabled {
		return h, nil
	}
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("heartbeat schedule %q: %w", cfg.Schedule, err)
	}
	h.sched = sched
	return h, nil
}

// Due reports whether now falls in [fire, fire+window) for some fire time
// of the schedule, and returns that fire time.
func (h *Heartbeat) Due(now time.Time) (time.Time, bool) {
	if h == nil || !h.cfg.Enabled || h.sched == nil {
		return time.Time{}, false
	}
	local := now.In(h.cfg.Location)
	// Next is strictly after its argument, so this finds a fire time in
	// (now-window, now+...]; it is due when that time is not in the future.
	fire := h.sched.Next(local.Add(-h.cfg.Window))
	if fire.After(local) {
		return time.Time{}, false
	}
	return fire, true
}

// Tick sends the heartbeat if one is due and not yet sent for this slot.
func (h *Heartbeat) Tick(ctx context.Context, now time.Time) (bool, error) {
	fire, ok := h.Due(now)
	if !ok {
		return false, nil
	}

	h.mu.Lock()
	already := h.last.Equal(fire)
	h.mu.Unlock()
	if already {
		return false, nil
	}
	if h.sender == nil {
		return false, errors.New("heartbeat: no sender")
	}

	if err := h.sender.Heartbeat(ctx, now.In(h.cfg.Location)); err != nil {
		return false, err
	}
	h.mu.Lock()
	h.last = fire
	h.mu.Unlock()
	h.log.Info("heartbeat sent", logx.Time("slot", fire))
	return true, nil
}
