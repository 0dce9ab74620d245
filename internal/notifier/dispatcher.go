package notifier

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"albowatch/internal/bulletin"
	"albowatch/internal/transport"
	logx "albowatch/pkg/logx"
	"albowatch/pkg/tgui"
)

// Dispatcher delivers record alerts and heartbeats to one chat.
//
// It is safe for concurrent use, though the run pipeline calls it from a
// single goroutine.
type Dispatcher struct {
	mu sync.Mutex

	log    logx.Logger
	sender transport.Sender

	cfg     Config
	limiter *rate.Limiter
}

// New builds a dispatcher. A nil sender or a zero target yields a dispatcher
// whose sends return ErrDisabled.
func New(cfg Config, sender transport.Sender, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{sender: sender, log: log}
	d.applyLocked(cfg)
	return d
}

func (d *Dispatcher) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sender != nil && !d.cfg.Target.IsZero()
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	d.cfg = cfg
	// Token bucket: burst = rate per sec, so a short run of new records goes
	// out immediately.
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Notify sends the alert for r. It returns ErrDisabled when sending is not
// configured and *SendError when every attempt failed.
func (d *Dispatcher) Notify(ctx context.Context, r bulletin.Record) error {
	d.mu.Lock()
	base := d.cfg.ListingURL
	d.mu.Unlock()

	msg := FormatRecord(r, base)
	if err := d.send(ctx, msg); err != nil {
		var se *SendError
		if errors.As(err, &se) {
			se.RecordID = r.ID
		}
		return err
	}
	return nil
}

// Heartbeat sends the daily liveness message.
func (d *Dispatcher) Heartbeat(ctx context.Context, now time.Time) error {
	return d.send(ctx, FormatHeartbeat(now))
}

func (d *Dispatcher) send(ctx context.Context, msg tgui.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// config snapshot for this send
	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	sender := d.sender
	log := d.log
	d.mu.Unlock()

	if sender == nil || cfg.Target.IsZero() {
		return ErrDisabled
	}

	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		// Rate limit (honor cancellation).
		if err := lim.Wait(ctx); err != nil {
			return &SendError{Attempts: attempt - 1, Err: err}
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := msg.Send(callCtx, sender, cfg.Target)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts || ctx.Err() != nil {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return &SendError{Attempts: attempt, Err: lastErr}
		}
	}
	return &SendError{Attempts: attempt, Err: lastErr}
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	maxD := cfg.RetryMaxDelay
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
