// Package supervisor runs the long-lived goroutines of watch mode: the
// initial run, the config watcher and the reload loop. Every goroutine is
// named, recovers from panics and stops with a shared context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "albowatch/pkg/logx"
)

// Supervisor owns a context and the goroutines started under it.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	cancelOnErr bool

	wg      sync.WaitGroup
	errMu   sync.Mutex
	err     error
	running atomic.Int64
	panics  atomic.Uint64
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError makes the first failing goroutine stop all the others.
func WithCancelOnError(on bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = on }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{}
	s.ctx, s.cancel = context.WithCancel(parent)
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Running is the number of goroutines that have not returned yet.
func (s *Supervisor) Running() int64 { return s.running.Load() }

// Panics counts recovered panics, restarts included.
func (s *Supervisor) Panics() uint64 { return s.panics.Load() }

// Err is the first goroutine failure, if any.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Go starts fn. A returned error or a panic is recorded under name;
// context cancellation is not a failure.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	s.running.Add(1)
	go func() {
		defer func() {
			s.running.Add(-1)
			s.wg.Done()
		}()
		log := s.log.With(logx.String("goroutine", name))
		log.Debug("started")
		err := s.call(log, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.record(fmt.Errorf("%s: %w", name, err))
		}
		log.Debug("stopped")
	}()
}

func (s *Supervisor) call(log logx.Logger, fn func(ctx context.Context) error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s.panics.Add(1)
		log.Error("panic recovered", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		err = fmt.Errorf("panic: %v", r)
	}()
	return fn(s.ctx)
}

func (s *Supervisor) record(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	if s.cancelOnErr {
		s.cancel()
	}
}

type restartPolicy struct {
	min, max time.Duration
	limit    int // 0 is unlimited
}

// RestartOption tunes GoRestart.
type RestartOption func(*restartPolicy)

// WithRestartBackoff bounds the doubling delay between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if min > 0 {
			p.min = min
		}
		if max > 0 {
			p.max = max
		}
	}
}

// WithMaxRestarts gives up after n restarts. The first run does not count.
func WithMaxRestarts(n int) RestartOption {
	return func(p *restartPolicy) { p.limit = max(0, n) }
}

// healthyRun is how long fn must survive for the backoff to start over.
const healthyRun = 30 * time.Second

// GoRestart is Go for loops that should survive their own failures: fn is
// run again after an error or panic until it returns nil or the context ends.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{min: 250 * time.Millisecond, max: 30 * time.Second}
	for _, o := range opts {
		o(&p)
	}
	p.max = max(p.max, p.min)

	s.Go(name, func(ctx context.Context) error {
		log := s.log.With(logx.String("goroutine", name))
		delay := p.min
		for restarts := 0; ; restarts++ {
			began := time.Now()
			err := s.call(log, fn)
			if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if p.limit > 0 && restarts >= p.limit {
				log.Error("giving up", logx.Int("restarts", restarts), logx.Err(err))
				return err
			}
			if time.Since(began) >= healthyRun {
				delay = p.min
			}
			wait := delay + rand.N(delay/5+1)
			log.Warn("restarting", logx.Duration("after", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			delay = min(2*delay, p.max)
		}
	})
}

// Stop cancels the context and waits like Wait.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine returned, then reports Err. It returns
// ctx.Err() if ctx ends first.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
