package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGo_RecoversPanic(t *testing.T) {
	s := New(context.Background())
	s.Go("boom", func(context.Context) error { panic("kaboom") })

	err := s.Wait(waitCtx(t))
	if err == nil || !strings.Contains(err.Error(), "boom: panic: kaboom") {
		t.Fatalf("Wait err = %v", err)
	}
	if s.Panics() != 1 || s.Running() != 0 {
		t.Fatalf("panics = %d, running = %d", s.Panics(), s.Running())
	}
}

func TestGo_CancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Go("failer", func(context.Context) error { return errors.New("bad") })

	err := s.Wait(waitCtx(t))
	if err == nil || !strings.Contains(err.Error(), "failer: bad") {
		t.Fatalf("Wait err = %v", err)
	}
}

func TestGoRestart_RestartsUntilSuccess(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if runs.Load() != 3 {
		t.Fatalf("runs = %d, want 3", runs.Load())
	}
}

func TestGoRestart_GivesUp(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("broken", func(context.Context) error {
		runs.Add(1)
		panic("always")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	err := s.Wait(waitCtx(t))
	if err == nil {
		t.Fatal("expected error after giving up")
	}
	if runs.Load() != 3 {
		t.Fatalf("runs = %d, want 3 (1 + 2 restarts)", runs.Load())
	}
}

func TestStop_CancelsLoops(t *testing.T) {
	s := New(context.Background())
	s.GoRestart("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
