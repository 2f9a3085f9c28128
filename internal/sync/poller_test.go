package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const wait = 2 * time.Second

// startPoller runs p in the background and returns a cancel func that
// waits for Run to return.
func startPoller(t *testing.T, p *Poller) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitRun(t *testing.T, runs <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-runs:
	case <-time.After(wait):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPollerRunsImmediatelyAndOnTrigger(t *testing.T) {
	runs := make(chan struct{}, 4)
	p := NewPoller(time.Hour, func(context.Context) error {
		runs <- struct{}{}
		return nil
	}, zerolog.Nop())

	cancel, done := startPoller(t, p)

	waitRun(t, runs, "the first run")
	p.Trigger()
	waitRun(t, runs, "the triggered run")

	waitFor(t, func() bool { return p.Status().Runs == 2 }, "two recorded runs")
	if st := p.Status(); st.State != SyncIdle || st.LastSync.IsZero() {
		t.Errorf("unexpected status: %+v", st)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(wait):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestPollerRunsOnInterval(t *testing.T) {
	runs := make(chan struct{}, 8)
	p := NewPoller(10*time.Millisecond, func(context.Context) error {
		runs <- struct{}{}
		return nil
	}, zerolog.Nop())

	startPoller(t, p)

	for i := 0; i < 3; i++ {
		waitRun(t, runs, "an interval run")
	}
}

func TestPollerKeepsRunningAfterTaskError(t *testing.T) {
	runs := make(chan struct{}, 4)
	boom := errors.New("imap: connection refused")
	p := NewPoller(time.Hour, func(context.Context) error {
		runs <- struct{}{}
		return boom
	}, zerolog.Nop())

	startPoller(t, p)

	waitRun(t, runs, "the first run")
	waitFor(t, func() bool { return p.Status().State == SyncError }, "the error state")
	if !errors.Is(p.Status().Error, boom) {
		t.Errorf("Status().Error = %v", p.Status().Error)
	}

	p.Trigger()
	waitRun(t, runs, "a run after the failure")
}

func TestPollerFinishesRunInProgress(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	taskErr := make(chan error, 1)

	p := NewPoller(time.Hour, func(ctx context.Context) error {
		close(started)
		<-release
		taskErr <- ctx.Err()
		return nil
	}, zerolog.Nop())

	cancel, done := startPoller(t, p)

	waitRun(t, started, "the run to start")
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while the task was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-taskErr; err != nil {
		t.Errorf("task context was cancelled: %v", err)
	}
	select {
	case <-done:
	case <-time.After(wait):
		t.Fatal("Run did not return after the task finished")
	}
	if runs := p.Status().Runs; runs != 1 {
		t.Errorf("Runs = %d, want 1", runs)
	}
}

func TestPollerRejectsSecondRun(t *testing.T) {
	runs := make(chan struct{}, 1)
	p := NewPoller(time.Hour, func(context.Context) error {
		select {
		case runs <- struct{}{}:
		default:
		}
		return nil
	}, zerolog.Nop())

	startPoller(t, p)
	waitRun(t, runs, "the first run")

	if err := p.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestNewPollerDefaultsInterval(t *testing.T) {
	p := NewPoller(0, func(context.Context) error { return nil }, zerolog.Nop())
	if p.interval != defaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, defaultInterval)
	}
}
