package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"
)

// SyncState represents the current state of the poller.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// SyncStatus holds the outcome of the most recent run.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Runs     int
	Error    error
}

// Task is one unit of polled work.
type Task func(ctx context.Context) error

// defaultInterval applies when the configured interval is not positive.
const defaultInterval = 5 * time.Minute

// Poller runs a task immediately and then once per interval until its
// context is cancelled. A run always completes before the next one starts,
// and cancellation is only observed while waiting, so a run in progress is
// never cut short.
type Poller struct {
	interval  time.Duration
	task      Task
	log       zerolog.Logger
	triggerCh chan struct{}

	mu      gosync.Mutex
	status  SyncStatus
	running bool
}

// NewPoller creates a poller for task.
func NewPoller(interval time.Duration, task Task, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Poller{
		interval:  interval,
		task:      task,
		log:       log,
		triggerCh: make(chan struct{}, 1),
	}
}

// ErrAlreadyRunning is returned by Run when the poller is already running.
var ErrAlreadyRunning = errors.New("poller already running")

// Run executes the polling loop until ctx is cancelled. It returns nil on
// cancellation; task errors are logged and never stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.log.Info().Dur("interval", p.interval).Msg("Starting task execution...")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("Exiting task...")
			return nil
		case <-timer.C:
		case <-p.triggerCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if ctx.Err() != nil {
			p.log.Info().Msg("Exiting task...")
			return nil
		}

		p.runOnce(ctx)
		timer.Reset(p.interval)
	}
}

// Trigger requests an immediate run. Requests made while one is already
// pending are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the outcome of the most recent run.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// runOnce executes the task once and records its outcome. The task gets a
// context detached from cancellation so shutdown waits for it to finish.
func (p *Poller) runOnce(ctx context.Context) {
	p.setState(SyncRunning, nil)
	p.log.Debug().Msg("Executing repeated task action...")

	err := p.task(context.WithoutCancel(ctx))
	if err != nil {
		p.log.Error().Err(err).Msg("Repeated task action failed")
		p.setState(SyncError, err)
		return
	}

	p.log.Debug().Msg("Executed repeated task action successfully")
	p.setState(SyncIdle, nil)
}

// setState records a state change.
func (p *Poller) setState(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state != SyncRunning {
		p.status.Runs++
	}
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
	}
}
