package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State of the background refresh.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// RefreshFunc rebuilds the catalog.
type RefreshFunc func(ctx context.Context) error

// Status is a snapshot of the refresher.
type Status struct {
	State     State     `json:"state"`
	RunID     string    `json:"run_id,omitempty"`
	Runs      int       `json:"runs"`
	Pending   bool      `json:"pending"`
	LastStart time.Time `json:"last_start,omitempty"`
	LastEnd   time.Time `json:"last_end,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Refresher runs RefreshFunc on a single worker. Triggers that arrive while a
// run is in flight collapse into one follow-up run.
type Refresher struct {
	fn       RefreshFunc
	interval time.Duration
	trigger  chan struct{}
	logger   *slog.Logger

	mu     sync.Mutex
	status Status
}

// NewRefresher creates a refresher. interval <= 0 disables the ticker.
func NewRefresher(fn RefreshFunc, interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		fn:       fn,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger,
		status:   Status{State: StateIdle},
	}
}

// Trigger requests a run. It reports false when a run is already pending.
func (r *Refresher) Trigger() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case r.trigger <- struct{}{}:
		r.status.Pending = true
		return true
	default:
		return false
	}
}

// Run is the worker loop. It returns when ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	var tick <-chan time.Time
	if r.interval > 0 {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			r.runOnce(ctx, "timer")
		case <-r.trigger:
			r.mu.Lock()
			r.status.Pending = false
			r.mu.Unlock()
			r.runOnce(ctx, "trigger")
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context, reason string) {
	runID := uuid.NewString()
	start := time.Now()

	r.mu.Lock()
	r.status.State = StateRunning
	r.status.RunID = runID
	r.status.LastStart = start
	r.mu.Unlock()

	logger := r.logger.With("run_id", runID, "reason", reason)
	logger.Info("refresh started")

	err := r.call(ctx)

	r.mu.Lock()
	r.status.State = StateIdle
	r.status.Runs++
	r.status.LastEnd = time.Now()
	r.status.LastError = ""
	if err != nil {
		r.status.LastError = err.Error()
	}
	r.mu.Unlock()

	if err != nil {
		logger.Error("refresh failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Info("refresh finished", "duration", time.Since(start))
}

func (r *Refresher) call(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("refresh panicked: %v", p)
		}
	}()
	return r.fn(ctx)
}

// Status returns a snapshot of the refresher state.
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}
