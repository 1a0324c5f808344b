package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/sos-engine/internal/logger"
)

// Callback is invoked when an alert's timer fires.
type Callback func(ctx context.Context, alertID string) error

// timer is a single armed deadline.
type timer struct {
	// gen identifies this arming among all armings of the scheduler.
	gen uint64
	// t is the underlying runtime timer.
	t *time.Timer
	// mu is held for the whole callback execution and by cancel.
	mu sync.Mutex
	// fired is set once the callback has run.
	fired bool
	// cancelled is set by cancel and checked before the callback runs.
	cancelled bool
}

// cancel prevents the callback from running, waiting for an in-flight run.
// It reports whether the timer was still pending.
func (t *timer) cancel() bool {
	t.t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	pending := !t.fired && !t.cancelled
	t.cancelled = true

	return pending
}

// Scheduler arms cancellable per-alert timers.
type Scheduler struct {
	// ctx is passed to callbacks.
	ctx context.Context //nolint:containedctx // Callbacks outlive the arming request.
	// mu protects timers, gen and stopped.
	mu sync.Mutex
	// timers holds the outstanding timer of each alert.
	timers map[string]*timer
	// gen is the last issued generation.
	gen uint64
	// stopped rejects new armings after Stop.
	stopped bool
}

// NewScheduler creates a scheduler whose callbacks receive ctx.
func NewScheduler(ctx context.Context) *Scheduler {
	return &Scheduler{
		ctx:    logger.WithName(ctx, "escalation"),
		timers: make(map[string]*timer),
	}
}

// Arm schedules callback for alertID after the given delay.
// An already armed timer for the same alert is replaced.
func (s *Scheduler) Arm(alertID string, after time.Duration, callback Callback) {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()

		return
	}

	s.gen++
	t := &timer{gen: s.gen}
	previous := s.timers[alertID]
	s.timers[alertID] = t
	t.t = time.AfterFunc(after, func() { s.fire(alertID, t, callback) })

	s.mu.Unlock()

	if previous != nil {
		previous.cancel()
	}

	logger.DebugKV(s.ctx, "Escalation armed", "alert_id", alertID, "after", after, "generation", t.gen)
}

// Disarm cancels the timer of alertID. If the callback is running, Disarm waits for it.
// It reports whether a pending timer was cancelled.
func (s *Scheduler) Disarm(alertID string) bool {
	s.mu.Lock()
	t := s.timers[alertID]
	delete(s.timers, alertID)
	s.mu.Unlock()

	if t == nil {
		return false
	}

	return t.cancel()
}

// Armed reports whether alertID has an outstanding timer.
func (s *Scheduler) Armed(alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.timers[alertID]

	return ok
}

// Len returns the number of outstanding timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

// Stop cancels every outstanding timer and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	timers := s.timers
	s.timers = make(map[string]*timer)
	s.mu.Unlock()

	for _, t := range timers {
		t.cancel()
	}
}

func (s *Scheduler) fire(alertID string, t *timer, callback Callback) {
	t.mu.Lock()

	if t.cancelled || t.fired {
		t.mu.Unlock()

		return
	}

	t.fired = true
	ctx := logger.WithFields(s.ctx, "alert_id", alertID, "generation", t.gen)

	err := run(ctx, alertID, callback)
	if err != nil {
		logger.WarnKV(ctx, "Escalation callback failed, retrying", "error", err)

		err = run(ctx, alertID, callback)
		if err != nil {
			logger.ErrorKV(ctx, "Escalation callback failed after retry", "error", err)
		}
	}

	t.mu.Unlock()

	s.mu.Lock()
	if current, ok := s.timers[alertID]; ok && current.gen == t.gen {
		delete(s.timers, alertID)
	}
	s.mu.Unlock()
}

// run invokes the callback, turning a panic into an error.
func run(ctx context.Context, alertID string, callback Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("escalation callback panicked: %v", r)
		}
	}()

	return callback(ctx, alertID)
}
