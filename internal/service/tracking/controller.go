package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/service/location"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 10 * time.Second

// LocationUpdater applies a fresh fix to an alert.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, alertID string, fix alert.Fix) (*alert.Alert, error)
}

// Controller runs one polling loop per tracked alert.
type Controller struct {
	// ctx is the parent of every loop.
	ctx context.Context //nolint:containedctx // Loops outlive the start request.
	// source provides device fixes.
	source location.DeviceSource
	// interval is the polling period.
	interval time.Duration
	// mu protects sessions and updater.
	mu sync.Mutex
	// sessions maps an alert id to the cancel function of its loop.
	sessions map[string]context.CancelFunc
	// updater receives fresh fixes. It is set by Bind.
	updater LocationUpdater
	// wg tracks running loops.
	wg sync.WaitGroup
}

// NewController creates a tracking controller.
func NewController(ctx context.Context, source location.DeviceSource, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Controller{
		ctx:      logger.WithName(ctx, "tracking"),
		source:   source,
		interval: interval,
		sessions: make(map[string]context.CancelFunc),
	}
}

// Bind sets the engine receiving fixes. It breaks the construction cycle between the two.
func (c *Controller) Bind(updater LocationUpdater) {
	c.mu.Lock()
	c.updater = updater
	c.mu.Unlock()
}

// StartTracking starts polling for an alert. Starting a tracked alert is a no-op.
func (c *Controller) StartTracking(_ context.Context, alertID, subjectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[alertID]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(logger.WithFields(c.ctx, "alert_id", alertID, "subject_id", subjectID))
	c.sessions[alertID] = cancel

	c.wg.Add(1)

	go c.loop(ctx, alertID, subjectID)

	logger.DebugKV(ctx, "Continuous tracking started", "interval", c.interval)

	return nil
}

// StopTracking stops polling for an alert. Stopping an untracked alert is a no-op.
func (c *Controller) StopTracking(_ context.Context, alertID string) error {
	c.mu.Lock()
	cancel, ok := c.sessions[alertID]
	delete(c.sessions, alertID)
	c.mu.Unlock()

	if ok {
		cancel()
	}

	return nil
}

// Tracked returns the number of tracked alerts.
func (c *Controller) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.sessions)
}

// Stop ends every loop and waits for them.
func (c *Controller) Stop() {
	c.mu.Lock()
	for id, cancel := range c.sessions {
		cancel()
		delete(c.sessions, id)
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) loop(ctx context.Context, alertID, subjectID string) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fix, ok, err := c.source.CurrentLocation(ctx, subjectID)
		if err != nil {
			logger.DebugKV(ctx, "Device location unavailable", "error", err)

			continue
		}

		if !ok || !fix.Timestamp.After(last) {
			continue
		}

		c.mu.Lock()
		updater := c.updater
		c.mu.Unlock()

		if updater == nil {
			continue
		}

		_, err = updater.UpdateLocation(ctx, alertID, fix)

		switch {
		case err == nil:
			last = fix.Timestamp
		case errors.Is(err, alert.ErrAlreadyTerminal), errors.Is(err, alert.ErrNotFound):
			_ = c.StopTracking(ctx, alertID)

			return
		default:
			logger.WarnKV(ctx, "Tracked location rejected", "error", err)
		}
	}
}
