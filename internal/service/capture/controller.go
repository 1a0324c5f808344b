package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
)

// Action is a recording instruction.
type Action string

// Recording actions.
const (
	ActionStart Action = "start_recording"
	ActionStop  Action = "stop_recording"
)

// Command is sent to the devices of a subject.
type Command struct {
	Action   Action               `json:"action"`
	AlertID  string               `json:"alert_id"`
	Media    []alert.EvidenceKind `json:"media,omitempty"`
	IssuedAt time.Time            `json:"issued_at"`
}

// Commander delivers commands to a subject's devices.
type Commander interface {
	SendCommand(ctx context.Context, subjectID string, cmd Command) error
}

// Controller tracks which alerts are capturing and issues commands.
type Controller struct {
	// commander delivers the commands.
	commander Commander
	// media lists the kinds requested on start.
	media []alert.EvidenceKind
	// now returns the current time.
	now func() time.Time
	// mu protects active.
	mu sync.Mutex
	// active maps an alert id to its subject.
	active map[string]string
}

// NewController creates a capture controller requesting audio and video.
func NewController(commander Commander) *Controller {
	return &Controller{
		commander: commander,
		media:     []alert.EvidenceKind{alert.EvidenceAudio, alert.EvidenceVideo},
		now:       time.Now,
		active:    make(map[string]string),
	}
}

// StartCapture asks the subject's devices to record. Repeated starts are no-ops.
func (c *Controller) StartCapture(ctx context.Context, alertID, subjectID string) error {
	c.mu.Lock()
	if _, ok := c.active[alertID]; ok {
		c.mu.Unlock()

		return nil
	}

	c.active[alertID] = subjectID
	c.mu.Unlock()

	err := c.commander.SendCommand(ctx, subjectID, Command{
		Action:   ActionStart,
		AlertID:  alertID,
		Media:    c.media,
		IssuedAt: c.now(),
	})
	if err != nil {
		c.mu.Lock()
		delete(c.active, alertID)
		c.mu.Unlock()

		return fmt.Errorf("start capture: %w", err)
	}

	logger.DebugKV(ctx, "Evidence capture started", "alert_id", alertID, "subject_id", subjectID)

	return nil
}

// StopCapture asks the subject's devices to stop recording. Stopping an idle alert is a no-op.
func (c *Controller) StopCapture(ctx context.Context, alertID, subjectID string) error {
	c.mu.Lock()
	known, ok := c.active[alertID]
	delete(c.active, alertID)
	c.mu.Unlock()

	if !ok {
		return nil
	}

	if subjectID == "" {
		subjectID = known
	}

	err := c.commander.SendCommand(ctx, subjectID, Command{
		Action:   ActionStop,
		AlertID:  alertID,
		IssuedAt: c.now(),
	})
	if err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}

	logger.DebugKV(ctx, "Evidence capture stopped", "alert_id", alertID, "subject_id", subjectID)

	return nil
}

// Active returns the number of alerts currently capturing.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.active)
}
