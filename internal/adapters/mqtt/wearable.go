package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/service/emergency"
)

// errNoCoordinates marks a partial position in a payload.
var errNoCoordinates = errors.New("latitude and longitude must be sent together")

// WearableTrigger raises wearable alerts.
type WearableTrigger interface {
	HandleWearableTrigger(ctx context.Context, signal emergency.WearableSignal) (*alert.Alert, error)
}

// wearablePayload is the JSON published by a wearable on a panic press.
type wearablePayload struct {
	DeviceID    string    `json:"device_id"`
	SubjectID   string    `json:"subject_id"`
	PhoneNumber string    `json:"phone_number"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Accuracy    float64   `json:"accuracy"`
	Timestamp   time.Time `json:"timestamp"`
}

// ParseWearable decodes a panic payload. The device id defaults to the
// second topic segment, as in "wearables/<device>/panic".
func ParseWearable(topic string, payload []byte) (emergency.WearableSignal, error) {
	var p wearablePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return emergency.WearableSignal{}, fmt.Errorf("%w: %w", alert.ErrInvalidTrigger, err)
	}

	if p.DeviceID == "" {
		if parts := strings.Split(topic, "/"); len(parts) >= 2 {
			p.DeviceID = parts[1]
		}
	}

	signal := emergency.WearableSignal{
		DeviceID:    p.DeviceID,
		SubjectID:   p.SubjectID,
		PhoneNumber: p.PhoneNumber,
	}

	switch {
	case p.Latitude != nil && p.Longitude != nil:
		signal.Location = &alert.Fix{
			Latitude:   *p.Latitude,
			Longitude:  *p.Longitude,
			Accuracy:   p.Accuracy,
			Timestamp:  p.Timestamp,
			Confidence: alert.ConfidenceDevice,
		}
	case p.Latitude != nil || p.Longitude != nil:
		return emergency.WearableSignal{}, fmt.Errorf("%w: %w", alert.ErrInvalidTrigger, errNoCoordinates)
	}

	return signal, nil
}

// WearableListener turns wearable messages into alerts.
type WearableListener struct {
	ctx     context.Context //nolint:containedctx // Messages arrive on broker goroutines without a context.
	trigger WearableTrigger
}

// NewWearableListener creates a listener raising alerts under ctx.
func NewWearableListener(ctx context.Context, trigger WearableTrigger) *WearableListener {
	return &WearableListener{
		ctx:     logger.WithName(ctx, "wearables"),
		trigger: trigger,
	}
}

// Handle processes one panic message. Failures are logged.
func (l *WearableListener) Handle(topic string, payload []byte) {
	ctx := logger.WithFields(l.ctx, "topic", topic)

	signal, err := ParseWearable(topic, payload)
	if err != nil {
		logger.WarnKV(ctx, "Dropping malformed wearable payload", "error", err)

		return
	}

	a, err := l.trigger.HandleWearableTrigger(ctx, signal)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to raise wearable alert", "device_id", signal.DeviceID, "error", err)

		return
	}

	logger.InfoKV(ctx, "Wearable alert raised", "device_id", signal.DeviceID, "alert_id", a.ID)
}
