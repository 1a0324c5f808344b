package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
)

// Notifier defaults.
const (
	DefaultParallelism    = 8
	DefaultWebhookTimeout = 10 * time.Second
)

// errWebhookStatus wraps non-2xx webhook responses.
var errWebhookStatus = errors.New("webhook rejected notification")

// Messenger sends a text message from a subject's number.
type Messenger interface {
	SendSMS(ctx context.Context, from, to, message string) error
}

// Notifier fans a notification out to a set of recipients. Recipients that
// are http(s) URLs receive a JSON webhook, everyone else a text message.
type Notifier struct {
	messenger   Messenger
	webhooks    *http.Client
	parallelism int
}

// New creates a notifier over the messenger.
func New(messenger Messenger, parallelism int) *Notifier {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	return &Notifier{
		messenger:   messenger,
		webhooks:    &http.Client{Timeout: DefaultWebhookTimeout},
		parallelism: parallelism,
	}
}

// webhookPayload is posted to authority endpoints.
type webhookPayload struct {
	AlertID string       `json:"alert_id"`
	Message string       `json:"message"`
	Alert   *alert.Alert `json:"alert"`
}

// SendEmergencyAlerts tells trusted contacts and emergency numbers that help is needed.
func (n *Notifier) SendEmergencyAlerts(ctx context.Context, a *alert.Alert) error {
	return n.deliver(ctx, a, EmergencyMessage(a), a.Contacts.Trusted, a.Contacts.Emergency)
}

// NotifyAuthorities sends the emergency message to the authorities.
func (n *Notifier) NotifyAuthorities(ctx context.Context, a *alert.Alert) error {
	return n.deliver(ctx, a, EmergencyMessage(a), a.Contacts.Authorities)
}

// EscalateToAuthorities reports an alert nobody responded to.
func (n *Notifier) EscalateToAuthorities(ctx context.Context, a *alert.Alert) error {
	return n.deliver(ctx, a, "ESCALATED, NO RESPONSE. "+EmergencyMessage(a), a.Contacts.Authorities, a.Contacts.Emergency)
}

// BroadcastLocationUpdate sends the new position to trusted contacts.
func (n *Notifier) BroadcastLocationUpdate(ctx context.Context, a *alert.Alert) error {
	message := "LOCATION UPDATE: " + MapsLink(a.Location) + " - Safe Map"

	return n.deliver(ctx, a, message, a.Contacts.Trusted)
}

// SendResolutionNotifications tells everyone reached before that the alert is over.
func (n *Notifier) SendResolutionNotifications(ctx context.Context, a *alert.Alert) error {
	message := "The emergency alert has been resolved. The person is safe. - Safe Map"
	if a.State == alert.StateFalseAlarm {
		message = "The emergency alert was a false alarm. No action is needed. - Safe Map"
	}

	return n.deliver(ctx, a, message, a.Contacts.Trusted, a.Contacts.Authorities)
}

// EmergencyMessage is the text sent when an alert is raised.
func EmergencyMessage(a *alert.Alert) string {
	address := a.Location.Address
	if address == "" {
		address = "Unknown location"
	}

	return fmt.Sprintf("EMERGENCY ALERT: Help needed at %s. Location: %s - Safe Map", address, MapsLink(a.Location))
}

// MapsLink is a map URL pointing at the location.
func MapsLink(l alert.Location) string {
	return "https://maps.google.com/maps?q=" +
		strconv.FormatFloat(l.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(l.Longitude, 'f', -1, 64)
}

// deliver sends message to every recipient concurrently and returns the first failure.
// Every failure is logged.
func (n *Notifier) deliver(ctx context.Context, a *alert.Alert, message string, groups ...[]string) error {
	ctx = logger.WithFields(ctx, "alert_id", a.ID)
	from := a.Metadata.PhoneNumber

	// One failed recipient must not cancel deliveries to the others.
	var g errgroup.Group

	g.SetLimit(n.parallelism)

	seen := make(map[string]struct{})

	for _, group := range groups {
		for _, to := range group {
			if _, ok := seen[to]; ok || to == "" {
				continue
			}

			seen[to] = struct{}{}

			g.Go(func() error {
				if err := n.send(ctx, a, from, to, message); err != nil {
					logger.WarnKV(ctx, "Notification delivery failed", "to", to, "error", err)

					return fmt.Errorf("notify %s: %w", to, err)
				}

				return nil
			})
		}
	}

	return g.Wait()
}

func (n *Notifier) send(ctx context.Context, a *alert.Alert, from, to, message string) error {
	if !strings.HasPrefix(to, "http://") && !strings.HasPrefix(to, "https://") {
		return n.messenger.SendSMS(ctx, from, to, message)
	}

	body, err := json.Marshal(webhookPayload{AlertID: a.ID, Message: message, Alert: a})
	if err != nil {
		return fmt.Errorf("encode webhook: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, to, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.webhooks.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close() //nolint:errcheck // Body drained below.

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", errWebhookStatus, resp.StatusCode)
	}

	return nil
}
