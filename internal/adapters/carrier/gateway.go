package carrier

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/service/location"
)

// AuthorityNumber is the national emergency number dialed first.
const AuthorityNumber = "112"

// Messenger sends a text message from a subject's number.
type Messenger interface {
	SendSMS(ctx context.Context, from, to, message string) error
}

// Gateway routes SMS and voice calls through the operator of the sending
// number. Without a configured operator the delivery is only logged.
type Gateway struct {
	// clients holds the configured operator APIs.
	clients map[location.Operator]*Client
	// classifier picks the operator of the sending number.
	classifier *location.Classifier
	// callDelay is the pause between consecutive emergency calls.
	callDelay time.Duration
	// sleep waits between calls, it returns early when ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a gateway over the configured operator clients.
func NewGateway(clients map[location.Operator]*Client, classifier *location.Classifier, callDelay time.Duration) *Gateway {
	return &Gateway{
		clients:    clients,
		classifier: classifier,
		callDelay:  callDelay,
		sleep:      sleepContext,
	}
}

// SendSMS delivers a message through the operator of the sending number.
func (g *Gateway) SendSMS(ctx context.Context, from, to, message string) error {
	client, ok := g.route(from)
	if !ok {
		logger.InfoKV(ctx, "SMS logged, no operator API configured",
			"from", from,
			"to", to,
			"message", message,
		)

		return nil
	}

	return client.SendSMS(ctx, from, to, message)
}

// MakeEmergencyCalls dials 112, then emergency numbers, then trusted contacts.
// A failed call is logged and the sequence goes on.
func (g *Gateway) MakeEmergencyCalls(ctx context.Context, a *alert.Alert) error {
	ctx = logger.WithFields(ctx, "alert_id", a.ID)

	numbers := callSequence(a.Contacts)
	from := a.Metadata.PhoneNumber

	for i, to := range numbers {
		if i > 0 {
			if err := g.sleep(ctx, g.callDelay); err != nil {
				return fmt.Errorf("call sequence interrupted after %d calls: %w", i, err)
			}
		}

		if err := g.call(ctx, from, to, a.ID); err != nil {
			logger.WarnKV(ctx, "Emergency call failed", "to", to, "error", err)

			continue
		}

		logger.InfoKV(ctx, "Emergency call placed", "to", to)
	}

	return nil
}

func (g *Gateway) call(ctx context.Context, from, to, alertID string) error {
	client, ok := g.route(from)
	if !ok {
		logger.InfoKV(ctx, "Call logged, no operator API configured", "from", from, "to", to)

		return nil
	}

	return client.InitiateCall(ctx, from, to, alertID)
}

func (g *Gateway) route(from string) (*Client, bool) {
	if g.classifier == nil || len(g.clients) == 0 {
		return nil, false
	}

	client, ok := g.clients[g.classifier.Detect(from)]

	return client, ok
}

// callSequence lists the numbers to dial in order, without repeats.
func callSequence(contacts alert.Contacts) []string {
	ordered := make([]string, 0, 1+len(contacts.Emergency)+len(contacts.Trusted))
	seen := make(map[string]struct{})

	add := func(numbers ...string) {
		for _, n := range numbers {
			if n == "" {
				continue
			}

			if _, ok := seen[n]; ok {
				continue
			}

			seen[n] = struct{}{}
			ordered = append(ordered, n)
		}
	}

	add(AuthorityNumber)
	add(contacts.Emergency...)
	add(contacts.Trusted...)

	return ordered
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
