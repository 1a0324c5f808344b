package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oshokin/sos-engine/internal/service/capture"
)

// commandQoS delivers commands at least once.
const commandQoS = 1

// Publisher sends raw messages.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Commander publishes capture commands to "<pattern with subject id>".
type Commander struct {
	publisher Publisher
	pattern   string
}

// NewCommander creates a commander. The pattern holds one %s for the subject id;
// without it the subject id is appended as the last topic segment.
func NewCommander(publisher Publisher, pattern string) *Commander {
	if !strings.Contains(pattern, "%s") {
		pattern = strings.TrimRight(pattern, "/") + "/%s"
	}

	return &Commander{
		publisher: publisher,
		pattern:   pattern,
	}
}

// SendCommand publishes the command as JSON.
func (c *Commander) SendCommand(ctx context.Context, subjectID string, cmd capture.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	return c.publisher.Publish(c.Topic(subjectID), commandQoS, false, payload)
}

// Topic returns the command topic of a subject.
func (c *Commander) Topic(subjectID string) string {
	return fmt.Sprintf(c.pattern, subjectID)
}
