package output

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/itsdevcoffee/hyprvoice/internal/protocol"
)

// Publisher announces final transcripts on the bus so other local tools
// (status bars, history recorders) can observe them.
type Publisher struct {
	conn *nats.Conn
}

func NewPublisher(conn *nats.Conn) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) PublishTranscript(ctx context.Context, t protocol.Transcript) error {
	if p == nil || p.conn == nil {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := p.conn.Publish(protocol.SubjectTranscriptFinal, data); err != nil {
		return fmt.Errorf("publish transcript: %w", err)
	}
	return nil
}
