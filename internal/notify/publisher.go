package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/careconnect/telehealth-platform/internal/events"
	"github.com/careconnect/telehealth-platform/internal/observability/metrics"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// Sender is the outbound half of the queue client.
type Sender interface {
	Send(ctx context.Context, body string) error
}

// Envelope is the wire format handed to the delivery worker.
type Envelope struct {
	FactID     string          `json:"fact_id"`
	Kind       string          `json:"kind"`
	Fact       json.RawMessage `json:"fact"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Publisher forwards outbox facts to the notification queue. It implements
// events.DeliveryHandler, so the outbox deliverer drives it.
type Publisher struct {
	queue  Sender
	logger *logging.Logger
}

// NewPublisher wires the fact publisher.
func NewPublisher(queue Sender, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Handle enqueues one outbox entry.
func (p *Publisher) Handle(ctx context.Context, entry events.OutboxEntry) error {
	envelope := Envelope{
		FactID:     entry.ID.String(),
		Kind:       entry.Kind,
		Fact:       entry.Payload,
		EnqueuedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("notify: marshal envelope: %w", err)
	}
	if err := p.queue.Send(ctx, string(body)); err != nil {
		return err
	}

	metrics.FactsDeliveredTotal.WithLabelValues(entry.Kind).Inc()
	p.logger.Debug("fact enqueued", "fact_id", entry.ID, "kind", entry.Kind)
	return nil
}
