package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dgnsrekt/bucketspy/internal/capture"
)

// Publisher turns engine output into relay events. It is both the engine's
// badge sink and a capture observer.
type Publisher struct {
	broker *Broker
}

func NewPublisher(broker *Broker) *Publisher {
	return &Publisher{broker: broker}
}

// SetBadge publishes the badge on the badge feed.
func (p *Publisher) SetBadge(ctx context.Context, b capture.Badge) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	p.broker.Publish(Event{Feed: FeedBadge, Payload: string(data)})
	return nil
}

// OnCapture publishes a newly retained request on the capture feed.
func (p *Publisher) OnCapture(r capture.CapturedRequest) {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Debug("relay: marshal capture failed", "id", r.ID, "error", err)
		return
	}
	p.broker.Publish(Event{Feed: FeedCapture, Payload: string(data)})
}
