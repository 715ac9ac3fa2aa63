package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
// Route progress events fan out to WebSocket relays on other API
// instances; provider health events feed dashboards and alerting.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

type providerHealthEvent struct {
	Provider   string    `json:"provider"`
	Healthy    bool      `json:"healthy"`
	Detail     string    `json:"detail,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "ROUTE_PROGRESS",
			Subjects:  []string{"geo.route.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    10 * time.Minute,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "PROVIDER_HEALTH",
			Subjects:  []string{"geo.provider.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist — try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishRouteUpdate publishes one delivery of a two-phase route
// computation under geo.route.progress.<request id>.
func (p *Publisher) PublishRouteUpdate(ctx context.Context, update *domain.RouteUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("geo.route.progress."+update.RequestID, data)
	return err
}

// PublishProviderHealth records an observed provider state change.
func (p *Publisher) PublishProviderHealth(ctx context.Context, provider string, healthy bool, detail string) error {
	data, err := json.Marshal(providerHealthEvent{
		Provider:   provider,
		Healthy:    healthy,
		Detail:     detail,
		ObservedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish("geo.provider.health."+provider, data)
	return err
}

// PublishBroadcast sends a fire-and-forget message to all connected
// WebSocket relays.
func (p *Publisher) PublishBroadcast(ctx context.Context, data []byte) error {
	return p.conn.Publish("geo.updates.broadcast", data)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
