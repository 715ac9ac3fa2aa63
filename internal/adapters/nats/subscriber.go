package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// Subscriber consumes resolution events from NATS JetStream. The
// health monitor uses it to watch route outcomes for degraded or
// failed deliveries and to follow provider state transitions reported
// by any instance.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
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
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeRouteUpdates delivers every route progress event to handler.
func (s *Subscriber) SubscribeRouteUpdates(ctx context.Context, handler func(ctx context.Context, update *domain.RouteUpdate) error) error {
	sub, err := s.js.Subscribe("geo.route.progress.>", func(msg *nats.Msg) {
		var update domain.RouteUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			_ = msg.Nak()
			return
		}
		if err := handler(ctx, &update); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SubscribeProviderHealth delivers provider state changes to handler.
func (s *Subscriber) SubscribeProviderHealth(ctx context.Context, handler func(ctx context.Context, provider string, healthy bool) error) error {
	sub, err := s.js.Subscribe("geo.provider.health.>", func(msg *nats.Msg) {
		var event struct {
			Provider string `json:"provider"`
			Healthy  bool   `json:"healthy"`
		}
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			_ = msg.Nak()
			return
		}
		if err := handler(ctx, event.Provider, event.Healthy); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("provider-health-processor"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
