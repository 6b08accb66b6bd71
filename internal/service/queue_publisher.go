// Package service hosts the outbound RabbitMQ publisher for booking-
// lifecycle events — downstream notification/audit consumers, decoupled
// from the in-process fan-out (C5).
package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	q "github.com/iliyamo/cinema-seat-reservation/internal/queue"
)

const lifecycleQueueName = "booking.lifecycle"

// QueuePublisher holds one long-lived RabbitMQ connection/channel pair and
// republishes booking-lifecycle events onto it, reconnecting on demand
// instead of dialing fresh per call.
type QueuePublisher struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewQueuePublisher constructs a QueuePublisher. The connection is opened
// lazily on the first Publish call.
func NewQueuePublisher(url string, log *zap.Logger) *QueuePublisher {
	return &QueuePublisher{url: url, log: log}
}

// Close tears down the underlying connection, if one is open.
func (p *QueuePublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *QueuePublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil {
		return p.ch, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(lifecycleQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// PublishBookingLifecycle publishes one BookingLifecycleEvent. Failures are
// logged and returned; callers treat this as best-effort and never let it
// block the request path that triggered the transition.
func (p *QueuePublisher) PublishBookingLifecycle(ctx context.Context, event q.BookingLifecycleEvent) error {
	ch, err := p.channel()
	if err != nil {
		p.log.Warn("queue publisher dial failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("queue publisher marshal failed", zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", lifecycleQueueName, false, false, pub); err != nil {
		p.log.Warn("queue publisher publish failed", zap.Error(err), zap.String("type", event.Type))
		return err
	}
	return nil
}
