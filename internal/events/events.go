// Package events publishes order events to the message bus for the kitchen
// and notification consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Exchange is the topic exchange every event is published to. The routing
// key is the event type, e.g. "order.paid".
const Exchange = "pos_events"

var ErrNack = errors.New("publish NACK from broker")

// Publisher sends an event with a JSON payload.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Noop discards events. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes persistent JSON messages and waits for the broker's
// confirm before returning.
type AMQP struct {
	conn   *amqp.Connection
	ch     channel
	acks   <-chan amqp.Confirmation
	source string
	logger *zap.Logger

	mu sync.Mutex // confirms arrive in publish order
}

// Dial connects to RabbitMQ, enables publisher confirms and declares the
// events exchange.
func Dial(url, source string, logger *zap.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	p := newAMQP(ch, acks, source, logger)
	p.conn = conn
	return p, nil
}

func newAMQP(ch channel, acks <-chan amqp.Confirmation, source string, logger *zap.Logger) *AMQP {
	return &AMQP{ch: ch, acks: acks, source: source, logger: logger}
}

// Publish marshals payload and sends it with routingKey. It blocks until the
// broker acks or ctx is done.
func (p *AMQP) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         routingKey,
		Headers:      amqp.Table{"x-source": p.source},
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, Exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	select {
	case conf := <-p.acks:
		if !conf.Ack {
			return fmt.Errorf("publish %s: %w", routingKey, ErrNack)
		}
		p.logger.Debug("event published", zap.String("routing_key", routingKey), zap.String("message_id", msg.MessageId))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AMQP) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
