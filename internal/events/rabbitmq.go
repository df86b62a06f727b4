package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange domain events are published to. The
// event name is the routing key.
const ExchangeName = "cashew.events"

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher is a Sink that publishes events to RabbitMQ.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   hclog.Logger
	mu       sync.Mutex
}

// NewRabbitMQPublisher dials url and declares the events exchange.
func NewRabbitMQPublisher(url string, logger hclog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}

	logger.Info("RabbitMQ publisher connected", "exchange", ExchangeName)

	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: ExchangeName, logger: logger}, nil
}

// Emit publishes e as a persistent JSON message.
func (p *RabbitMQPublisher) Emit(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", e.Name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, e.Name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID.String(),
		Timestamp:    e.OccurredAt,
		Type:         e.Name,
		Body:         body,
	})
	if err != nil {
		p.logger.Error("failed to publish event", "event", e.Name, "event_id", e.ID, "error", err)
		return fmt.Errorf("events: publish %s: %w", e.Name, err)
	}

	p.logger.Debug("event published", "event", e.Name, "event_id", e.ID, "size", len(body))
	return nil
}

// Close closes the channel and connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing channel", "error", err)
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}

	return nil
}
