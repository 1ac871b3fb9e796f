package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig describes the broker connection.
type AMQPConfig struct {
	URL string
	// Exchange is the target exchange. Empty publishes through the default
	// exchange straight to the queue named by RoutingKey.
	Exchange   string
	RoutingKey string
}

// AMQPPublisher publishes events as JSON to RabbitMQ.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	key      string
}

// NewAMQPPublisher dials the broker and declares the target.
func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url must not be empty")
	}
	key := cfg.RoutingKey
	if key == "" {
		key = "agentdesk.turns"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if cfg.Exchange == "" {
		_, err = ch.QueueDeclare(key, true, false, false, false, nil)
	} else {
		err = ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	}
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare rabbitmq target: %w", err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, exchange: cfg.Exchange, key: key}, nil
}

// Publish sends the event. Channels are not safe for concurrent publishing,
// so calls are serialized.
func (p *AMQPPublisher) Publish(ctx context.Context, ev TurnCompleted) error {
	body, err := encode(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("amqp publisher is closed")
	}
	return p.ch.PublishWithContext(ctx, p.exchange, p.key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.CompletedAt,
		Type:         "turn.completed",
		Body:         body,
	})
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
