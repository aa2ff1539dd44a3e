// Package notify delivers committed side effects: guest notifications over
// RabbitMQ, audit records over Kafka, and a Postgres outbox that holds
// whatever those sinks could not take.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Sink accepts one serialized message under a routing key.
type Sink interface {
	Publish(ctx context.Context, key string, body []byte) error
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type amqpConn interface {
	channel() (amqpChannel, error)
	Close() error
}

type realConn struct{ conn *amqp.Connection }

func (c realConn) channel() (amqpChannel, error) { return c.conn.Channel() }
func (c realConn) Close() error                  { return c.conn.Close() }

type dialFunc func(url string) (amqpConn, error)

func dialAMQP(url string) (amqpConn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return realConn{conn: conn}, nil
}

// Publisher publishes JSON to a topic exchange. It dials lazily and redials
// after the broker drops the channel, so the API can start while RabbitMQ is
// down and notifications fall back to the outbox.
type Publisher struct {
	url      string
	exchange string
	dial     dialFunc

	mu   sync.Mutex
	conn amqpConn
	ch   amqpChannel
}

func NewPublisher(url, exchange string) *Publisher {
	return &Publisher{url: url, exchange: exchange, dial: dialAMQP}
}

func (p *Publisher) Publish(ctx context.Context, key string, body []byte) error {
	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		p.reset(ch)
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (p *Publisher) channel() (amqpChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// reset drops failed only if it is still the current channel; another
// goroutine may already have redialed.
func (p *Publisher) reset(failed amqpChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != failed {
		return
	}
	p.closeLocked()
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
