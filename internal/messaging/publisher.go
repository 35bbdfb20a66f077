package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Publisher sends domain events (trade.executed, order.accepted, ...) to an
// external sink. The matching engine never waits on a publisher; the order
// service hands events over after the book has been updated.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event Event) error
	Name() string
	Close() error
}

// amqpChannel is the subset of *amqp.Channel used for publishing.
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	logger   *zap.Logger
}

// NewAMQPPublisher dials RabbitMQ and declares a durable topic exchange.
func NewAMQPPublisher(amqpURL, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Topic exchange so consumers can bind trade.* or order.*
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := newAMQPPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger.Named("amqp"),
	}
}

// Publish sends event with the given routing key.
func (p *AMQPPublisher) Publish(_ context.Context, routingKey string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.channel.Publish(
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.Time,
			Type:         event.Type,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.logger.Debug("event published", zap.String("routing_key", routingKey), zap.String("event_id", event.ID))
	return nil
}

func (p *AMQPPublisher) Name() string { return "rabbitmq" }

// Close shuts down RabbitMQ resources gracefully.
func (p *AMQPPublisher) Close() error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
func (NopPublisher) Name() string                                 { return "nop" }
func (NopPublisher) Close() error                                 { return nil }

// MultiPublisher fans each event out to every sink.
type MultiPublisher struct {
	sinks []Publisher
}

func NewMultiPublisher(sinks ...Publisher) *MultiPublisher {
	return &MultiPublisher{sinks: sinks}
}

// Publish tries every sink and joins their errors.
func (m *MultiPublisher) Publish(ctx context.Context, routingKey string, event Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, routingKey, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) Name() string { return "multi" }

func (m *MultiPublisher) Close() error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
