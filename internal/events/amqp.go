package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/metrics"
)

// prefetchCount bounds unacked deliveries per consumer.
const prefetchCount = 10

// AMQPPublisher publishes persistent JSON messages to the topic exchange.
type AMQPPublisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher connects and declares the exchange.
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch}, nil
}

func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	return nil
}

// Publish sends the envelope with persistent delivery and the correlation
// id mirrored into the AMQP headers table.
func (p *AMQPPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		Exchange,
		env.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Headers: amqp.Table{
				"correlation_id": env.CorrelationID,
			},
		},
	)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(env.RoutingKey, "error").Inc()
		return fmt.Errorf("publish %s: %w", env.RoutingKey, err)
	}
	metrics.EventsPublished.WithLabelValues(env.RoutingKey, "ok").Inc()
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishOrLog publishes and swallows the error: the write has already
// committed, so a broker outage must not fail the request.
func PublishOrLog(ctx context.Context, pub Publisher, env Envelope) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, env); err != nil {
		log.Error().
			Err(err).
			Str("routing_key", env.RoutingKey).
			Str("correlation_id", env.CorrelationID).
			Msg("event publish failed")
	}
}

// Subscriber consumes one service's durable queue.
type Subscriber struct {
	service  string
	conn     *amqp.Connection
	ch       *amqp.Channel
	patterns []string
}

// NewSubscriber connects, declares the durable "<service>.events" queue
// and binds it to the exchange under each pattern.
func NewSubscriber(url, service string, patterns []string) (*Subscriber, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	queue := service + ".events"
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, pattern := range patterns {
		if err := ch.QueueBind(queue, pattern, Exchange, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind %s to %s: %w", queue, pattern, err)
		}
	}
	return &Subscriber{service: service, conn: conn, ch: ch, patterns: patterns}, nil
}

// Consume delivers messages to handler until ctx is done. Successful
// handling acks; a handler error nacks with requeue, preserving the
// at-least-once contract.
func (s *Subscriber) Consume(ctx context.Context, handler Handler) error {
	deliveries, err := s.ch.Consume(
		s.service+".events",
		s.service, // consumer tag
		false,     // manual ack
		false, false, false, nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			s.handle(ctx, d, handler)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, d amqp.Delivery, handler Handler) {
	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		// Malformed messages can never succeed; drop without requeue.
		log.Error().Err(err).Str("routing_key", d.RoutingKey).Msg("malformed event dropped")
		metrics.EventsConsumed.WithLabelValues(d.RoutingKey, "malformed").Inc()
		d.Nack(false, false)
		return
	}
	if env.RoutingKey == "" {
		env.RoutingKey = d.RoutingKey
	}
	if env.CorrelationID == "" {
		if v, ok := d.Headers["correlation_id"].(string); ok {
			env.CorrelationID = v
		}
	}

	if err := handler(ctx, env); err != nil {
		log.Warn().
			Err(err).
			Str("routing_key", env.RoutingKey).
			Str("correlation_id", env.CorrelationID).
			Msg("event handler failed, requeueing")
		metrics.EventsConsumed.WithLabelValues(env.RoutingKey, "error").Inc()
		d.Nack(false, true)
		return
	}
	metrics.EventsConsumed.WithLabelValues(env.RoutingKey, "ok").Inc()
	d.Ack(false)
}

// Close releases the channel and connection.
func (s *Subscriber) Close() error {
	if s.ch != nil {
		s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
