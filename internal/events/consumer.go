package events

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, e Event) error

// Consumer reads events from a durable queue bound to the store exchange
// and dispatches them by event type. Delivery is at most once per handler
// call: a failed message is logged and dropped, never requeued.
type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	handlers map[string]Handler
	log      *zap.Logger
}

// NewConsumer connects to RabbitMQ. Register handlers with Handle before
// calling Run.
func NewConsumer(url, queue string, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info("Consumer connected to RabbitMQ", zap.String("exchange", exchangeName), zap.String("queue", queue))

	return &Consumer{
		conn:     conn,
		channel:  ch,
		queue:    queue,
		handlers: make(map[string]Handler),
		log:      log,
	}, nil
}

// Handle routes events of eventType to h.
func (c *Consumer) Handle(eventType string, h Handler) {
	c.handlers[eventType] = h
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	queue, err := c.channel.QueueDeclare(
		c.queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for key := range c.handlers {
		if err := c.channel.QueueBind(queue.Name, key, exchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
		c.log.Info("Listening for events", zap.String("routing_key", key))
	}

	msgs, err := c.channel.Consume(
		queue.Name,
		c.queue, // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.settle(msg, c.process(ctx, msg.RoutingKey, msg.Body))
		}
	}
}

// outcome is what to tell the broker about a message.
type outcome int

const (
	ack outcome = iota
	drop
)

func (c *Consumer) settle(msg amqp.Delivery, o outcome) {
	var err error
	switch o {
	case ack:
		err = msg.Ack(false)
	case drop:
		err = msg.Nack(false, false)
	}
	if err != nil {
		c.log.Error("Failed to settle message", zap.String("routing_key", msg.RoutingKey), zap.Error(err))
	}
}

func (c *Consumer) process(ctx context.Context, routingKey string, body []byte) outcome {
	h, ok := c.handlers[routingKey]
	if !ok {
		c.log.Warn("Unknown event type", zap.String("routing_key", routingKey))
		return drop
	}

	event, err := DecodeEvent(body)
	if err != nil {
		c.log.Error("Failed to decode event", zap.String("routing_key", routingKey), zap.Error(err))
		return drop
	}

	if err := h(ctx, event); err != nil {
		c.log.Error("Event handling failed, dropping",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.String("correlation_id", event.CorrelationID),
			zap.Error(err),
		)
		return drop
	}

	c.log.Debug("Event handled", zap.String("event_id", event.EventID), zap.String("event_type", event.EventType))
	return ack
}

// Close closes the consumer channel and connection
func (c *Consumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
