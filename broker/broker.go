package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("broker closed")

type connection interface {
	IsClosed() bool
	Close() error
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type dialFunc func(url, exchange, exchangeType string) (connection, channel, error)

// Broker publishes JSON messages to a RabbitMQ exchange, reconnecting lazily
// when the connection drops.
type Broker struct {
	mu       sync.Mutex
	conn     connection
	channel  channel
	exchange string
	kind     string
	url      string
	dial     dialFunc
	closed   bool
	// stale is set when the server reported an AMQP error on publish; the
	// channel it arrived on is no longer usable.
	stale  bool
	logger *slog.Logger
}

// NewBroker connects to rabbitMQURL and declares a durable exchange.
func NewBroker(rabbitMQURL, exchange, exchangeType string, logger *slog.Logger) (*Broker, error) {
	return newBroker(rabbitMQURL, exchange, exchangeType, logger, dialAMQP)
}

func newBroker(rabbitMQURL, exchange, exchangeType string, logger *slog.Logger, dial dialFunc) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, ch, err := dial(rabbitMQURL, exchange, exchangeType)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		return nil, err
	}

	return &Broker{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		kind:     exchangeType,
		url:      rabbitMQURL,
		dial:     dial,
		logger:   logger,
	}, nil
}

func dialAMQP(url, exchange, exchangeType string) (connection, channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if exchange != "" {
		err = ch.ExchangeDeclare(
			exchange,
			exchangeType,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}
	return conn, ch, nil
}

func (b *Broker) ensureConnection() error {
	if b.conn != nil && !b.conn.IsClosed() && b.channel != nil && !b.channel.IsClosed() && !b.stale {
		return nil
	}
	b.dropConnection()
	conn, ch, err := b.dial(b.url, b.exchange, b.kind)
	if err != nil {
		b.logger.Error("failed to reconnect to RabbitMQ", "error", err)
		return err
	}
	b.conn = conn
	b.channel = ch
	b.stale = false
	return nil
}

func (b *Broker) dropConnection() {
	if b.channel != nil && !b.channel.IsClosed() {
		_ = b.channel.Close()
	}
	if b.conn != nil && !b.conn.IsClosed() {
		_ = b.conn.Close()
	}
	b.channel = nil
	b.conn = nil
}

// Publish marshals message as JSON and publishes it under routing key key.
func (b *Broker) Publish(ctx context.Context, message any, key string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if err := b.ensureConnection(); err != nil {
		return err
	}

	err = b.channel.PublishWithContext(
		ctx,
		b.exchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) {
			b.stale = true
		}
		b.logger.Error("failed to publish message", "routing_key", key, "error", err)
		return err
	}

	b.logger.Debug("published message", "routing_key", key, "bytes", len(body))
	return nil
}

// Close closes the channel and the connection. Further publishes fail with ErrClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
