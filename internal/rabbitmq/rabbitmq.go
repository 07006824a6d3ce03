package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName           = "guard.events"
	VerificationQueueName  = "guard.verification"
	RoutingKeyVerification = "verification.required"
	ReconnectDelay         = 5 * time.Second
)

// Client owns one connection and channel and redials when the broker
// drops the connection.
type Client struct {
	url string

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// Dial connects and declares the topology.
func Dial(url string) (*Client, error) {
	c := &Client{url: url}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	slog.Info("connecting to rabbitmq")
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn, c.channel = conn, ch
	c.mu.Unlock()

	go c.watchConnection(conn)

	slog.Info("rabbitmq connected", "exchange", ExchangeName, "queue", VerificationQueueName)
	return nil
}

func declareTopology(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		ExchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		VerificationQueueName, // name
		true,                  // durable
		false,                 // delete when unused
		false,                 // exclusive
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare verification queue: %w", err)
	}

	err = ch.QueueBind(
		VerificationQueueName,
		RoutingKeyVerification,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind verification queue: %w", err)
	}
	return nil
}

func (c *Client) watchConnection(conn *amqp.Connection) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || err == nil {
		return
	}

	slog.Warn("rabbitmq connection closed, reconnecting", "error", err)
	for {
		time.Sleep(ReconnectDelay)

		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return
		}

		if err := c.connect(); err != nil {
			slog.Warn("rabbitmq reconnect failed", "error", err, "retry_in", ReconnectDelay)
			continue
		}
		slog.Info("rabbitmq reconnected")
		return
	}
}

func (c *Client) openChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.channel == nil || c.channel.IsClosed() {
		return nil, fmt.Errorf("RabbitMQ client not (yet) connected")
	}
	return c.channel, nil
}

// PublishVerificationRequired routes evt to the verification queue.
func (c *Client) PublishVerificationRequired(ctx context.Context, evt VerificationRequiredEvent) error {
	msg, err := encodeEvent(evt)
	if err != nil {
		return err
	}

	ch, err := c.openChannel()
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx,
		ExchangeName,           // exchange
		RoutingKeyVerification, // routing key
		false,                  // mandatory
		false,                  // immediate
		msg,
	); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Consume registers a manual-ack consumer on the verification queue.
func (c *Client) Consume(tag string) (<-chan amqp.Delivery, error) {
	ch, err := c.openChannel()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	return ch.Consume(
		VerificationQueueName, // queue
		tag,                   // consumer tag
		false,                 // auto-ack
		false,                 // exclusive
		false,                 // no-local
		false,                 // no-wait
		nil,                   // args
	)
}

func (c *Client) Cancel(tag string) error {
	ch, err := c.openChannel()
	if err != nil {
		return err
	}
	return ch.Cancel(tag, false)
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
