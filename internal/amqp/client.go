// Package amqp publishes fired notifications to RabbitMQ so other services
// (mailers, push gateways) can fan them out.
package amqp

import (
	"context"
	"fmt"
	"time"

	"budget-tracker-bot/internal/logger"
	"budget-tracker-bot/internal/models"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type Publisher struct {
	conn         *amqp091.Connection
	channel      channel
	exchangeName string
	routingKey   string
	now          func() time.Time
	log          zerolog.Logger
}

// NewPublisher dials the broker and declares a durable topic exchange.
func NewPublisher(url, exchangeName, routingKey string, log zerolog.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	p := newPublisher(ch, exchangeName, routingKey, log)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchangeName, routingKey string, log zerolog.Logger) *Publisher {
	return &Publisher{
		channel:      ch,
		exchangeName: exchangeName,
		routingKey:   routingKey,
		now:          time.Now,
		log:          logger.WithComponent(log, logger.ComponentAMQP),
	}
}

// PublishNotification publishes n under "<routingKey>.<type>".
func (p *Publisher) PublishNotification(ctx context.Context, userID string, n models.Notification) error {
	body, err := NewNotificationMessage(userID, n, p.now()).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := p.routingKey + "." + string(n.Type)
	err = p.channel.PublishWithContext(
		ctx,
		p.exchangeName, // exchange
		key,            // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    n.ID,
			Timestamp:    p.now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.log.Debug().
		Str("user_id", userID).
		Str("notification_id", n.ID).
		Str("routing_key", key).
		Msg("Published notification")
	return nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
