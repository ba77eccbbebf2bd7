/**
 * @description
 * This package provides the RabbitMQ-backed reminder delivery transport. It
 * abstracts away the complexities of connecting to RabbitMQ, declaring the
 * topic exchange, and publishing reminder commands.
 *
 * Key features:
 * - Manages the AMQP connection and channel.
 * - Declares a topic exchange so the push-delivery consumer can bind by
 *   command type (reminder.immediate / reminder.scheduled / reminder.cancel).
 * - Registration commands are keyed so the consumer can dedupe and cancel.
 * - Handles proper cleanup of resources.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/subtrack/subscription-service/internal/domain"
)

// Exchange is the topic exchange all reminder commands are published to.
const Exchange = "reminders"

const (
	routingKeyImmediate = "reminder.immediate"
	routingKeyScheduled = "reminder.scheduled"
	routingKeyCancel    = "reminder.cancel"
)

// reminderCommand is the wire payload for a registration command.
type reminderCommand struct {
	Key     string         `json:"key"`
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Urgency domain.Urgency `json:"urgency"`
	FireAt  *time.Time     `json:"fire_at,omitempty"`
}

// cancelCommand is the wire payload for a cancellation batch.
type cancelCommand struct {
	Keys []string `json:"keys"`
}

// ReminderProducer is a client for publishing reminder commands to RabbitMQ.
type ReminderProducer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewReminderProducer creates and returns a new ReminderProducer with the
// exchange declared.
func NewReminderProducer(amqpURL string) (*ReminderProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	err = channel.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	return &ReminderProducer{
		conn:    conn,
		channel: channel,
	}, nil
}

// RegisterImmediate publishes a reminder the consumer should deliver within
// about one second.
func (p *ReminderProducer) RegisterImmediate(ctx context.Context, key domain.DeliveryKey, title, body string, urgency domain.Urgency) error {
	return p.publish(ctx, routingKeyImmediate, reminderCommand{
		Key:     key.String(),
		Title:   title,
		Body:    body,
		Urgency: urgency,
	})
}

// RegisterScheduled publishes a reminder to be delivered at a future timestamp.
func (p *ReminderProducer) RegisterScheduled(ctx context.Context, key domain.DeliveryKey, title, body string, urgency domain.Urgency, fireAt time.Time) error {
	return p.publish(ctx, routingKeyScheduled, reminderCommand{
		Key:     key.String(),
		Title:   title,
		Body:    body,
		Urgency: urgency,
		FireAt:  &fireAt,
	})
}

// Cancel publishes one cancellation batch covering every given key.
func (p *ReminderProducer) Cancel(ctx context.Context, keys []domain.DeliveryKey) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key.String())
	}
	return p.publish(ctx, routingKeyCancel, cancelCommand{Keys: ids})
}

func (p *ReminderProducer) publish(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx,
		Exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        jsonBody,
		})
}

// Close gracefully closes the channel and connection.
func (p *ReminderProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
