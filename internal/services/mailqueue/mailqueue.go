// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package mailqueue hands verification codes to a RabbitMQ queue for an
// external mailer to deliver.
package mailqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"codeberg.org/oliverandrich/chat-backend/internal/i18n"
	"codeberg.org/oliverandrich/chat-backend/internal/services/notify"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventVerificationCode is the type of events published by this package.
const EventVerificationCode = "verification_code"

// Event is the JSON body of a published message.
type Event struct {
	Type      string    `json:"type"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	Locale    string    `json:"locale"`
}

// NewEvent builds the event for msg. The locale is taken from ctx.
func NewEvent(ctx context.Context, msg notify.Message) Event {
	return Event{
		Type:      EventVerificationCode,
		Email:     msg.To,
		Name:      msg.Name,
		Code:      msg.Code,
		ExpiresAt: msg.ExpiresAt.UTC(),
		Locale:    i18n.GetLocale(ctx),
	}
}

// Publisher publishes verification events over a single AMQP channel.
type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

var _ notify.Sender = (*Publisher)(nil)

// NewPublisher connects to the broker and declares a durable queue.
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declaring queue %q: %w", queue, err)
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// SendVerificationCode implements notify.Sender.
func (p *Publisher) SendVerificationCode(ctx context.Context, msg notify.Message) error {
	body, err := json.Marshal(NewEvent(ctx, msg))
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         EventVerificationCode,
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	chErr := p.ch.Close()
	if err := p.conn.Close(); err != nil {
		return err
	}
	return chErr
}
