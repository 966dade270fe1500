package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends events to a durable RabbitMQ queue.  Each Publish dials
// its own connection, which keeps the publisher stateless at the price of
// one handshake per event; event volume here is a few per request at most.
type Publisher struct {
	url   string
	queue string
	log   *slog.Logger
}

// NewPublisher returns a Publisher for the broker at url.  An empty queue
// name selects DefaultQueue.
func NewPublisher(url, queue string, log *slog.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{url: url, queue: queue, log: log}
}

// Publish marshals ev and publishes it as a persistent message.  Errors are
// logged and returned so the caller can decide to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("rabbitmq dial failed", "err", err, "event", ev.Type)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		p.log.Warn("rabbitmq queue declare failed", "err", err, "queue", p.queue)
		return err
	}

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	})
	if err != nil {
		p.log.Warn("rabbitmq publish failed", "err", err, "event", ev.Type)
		return err
	}
	return nil
}

// NopPublisher drops every event.  It stands in when no broker is
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
