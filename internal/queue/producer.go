package queue

import (
	"context"
	"encoding/json"

	"chatbridge/internal/errors"
	"chatbridge/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Producer publishes normalized chat messages onto the durable queue.
// Enqueue returns once the broker has accepted the publish; downstream
// processing is never awaited.
type Producer interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type amqpProducer struct {
	ch     publishChannel
	logger *logrus.Logger
}

func NewProducer(ch publishChannel, logger *logrus.Logger) Producer {
	return &amqpProducer{ch: ch, logger: logger}
}

func (p *amqpProducer) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	if err := msg.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidationFailed, "refusing to enqueue invalid message")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeQueuePublish, "failed to serialize message")
	}

	err = p.ch.PublishWithContext(ctx, ChatExchange, ChatRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeQueuePublish, "broker rejected publish")
	}

	p.logger.WithFields(logrus.Fields{
		"message_id": msg.MessageID,
		"source":     msg.Source,
		"type":       msg.MessageType,
	}).Info("Message enqueued")

	return nil
}
