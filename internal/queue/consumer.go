package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"chatbridge/internal/models"
	"chatbridge/internal/tracing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Processor handles one dequeued message. A returned error hands the
// message back to the broker: first failure requeues it, a failure on a
// redelivered message dead-letters it.
type Processor interface {
	Process(ctx context.Context, msg models.QueueMessage) error
}

type consumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Consumer runs a fixed set of worker goroutines, each consuming from its
// own channel with manual acknowledgment.
type Consumer struct {
	openChannel func() (consumeChannel, error)
	processor   Processor
	logger      *logrus.Logger
	prefetch    int
	workerCount int
}

// NewConsumer wires workers onto an established AMQP connection.
func NewConsumer(conn *amqp.Connection, processor Processor, logger *logrus.Logger, prefetch, workerCount int) *Consumer {
	return newConsumer(func() (consumeChannel, error) { return conn.Channel() }, processor, logger, prefetch, workerCount)
}

func newConsumer(openChannel func() (consumeChannel, error), processor Processor, logger *logrus.Logger, prefetch, workerCount int) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Consumer{
		openChannel: openChannel,
		processor:   processor,
		logger:      logger,
		prefetch:    prefetch,
		workerCount: workerCount,
	}
}

// Start launches the worker goroutines. They drain their in-flight message
// and exit when ctx is cancelled or the broker closes the channel.
func (c *Consumer) Start(ctx context.Context) error {
	for i := 0; i < c.workerCount; i++ {
		ch, err := c.openChannel()
		if err != nil {
			return fmt.Errorf("failed to open channel for worker %d: %w", i, err)
		}
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			ch.Close()
			return fmt.Errorf("failed to set prefetch for worker %d: %w", i, err)
		}

		deliveries, err := ch.Consume(ChatQueue, fmt.Sprintf("chatbridge-worker-%d", i), false, false, false, false, nil)
		if err != nil {
			ch.Close()
			return fmt.Errorf("failed to start consuming for worker %d: %w", i, err)
		}

		workerLogger := c.logger.WithField("worker", i)
		go c.consumeLoop(ctx, ch, deliveries, workerLogger)
	}

	c.logger.WithField("workers", c.workerCount).Info("Queue consumers started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, ch consumeChannel, deliveries <-chan amqp.Delivery, logger *logrus.Entry) {
	defer ch.Close()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Consumer shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				logger.Warn("Delivery channel closed by broker")
				return
			}
			c.handleDelivery(ctx, d, logger)
		}
	}
}

// handleDelivery processes a single delivery and settles it. Messages that
// cannot even be decoded skip the requeue cycle and go straight to the DLQ.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery, logger *logrus.Entry) {
	var msg models.QueueMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		logger.WithError(err).Error("Failed to decode queued message, dead-lettering")
		c.settle(d, logger, false)
		return
	}

	spanCtx, span := tracing.StartSpan(ctx, "queue.process",
		attribute.String("message.id", msg.MessageID),
		attribute.String("message.source", string(msg.Source)),
		attribute.String("message.type", string(msg.MessageType)),
	)
	err := c.processor.Process(spanCtx, msg)
	if err != nil {
		tracing.RecordError(spanCtx, err)
	}
	span.End()

	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			logger.WithError(ackErr).Error("Failed to ack message")
		}
		return
	}

	requeue := !d.Redelivered
	logger.WithError(err).WithFields(logrus.Fields{
		"message_id": msg.MessageID,
		"requeue":    requeue,
	}).Error("Processing failed")
	c.settle(d, logger, requeue)
}

// settle nacks the delivery; requeue=false routes it to the dead-letter
// queue via the chat queue's DLX arguments.
func (c *Consumer) settle(d amqp.Delivery, logger *logrus.Entry, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		logger.WithError(err).Error("Failed to nack message")
	}
}
