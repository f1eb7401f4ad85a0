package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue topology for the chat pipeline: one durable exchange/queue pair for
// inbound messages, one dead-letter pair for messages that exhaust their
// redelivery budget.
const (
	ChatExchange   = "chat-exchange"
	ChatQueue      = "chat-message-queue"
	ChatRoutingKey = "chat.message"

	DLXExchange   = "chat-dlx-exchange"
	DLQQueue      = "chat-message-dlq"
	DLQRoutingKey = "chat.dlq"
)

// Topology abstracts the AMQP channel operations used during declaration,
// letting tests run without a broker.
type Topology interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology idempotently declares both exchange/queue pairs. The chat
// queue carries dead-letter arguments so a Nack without requeue routes the
// message to the DLQ.
func DeclareTopology(ch Topology) error {
	if err := ch.ExchangeDeclare(ChatExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare chat exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(DLXExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(DLQQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(DLQQueue, DLQRoutingKey, DLXExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	if _, err := ch.QueueDeclare(ChatQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    DLXExchange,
		"x-dead-letter-routing-key": DLQRoutingKey,
	}); err != nil {
		return fmt.Errorf("failed to declare chat queue: %w", err)
	}
	if err := ch.QueueBind(ChatQueue, ChatRoutingKey, ChatExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind chat queue: %w", err)
	}

	return nil
}
