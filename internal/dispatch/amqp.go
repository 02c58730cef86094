package dispatch

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingKeyPrefix = "task."
	bindingKey       = "task.*"
	attemptHeader    = "x-attempt"
)

// Topology names the broker objects the worker and the API share.
type Topology struct {
	Exchange string
	Queue    string
	DLQ      string
}

// RoutingKey returns the routing key for a task kind.
func RoutingKey(kind Kind) string {
	return routingKeyPrefix + string(kind)
}

// Declare creates the exchange, the dead-letter queue and the task queue,
// and binds the task queue to every task routing key. It is idempotent.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DLQ, err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.DLQ,
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, bindingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind task queue: %w", err)
	}
	return nil
}

// attemptFromHeaders reads the delivery attempt counter, starting at 1.
func attemptFromHeaders(h amqp.Table) int {
	if h == nil {
		return 1
	}
	switch v := h[attemptHeader].(type) {
	case int32:
		return max(int(v), 1)
	case int64:
		return max(int(v), 1)
	case int:
		return max(v, 1)
	default:
		return 1
	}
}
