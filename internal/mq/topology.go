package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeRuns   Exchange = "assetsched.runs"
	ExchangeEvents Exchange = "assetsched.events"
	ExchangeDLQ    Exchange = "assetsched.dlq"
)

// Queues.
const (
	QueueRunsRequested Queue = "runs.requested"
	QueueEventsAsset   Queue = "events.asset"
	QueueDLQEvents     Queue = "dlq.events"
)

// Routing keys.
const (
	RoutingKeyRequested RoutingKey = "requested"
	RoutingKeyAsset     RoutingKey = "asset"
	RoutingKeyDLQEvents RoutingKey = "events"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// Topology — объявления exchanges, queues и bindings.
type Topology struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}

// DefaultTopology возвращает топологию планировщика.
//
//	assetsched.runs (direct)
//	└── runs.requested [requested]   consumer: исполнитель run
//	assetsched.events (direct)
//	└── events.asset [asset]         consumer: assetsched-daemon, DLQ: dlq.events
//	assetsched.dlq (direct)
//	└── dlq.events [events]
func DefaultTopology() Topology {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQEvents),
	}
	return Topology{
		exchanges: []exchangeDecl{
			{ExchangeRuns, amqp.ExchangeDirect},
			{ExchangeEvents, amqp.ExchangeDirect},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		queues: []queueDecl{
			{QueueRunsRequested, nil},
			{QueueEventsAsset, dlqArgs},
			{QueueDLQEvents, nil},
		},
		bindings: []bindingDecl{
			{QueueRunsRequested, RoutingKeyRequested, ExchangeRuns},
			{QueueEventsAsset, RoutingKeyAsset, ExchangeEvents},
			{QueueDLQEvents, RoutingKeyDLQEvents, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет топологию на соединении.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, DefaultTopology().Declare)
}

// Declare объявляет все exchanges, queues и bindings на канале.
func (t Topology) Declare(ch *amqp.Channel) error {
	for _, ex := range t.exchanges {
		if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	for _, q := range t.queues {
		if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	for _, b := range t.bindings {
		if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// Queues возвращает имена объявляемых очередей.
func (t Topology) Queues() []Queue {
	out := make([]Queue, len(t.queues))
	for i, q := range t.queues {
		out[i] = q.name
	}
	return out
}

// DeadLetterExchange возвращает DLQ exchange очереди (пусто, если DLQ нет).
func (t Topology) DeadLetterExchange(queue Queue) Exchange {
	for _, q := range t.queues {
		if q.name == queue {
			if v, ok := q.args["x-dead-letter-exchange"].(string); ok {
				return Exchange(v)
			}
		}
	}
	return ""
}
