package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/assetsched/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunRequested MessageType = "run.requested"
	MessageTypeAssetEvent   MessageType = "asset.event"
	MessageTypeRunStatus    MessageType = "run.status"
)

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage упаковывает payload в конверт.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// AssetEventPayload — событие asset от исполнителя.
type AssetEventPayload struct {
	Type         domain.EventType `json:"type"`
	AssetKey     domain.AssetKey  `json:"asset_key"`
	PartitionKey string           `json:"partition_key,omitempty"`
	RunID        string           `json:"run_id,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// RunStatusPayload — изменение статуса run для набора партиций.
type RunStatusPayload struct {
	RunID      string                  `json:"run_id"`
	Status     domain.RunStatus        `json:"status"`
	Partitions []domain.AssetPartition `json:"partitions"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	publishing, err := newPublishing(msg)
	if err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, publishing); err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}
		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

func newPublishing(msg *Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}, nil
}

// PublishRunRequests публикует запросы на запуск, по сообщению на запрос.
// ID сообщения совпадает с ID запроса, так что повторная публикация
// распознаётся потребителем.
// Реализует scheduler.RunRequestPublisher.
func (p *Publisher) PublishRunRequests(ctx context.Context, requests []domain.RunRequest) error {
	for _, rr := range requests {
		msg, err := NewMessage(MessageTypeRunRequested, rr)
		if err != nil {
			return err
		}
		msg.ID = rr.ID.String()
		msg.Timestamp = rr.CreatedAt

		if err := p.Publish(ctx, ExchangeRuns, RoutingKeyRequested, msg); err != nil {
			return fmt.Errorf("run request %s: %w", rr.ID, err)
		}
	}
	return nil
}

// PublishAssetEvent публикует событие asset.
func (p *Publisher) PublishAssetEvent(ctx context.Context, payload AssetEventPayload) error {
	msg, err := NewMessage(MessageTypeAssetEvent, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeEvents, RoutingKeyAsset, msg)
}

// PublishRunStatus публикует изменение статуса run.
func (p *Publisher) PublishRunStatus(ctx context.Context, payload RunStatusPayload) error {
	msg, err := NewMessage(MessageTypeRunStatus, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeEvents, RoutingKeyAsset, msg)
}
