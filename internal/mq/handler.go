package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/history"
)

// NewEventHandler возвращает Handler, записывающий события asset и статусы
// run из очереди events.asset в журнал.
//
// Некорректные сообщения (неизвестный тип, битый payload, пустой asset)
// считаются постоянными ошибками; ошибки журнала — временными.
func NewEventHandler(sink history.Sink, logger *slog.Logger) Handler {
	return func(ctx context.Context, d *Delivery) error {
		msg := &d.Message
		switch msg.Type {
		case MessageTypeAssetEvent:
			p, err := ParsePayload[AssetEventPayload](msg)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPermanent, err)
			}
			if !p.Type.IsValid() || p.AssetKey.IsZero() {
				return fmt.Errorf("%w: invalid asset event %q for %q", ErrPermanent, p.Type, p.AssetKey)
			}
			id, err := sink.AppendEvent(ctx, domain.AssetEvent{
				Type:      p.Type,
				Partition: domain.NewAssetPartition(p.AssetKey, p.PartitionKey),
				RunID:     p.RunID,
				Timestamp: p.Timestamp,
			})
			if err != nil {
				return fmt.Errorf("append event: %w", err)
			}
			logger.Debug("asset event recorded",
				"asset_key", p.AssetKey,
				"partition_key", p.PartitionKey,
				"storage_id", id,
			)
			return nil

		case MessageTypeRunStatus:
			p, err := ParsePayload[RunStatusPayload](msg)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPermanent, err)
			}
			if p.RunID == "" {
				return fmt.Errorf("%w: run status without run_id", ErrPermanent)
			}
			status := domain.ParseRunStatus(string(p.Status))
			for _, part := range p.Partitions {
				if err := sink.UpsertRun(ctx, domain.AssetRun{RunID: p.RunID, Partition: part, Status: status}); err != nil {
					return fmt.Errorf("upsert run: %w", err)
				}
			}
			return nil

		default:
			return fmt.Errorf("%w: unexpected message type %q", ErrPermanent, msg.Type)
		}
	}
}
