package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/history"
)

// EventRepo — журнал событий asset и run в PostgreSQL.
// Реализует history.Loader и history.Sink.
type EventRepo struct {
	pool *pgxpool.Pool
}

// NewEventRepo создаёт новый EventRepo.
func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

var (
	_ history.Loader = (*EventRepo)(nil)
	_ history.Sink   = (*EventRepo)(nil)
)

// AppendEvent добавляет событие в журнал и возвращает его StorageID.
func (r *EventRepo) AppendEvent(ctx context.Context, e domain.AssetEvent) (int64, error) {
	if !e.Type.IsValid() {
		return 0, fmt.Errorf("%w: type %q", ErrInvalidEvent, e.Type)
	}
	if e.Partition.AssetKey.IsZero() {
		return 0, fmt.Errorf("%w: empty asset key", ErrInvalidEvent)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	query := `
		INSERT INTO asset_events (event_type, asset_key, partition_key, run_id, ts)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING storage_id
	`
	var storageID int64
	err := r.pool.QueryRow(ctx, query,
		e.Type,
		e.Partition.AssetKey.String(),
		e.Partition.PartitionKey,
		nullString(e.RunID),
		e.Timestamp,
	).Scan(&storageID)
	if err != nil {
		return 0, fmt.Errorf("insert asset event: %w", err)
	}
	return storageID, nil
}

// UpsertRun записывает статус run для партиции.
func (r *EventRepo) UpsertRun(ctx context.Context, run domain.AssetRun) error {
	query := `
		INSERT INTO asset_runs (run_id, asset_key, partition_key, status, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (run_id, asset_key, partition_key) DO UPDATE
		SET status = EXCLUDED.status, updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query,
		run.RunID,
		run.Partition.AssetKey.String(),
		run.Partition.PartitionKey,
		run.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert asset run: %w", err)
	}
	return nil
}

// LoadSnapshot загружает снимок журнала в одной read-only транзакции
// REPEATABLE READ, чтобы события и run были согласованы.
func (r *EventRepo) LoadSnapshot(ctx context.Context) (*history.Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	events, err := r.latestEvents(ctx, tx)
	if err != nil {
		return nil, err
	}
	runs, err := r.activeRuns(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return history.NewSnapshot(events, runs), nil
}

// latestEvents возвращает последнее событие каждого типа для каждой партиции
// и событие с наибольшим временем, если оно не последнее.
func (r *EventRepo) latestEvents(ctx context.Context, tx pgx.Tx) ([]domain.AssetEvent, error) {
	query := `
		SELECT storage_id, event_type, asset_key, partition_key, run_id, ts FROM (
			SELECT DISTINCT ON (asset_key, partition_key, event_type)
			       storage_id, event_type, asset_key, partition_key, COALESCE(run_id, '') AS run_id, ts
			FROM asset_events
			ORDER BY asset_key, partition_key, event_type, storage_id DESC
		) latest
		UNION
		SELECT storage_id, event_type, asset_key, partition_key, run_id, ts FROM (
			SELECT DISTINCT ON (asset_key, partition_key)
			       storage_id, event_type, asset_key, partition_key, COALESCE(run_id, '') AS run_id, ts
			FROM asset_events
			ORDER BY asset_key, partition_key, ts DESC, storage_id DESC
		) newest
	`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load asset events: %w", err)
	}
	defer rows.Close()

	var events []domain.AssetEvent
	for rows.Next() {
		var (
			e   domain.AssetEvent
			key string
		)
		if err := rows.Scan(&e.StorageID, &e.Type, &key, &e.Partition.PartitionKey, &e.RunID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan asset event: %w", err)
		}
		e.Partition.AssetKey = domain.AssetKey(key)
		events = append(events, e)
	}
	return events, rows.Err()
}

// activeRuns возвращает незавершённые run.
func (r *EventRepo) activeRuns(ctx context.Context, tx pgx.Tx) ([]domain.AssetRun, error) {
	query := `
		SELECT run_id, asset_key, partition_key, status
		FROM asset_runs
		WHERE status IN ('PENDING', 'RUNNING')
	`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load asset runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.AssetRun
	for rows.Next() {
		var (
			run domain.AssetRun
			key string
		)
		if err := rows.Scan(&run.RunID, &key, &run.Partition.PartitionKey, &run.Status); err != nil {
			return nil, fmt.Errorf("scan asset run: %w", err)
		}
		run.Partition.AssetKey = domain.AssetKey(key)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
