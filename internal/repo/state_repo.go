package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
)

// StateRepo — репозиторий состояний вычисления и запросов на запуск.
type StateRepo struct {
	pool *pgxpool.Pool
}

// NewStateRepo создаёт новый StateRepo.
func NewStateRepo(pool *pgxpool.Pool) *StateRepo {
	return &StateRepo{pool: pool}
}

// LoadStates возвращает последние состояния всех asset.
func (r *StateRepo) LoadStates(ctx context.Context) (map[domain.AssetKey]*condition.EvaluationState, error) {
	query := `
		SELECT asset_key, evaluation_id, evaluated_at, max_storage_id, result, asset_versions
		FROM evaluation_states
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}
	defer rows.Close()

	states := make(map[domain.AssetKey]*condition.EvaluationState)
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states[state.AssetKey] = state
	}
	return states, rows.Err()
}

// SaveStates записывает состояния и запросы на запуск одного тика
// в одной транзакции.
func (r *StateRepo) SaveStates(ctx context.Context, states []*condition.EvaluationState, requests []domain.RunRequest) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, s := range states {
		result, err := json.Marshal(s.Result)
		if err != nil {
			return fmt.Errorf("marshal result for %s: %w", s.AssetKey, err)
		}
		versions, err := json.Marshal(s.AssetVersions)
		if err != nil {
			return fmt.Errorf("marshal asset versions for %s: %w", s.AssetKey, err)
		}
		batch.Queue(`
			INSERT INTO evaluation_states (asset_key, evaluation_id, evaluated_at, max_storage_id, result, asset_versions)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (asset_key) DO UPDATE
			SET evaluation_id = EXCLUDED.evaluation_id,
			    evaluated_at = EXCLUDED.evaluated_at,
			    max_storage_id = EXCLUDED.max_storage_id,
			    result = EXCLUDED.result,
			    asset_versions = EXCLUDED.asset_versions
		`, s.AssetKey.String(), s.EvaluationID, s.EvaluatedAt, s.MaxStorageID, result, versions)
	}

	for _, rr := range requests {
		tags, err := json.Marshal(rr.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		keys := make([]string, len(rr.AssetKeys))
		for i, k := range rr.AssetKeys {
			keys[i] = k.String()
		}
		batch.Queue(`
			INSERT INTO run_requests (id, evaluation_id, asset_keys, partition_key, tags, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rr.ID, rr.EvaluationID, keys, rr.PartitionKey, tags, rr.CreatedAt)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save states: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanState(row pgx.Row) (*condition.EvaluationState, error) {
	var (
		state    condition.EvaluationState
		key      string
		result   []byte
		versions []byte
	)
	if err := row.Scan(&key, &state.EvaluationID, &state.EvaluatedAt, &state.MaxStorageID, &result, &versions); err != nil {
		return nil, err
	}
	state.AssetKey = domain.AssetKey(key)

	state.Result = &condition.ResultSnapshot{}
	if err := json.Unmarshal(result, state.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result for %s: %w", key, err)
	}
	if err := json.Unmarshal(versions, &state.AssetVersions); err != nil {
		return nil, fmt.Errorf("unmarshal asset versions for %s: %w", key, err)
	}
	return &state, nil
}
