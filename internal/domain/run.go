package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssetEvent — запись журнала событий asset.
//
// StorageID монотонно растёт и служит курсором: всё, что записано после
// курсора предыдущего тика, считается новым.
type AssetEvent struct {
	// StorageID — позиция события в журнале.
	StorageID int64 `json:"storage_id"`

	// Type — материализация или наблюдение.
	Type EventType `json:"type"`

	// Partition — asset и партиция, к которым относится событие.
	Partition AssetPartition `json:"partition"`

	// RunID — run, создавший событие (пусто для внешних наблюдений).
	RunID string `json:"run_id,omitempty"`

	// Timestamp — время события.
	Timestamp time.Time `json:"timestamp"`
}

// AssetRun — run, нацеленный на конкретную партицию asset.
type AssetRun struct {
	RunID     string         `json:"run_id"`
	Partition AssetPartition `json:"partition"`
	Status    RunStatus      `json:"status"`
}

// IsInProgress возвращает true, пока run не завершён.
func (r *AssetRun) IsInProgress() bool {
	return !r.Status.IsTerminal()
}

// RunRequest — запрос на материализацию набора asset для одной партиции.
//
// RunRequest — итог тика планировщика: корневые условия дали true для
// партиций, их группируют по ключу партиции и публикуют исполнителю.
type RunRequest struct {
	// ID — уникальный идентификатор запроса.
	ID uuid.UUID `json:"id"`

	// EvaluationID — тик, в котором создан запрос.
	EvaluationID uuid.UUID `json:"evaluation_id"`

	// AssetKeys — отсортированный список asset для материализации.
	AssetKeys []AssetKey `json:"asset_keys"`

	// PartitionKey — ключ партиции (пусто для непартиционированных asset).
	PartitionKey string `json:"partition_key,omitempty"`

	// Tags — произвольные метки запуска.
	Tags map[string]string `json:"tags,omitempty"`

	// CreatedAt — время создания запроса.
	CreatedAt time.Time `json:"created_at"`
}

// Partitions возвращает все AssetPartition запроса.
func (r *RunRequest) Partitions() []AssetPartition {
	result := make([]AssetPartition, len(r.AssetKeys))
	for i, key := range r.AssetKeys {
		result[i] = NewAssetPartition(key, r.PartitionKey)
	}
	return result
}
