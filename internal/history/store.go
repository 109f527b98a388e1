package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/shaiso/assetsched/internal/domain"
)

// ErrRunNotFound — run с таким ID не зарегистрирован.
var ErrRunNotFound = errors.New("run not found")

// Loader загружает снимок истории перед тиком.
type Loader interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// Sink принимает события asset и изменения статусов run.
type Sink interface {
	AppendEvent(ctx context.Context, e domain.AssetEvent) (int64, error)
	UpsertRun(ctx context.Context, run domain.AssetRun) error
}

// MemoryStore — журнал событий и run в памяти.
// Используется в тестах и в CLI для локального вычисления.
type MemoryStore struct {
	mu     sync.RWMutex
	clock  clockwork.Clock
	events []domain.AssetEvent
	runs   map[string][]domain.AssetRun
	nextID int64
}

// NewMemoryStore создаёт пустой журнал. clock == nil означает реальные часы.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock: clock,
		runs:  make(map[string][]domain.AssetRun),
	}
}

// AppendEvent добавляет событие и присваивает ему StorageID.
func (m *MemoryStore) AppendEvent(_ context.Context, e domain.AssetEvent) (int64, error) {
	if !e.Type.IsValid() {
		return 0, fmt.Errorf("append event: invalid type %q", e.Type)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e.StorageID = m.nextID
	if e.Timestamp.IsZero() {
		e.Timestamp = m.clock.Now()
	}
	m.events = append(m.events, e)
	return e.StorageID, nil
}

// UpsertRun регистрирует run или обновляет статус его партиции.
func (m *MemoryStore) UpsertRun(_ context.Context, run domain.AssetRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := m.runs[run.RunID]
	for i := range runs {
		if runs[i].Partition == run.Partition {
			runs[i].Status = run.Status
			return nil
		}
	}
	m.runs[run.RunID] = append(runs, run)
	return nil
}

// RecordMaterialization записывает материализацию партиции.
func (m *MemoryStore) RecordMaterialization(p domain.AssetPartition, runID string) domain.AssetEvent {
	return m.record(domain.EventTypeMaterialization, p, runID)
}

// RecordObservation записывает наблюдение партиции.
func (m *MemoryStore) RecordObservation(p domain.AssetPartition) domain.AssetEvent {
	return m.record(domain.EventTypeObservation, p, "")
}

func (m *MemoryStore) record(t domain.EventType, p domain.AssetPartition, runID string) domain.AssetEvent {
	e := domain.AssetEvent{Type: t, Partition: p, RunID: runID, Timestamp: m.clock.Now()}
	id, _ := m.AppendEvent(context.Background(), e)
	e.StorageID = id
	return e
}

// StartRun регистрирует run в статусе RUNNING для указанных партиций.
func (m *MemoryStore) StartRun(runID string, parts ...domain.AssetPartition) {
	for _, p := range parts {
		_ = m.UpsertRun(context.Background(), domain.AssetRun{
			RunID:     runID,
			Partition: p,
			Status:    domain.RunStatusRunning,
		})
	}
}

// FinishRun завершает run. При SUCCEEDED записывает материализации его партиций.
func (m *MemoryStore) FinishRun(runID string, status domain.RunStatus) error {
	m.mu.Lock()
	runs, ok := m.runs[runID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	parts := make([]domain.AssetPartition, len(runs))
	for i := range runs {
		runs[i].Status = status
		parts[i] = runs[i].Partition
	}
	m.mu.Unlock()

	if status == domain.RunStatusSucceeded {
		for _, p := range parts {
			m.RecordMaterialization(p, runID)
		}
	}
	return nil
}

// Events возвращает копию журнала.
func (m *MemoryStore) Events() []domain.AssetEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]domain.AssetEvent, len(m.events))
	copy(events, m.events)
	return events
}

// LoadSnapshot реализует Loader.
func (m *MemoryStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]domain.AssetRun, 0, len(m.runs))
	for _, rs := range m.runs {
		runs = append(runs, rs...)
	}
	return NewSnapshot(m.events, runs), nil
}
