package scheduler

import (
	"context"
	"sync"

	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
)

// StateStore — хранилище состояний вычисления между тиками.
//
// SaveStates записывает состояния всех asset и запросы на запуск одного тика
// атомарно: либо всё, либо ничего.
type StateStore interface {
	LoadStates(ctx context.Context) (map[domain.AssetKey]*condition.EvaluationState, error)
	SaveStates(ctx context.Context, states []*condition.EvaluationState, requests []domain.RunRequest) error
}

// RunRequestPublisher — получатель запросов на запуск.
type RunRequestPublisher interface {
	PublishRunRequests(ctx context.Context, requests []domain.RunRequest) error
}

// MemoryStateStore — StateStore в памяти.
type MemoryStateStore struct {
	mu       sync.RWMutex
	states   map[domain.AssetKey]*condition.EvaluationState
	requests []domain.RunRequest
	saves    int
}

// NewMemoryStateStore создаёт пустое хранилище.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[domain.AssetKey]*condition.EvaluationState)}
}

// LoadStates реализует StateStore.
func (m *MemoryStateStore) LoadStates(ctx context.Context) (map[domain.AssetKey]*condition.EvaluationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[domain.AssetKey]*condition.EvaluationState, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out, nil
}

// SaveStates реализует StateStore.
func (m *MemoryStateStore) SaveStates(ctx context.Context, states []*condition.EvaluationState, requests []domain.RunRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range states {
		m.states[s.AssetKey] = s
	}
	m.requests = append(m.requests, requests...)
	m.saves++
	return nil
}

// State возвращает последнее состояние asset.
func (m *MemoryStateStore) State(key domain.AssetKey) (*condition.EvaluationState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[key]
	return s, ok
}

// RunRequests возвращает все сохранённые запросы на запуск.
func (m *MemoryStateStore) RunRequests() []domain.RunRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.RunRequest(nil), m.requests...)
}

// Saves возвращает число успешных SaveStates.
func (m *MemoryStateStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
