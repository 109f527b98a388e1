package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/assetsched/internal/assetgraph"
	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/history"
	"github.com/shaiso/assetsched/internal/policy"
	"github.com/shaiso/assetsched/internal/telemetry"
)

// Scheduler — планировщик, вычисляющий политики всех asset на каждом тике.
type Scheduler struct {
	bundle       *policy.Bundle
	loader       history.Loader
	states       StateStore
	publisher    RunRequestPublisher
	metrics      *telemetry.Metrics
	clock        clockwork.Clock
	logger       *slog.Logger
	workers      int
	disableCache bool
}

// Config — конфигурация Scheduler.
type Config struct {
	Bundle       *policy.Bundle
	Loader       history.Loader
	States       StateStore
	Publisher    RunRequestPublisher // опционально
	Metrics      *telemetry.Metrics  // опционально
	Clock        clockwork.Clock     // default: реальные часы
	Logger       *slog.Logger        // default: slog.Default()
	Workers      int                 // параллельность вычисления (default: 4)
	DisableCache bool
}

// TickResult — итог успешного тика.
type TickResult struct {
	EvaluationID uuid.UUID
	EvaluatedAt  time.Time
	Results      map[domain.AssetKey]*condition.Result
	RunRequests  []domain.RunRequest
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		bundle:       cfg.Bundle,
		loader:       cfg.Loader,
		states:       cfg.States,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		clock:        clock,
		logger:       logger,
		workers:      workers,
		disableCache: cfg.DisableCache,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Фиксирует время тика и загружает снимок истории
// 2. Загружает состояния предыдущего тика
// 3. Вычисляет политики всех asset параллельно на одном View
// 4. Сворачивает истинные подмножества в запросы на запуск
// 5. Одной записью сохраняет состояния и запросы
// 6. Публикует запросы
//
// Любая ошибка на шагах 1–5 (включая отмену ctx) означает, что тик не
// состоялся: ничего не записано, следующий тик начнёт с прежнего состояния.
// Ошибка публикации не фатальна: запросы уже сохранены.
func (s *Scheduler) Tick(ctx context.Context) (*TickResult, error) {
	start := s.clock.Now()
	res, err := s.tick(ctx, start)
	s.metrics.ObserveTick(s.clock.Since(start), err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) (*TickResult, error) {
	evaluationID := uuid.New()
	logger := telemetry.WithEvaluationID(s.logger, evaluationID.String())

	// 1. Снимок истории
	snap, err := s.loader.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history snapshot: %w", err)
	}

	// 2. Состояния предыдущего тика
	prev, err := s.states.LoadStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load evaluation states: %w", err)
	}

	// 3. Вычисление
	view := assetgraph.NewView(s.bundle.Graph, snap, now)
	keys := s.bundle.Keys()
	results := make([]*condition.Result, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, key := range keys {
		root, _ := s.bundle.Policy(key)
		g.Go(func() error {
			res, err := condition.Evaluate(gctx, root, condition.RootConfig{
				AssetKey:      key,
				View:          view,
				PreviousState: prev[key],
				DisableCache:  s.disableCache,
				Clock:         s.clock,
				Logger:        telemetry.WithAssetKey(logger, key.String()),
			})
			if err != nil {
				return fmt.Errorf("asset %s: %w", key, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 4. Запросы на запуск
	requests := BuildRunRequests(evaluationID, results, now)

	// 5. Атомарная запись
	states := make([]*condition.EvaluationState, len(keys))
	byKey := make(map[domain.AssetKey]*condition.Result, len(keys))
	for i, key := range keys {
		states[i] = condition.NewEvaluationState(evaluationID, now, results[i], snap)
		byKey[key] = results[i]
	}
	if err := s.states.SaveStates(ctx, states, requests); err != nil {
		return nil, fmt.Errorf("save evaluation states: %w", err)
	}

	for i, key := range keys {
		s.metrics.ObserveEvaluation(key.String(), results[i].TrueSubset.Size())
	}
	s.metrics.AddRunRequests(len(requests))

	// 6. Публикация
	if s.publisher != nil && len(requests) > 0 {
		if err := s.publisher.PublishRunRequests(ctx, requests); err != nil {
			// Не фатально: запросы сохранены вместе с состояниями
			s.metrics.IncPublishFailures()
			logger.Warn("failed to publish run requests",
				"count", len(requests),
				"error", err,
			)
		}
	}

	logger.Info("scheduler tick completed",
		"assets", len(keys),
		"run_requests", len(requests),
		"max_storage_id", snap.MaxStorageID(),
	)

	return &TickResult{
		EvaluationID: evaluationID,
		EvaluatedAt:  now,
		Results:      byKey,
		RunRequests:  requests,
	}, nil
}

// Run вызывает Tick с интервалом interval до отмены ctx.
// Первый тик выполняется сразу. Ошибки тика логируются, цикл продолжается.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	s.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler tick failed", "error", err)
	}
}
