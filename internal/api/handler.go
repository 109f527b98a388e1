package api

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/mq"
	"github.com/shaiso/assetsched/internal/policy"
)

// StateReader — источник сохранённых результатов вычисления.
type StateReader interface {
	LoadStates(ctx context.Context) (map[domain.AssetKey]*condition.EvaluationState, error)
}

// EventPublisher — получатель событий, принятых через API.
type EventPublisher interface {
	PublishAssetEvent(ctx context.Context, payload mq.AssetEventPayload) error
	PublishRunStatus(ctx context.Context, payload mq.RunStatusPayload) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	bundle    *policy.Bundle
	states    StateReader
	publisher EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Bundle    *policy.Bundle
	States    StateReader
	Publisher EventPublisher  // nil — приём событий отключён
	Clock     clockwork.Clock // default: реальные часы
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		bundle:    cfg.Bundle,
		states:    cfg.States,
		publisher: cfg.Publisher,
		clock:     clock,
		logger:    logger,
	}
}
