package condition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shaiso/assetsched/internal/assetgraph"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/subset"
	"github.com/shaiso/assetsched/internal/telemetry"
)

// Context — состояние вычисления одного узла дерева.
//
// Context создаётся заново для каждого узла на каждом тике и не меняется.
// Candidate сужается при спуске через AND и операторы зависимостей.
type Context struct {
	// AssetKey — asset, для которого вычисляется узел.
	AssetKey domain.AssetKey

	// Condition — вычисляемый узел.
	Condition Condition

	// UniqueID — структурный идентификатор узла.
	UniqueID string

	// Candidate — партиции, для которых вычисляется узел.
	Candidate subset.AssetSubset

	// View — снимок графа и истории на тик.
	View *assetgraph.View

	// Previous — результат того же узла с теми же кандидатами на предыдущем тике.
	Previous *ResultSnapshot

	// PreviousState — состояние корневого asset после предыдущего тика.
	PreviousState *EvaluationState

	// Start — время создания контекста.
	Start time.Time

	// Logger — логгер вычисления.
	Logger *slog.Logger

	ctx   context.Context
	clock clockwork.Clock
}

// RootConfig — параметры вычисления корня дерева.
type RootConfig struct {
	// AssetKey — asset, для которого вычисляется политика.
	AssetKey domain.AssetKey

	// View — снимок на тик.
	View *assetgraph.View

	// PreviousState — состояние asset после предыдущего тика (nil — первый тик).
	PreviousState *EvaluationState

	// DisableCache отключает переиспользование результатов предыдущего тика.
	DisableCache bool

	// Clock — источник времени (default: реальные часы).
	Clock clockwork.Clock

	// Logger — логгер (default: slog.Default()).
	Logger *slog.Logger
}

// Evaluate вычисляет дерево условий для asset на полном множестве партиций.
//
// Это единственная точка входа вычисления. Ошибка или отмена ctx означают,
// что тик для asset не вычислен; частичный результат не возвращается.
func Evaluate(ctx context.Context, root Condition, cfg RootConfig) (*Result, error) {
	if root == nil {
		return nil, invalid(cfg.AssetKey, nil, "root condition is nil")
	}
	if cfg.View == nil {
		return nil, fmt.Errorf("evaluate %s: view is required", cfg.AssetKey)
	}

	candidate := cfg.View.FullSubset(cfg.AssetKey)
	if !candidate.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, cfg.AssetKey)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	previousState := cfg.PreviousState
	if cfg.DisableCache {
		previousState = nil
	}

	rootCtx := &Context{
		AssetKey:      cfg.AssetKey,
		Condition:     root,
		UniqueID:      UniqueID(root),
		Candidate:     candidate,
		View:          cfg.View,
		PreviousState: previousState,
		Start:         clock.Now(),
		Logger:        logger,
		ctx:           ctx,
		clock:         clock,
	}
	rootCtx.Previous = rootCtx.findPrevious()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := root.Evaluate(rootCtx)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", cfg.AssetKey, err)
	}

	telemetry.WithConditionID(logger, rootCtx.UniqueID).Debug("condition evaluated",
		"asset_key", cfg.AssetKey,
		"true_size", result.TrueSubset.Size(),
		"candidate_size", candidate.Size(),
	)
	return result, nil
}

// findPrevious ищет результат узла в сохранённом дереве предыдущего тика.
func (c *Context) findPrevious() *ResultSnapshot {
	if c.PreviousState == nil || c.PreviousState.Result == nil {
		return nil
	}
	return c.PreviousState.Result.Find(c.AssetKey, c.UniqueID, c.Candidate.Serialize())
}

// Err возвращает ошибку отмены тика.
func (c *Context) Err() error {
	if c.ctx == nil {
		return nil
	}
	return c.ctx.Err()
}

// Now возвращает текущее время по часам тика.
func (c *Context) Now() time.Time {
	if c.clock == nil {
		return time.Now()
	}
	return c.clock.Now()
}

// EffectiveTime возвращает время, на которое построен View.
func (c *Context) EffectiveTime() time.Time {
	return c.View.EffectiveTime()
}

// ForChild создаёт контекст дочернего узла того же asset.
func (c *Context) ForChild(child Condition, candidate subset.AssetSubset) *Context {
	return c.forNode(c.AssetKey, child, candidate)
}

// ForDep создаёт контекст дочернего узла, вычисляемого для зависимости.
func (c *Context) ForDep(dep domain.AssetKey, child Condition, candidate subset.AssetSubset) *Context {
	return c.forNode(dep, child, candidate)
}

func (c *Context) forNode(asset domain.AssetKey, child Condition, candidate subset.AssetSubset) *Context {
	next := &Context{
		AssetKey:      asset,
		Condition:     child,
		UniqueID:      UniqueID(child),
		Candidate:     candidate,
		View:          c.View,
		PreviousState: c.PreviousState,
		Start:         c.Now(),
		Logger:        c.Logger,
		ctx:           c.ctx,
		clock:         c.clock,
	}
	next.Previous = next.findPrevious()
	return next
}

// EvaluateChild вычисляет дочернее условие на кандидатах.
func (c *Context) EvaluateChild(child Condition, candidate subset.AssetSubset) (*Result, error) {
	return evaluateIn(c.ForChild(child, candidate))
}

// EvaluateDep вычисляет условие для зависимости dep на её кандидатах.
func (c *Context) EvaluateDep(dep domain.AssetKey, child Condition, candidate subset.AssetSubset) (*Result, error) {
	return evaluateIn(c.ForDep(dep, child, candidate))
}

func evaluateIn(ctx *Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ctx.Condition == nil {
		return nil, invalid(ctx.AssetKey, nil, "condition is nil")
	}
	res, err := ctx.Condition.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if l := ctx.Logger; l != nil && l.Enabled(context.Background(), slog.LevelDebug) {
		telemetry.WithConditionID(l, ctx.UniqueID).Debug("node evaluated",
			"asset_key", ctx.AssetKey,
			"kind", ctx.Condition.Kind(),
			"true_size", res.TrueSubset.Size(),
			"from_cache", res.FromCache,
		)
	}
	return res, nil
}

// PreviousTrueSubset возвращает истинное подмножество узла с предыдущего тика
// в текущем снимке. false, если результата нет или партиции изменились.
func (c *Context) PreviousTrueSubset() (subset.AssetSubset, bool) {
	if c.Previous == nil {
		return subset.AssetSubset{}, false
	}
	s, err := c.View.SubsetFromSerialized(c.Previous.TrueSubset)
	if err != nil {
		return subset.AssetSubset{}, false
	}
	return s, true
}

// HasNewCandidateSubset возвращает true, если на предыдущем тике узел
// не вычислялся с такими же кандидатами.
func (c *Context) HasNewCandidateSubset() bool {
	return c.Previous == nil
}

// PreviousEvaluatedAt возвращает время предыдущего тика.
func (c *Context) PreviousEvaluatedAt() (time.Time, bool) {
	if c.PreviousState == nil {
		return time.Time{}, false
	}
	return c.PreviousState.EvaluatedAt, true
}

// AssetUpdatedSincePreviousEvaluation проверяет, изменилась ли история asset
// с предыдущего тика. Сравниваются отпечатки истории, а не курсор журнала:
// событие с меньшим StorageID может стать видимым после события с большим.
func (c *Context) AssetUpdatedSincePreviousEvaluation() bool {
	if c.PreviousState == nil {
		return true
	}
	version, ok := c.PreviousState.AssetVersions[c.AssetKey]
	if !ok {
		return true
	}
	return version != c.View.History().AssetVersion(c.AssetKey)
}

// EmptySubset возвращает пустое подмножество asset узла.
func (c *Context) EmptySubset() subset.AssetSubset {
	return c.View.EmptySubset(c.AssetKey)
}
