package condition

import (
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/assetsched/internal/assetgraph"
	"github.com/shaiso/assetsched/internal/cronutil"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/subset"
)

// sliceResult вычисляет листовое условие как пересечение кандидатов
// с подмножеством из View. Пустые кандидаты ничего не запрашивают,
// невалидные — ошибка.
func sliceResult(ctx *Context, compute func() subset.AssetSubset) (*Result, error) {
	if !ctx.Candidate.IsValid() {
		return nil, fmt.Errorf("%s: candidate: %w", ctx.AssetKey, subset.ErrInvalidSubset)
	}
	if ctx.Candidate.IsEmpty() {
		return Create(ctx, ctx.EmptySubset(), nil, nil), nil
	}
	trueSubset, err := ctx.Candidate.Intersect(compute())
	if err != nil {
		return nil, err
	}
	return Create(ctx, trueSubset, nil, nil), nil
}

// MaterializedCondition — партиция материализована хотя бы раз.
type MaterializedCondition struct{}

// Materialized создаёт MaterializedCondition.
func Materialized() *MaterializedCondition { return &MaterializedCondition{} }

// Kind реализует Condition.
func (c *MaterializedCondition) Kind() Kind { return KindMaterialized }

// Description реализует Condition.
func (c *MaterializedCondition) Description() string { return "Materialized" }

// Children реализует Condition.
func (c *MaterializedCondition) Children() []Condition { return nil }

// Evaluate реализует Condition.
func (c *MaterializedCondition) Evaluate(ctx *Context) (*Result, error) {
	return sliceResult(ctx, func() subset.AssetSubset {
		return ctx.View.MaterializedSubset(ctx.AssetKey)
	})
}

// MissingCondition — партиция ни разу не материализована.
type MissingCondition struct{}

// Missing создаёт MissingCondition.
func Missing() *MissingCondition { return &MissingCondition{} }

// Kind реализует Condition.
func (c *MissingCondition) Kind() Kind { return KindMissing }

// Description реализует Condition.
func (c *MissingCondition) Description() string { return "Missing" }

// Children реализует Condition.
func (c *MissingCondition) Children() []Condition { return nil }

// Evaluate реализует Condition.
func (c *MissingCondition) Evaluate(ctx *Context) (*Result, error) {
	return sliceResult(ctx, func() subset.AssetSubset {
		return ctx.View.MissingSubset(ctx.AssetKey)
	})
}

// InProgressCondition — на партицию нацелен незавершённый run.
type InProgressCondition struct{}

// InProgress создаёт InProgressCondition.
func InProgress() *InProgressCondition { return &InProgressCondition{} }

// Kind реализует Condition.
func (c *InProgressCondition) Kind() Kind { return KindInProgress }

// Description реализует Condition.
func (c *InProgressCondition) Description() string { return "Part of an in-progress run" }

// Children реализует Condition.
func (c *InProgressCondition) Children() []Condition { return nil }

// Evaluate реализует Condition.
func (c *InProgressCondition) Evaluate(ctx *Context) (*Result, error) {
	return sliceResult(ctx, func() subset.AssetSubset {
		return ctx.View.InProgressSubset(ctx.AssetKey)
	})
}

// InLatestTimeWindowCondition — партиция входит в последние временные окна.
// Для asset без временных партиций истинно на всех партициях.
type InLatestTimeWindowCondition struct {
	// Lookback расширяет окно назад от конца последней партиции (0 — только последняя).
	Lookback time.Duration
}

// InLatestTimeWindow создаёт InLatestTimeWindowCondition.
func InLatestTimeWindow(lookback time.Duration) *InLatestTimeWindowCondition {
	return &InLatestTimeWindowCondition{Lookback: lookback}
}

// Kind реализует Condition.
func (c *InLatestTimeWindowCondition) Kind() Kind { return KindInLatestTimeWindow }

// Description реализует Condition.
func (c *InLatestTimeWindowCondition) Description() string {
	if c.Lookback <= 0 {
		return "Within latest time window"
	}
	return fmt.Sprintf("Within %s of latest time window", c.Lookback)
}

// Children реализует Condition.
func (c *InLatestTimeWindowCondition) Children() []Condition { return nil }

// Evaluate реализует Condition.
func (c *InLatestTimeWindowCondition) Evaluate(ctx *Context) (*Result, error) {
	return sliceResult(ctx, func() subset.AssetSubset {
		return ctx.View.LatestTimeWindowSubset(ctx.AssetKey, c.Lookback)
	})
}

// Validate проверяет параметры.
func (c *InLatestTimeWindowCondition) Validate(_ *assetgraph.Graph, _ domain.AssetKey) error {
	if c.Lookback < 0 {
		return errors.New("lookback must not be negative")
	}
	return nil
}

// UpdatedSinceCronCondition — партиция обновлена после последнего тика cron.
//
// Результат предыдущего тика переиспользуется, если с тех пор не было
// нового тика cron, кандидаты и партиции не изменились и у asset
// нет новых событий.
type UpdatedSinceCronCondition struct {
	Cron     string
	Timezone string
}

// UpdatedSinceCron создаёт UpdatedSinceCronCondition. Пустой timezone — UTC.
func UpdatedSinceCron(cronExpr, timezone string) *UpdatedSinceCronCondition {
	if timezone == "" {
		timezone = "UTC"
	}
	return &UpdatedSinceCronCondition{Cron: cronExpr, Timezone: timezone}
}

// Kind реализует Condition.
func (c *UpdatedSinceCronCondition) Kind() Kind { return KindUpdatedSinceCron }

// Description реализует Condition.
func (c *UpdatedSinceCronCondition) Description() string {
	return fmt.Sprintf("Updated since latest tick of %s (%s)", c.Cron, c.Timezone)
}

// Children реализует Condition.
func (c *UpdatedSinceCronCondition) Children() []Condition { return nil }

// Validate проверяет cron-выражение.
func (c *UpdatedSinceCronCondition) Validate(_ *assetgraph.Graph, _ domain.AssetKey) error {
	return cronutil.Validate(c.Cron)
}

// Evaluate реализует Condition.
func (c *UpdatedSinceCronCondition) Evaluate(ctx *Context) (*Result, error) {
	tick, err := LatestCronTick(c.Cron, c.Timezone, ctx.EffectiveTime())
	if err != nil {
		return nil, err
	}

	if prev, ok := c.reusable(ctx, tick); ok {
		res := Create(ctx, prev, nil, nil)
		res.FromCache = true
		return res, nil
	}

	trueSubset, err := ctx.Candidate.Intersect(ctx.View.UpdatedAfterTimeSubset(ctx.AssetKey, tick))
	if err != nil {
		return nil, err
	}
	return Create(ctx, trueSubset, nil, nil), nil
}

// reusable возвращает истинное подмножество предыдущего тика, если оно
// заведомо совпадает с пересчитанным.
func (c *UpdatedSinceCronCondition) reusable(ctx *Context, tick time.Time) (subset.AssetSubset, bool) {
	if ctx.HasNewCandidateSubset() {
		return subset.AssetSubset{}, false
	}
	evaluatedAt, ok := ctx.PreviousEvaluatedAt()
	if !ok || evaluatedAt.Before(tick) {
		return subset.AssetSubset{}, false
	}
	if ctx.AssetUpdatedSincePreviousEvaluation() {
		return subset.AssetSubset{}, false
	}
	return ctx.PreviousTrueSubset()
}

// LatestCronTick возвращает последний тик cron не позже at.
// Если расписание ещё не срабатывало, возвращается нулевое время.
func LatestCronTick(cronExpr, timezone string, at time.Time) (time.Time, error) {
	tick, err := cronutil.LatestTick(cronExpr, timezone, at)
	if errors.Is(err, cronutil.ErrNoTick) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	return tick, nil
}
