package legacy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shaiso/assetsched/internal/assetgraph"
	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/cronutil"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/subset"
)

// --- materialize_on_missing ---

// MaterializeOnMissing — партиция ни разу не материализована.
//
// Если кандидаты не изменились с прошлого тика, результат обновляется
// инкрементально: из прошлого ответа убираются материализованные партиции.
// Материализации не отменяются, поэтому ответ совпадает с полным вычислением
// при любом порядке появления событий в журнале.
type MaterializeOnMissing struct{}

// Kind реализует Rule.
func (MaterializeOnMissing) Kind() RuleKind { return RuleMaterializeOnMissing }

// Decision реализует Rule.
func (MaterializeOnMissing) Decision() Decision { return DecisionMaterialize }

// Description реализует Rule.
func (MaterializeOnMissing) Description() string { return "materialization is missing" }

// Evaluate реализует Rule.
func (MaterializeOnMissing) Evaluate(ctx *condition.Context) (RuleEvaluation, error) {
	if prev, ok := ctx.PreviousTrueSubset(); ok {
		stillMissing, err := prev.Subtract(ctx.View.MaterializedSubset(ctx.AssetKey))
		if err != nil {
			return RuleEvaluation{}, err
		}
		return RuleEvaluation{TrueSubset: stillMissing, Incremental: true}, nil
	}
	return RuleEvaluation{TrueSubset: ctx.View.MissingSubset(ctx.AssetKey)}, nil
}

// --- materialize_on_parent_updated ---

// MaterializeOnParentUpdated — хотя бы одна родительская партиция обновлена
// позже последней материализации партиции.
// Метаданные группируют партиции по набору обновлённых родителей.
type MaterializeOnParentUpdated struct{}

// Kind реализует Rule.
func (MaterializeOnParentUpdated) Kind() RuleKind { return RuleMaterializeOnParentUpdated }

// Decision реализует Rule.
func (MaterializeOnParentUpdated) Decision() Decision { return DecisionMaterialize }

// Description реализует Rule.
func (MaterializeOnParentUpdated) Description() string {
	return "upstream data has changed since latest materialization"
}

// Evaluate реализует Rule.
func (MaterializeOnParentUpdated) Evaluate(ctx *condition.Context) (RuleEvaluation, error) {
	h := ctx.View.History()
	parents := ctx.View.Graph().ParentKeys(ctx.AssetKey)

	return partitionsWithParents(ctx, "updated_parents", func(i int, pk string) []domain.AssetKey {
		var own int64
		if rec, ok := h.LatestMaterialization(domain.NewAssetPartition(ctx.AssetKey, pk)); ok {
			own = rec.StorageID
		}

		var updated []domain.AssetKey
		for _, parent := range parents {
			space, _ := ctx.View.Space(parent)
			for _, j := range ctx.View.Upstream(ctx.AssetKey, parent, i) {
				rec, ok := h.LatestUpdate(domain.NewAssetPartition(parent, space.Key(j)))
				if ok && rec.StorageID > own {
					updated = append(updated, parent)
					break
				}
			}
		}
		return updated
	})
}

// --- skip_on_parent_missing ---

// SkipOnParentMissing — хотя бы одна родительская партиция ни разу не
// материализована и не наблюдалась.
type SkipOnParentMissing struct{}

// Kind реализует Rule.
func (SkipOnParentMissing) Kind() RuleKind { return RuleSkipOnParentMissing }

// Decision реализует Rule.
func (SkipOnParentMissing) Decision() Decision { return DecisionSkip }

// Description реализует Rule.
func (SkipOnParentMissing) Description() string { return "waiting on upstream data" }

// Evaluate реализует Rule.
func (SkipOnParentMissing) Evaluate(ctx *condition.Context) (RuleEvaluation, error) {
	h := ctx.View.History()
	parents := ctx.View.Graph().ParentKeys(ctx.AssetKey)

	return partitionsWithParents(ctx, "waiting_on", func(i int, _ string) []domain.AssetKey {
		var missing []domain.AssetKey
		for _, parent := range parents {
			space, _ := ctx.View.Space(parent)
			for _, j := range ctx.View.Upstream(ctx.AssetKey, parent, i) {
				if _, ok := h.LatestUpdate(domain.NewAssetPartition(parent, space.Key(j))); !ok {
					missing = append(missing, parent)
					break
				}
			}
		}
		return missing
	})
}

// --- cron rules ---

// MaterializeOnCron — партиция не обновлялась с последнего тика cron.
// Для временных партиций рассматривается только последнее окно.
type MaterializeOnCron struct {
	Cron     string
	Timezone string
}

// Kind реализует Rule.
func (MaterializeOnCron) Kind() RuleKind { return RuleMaterializeOnCron }

// Decision реализует Rule.
func (MaterializeOnCron) Decision() Decision { return DecisionMaterialize }

// Description реализует Rule.
func (r MaterializeOnCron) Description() string {
	return fmt.Sprintf("not materialized since last cron schedule tick of '%s' (timezone: %s)", r.Cron, r.Timezone)
}

// Validate реализует condition.Validator.
func (r MaterializeOnCron) Validate(_ *assetgraph.Graph, _ domain.AssetKey) error {
	return cronutil.Validate(r.Cron)
}

// Evaluate реализует Rule.
func (r MaterializeOnCron) Evaluate(ctx *condition.Context) (RuleEvaluation, error) {
	notUpdated, err := notUpdatedSinceTick(ctx, r.Cron, r.Timezone)
	if err != nil {
		return RuleEvaluation{}, err
	}
	latest, err := notUpdated.Intersect(ctx.View.LatestTimeWindowSubset(ctx.AssetKey, 0))
	if err != nil {
		return RuleEvaluation{}, err
	}
	return RuleEvaluation{TrueSubset: latest}, nil
}

// SkipOnNotUpdatedSinceCron — партиция не обновлялась с последнего тика cron.
type SkipOnNotUpdatedSinceCron struct {
	Cron     string
	Timezone string
}

// Kind реализует Rule.
func (SkipOnNotUpdatedSinceCron) Kind() RuleKind { return RuleSkipOnNotUpdatedSinceCron }

// Decision реализует Rule.
func (SkipOnNotUpdatedSinceCron) Decision() Decision { return DecisionSkip }

// Description реализует Rule.
func (r SkipOnNotUpdatedSinceCron) Description() string {
	return fmt.Sprintf("not updated since latest tick of %s (%s)", r.Cron, r.Timezone)
}

// Validate реализует condition.Validator.
func (r SkipOnNotUpdatedSinceCron) Validate(_ *assetgraph.Graph, _ domain.AssetKey) error {
	return cronutil.Validate(r.Cron)
}

// Evaluate реализует Rule.
func (r SkipOnNotUpdatedSinceCron) Evaluate(ctx *condition.Context) (RuleEvaluation, error) {
	notUpdated, err := notUpdatedSinceTick(ctx, r.Cron, r.Timezone)
	if err != nil {
		return RuleEvaluation{}, err
	}
	return RuleEvaluation{TrueSubset: notUpdated}, nil
}

// SkipOnNotAllParentsUpdatedSinceCron — хотя бы одна отображённая
// родительская партиция не обновлялась с последнего тика cron.
type SkipOnNotAllParentsUpdatedSinceCron struct {
	Cron     string
	Timezone string
}

// Kind реализует Rule.
func (SkipOnNotAllParentsUpdatedSinceCron) Kind() RuleKind {
	return RuleSkipOnNotAllParentsUpdatedSinceCron
}

// Decision реализует Rule.
func (SkipOnNotAllParentsUpdatedSinceCron) Decision() Decision { return DecisionSkip }

// Description реализует Rule.
func (r SkipOnNotAllParentsUpdatedSinceCron) Description() string {
	return fmt.Sprintf("waiting until all upstream assets have updated since latest tick of %s (%s)", r.Cron, r.Timezone)
}

// Validate реализует condition.Validator.
func (r SkipOnNotAllParentsUpdatedSinceCron) Validate(_ *assetgraph.Graph, _ domain.AssetKey) error {
	return cronutil.Validate(r.Cron)
}

// Evaluate реализует Rule.
func (r SkipOnNotAllParentsUpdatedSinceCron) Evaluate(ctx *condition.Context) (RuleEvaluation, error) {
	tick, err := condition.LatestCronTick(r.Cron, r.Timezone, ctx.EffectiveTime())
	if err != nil {
		return RuleEvaluation{}, err
	}

	parents := ctx.View.Graph().ParentKeys(ctx.AssetKey)
	updatedByParent := make(map[domain.AssetKey]subset.AssetSubset, len(parents))
	for _, parent := range parents {
		updatedByParent[parent] = ctx.View.UpdatedAfterTimeSubset(parent, tick)
	}

	return partitionsWithParents(ctx, "waiting_on", func(i int, _ string) []domain.AssetKey {
		var waiting []domain.AssetKey
		for _, parent := range parents {
			for _, j := range ctx.View.Upstream(ctx.AssetKey, parent, i) {
				if !updatedByParent[parent].Has(j) {
					waiting = append(waiting, parent)
					break
				}
			}
		}
		return waiting
	})
}

// notUpdatedSinceTick возвращает кандидатов, не обновлявшихся после последнего тика.
func notUpdatedSinceTick(ctx *condition.Context, cronExpr, timezone string) (subset.AssetSubset, error) {
	tick, err := condition.LatestCronTick(cronExpr, timezone, ctx.EffectiveTime())
	if err != nil {
		return subset.AssetSubset{}, err
	}
	return ctx.Candidate.Subtract(ctx.View.UpdatedAfterTimeSubset(ctx.AssetKey, tick))
}

// partitionsWithParents отбирает кандидатов, для которых fn вернул хотя бы
// одного родителя, и группирует их в метаданные по набору родителей.
func partitionsWithParents(
	ctx *condition.Context,
	metadataKey string,
	fn func(i int, partitionKey string) []domain.AssetKey,
) (RuleEvaluation, error) {
	groups := make(map[string][]string)
	var all []string

	ctx.Candidate.Each(func(i int, pk string) {
		parents := fn(i, pk)
		if len(parents) == 0 {
			return
		}
		names := make([]string, len(parents))
		for n, p := range parents {
			names[n] = p.String()
		}
		slices.Sort(names)
		group := strings.Join(names, ",")
		groups[group] = append(groups[group], pk)
		all = append(all, pk)
	})

	trueSubset, err := ctx.View.SubsetFromKeys(ctx.AssetKey, all...)
	if err != nil {
		return RuleEvaluation{}, err
	}

	groupNames := make([]string, 0, len(groups))
	for name := range groups {
		groupNames = append(groupNames, name)
	}
	slices.Sort(groupNames)

	metadata := make([]condition.SubsetWithMetadata, 0, len(groupNames))
	for _, name := range groupNames {
		s, err := ctx.View.SubsetFromKeys(ctx.AssetKey, groups[name]...)
		if err != nil {
			return RuleEvaluation{}, err
		}
		metadata = append(metadata, condition.SubsetWithMetadata{
			Subset:   s,
			Metadata: map[string]any{metadataKey: strings.Split(name, ",")},
		})
	}

	return RuleEvaluation{TrueSubset: trueSubset, Metadata: metadata}, nil
}
