package legacy

import (
	"errors"
	"fmt"

	"github.com/shaiso/assetsched/internal/assetgraph"
	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/subset"
)

// KindRule — тип узла-адаптера правила.
const KindRule condition.Kind = "rule"

// Ошибки правил.
var (
	// ErrUnknownRule — неизвестный тип правила.
	ErrUnknownRule = errors.New("unknown auto-materialize rule")

	// ErrWrongDecision — правило передано не в тот список (materialize/skip).
	ErrWrongDecision = errors.New("rule decision does not match")

	// ErrNoMaterializeRules — политика без правил материализации.
	ErrNoMaterializeRules = errors.New("policy has no materialize rules")
)

// Decision — что означает истинность правила.
type Decision string

const (
	DecisionMaterialize Decision = "materialize"
	DecisionSkip        Decision = "skip"
)

// RuleKind — тип правила.
type RuleKind string

const (
	RuleMaterializeOnMissing                RuleKind = "materialize_on_missing"
	RuleMaterializeOnParentUpdated          RuleKind = "materialize_on_parent_updated"
	RuleMaterializeOnCron                   RuleKind = "materialize_on_cron"
	RuleSkipOnParentMissing                 RuleKind = "skip_on_parent_missing"
	RuleSkipOnNotUpdatedSinceCron           RuleKind = "skip_on_not_updated_since_cron"
	RuleSkipOnNotAllParentsUpdatedSinceCron RuleKind = "skip_on_not_all_parents_updated_since_cron"
)

// RuleEvaluation — результат правила.
type RuleEvaluation struct {
	TrueSubset subset.AssetSubset
	Metadata   []condition.SubsetWithMetadata
	ExtraState any

	// Incremental — результат получен обновлением результата предыдущего тика.
	Incremental bool
}

// Rule — правило автоматической материализации старого формата.
type Rule interface {
	Kind() RuleKind
	Decision() Decision
	Description() string
	Evaluate(ctx *condition.Context) (RuleEvaluation, error)
}

// RuleCondition — адаптер, встраивающий Rule в дерево условий как лист.
type RuleCondition struct {
	Rule Rule
}

// NewRuleCondition создаёт адаптер.
func NewRuleCondition(rule Rule) *RuleCondition {
	return &RuleCondition{Rule: rule}
}

// Kind реализует condition.Condition.
func (c *RuleCondition) Kind() condition.Kind { return KindRule }

// Description реализует condition.Condition.
func (c *RuleCondition) Description() string {
	if c.Rule == nil {
		return "<nil rule>"
	}
	return c.Rule.Description()
}

// Children реализует condition.Condition.
func (c *RuleCondition) Children() []condition.Condition { return nil }

// Validate реализует condition.Validator.
func (c *RuleCondition) Validate(g *assetgraph.Graph, key domain.AssetKey) error {
	if c.Rule == nil {
		return errors.New("rule is required")
	}
	if v, ok := c.Rule.(condition.Validator); ok {
		return v.Validate(g, key)
	}
	return nil
}

// Evaluate реализует condition.Condition. Истинное подмножество правила
// ограничивается кандидатами узла.
func (c *RuleCondition) Evaluate(ctx *condition.Context) (*condition.Result, error) {
	ev, err := c.Rule.Evaluate(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", c.Rule.Kind(), err)
	}
	trueSubset, err := ctx.Candidate.Intersect(ev.TrueSubset)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", c.Rule.Kind(), err)
	}

	res := condition.Create(ctx, trueSubset, ev.Metadata, ev.ExtraState)
	res.FromCache = ev.Incremental
	return res, nil
}

// NewRule создаёт правило по типу. cron и timezone нужны только cron-правилам.
func NewRule(kind RuleKind, cronExpr, timezone string) (Rule, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	switch kind {
	case RuleMaterializeOnMissing:
		return MaterializeOnMissing{}, nil
	case RuleMaterializeOnParentUpdated:
		return MaterializeOnParentUpdated{}, nil
	case RuleMaterializeOnCron:
		return MaterializeOnCron{Cron: cronExpr, Timezone: timezone}, nil
	case RuleSkipOnParentMissing:
		return SkipOnParentMissing{}, nil
	case RuleSkipOnNotUpdatedSinceCron:
		return SkipOnNotUpdatedSinceCron{Cron: cronExpr, Timezone: timezone}, nil
	case RuleSkipOnNotAllParentsUpdatedSinceCron:
		return SkipOnNotAllParentsUpdatedSinceCron{Cron: cronExpr, Timezone: timezone}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, kind)
	}
}
