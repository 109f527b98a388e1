package legacy

import (
	"fmt"

	"github.com/shaiso/assetsched/internal/condition"
)

// Missing — материализовать отсутствующие партиции.
func Missing() *RuleCondition {
	return NewRuleCondition(MaterializeOnMissing{})
}

// ParentNewer — материализовать партиции с обновлёнными родителями.
func ParentNewer() *RuleCondition {
	return NewRuleCondition(MaterializeOnParentUpdated{})
}

// ParentMissing — истинно, пока какой-либо родитель отсутствует.
func ParentMissing() *RuleCondition {
	return NewRuleCondition(SkipOnParentMissing{})
}

// OnCron — материализовать последнюю партицию после тика cron.
func OnCron(cronExpr, timezone string) *RuleCondition {
	if timezone == "" {
		timezone = "UTC"
	}
	return NewRuleCondition(MaterializeOnCron{Cron: cronExpr, Timezone: timezone})
}

// UpdatedSinceCron — партиция обновлена после последнего тика cron.
// Выражается как отрицание правила пропуска и совпадает по результату
// с condition.UpdatedSinceCron.
func UpdatedSinceCron(cronExpr, timezone string) *condition.NotCondition {
	if timezone == "" {
		timezone = "UTC"
	}
	return condition.Not(NewRuleCondition(SkipOnNotUpdatedSinceCron{Cron: cronExpr, Timezone: timezone}))
}

// ParentsUpdatedSinceCron — все отображённые родительские партиции обновлены
// после последнего тика cron.
func ParentsUpdatedSinceCron(cronExpr, timezone string) *condition.NotCondition {
	if timezone == "" {
		timezone = "UTC"
	}
	return condition.Not(NewRuleCondition(SkipOnNotAllParentsUpdatedSinceCron{Cron: cronExpr, Timezone: timezone}))
}

// PolicyFromRules собирает политику старого формата:
//
//	And(Or(materialize...), Not(Or(skip...)))
//
// Без правил пропуска остаётся только Or(materialize...).
func PolicyFromRules(materialize, skip []Rule) (condition.Condition, error) {
	if len(materialize) == 0 {
		return nil, ErrNoMaterializeRules
	}

	matConds := make([]condition.Condition, 0, len(materialize))
	for _, r := range materialize {
		if r.Decision() != DecisionMaterialize {
			return nil, fmt.Errorf("%w: %s is a %s rule", ErrWrongDecision, r.Kind(), r.Decision())
		}
		matConds = append(matConds, NewRuleCondition(r))
	}
	policy := condition.Or(matConds...)
	if len(skip) == 0 {
		return policy, nil
	}

	skipConds := make([]condition.Condition, 0, len(skip))
	for _, r := range skip {
		if r.Decision() != DecisionSkip {
			return nil, fmt.Errorf("%w: %s is a %s rule", ErrWrongDecision, r.Kind(), r.Decision())
		}
		skipConds = append(skipConds, NewRuleCondition(r))
	}
	return condition.And(policy, condition.Not(condition.Or(skipConds...))), nil
}
