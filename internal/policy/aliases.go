package policy

import (
	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/legacy"
)

// kindAliases — исторические имена классов условий.
// Используются только при декодировании.
var kindAliases = map[string]condition.Kind{
	"AndAssetCondition":               condition.KindAnd,
	"AndAutomationCondition":          condition.KindAnd,
	"OrAssetCondition":                condition.KindOr,
	"OrAutomationCondition":           condition.KindOr,
	"NotAssetCondition":               condition.KindNot,
	"NotAutomationCondition":          condition.KindNot,
	"AnyDepsCondition":                condition.KindAnyDepsMatch,
	"AllDepsCondition":                condition.KindAllDepsMatch,
	"DepConditionWrapperCondition":    condition.KindDep,
	"MaterializedSchedulingCondition": condition.KindMaterialized,
	"MissingSchedulingCondition":      condition.KindMissing,
	"InProgressSchedulingCondition":   condition.KindInProgress,
	"InLatestTimeWindowCondition":     condition.KindInLatestTimeWindow,
	"UpdatedSinceCronCondition":       condition.KindUpdatedSinceCron,
	"RuleCondition":                   legacy.KindRule,
}

// knownKinds — допустимые типы узлов.
var knownKinds = map[condition.Kind]bool{
	condition.KindAnd:                true,
	condition.KindOr:                 true,
	condition.KindNot:                true,
	condition.KindAnyDepsMatch:       true,
	condition.KindAllDepsMatch:       true,
	condition.KindDep:                true,
	condition.KindMaterialized:       true,
	condition.KindMissing:            true,
	condition.KindInProgress:         true,
	condition.KindInLatestTimeWindow: true,
	condition.KindUpdatedSinceCron:   true,
	legacy.KindRule:                  true,
}

// NormalizeKind приводит имя типа или историческое имя класса к Kind.
func NormalizeKind(name string) (condition.Kind, bool) {
	if kind, ok := kindAliases[name]; ok {
		return kind, true
	}
	kind := condition.Kind(name)
	return kind, knownKinds[kind]
}
