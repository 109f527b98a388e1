// Package legacy встраивает правила автоматической материализации старого
// формата в дерево условий.
//
// Каждое правило становится листом RuleCondition. Набор правил собирается
// в политику функцией PolicyFromRules; построители Missing, ParentNewer,
// UpdatedSinceCron и другие дают готовые узлы для композиции с условиями
// пакета condition.
package legacy
