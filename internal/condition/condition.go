package condition

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Kind — тип узла дерева условий.
type Kind string

const (
	KindAnd                Kind = "and"
	KindOr                 Kind = "or"
	KindNot                Kind = "not"
	KindAnyDepsMatch       Kind = "any_deps_match"
	KindAllDepsMatch       Kind = "all_deps_match"
	KindDep                Kind = "dep"
	KindMaterialized       Kind = "materialized"
	KindMissing            Kind = "missing"
	KindInProgress         Kind = "in_progress"
	KindInLatestTimeWindow Kind = "in_latest_time_window"
	KindUpdatedSinceCron   Kind = "updated_since_cron"
)

// Condition — узел дерева условий планирования.
//
// Условия неизменяемы и создаются один раз при регистрации политики.
// Evaluate возвращает подмножество кандидатов, для которых условие истинно.
type Condition interface {
	// Kind возвращает тип узла.
	Kind() Kind

	// Description возвращает стабильное описание, включающее параметры узла.
	Description() string

	// Children возвращает дочерние условия в порядке вычисления.
	Children() []Condition

	// Evaluate вычисляет условие в контексте.
	Evaluate(ctx *Context) (*Result, error)
}

// identifier — условие с параметрами, которые не видны в Description.
type identifier interface {
	identity() string
}

// UniqueID возвращает структурный идентификатор условия:
// хеш типа, описания и идентификаторов детей. Одинаковые поддеревья
// получают одинаковый идентификатор в любом месте дерева.
func UniqueID(c Condition) string {
	var b strings.Builder
	b.WriteString(string(c.Kind()))
	b.WriteByte(0)
	b.WriteString(c.Description())
	if id, ok := c.(identifier); ok {
		b.WriteByte(0)
		b.WriteString(id.identity())
	}
	for _, child := range c.Children() {
		b.WriteByte(0)
		if child == nil {
			continue
		}
		b.WriteString(UniqueID(child))
	}
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// And объединяет условия через AND. Вложенные AND разворачиваются.
func And(operands ...Condition) *AndCondition {
	flat := make([]Condition, 0, len(operands))
	for _, op := range operands {
		if and, ok := op.(*AndCondition); ok {
			flat = append(flat, and.Operands...)
			continue
		}
		flat = append(flat, op)
	}
	return &AndCondition{Operands: flat}
}

// Or объединяет условия через OR. Вложенные OR разворачиваются.
func Or(operands ...Condition) *OrCondition {
	flat := make([]Condition, 0, len(operands))
	for _, op := range operands {
		if or, ok := op.(*OrCondition); ok {
			flat = append(flat, or.Operands...)
			continue
		}
		flat = append(flat, op)
	}
	return &OrCondition{Operands: flat}
}

// Not отрицает условие относительно кандидатов.
func Not(operand Condition) *NotCondition {
	return &NotCondition{Operand: operand}
}

// AnyDepsMatch истинно, если операнд истинен хотя бы для одной зависимости.
func AnyDepsMatch(operand Condition) *AnyDepsCondition {
	return &AnyDepsCondition{Operand: operand}
}

// AllDepsMatch истинно, если операнд истинен для всех зависимостей.
func AllDepsMatch(operand Condition) *AllDepsCondition {
	return &AllDepsCondition{Operand: operand}
}

// Walk обходит дерево в глубину, родитель раньше детей.
func Walk(c Condition, fn func(Condition)) {
	if c == nil {
		return
	}
	fn(c)
	for _, child := range c.Children() {
		Walk(child, fn)
	}
}
