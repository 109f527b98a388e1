package condition

import (
	"github.com/shaiso/assetsched/internal/assetgraph"
	"github.com/shaiso/assetsched/internal/domain"
)

// DepCondition вычисляет операнд для одной зависимости и проецирует
// результат обратно на asset. Создаётся операторами AnyDepsMatch и AllDepsMatch.
type DepCondition struct {
	DepKey  domain.AssetKey
	Operand Condition
	Mode    assetgraph.DepMode
}

// Kind реализует Condition.
func (c *DepCondition) Kind() Kind { return KindDep }

// Description реализует Condition.
func (c *DepCondition) Description() string { return c.DepKey.String() }

// Children реализует Condition.
func (c *DepCondition) Children() []Condition { return []Condition{c.Operand} }

func (c *DepCondition) identity() string { return c.Mode.String() }

// Evaluate реализует Condition.
func (c *DepCondition) Evaluate(ctx *Context) (*Result, error) {
	// Операнд вычисляется только для родительских партиций текущих кандидатов
	depCandidate, err := ctx.View.ParentSubset(ctx.Candidate, c.DepKey)
	if err != nil {
		return nil, err
	}

	depResult, err := ctx.EvaluateDep(c.DepKey, c.Operand, depCandidate)
	if err != nil {
		return nil, err
	}

	trueSubset, err := ctx.View.ChildSubset(depResult.TrueSubset, ctx.Candidate, c.Mode)
	if err != nil {
		return nil, err
	}
	return CreateFromChildren(ctx, trueSubset, []*Result{depResult}), nil
}

// AnyDepsCondition — истинно для партиций, у которых операнд истинен
// хотя бы для одной отображённой партиции хотя бы одной зависимости.
type AnyDepsCondition struct {
	Operand Condition
}

// Kind реализует Condition.
func (c *AnyDepsCondition) Kind() Kind { return KindAnyDepsMatch }

// Description реализует Condition.
func (c *AnyDepsCondition) Description() string { return "Any deps" }

// Children реализует Condition.
func (c *AnyDepsCondition) Children() []Condition { return []Condition{c.Operand} }

// Evaluate реализует Condition.
func (c *AnyDepsCondition) Evaluate(ctx *Context) (*Result, error) {
	depKeys := ctx.View.Graph().ParentKeys(ctx.AssetKey)
	children := make([]*Result, 0, len(depKeys))
	trueSubset := ctx.EmptySubset()

	for _, dep := range depKeys {
		wrapper := &DepCondition{DepKey: dep, Operand: c.Operand, Mode: assetgraph.DepModeAny}
		res, err := ctx.EvaluateChild(wrapper, ctx.Candidate)
		if err != nil {
			return nil, err
		}
		children = append(children, res)

		if trueSubset, err = trueSubset.Union(res.TrueSubset); err != nil {
			return nil, err
		}
	}

	trueSubset, err := ctx.Candidate.Intersect(trueSubset)
	if err != nil {
		return nil, err
	}
	return CreateFromChildren(ctx, trueSubset, children), nil
}

// AllDepsCondition — истинно для партиций, у которых операнд истинен
// для всех отображённых партиций всех зависимостей.
// Для asset без зависимостей ложно на всех партициях.
type AllDepsCondition struct {
	Operand Condition
}

// Kind реализует Condition.
func (c *AllDepsCondition) Kind() Kind { return KindAllDepsMatch }

// Description реализует Condition.
func (c *AllDepsCondition) Description() string { return "All deps" }

// Children реализует Condition.
func (c *AllDepsCondition) Children() []Condition { return []Condition{c.Operand} }

// Evaluate реализует Condition.
func (c *AllDepsCondition) Evaluate(ctx *Context) (*Result, error) {
	depKeys := ctx.View.Graph().ParentKeys(ctx.AssetKey)
	if len(depKeys) == 0 {
		return CreateFromChildren(ctx, ctx.EmptySubset(), nil), nil
	}

	children := make([]*Result, 0, len(depKeys))
	trueSubset := ctx.Candidate

	for _, dep := range depKeys {
		wrapper := &DepCondition{DepKey: dep, Operand: c.Operand, Mode: assetgraph.DepModeAll}
		res, err := ctx.EvaluateChild(wrapper, ctx.Candidate)
		if err != nil {
			return nil, err
		}
		children = append(children, res)

		if trueSubset, err = trueSubset.Intersect(res.TrueSubset); err != nil {
			return nil, err
		}
	}
	return CreateFromChildren(ctx, trueSubset, children), nil
}
