package condition

// AndCondition — истинно, когда истинны все операнды.
//
// Каждый следующий операнд вычисляется только на партициях,
// истинных для всех предыдущих.
type AndCondition struct {
	Operands []Condition
}

// Kind реализует Condition.
func (c *AndCondition) Kind() Kind { return KindAnd }

// Description реализует Condition.
func (c *AndCondition) Description() string { return "All of" }

// Children реализует Condition.
func (c *AndCondition) Children() []Condition { return c.Operands }

// Evaluate реализует Condition.
func (c *AndCondition) Evaluate(ctx *Context) (*Result, error) {
	children := make([]*Result, 0, len(c.Operands))
	trueSubset := ctx.Candidate

	for _, op := range c.Operands {
		res, err := ctx.EvaluateChild(op, trueSubset)
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

// OrCondition — истинно, когда истинен хотя бы один операнд.
type OrCondition struct {
	Operands []Condition
}

// Kind реализует Condition.
func (c *OrCondition) Kind() Kind { return KindOr }

// Description реализует Condition.
func (c *OrCondition) Description() string { return "Any of" }

// Children реализует Condition.
func (c *OrCondition) Children() []Condition { return c.Operands }

// Evaluate реализует Condition.
func (c *OrCondition) Evaluate(ctx *Context) (*Result, error) {
	children := make([]*Result, 0, len(c.Operands))
	trueSubset := ctx.EmptySubset()

	for _, op := range c.Operands {
		res, err := ctx.EvaluateChild(op, ctx.Candidate)
		if err != nil {
			return nil, err
		}
		children = append(children, res)

		if trueSubset, err = trueSubset.Union(res.TrueSubset); err != nil {
			return nil, err
		}
	}
	return CreateFromChildren(ctx, trueSubset, children), nil
}

// NotCondition — истинно для кандидатов, на которых операнд ложен.
type NotCondition struct {
	Operand Condition
}

// Kind реализует Condition.
func (c *NotCondition) Kind() Kind { return KindNot }

// Description реализует Condition.
func (c *NotCondition) Description() string { return "Not" }

// Children реализует Condition.
func (c *NotCondition) Children() []Condition { return []Condition{c.Operand} }

// Evaluate реализует Condition.
func (c *NotCondition) Evaluate(ctx *Context) (*Result, error) {
	res, err := ctx.EvaluateChild(c.Operand, ctx.Candidate)
	if err != nil {
		return nil, err
	}
	trueSubset, err := ctx.Candidate.Subtract(res.TrueSubset)
	if err != nil {
		return nil, err
	}
	return CreateFromChildren(ctx, trueSubset, []*Result{res}), nil
}
