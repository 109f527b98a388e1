package condition

import (
	"fmt"

	"github.com/shaiso/assetsched/internal/assetgraph"
	"github.com/shaiso/assetsched/internal/domain"
)

// Validator — узел с собственными проверками параметров.
type Validator interface {
	Validate(g *assetgraph.Graph, key domain.AssetKey) error
}

// Validate проверяет дерево условий для asset при регистрации политики.
//
// Проверяются: отсутствие nil-операндов, хотя бы один операнд у AND/OR,
// наличие зависимостей у asset под операторами зависимостей, параметры
// листьев (Validator). Операнд оператора зависимостей проверяется для
// каждого родителя.
func Validate(root Condition, g *assetgraph.Graph, key domain.AssetKey) error {
	if !g.Has(key) {
		return &ValidationError{Asset: key, Message: "asset is not in the graph", Err: ErrUnknownAsset}
	}
	return validateNode(root, g, key)
}

func validateNode(c Condition, g *assetgraph.Graph, key domain.AssetKey) error {
	if c == nil {
		return invalid(key, nil, "condition is nil")
	}

	if v, ok := c.(Validator); ok {
		if err := v.Validate(g, key); err != nil {
			return &ValidationError{
				Asset:     key,
				Condition: c.Description(),
				Message:   err.Error(),
				Err:       fmt.Errorf("%w: %w", ErrInvalidCondition, err),
			}
		}
	}

	switch n := c.(type) {
	case *AndCondition:
		if len(n.Operands) == 0 {
			return invalid(key, c, "at least one operand is required")
		}
	case *OrCondition:
		if len(n.Operands) == 0 {
			return invalid(key, c, "at least one operand is required")
		}
	case *AnyDepsCondition:
		return validateDeps(c, n.Operand, g, key)
	case *AllDepsCondition:
		return validateDeps(c, n.Operand, g, key)
	case *DepCondition:
		if !isParent(g, key, n.DepKey) {
			return invalid(key, c, fmt.Sprintf("%s is not a dependency", n.DepKey))
		}
		return validateNode(n.Operand, g, n.DepKey)
	}

	for _, child := range c.Children() {
		if err := validateNode(child, g, key); err != nil {
			return err
		}
	}
	return nil
}

func validateDeps(c, operand Condition, g *assetgraph.Graph, key domain.AssetKey) error {
	parents := g.ParentKeys(key)
	if len(parents) == 0 {
		return &ValidationError{
			Asset:     key,
			Condition: c.Description(),
			Message:   "dependency operator on an asset without dependencies",
			Err:       fmt.Errorf("%w: %w", ErrInvalidCondition, ErrNoDependencies),
		}
	}
	for _, parent := range parents {
		if err := validateNode(operand, g, parent); err != nil {
			return err
		}
	}
	return nil
}

func isParent(g *assetgraph.Graph, child, parent domain.AssetKey) bool {
	for _, p := range g.ParentKeys(child) {
		if p == parent {
			return true
		}
	}
	return false
}
