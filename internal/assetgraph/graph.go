package assetgraph

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/partitions"
)

// DepDef — зависимость asset от родителя.
type DepDef struct {
	// Key — ключ родительского asset.
	Key domain.AssetKey

	// Mapping — отображение партиций (nil — выводится по определениям партиций).
	Mapping Mapping
}

// AssetDef — определение asset в графе.
type AssetDef struct {
	Key        domain.AssetKey
	Partitions partitions.Definition // nil — непартиционированный asset
	Deps       []DepDef
}

// Node — узел графа asset.
type Node struct {
	// Def — определение asset.
	Def *AssetDef

	// Key — ключ asset.
	Key domain.AssetKey

	// InDegree — количество родителей.
	InDegree int

	// DependsOn — родители в порядке объявления.
	DependsOn []*Node

	// Dependents — потомки.
	Dependents []*Node

	// mappings — отображение партиций по ключу родителя.
	mappings map[domain.AssetKey]Mapping
}

// Graph — направленный ациклический граф asset.
type Graph struct {
	// Nodes — все узлы графа (key → Node).
	Nodes map[domain.AssetKey]*Node

	// RootNodes — asset без зависимостей, по возрастанию ключа.
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// Build строит граф из определений asset.
func Build(defs []AssetDef) (*Graph, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyGraph
	}

	g := &Graph{
		Nodes: make(map[domain.AssetKey]*Node, len(defs)),
	}

	// Первый проход: создаём узлы
	for i := range defs {
		def := &defs[i]
		if def.Key.IsZero() {
			return nil, NewValidationError("", "key", "asset key is required", ErrEmptyAssetKey)
		}
		if _, exists := g.Nodes[def.Key]; exists {
			return nil, NewValidationError(def.Key, "key", "duplicate asset key", ErrDuplicateAsset)
		}
		g.Nodes[def.Key] = &Node{
			Def:        def,
			Key:        def.Key,
			DependsOn:  make([]*Node, 0, len(def.Deps)),
			Dependents: make([]*Node, 0),
			mappings:   make(map[domain.AssetKey]Mapping, len(def.Deps)),
		}
	}

	// Второй проход: связываем узлы
	for i := range defs {
		if err := g.linkDependencies(&defs[i]); err != nil {
			return nil, err
		}
	}

	g.findRootNodes()

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.Order = order

	return g, nil
}

// linkDependencies связывает asset с родителями.
func (g *Graph) linkDependencies(def *AssetDef) error {
	node := g.Nodes[def.Key]

	for _, dep := range def.Deps {
		if dep.Key == def.Key {
			return NewValidationError(def.Key, "deps", "asset depends on itself", ErrSelfDependency)
		}
		parent, exists := g.Nodes[dep.Key]
		if !exists {
			return NewValidationError(def.Key, "deps",
				fmt.Sprintf("depends on unknown asset: %s", dep.Key), ErrMissingDependency)
		}

		mapping := dep.Mapping
		if mapping == nil {
			mapping = DefaultMapping(def.Partitions, parent.Def.Partitions)
		}
		if err := mapping.Check(def.Partitions, parent.Def.Partitions); err != nil {
			return NewValidationError(def.Key, "deps",
				fmt.Sprintf("mapping to %s: %v", dep.Key, err), ErrInvalidMapping)
		}

		g.addEdge(parent, node, mapping)
	}
	return nil
}

// addEdge добавляет ребро parent → child, игнорируя дубликаты.
func (g *Graph) addEdge(parent, child *Node, mapping Mapping) {
	for _, dep := range child.DependsOn {
		if dep.Key == parent.Key {
			return
		}
	}
	parent.Dependents = append(parent.Dependents, child)
	child.DependsOn = append(child.DependsOn, parent)
	child.mappings[parent.Key] = mapping
	child.InDegree++
}

// findRootNodes находит asset без родителей.
func (g *Graph) findRootNodes() {
	g.RootNodes = make([]*Node, 0)
	for _, node := range g.Nodes {
		if node.InDegree == 0 {
			g.RootNodes = append(g.RootNodes, node)
		}
	}
	slices.SortFunc(g.RootNodes, func(a, b *Node) int {
		return cmp.Compare(a.Key, b.Key)
	})
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Порядок детерминирован: при равенстве asset идут по возрастанию ключа.
func (g *Graph) topologicalSort() ([]*Node, error) {
	inDegree := make(map[domain.AssetKey]int, len(g.Nodes))
	for key, node := range g.Nodes {
		inDegree[key] = node.InDegree
	}

	queue := make([]*Node, len(g.RootNodes))
	copy(queue, g.RootNodes)

	order := make([]*Node, 0, len(g.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		ready := make([]*Node, 0)
		for _, dependent := range node.Dependents {
			inDegree[dependent.Key]--
			if inDegree[dependent.Key] == 0 {
				ready = append(ready, dependent)
			}
		}
		slices.SortFunc(ready, func(a, b *Node) int {
			return cmp.Compare(a.Key, b.Key)
		})
		queue = append(queue, ready...)
	}

	if len(order) != len(g.Nodes) {
		return nil, ErrCyclicDependency
	}
	return order, nil
}

// Has проверяет наличие asset.
func (g *Graph) Has(key domain.AssetKey) bool {
	_, ok := g.Nodes[key]
	return ok
}

// Node возвращает узел по ключу.
func (g *Graph) Node(key domain.AssetKey) *Node {
	return g.Nodes[key]
}

// Size возвращает количество asset.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// Keys возвращает ключи asset в топологическом порядке.
func (g *Graph) Keys() []domain.AssetKey {
	keys := make([]domain.AssetKey, len(g.Order))
	for i, node := range g.Order {
		keys[i] = node.Key
	}
	return keys
}

// ParentKeys возвращает ключи родителей в порядке объявления.
func (g *Graph) ParentKeys(key domain.AssetKey) []domain.AssetKey {
	node, ok := g.Nodes[key]
	if !ok {
		return nil
	}
	keys := make([]domain.AssetKey, len(node.DependsOn))
	for i, dep := range node.DependsOn {
		keys[i] = dep.Key
	}
	return keys
}

// ChildKeys возвращает ключи потомков по возрастанию.
func (g *Graph) ChildKeys(key domain.AssetKey) []domain.AssetKey {
	node, ok := g.Nodes[key]
	if !ok {
		return nil
	}
	keys := make([]domain.AssetKey, len(node.Dependents))
	for i, dep := range node.Dependents {
		keys[i] = dep.Key
	}
	return domain.SortAssetKeys(keys)
}

// Mapping возвращает отображение партиций ребра parent → child.
func (g *Graph) Mapping(child, parent domain.AssetKey) (Mapping, bool) {
	node, ok := g.Nodes[child]
	if !ok {
		return nil, false
	}
	m, ok := node.mappings[parent]
	return m, ok
}

// PartitionsDef возвращает определение партиций asset.
func (g *Graph) PartitionsDef(key domain.AssetKey) partitions.Definition {
	node, ok := g.Nodes[key]
	if !ok {
		return nil
	}
	return node.Def.Partitions
}
