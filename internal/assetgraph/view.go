package assetgraph

import (
	"fmt"
	"time"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/history"
	"github.com/shaiso/assetsched/internal/partitions"
	"github.com/shaiso/assetsched/internal/subset"
)

// DepMode — правило проекции результата родителя обратно на потомка.
type DepMode int

const (
	// DepModeAny — партиция потомка истинна, если истинна хотя бы одна
	// отображённая партиция родителя.
	DepModeAny DepMode = iota

	// DepModeAll — партиция потомка истинна, если истинны все
	// отображённые партиции родителя.
	DepModeAll
)

// String возвращает имя режима.
func (m DepMode) String() string {
	if m == DepModeAll {
		return "all"
	}
	return "any"
}

type edgeKey struct {
	child  domain.AssetKey
	parent domain.AssetKey
}

// View — согласованный снимок графа, истории и времени на один тик.
//
// Пространства партиций и таблицы отображений вычисляются в NewView;
// после этого View только читается и безопасен для конкурентного использования.
// Партиции без отображённых upstream-партиций никогда не считаются истинными
// при проекции через ChildSubset.
type View struct {
	graph    *Graph
	history  *history.Snapshot
	at       time.Time
	spaces   map[domain.AssetKey]*partitions.Space
	upstream map[edgeKey][][]int
}

// NewView создаёт снимок. history == nil означает пустую историю.
func NewView(g *Graph, h *history.Snapshot, at time.Time) *View {
	if h == nil {
		h = history.NewSnapshot(nil, nil)
	}

	v := &View{
		graph:    g,
		history:  h,
		at:       at,
		spaces:   make(map[domain.AssetKey]*partitions.Space, len(g.Nodes)),
		upstream: make(map[edgeKey][][]int),
	}

	for key, node := range g.Nodes {
		v.spaces[key] = partitions.NewSpace(node.Def.Partitions, at)
	}
	for key, node := range g.Nodes {
		for _, parent := range node.DependsOn {
			mapping := node.mappings[parent.Key]
			v.upstream[edgeKey{child: key, parent: parent.Key}] = mapping.Table(v.spaces[key], v.spaces[parent.Key])
		}
	}
	return v
}

// Graph возвращает граф asset.
func (v *View) Graph() *Graph {
	return v.graph
}

// History возвращает снимок истории.
func (v *View) History() *history.Snapshot {
	return v.history
}

// EffectiveTime возвращает время, на которое построен снимок.
func (v *View) EffectiveTime() time.Time {
	return v.at
}

// Space возвращает пространство партиций asset.
func (v *View) Space(key domain.AssetKey) (*partitions.Space, bool) {
	s, ok := v.spaces[key]
	return s, ok
}

// EmptySubset возвращает пустое подмножество.
// Для неизвестного asset возвращается невалидное подмножество.
func (v *View) EmptySubset(key domain.AssetKey) subset.AssetSubset {
	space, ok := v.spaces[key]
	if !ok {
		return subset.AssetSubset{}
	}
	return subset.Empty(key, space)
}

// FullSubset возвращает подмножество всех валидных партиций.
func (v *View) FullSubset(key domain.AssetKey) subset.AssetSubset {
	space, ok := v.spaces[key]
	if !ok {
		return subset.AssetSubset{}
	}
	return subset.All(key, space)
}

// SubsetFromKeys строит подмножество из ключей партиций.
func (v *View) SubsetFromKeys(key domain.AssetKey, partitionKeys ...string) (subset.AssetSubset, error) {
	space, ok := v.spaces[key]
	if !ok {
		return subset.AssetSubset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, key)
	}
	return subset.FromKeys(key, space, partitionKeys...)
}

// SubsetFromSerialized переводит сохранённое подмножество в текущий снимок.
func (v *View) SubsetFromSerialized(s subset.Serialized) (subset.AssetSubset, error) {
	space, ok := v.spaces[s.AssetKey]
	if !ok {
		return subset.AssetSubset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, s.AssetKey)
	}
	return subset.FromSerialized(s, s.AssetKey, space)
}

// Upstream возвращает позиции партиций родителя для позиции i потомка.
func (v *View) Upstream(child, parent domain.AssetKey, i int) []int {
	table, ok := v.upstream[edgeKey{child: child, parent: parent}]
	if !ok || i < 0 || i >= len(table) {
		return nil
	}
	return table[i]
}

// checkSpace проверяет, что подмножество посчитано в снимке этого View.
func (v *View) checkSpace(s subset.AssetSubset) error {
	if !s.IsValid() {
		return subset.ErrInvalidSubset
	}
	space, ok := v.spaces[s.AssetKey()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, s.AssetKey())
	}
	if space != s.Space() && space.Version() != s.Space().Version() {
		return fmt.Errorf("%w: %s", subset.ErrPartitionsDrift, s.AssetKey())
	}
	return nil
}

func (v *View) edge(child, parent domain.AssetKey) ([][]int, error) {
	table, ok := v.upstream[edgeKey{child: child, parent: parent}]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a parent of %s", ErrNotADependency, parent, child)
	}
	return table, nil
}

// ParentSubset проецирует подмножество потомка на родителя:
// все партиции родителя, от которых зависит хотя бы одна партиция из childSubset.
func (v *View) ParentSubset(childSubset subset.AssetSubset, parent domain.AssetKey) (subset.AssetSubset, error) {
	if err := v.checkSpace(childSubset); err != nil {
		return subset.AssetSubset{}, err
	}
	table, err := v.edge(childSubset.AssetKey(), parent)
	if err != nil {
		return subset.AssetSubset{}, err
	}

	marked := make(map[int]struct{})
	childSubset.Each(func(i int, _ string) {
		for _, j := range table[i] {
			marked[j] = struct{}{}
		}
	})
	return subset.FromPredicate(parent, v.spaces[parent], func(j int, _ string) bool {
		_, ok := marked[j]
		return ok
	}), nil
}

// ChildSubset проецирует истинное подмножество родителя обратно на потомка
// в пределах childCandidate. Партиция потомка без upstream-партиций
// не попадает в результат ни в одном режиме.
func (v *View) ChildSubset(parentTrue, childCandidate subset.AssetSubset, mode DepMode) (subset.AssetSubset, error) {
	if err := v.checkSpace(parentTrue); err != nil {
		return subset.AssetSubset{}, err
	}
	if err := v.checkSpace(childCandidate); err != nil {
		return subset.AssetSubset{}, err
	}
	child := childCandidate.AssetKey()
	table, err := v.edge(child, parentTrue.AssetKey())
	if err != nil {
		return subset.AssetSubset{}, err
	}

	return subset.FromPredicate(child, v.spaces[child], func(i int, _ string) bool {
		if !childCandidate.Has(i) || len(table[i]) == 0 {
			return false
		}
		for _, j := range table[i] {
			has := parentTrue.Has(j)
			if mode == DepModeAny && has {
				return true
			}
			if mode == DepModeAll && !has {
				return false
			}
		}
		return mode == DepModeAll
	}), nil
}

// fromKeys строит подмножество из ключей истории, пропуская невалидные.
func (v *View) fromKeys(key domain.AssetKey, keys []string) subset.AssetSubset {
	space, ok := v.spaces[key]
	if !ok {
		return subset.AssetSubset{}
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return subset.FromPredicate(key, space, func(_ int, pk string) bool {
		_, ok := set[pk]
		return ok
	})
}

// MaterializedSubset возвращает партиции, материализованные хотя бы раз.
func (v *View) MaterializedSubset(key domain.AssetKey) subset.AssetSubset {
	return v.fromKeys(key, v.history.MaterializedKeys(key))
}

// MissingSubset возвращает партиции, ни разу не материализованные.
func (v *View) MissingSubset(key domain.AssetKey) subset.AssetSubset {
	missing, err := v.MaterializedSubset(key).Invert()
	if err != nil {
		return subset.AssetSubset{}
	}
	return missing
}

// InProgressSubset возвращает партиции с незавершёнными run.
func (v *View) InProgressSubset(key domain.AssetKey) subset.AssetSubset {
	return v.fromKeys(key, v.history.InProgressKeys(key))
}

// UpdatedAfterTimeSubset возвращает партиции, обновлённые строго после t.
func (v *View) UpdatedAfterTimeSubset(key domain.AssetKey, t time.Time) subset.AssetSubset {
	return v.fromKeys(key, v.history.UpdatedAfterTime(key, t))
}

// LatestTimeWindowSubset возвращает партиции последних временных окон.
//
// Для непартиционированных и статических asset возвращаются все партиции.
// lookback == 0 — только последнее окно; иначе окна, конец которых
// позже (конец последнего окна − lookback).
func (v *View) LatestTimeWindowSubset(key domain.AssetKey, lookback time.Duration) subset.AssetSubset {
	space, ok := v.spaces[key]
	if !ok {
		return subset.AssetSubset{}
	}
	if !space.IsTimeWindow() {
		return subset.All(key, space)
	}

	windows := space.Windows()
	if len(windows) == 0 {
		return subset.Empty(key, space)
	}
	last := len(windows) - 1
	if lookback <= 0 {
		return subset.FromPredicate(key, space, func(i int, _ string) bool { return i == last })
	}
	cutoff := windows[last].End.Add(-lookback)
	return subset.FromPredicate(key, space, func(i int, _ string) bool {
		return windows[i].End.After(cutoff)
	})
}
