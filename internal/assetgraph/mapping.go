package assetgraph

import (
	"errors"
	"slices"

	"github.com/shaiso/assetsched/internal/partitions"
)

// MappingKind — тип отображения партиций.
type MappingKind string

const (
	MappingIdentity      MappingKind = "identity"
	MappingAllPartitions MappingKind = "all_partitions"
	MappingLastPartition MappingKind = "last_partition"
	MappingStatic        MappingKind = "static"
	MappingTimeWindow    MappingKind = "time_window"
)

// Mapping — отображение партиций потомка на партиции родителя.
type Mapping interface {
	// Kind возвращает тип отображения.
	Kind() MappingKind

	// Check проверяет применимость к паре определений партиций.
	Check(child, parent partitions.Definition) error

	// Table возвращает для каждой позиции потомка позиции родителя.
	// Пустая строка таблицы означает отсутствие upstream-партиций.
	Table(child, parent *partitions.Space) [][]int
}

// DefaultMapping выводит отображение по определениям партиций:
// непартиционированная сторона — все партиции, два временных определения —
// пересечение окон, остальное — совпадение ключей.
func DefaultMapping(child, parent partitions.Definition) Mapping {
	switch {
	case child == nil || parent == nil:
		return AllPartitions{}
	case child.Kind() == partitions.KindTimeWindow && parent.Kind() == partitions.KindTimeWindow:
		return TimeWindowMapping{}
	default:
		return Identity{}
	}
}

// --- Identity ---

// Identity — партиция потомка зависит от партиции родителя с тем же ключом.
type Identity struct{}

// Kind реализует Mapping.
func (Identity) Kind() MappingKind { return MappingIdentity }

// Check реализует Mapping.
func (Identity) Check(child, parent partitions.Definition) error {
	if (child == nil) != (parent == nil) {
		return errors.New("identity mapping requires both assets partitioned or both unpartitioned")
	}
	return nil
}

// Table реализует Mapping.
func (Identity) Table(child, parent *partitions.Space) [][]int {
	table := make([][]int, child.Size())
	for i := range table {
		if j, ok := parent.Index(child.Key(i)); ok {
			table[i] = []int{j}
		}
	}
	return table
}

// --- AllPartitions ---

// AllPartitions — каждая партиция потомка зависит от всех партиций родителя.
type AllPartitions struct{}

// Kind реализует Mapping.
func (AllPartitions) Kind() MappingKind { return MappingAllPartitions }

// Check реализует Mapping.
func (AllPartitions) Check(_, _ partitions.Definition) error { return nil }

// Table реализует Mapping. Строки таблицы разделяют один срез.
func (AllPartitions) Table(child, parent *partitions.Space) [][]int {
	all := make([]int, parent.Size())
	for j := range all {
		all[j] = j
	}
	table := make([][]int, child.Size())
	for i := range table {
		table[i] = all
	}
	return table
}

// --- LastPartition ---

// LastPartition — каждая партиция потомка зависит от последней партиции родителя.
type LastPartition struct{}

// Kind реализует Mapping.
func (LastPartition) Kind() MappingKind { return MappingLastPartition }

// Check реализует Mapping.
func (LastPartition) Check(_, _ partitions.Definition) error { return nil }

// Table реализует Mapping.
func (LastPartition) Table(child, parent *partitions.Space) [][]int {
	table := make([][]int, child.Size())
	if parent.Size() == 0 {
		return table
	}
	last := []int{parent.Size() - 1}
	for i := range table {
		table[i] = last
	}
	return table
}

// --- Static ---

// StaticMapping — явное отображение ключей родителя на ключи потомка.
type StaticMapping struct {
	// DownstreamByUpstream — ключ родителя → ключи потомка.
	DownstreamByUpstream map[string][]string
}

// Kind реализует Mapping.
func (StaticMapping) Kind() MappingKind { return MappingStatic }

// Check реализует Mapping.
func (m StaticMapping) Check(child, parent partitions.Definition) error {
	if child == nil || parent == nil {
		return errors.New("static mapping requires partitioned assets")
	}
	if len(m.DownstreamByUpstream) == 0 {
		return errors.New("static mapping is empty")
	}
	return nil
}

// Table реализует Mapping.
func (m StaticMapping) Table(child, parent *partitions.Space) [][]int {
	table := make([][]int, child.Size())
	for upKey, downKeys := range m.DownstreamByUpstream {
		j, ok := parent.Index(upKey)
		if !ok {
			continue
		}
		for _, downKey := range downKeys {
			if i, ok := child.Index(downKey); ok {
				table[i] = append(table[i], j)
			}
		}
	}
	for i := range table {
		slices.Sort(table[i])
	}
	return table
}

// --- TimeWindow ---

// TimeWindowMapping — партиция потомка зависит от окон родителя,
// пересекающихся с её окном.
type TimeWindowMapping struct{}

// Kind реализует Mapping.
func (TimeWindowMapping) Kind() MappingKind { return MappingTimeWindow }

// Check реализует Mapping.
func (TimeWindowMapping) Check(child, parent partitions.Definition) error {
	if child == nil || parent == nil ||
		child.Kind() != partitions.KindTimeWindow || parent.Kind() != partitions.KindTimeWindow {
		return errors.New("time window mapping requires time-partitioned assets")
	}
	return nil
}

// Table реализует Mapping. Окна обеих сторон отсортированы по времени.
func (TimeWindowMapping) Table(child, parent *partitions.Space) [][]int {
	cw := child.Windows()
	pw := parent.Windows()
	table := make([][]int, child.Size())

	lo := 0
	for i, w := range cw {
		for lo < len(pw) && !pw[lo].End.After(w.Start) {
			lo++
		}
		for j := lo; j < len(pw) && pw[j].Start.Before(w.End); j++ {
			table[i] = append(table[i], j)
		}
	}
	return table
}
