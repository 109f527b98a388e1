package subset

import (
	"fmt"
	"strings"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/partitions"
)

// AssetSubset — неизменяемое подмножество партиций одного asset.
//
// Подмножество привязано к снимку пространства партиций (partitions.Space).
// Операции над подмножествами из разных снимков завершаются
// ErrPartitionsDrift: иначе размер и принадлежность станут несогласованными.
//
// Нулевое значение невалидно; операции над ним возвращают ErrInvalidSubset
// и никогда не трактуют его как пустое множество.
type AssetSubset struct {
	key   domain.AssetKey
	space *partitions.Space
	bits  bitset
}

// Empty возвращает пустое подмножество.
func Empty(key domain.AssetKey, space *partitions.Space) AssetSubset {
	return AssetSubset{key: key, space: space, bits: newBitset(space.Size())}
}

// All возвращает подмножество из всех валидных партиций.
func All(key domain.AssetKey, space *partitions.Space) AssetSubset {
	return AssetSubset{key: key, space: space, bits: fullBitset(space.Size())}
}

// FromKeys строит подмножество из ключей партиций.
func FromKeys(key domain.AssetKey, space *partitions.Space, partitionKeys ...string) (AssetSubset, error) {
	b := newBitset(space.Size())
	for _, pk := range partitionKeys {
		i, ok := space.Index(pk)
		if !ok {
			return AssetSubset{}, fmt.Errorf("%w: %s[%s]", ErrUnknownPartition, key, pk)
		}
		b.set(i)
	}
	return AssetSubset{key: key, space: space, bits: b}, nil
}

// FromPredicate строит подмножество из партиций, для которых fn возвращает true.
func FromPredicate(key domain.AssetKey, space *partitions.Space, fn func(i int, partitionKey string) bool) AssetSubset {
	b := newBitset(space.Size())
	for i := 0; i < space.Size(); i++ {
		if fn(i, space.Key(i)) {
			b.set(i)
		}
	}
	return AssetSubset{key: key, space: space, bits: b}
}

// AssetKey возвращает ключ asset.
func (s AssetSubset) AssetKey() domain.AssetKey {
	return s.key
}

// Space возвращает снимок пространства партиций.
func (s AssetSubset) Space() *partitions.Space {
	return s.space
}

// IsValid возвращает false для нулевого значения.
func (s AssetSubset) IsValid() bool {
	return s.space != nil
}

// Size возвращает число партиций в подмножестве.
func (s AssetSubset) Size() int {
	if s.space == nil {
		return 0
	}
	return s.bits.count()
}

// IsEmpty возвращает true, если в подмножестве нет партиций.
func (s AssetSubset) IsEmpty() bool {
	return s.Size() == 0
}

// ContainsKey проверяет принадлежность партиции по ключу.
func (s AssetSubset) ContainsKey(partitionKey string) bool {
	if s.space == nil {
		return false
	}
	i, ok := s.space.Index(partitionKey)
	return ok && s.bits.has(i)
}

// Contains проверяет принадлежность AssetPartition.
func (s AssetSubset) Contains(p domain.AssetPartition) bool {
	return p.AssetKey == s.key && s.ContainsKey(p.PartitionKey)
}

// Has проверяет принадлежность по позиции в Space.
func (s AssetSubset) Has(i int) bool {
	return s.space != nil && s.bits.has(i)
}

// Each вызывает fn для каждой партиции по порядку Space.
func (s AssetSubset) Each(fn func(i int, partitionKey string)) {
	if s.space == nil {
		return
	}
	s.bits.each(func(i int) {
		fn(i, s.space.Key(i))
	})
}

// Keys возвращает ключи партиций по порядку Space.
func (s AssetSubset) Keys() []string {
	keys := make([]string, 0, s.Size())
	s.Each(func(_ int, pk string) {
		keys = append(keys, pk)
	})
	return keys
}

// AssetPartitions возвращает партиции подмножества.
func (s AssetSubset) AssetPartitions() []domain.AssetPartition {
	result := make([]domain.AssetPartition, 0, s.Size())
	s.Each(func(_ int, pk string) {
		result = append(result, domain.NewAssetPartition(s.key, pk))
	})
	return result
}

// compatible проверяет, что над s и o можно выполнять операции.
func (s AssetSubset) compatible(o AssetSubset) error {
	if s.space == nil || o.space == nil {
		return ErrInvalidSubset
	}
	if s.key != o.key {
		return fmt.Errorf("%w: %s and %s", ErrAssetMismatch, s.key, o.key)
	}
	if s.space != o.space && s.space.Version() != o.space.Version() {
		return fmt.Errorf("%w: %s: %s vs %s", ErrPartitionsDrift, s.key, s.space.Version(), o.space.Version())
	}
	return nil
}

// Union возвращает объединение s ∪ o.
func (s AssetSubset) Union(o AssetSubset) (AssetSubset, error) {
	if err := s.compatible(o); err != nil {
		return AssetSubset{}, err
	}
	return AssetSubset{key: s.key, space: s.space, bits: s.bits.or(o.bits)}, nil
}

// Intersect возвращает пересечение s ∩ o.
func (s AssetSubset) Intersect(o AssetSubset) (AssetSubset, error) {
	if err := s.compatible(o); err != nil {
		return AssetSubset{}, err
	}
	return AssetSubset{key: s.key, space: s.space, bits: s.bits.and(o.bits)}, nil
}

// Subtract возвращает разность s − o.
func (s AssetSubset) Subtract(o AssetSubset) (AssetSubset, error) {
	if err := s.compatible(o); err != nil {
		return AssetSubset{}, err
	}
	return AssetSubset{key: s.key, space: s.space, bits: s.bits.andNot(o.bits)}, nil
}

// Invert возвращает дополнение в пределах валидного пространства.
func (s AssetSubset) Invert() (AssetSubset, error) {
	if s.space == nil {
		return AssetSubset{}, ErrInvalidSubset
	}
	full := fullBitset(s.space.Size())
	return AssetSubset{key: s.key, space: s.space, bits: full.andNot(s.bits)}, nil
}

// IsSubsetOf проверяет s ⊆ o.
func (s AssetSubset) IsSubsetOf(o AssetSubset) (bool, error) {
	diff, err := s.Subtract(o)
	if err != nil {
		return false, err
	}
	return diff.IsEmpty(), nil
}

// Equal сравнивает подмножества по asset, снимку и содержимому.
func (s AssetSubset) Equal(o AssetSubset) bool {
	if s.compatible(o) != nil {
		return false
	}
	return s.bits.equal(o.bits)
}

// String возвращает краткое представление для логов.
func (s AssetSubset) String() string {
	if s.space == nil {
		return "<invalid subset>"
	}
	if !s.space.Partitioned() {
		if s.IsEmpty() {
			return s.key.String() + "{}"
		}
		return s.key.String() + "{*}"
	}

	keys := s.Keys()
	const maxShown = 5
	if len(keys) > maxShown {
		return fmt.Sprintf("%s{%s, ... +%d}", s.key, strings.Join(keys[:maxShown], ", "), len(keys)-maxShown)
	}
	return fmt.Sprintf("%s{%s}", s.key, strings.Join(keys, ", "))
}
