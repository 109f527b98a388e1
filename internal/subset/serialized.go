package subset

import (
	"fmt"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/partitions"
)

// Serialized — сохраняемое представление подмножества.
//
// Отпечаток определения партиций хранится вместе с ключами: при смене
// определения сохранённое подмножество перестаёт быть валидным.
type Serialized struct {
	AssetKey    domain.AssetKey `json:"asset_key" yaml:"asset_key"`
	Fingerprint string          `json:"fingerprint" yaml:"fingerprint"`
	Partitioned bool            `json:"partitioned" yaml:"partitioned"`
	// All — компактная форма «все партиции» для непартиционированных
	// и статических asset. Для временных партиций ключи всегда явные:
	// пространство растёт, и «все» прошлого тика не равно «все» текущего.
	All  bool     `json:"all,omitempty" yaml:"all,omitempty"`
	Keys []string `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// Serialize возвращает сохраняемое представление.
func (s AssetSubset) Serialize() Serialized {
	if s.space == nil {
		return Serialized{AssetKey: s.key}
	}
	out := Serialized{
		AssetKey:    s.key,
		Fingerprint: s.space.Fingerprint(),
		Partitioned: s.space.Partitioned(),
	}
	if !s.space.IsTimeWindow() && s.Size() == s.space.Size() && s.Size() > 0 {
		out.All = true
		return out
	}
	out.Keys = s.Keys()
	return out
}

// FromSerialized восстанавливает подмножество в текущем снимке пространства.
//
// Несовпадение отпечатка или ключ вне пространства означают, что
// определение партиций изменилось: возвращается ErrPartitionsDrift.
func FromSerialized(s Serialized, key domain.AssetKey, space *partitions.Space) (AssetSubset, error) {
	if space == nil {
		return AssetSubset{}, ErrInvalidSubset
	}
	if s.AssetKey != key {
		return AssetSubset{}, fmt.Errorf("%w: stored %s, expected %s", ErrAssetMismatch, s.AssetKey, key)
	}
	if s.Fingerprint != space.Fingerprint() || s.Partitioned != space.Partitioned() {
		return AssetSubset{}, fmt.Errorf("%w: %s: stored fingerprint %q, current %q",
			ErrPartitionsDrift, key, s.Fingerprint, space.Fingerprint())
	}
	if s.All {
		return All(key, space), nil
	}

	b := newBitset(space.Size())
	for _, pk := range s.Keys {
		i, ok := space.Index(pk)
		if !ok {
			return AssetSubset{}, fmt.Errorf("%w: %s: stored partition %q is no longer valid",
				ErrPartitionsDrift, key, pk)
		}
		b.set(i)
	}
	return AssetSubset{key: key, space: space, bits: b}, nil
}
