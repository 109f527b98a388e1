package domain

import (
	"slices"
	"strings"
)

// AssetKeySeparator — разделитель частей пути в AssetKey.
const AssetKeySeparator = "/"

// AssetKey — идентификатор asset в графе.
//
// Ключ — путь из частей, разделённых "/":
//
//	"raw/orders", "analytics/daily_revenue"
//
// Уникален в пределах графа. Пустой ключ невалиден.
type AssetKey string

// NewAssetKey собирает AssetKey из частей пути.
func NewAssetKey(parts ...string) AssetKey {
	return AssetKey(strings.Join(parts, AssetKeySeparator))
}

// Parts возвращает части пути.
func (k AssetKey) Parts() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), AssetKeySeparator)
}

// String возвращает строковое представление.
func (k AssetKey) String() string {
	return string(k)
}

// IsZero возвращает true для пустого ключа.
func (k AssetKey) IsZero() bool {
	return k == ""
}

// AssetPartition — пара (asset, партиция).
//
// PartitionKey пустой у непартиционированного asset:
// у такого asset ровно одна неявная партиция.
// Тип сравнимый, поэтому используется как ключ map.
type AssetPartition struct {
	AssetKey     AssetKey `json:"asset_key"`
	PartitionKey string   `json:"partition_key,omitempty"`
}

// NewAssetPartition создаёт AssetPartition.
func NewAssetPartition(key AssetKey, partitionKey string) AssetPartition {
	return AssetPartition{AssetKey: key, PartitionKey: partitionKey}
}

// String возвращает "asset[partition]" или "asset" для неявной партиции.
func (p AssetPartition) String() string {
	if p.PartitionKey == "" {
		return p.AssetKey.String()
	}
	return p.AssetKey.String() + "[" + p.PartitionKey + "]"
}

// SortAssetKeys сортирует ключи на месте и возвращает их.
func SortAssetKeys(keys []AssetKey) []AssetKey {
	slices.Sort(keys)
	return keys
}
