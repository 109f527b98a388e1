package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// CurrentVersion — версия формата файла определений.
const CurrentVersion = 1

// Definitions — содержимое файла определений.
type Definitions struct {
	Version int         `yaml:"version" json:"version" validate:"required"`
	Assets  []AssetSpec `yaml:"assets" json:"assets" validate:"required,min=1,dive"`
}

// AssetSpec — определение одного asset.
//
// Политика задаётся либо деревом Condition, либо правилами AutoMaterialize.
// Asset без политики участвует в графе, но не вычисляется.
type AssetSpec struct {
	Key             string          `yaml:"key" json:"key" validate:"required"`
	Partitions      *PartitionsSpec `yaml:"partitions,omitempty" json:"partitions,omitempty"`
	Deps            []DepSpec       `yaml:"deps,omitempty" json:"deps,omitempty" validate:"dive"`
	Condition       *ConditionSpec  `yaml:"condition,omitempty" json:"condition,omitempty" validate:"excluded_with=AutoMaterialize"`
	AutoMaterialize *RulesSpec      `yaml:"auto_materialize,omitempty" json:"auto_materialize,omitempty"`
}

// PartitionsSpec — определение партиций.
type PartitionsSpec struct {
	Type      string   `yaml:"type" json:"type" validate:"required,oneof=static daily hourly time_window"`
	Keys      []string `yaml:"keys,omitempty" json:"keys,omitempty" validate:"required_if=Type static"`
	Start     string   `yaml:"start,omitempty" json:"start,omitempty" validate:"required_unless=Type static"`
	Cron      string   `yaml:"cron,omitempty" json:"cron,omitempty" validate:"omitempty,cron"`
	Timezone  string   `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	Format    string   `yaml:"format,omitempty" json:"format,omitempty"`
	EndOffset int      `yaml:"end_offset,omitempty" json:"end_offset,omitempty"`
}

// DepSpec — зависимость от родительского asset.
type DepSpec struct {
	Key     string       `yaml:"key" json:"key" validate:"required"`
	Mapping *MappingSpec `yaml:"mapping,omitempty" json:"mapping,omitempty"`
}

// MappingSpec — явное отображение партиций зависимости.
type MappingSpec struct {
	Type                 string              `yaml:"type" json:"type" validate:"required,oneof=identity all_partitions last_partition static time_window"`
	DownstreamByUpstream map[string][]string `yaml:"downstream_by_upstream,omitempty" json:"downstream_by_upstream,omitempty" validate:"required_if=Type static"`
}

// ConditionSpec — узел дерева условий.
//
// В YAML узел без параметров можно записать строкой: `- materialized`.
// Kind принимает как имена типов, так и исторические имена классов
// (см. NormalizeKind).
type ConditionSpec struct {
	Kind     string           `yaml:"kind" json:"kind" validate:"required"`
	Operands []*ConditionSpec `yaml:"operands,omitempty" json:"operands,omitempty" validate:"dive,required"`
	Operand  *ConditionSpec   `yaml:"operand,omitempty" json:"operand,omitempty"`
	Dep      string           `yaml:"dep,omitempty" json:"dep,omitempty"`
	Mode     string           `yaml:"mode,omitempty" json:"mode,omitempty" validate:"omitempty,oneof=any all"`
	Cron     string           `yaml:"cron,omitempty" json:"cron,omitempty" validate:"omitempty,cron"`
	Timezone string           `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	Lookback string           `yaml:"lookback,omitempty" json:"lookback,omitempty"`
	Rule     *RuleSpec        `yaml:"rule,omitempty" json:"rule,omitempty"`
}

// UnmarshalYAML реализует yaml.Unmarshaler для краткой строковой записи.
func (c *ConditionSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var kind string
		if err := node.Decode(&kind); err != nil {
			return err
		}
		*c = ConditionSpec{Kind: kind}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: condition must be a string or a mapping", node.Line)
	}

	type plain ConditionSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = ConditionSpec(p)
	return nil
}

// RulesSpec — политика старого формата.
type RulesSpec struct {
	Materialize []RuleSpec `yaml:"materialize" json:"materialize" validate:"required,min=1,dive"`
	Skip        []RuleSpec `yaml:"skip,omitempty" json:"skip,omitempty" validate:"dive"`
}

// RuleSpec — одно правило старого формата.
type RuleSpec struct {
	Kind     string `yaml:"kind" json:"kind" validate:"required"`
	Cron     string `yaml:"cron,omitempty" json:"cron,omitempty" validate:"omitempty,cron"`
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}
