package policy

import (
	"fmt"
	"time"

	"github.com/shaiso/assetsched/internal/assetgraph"
	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/legacy"
	"github.com/shaiso/assetsched/internal/partitions"
)

// Bundle — граф asset и зарегистрированные политики.
type Bundle struct {
	Graph    *assetgraph.Graph
	Policies map[domain.AssetKey]condition.Condition
}

// Keys возвращает asset с политиками в топологическом порядке.
func (b *Bundle) Keys() []domain.AssetKey {
	keys := make([]domain.AssetKey, 0, len(b.Policies))
	for _, key := range b.Graph.Keys() {
		if _, ok := b.Policies[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Policy возвращает политику asset.
func (b *Bundle) Policy(key domain.AssetKey) (condition.Condition, bool) {
	c, ok := b.Policies[key]
	return c, ok
}

// ConditionCount возвращает число узлов во всех деревьях условий.
func (b *Bundle) ConditionCount() int {
	n := 0
	for _, root := range b.Policies {
		condition.Walk(root, func(condition.Condition) { n++ })
	}
	return n
}

// Build строит граф и политики. Каждая политика проходит condition.Validate,
// так что ошибки конструкции обнаруживаются до первого тика.
func (d *Definitions) Build() (*Bundle, error) {
	assetDefs := make([]assetgraph.AssetDef, 0, len(d.Assets))
	for _, spec := range d.Assets {
		def, err := spec.assetDef()
		if err != nil {
			return nil, err
		}
		assetDefs = append(assetDefs, def)
	}

	g, err := assetgraph.Build(assetDefs)
	if err != nil {
		return nil, fmt.Errorf("build asset graph: %w", err)
	}

	bundle := &Bundle{Graph: g, Policies: make(map[domain.AssetKey]condition.Condition)}
	for _, spec := range d.Assets {
		key := domain.AssetKey(spec.Key)

		var root condition.Condition
		switch {
		case spec.Condition != nil:
			root, err = spec.Condition.Decode()
		case spec.AutoMaterialize != nil:
			root, err = spec.AutoMaterialize.Decode()
		default:
			continue
		}
		if err != nil {
			return nil, &DefinitionError{Asset: spec.Key, Field: "condition", Err: err}
		}

		if err := condition.Validate(root, g, key); err != nil {
			return nil, &DefinitionError{Asset: spec.Key, Field: "condition", Err: err}
		}
		bundle.Policies[key] = root
	}

	return bundle, nil
}

func (a AssetSpec) assetDef() (assetgraph.AssetDef, error) {
	def := assetgraph.AssetDef{Key: domain.AssetKey(a.Key)}

	if a.Partitions != nil {
		p, err := a.Partitions.Definition()
		if err != nil {
			return def, &DefinitionError{Asset: a.Key, Field: "partitions", Err: err}
		}
		def.Partitions = p
	}

	for _, dep := range a.Deps {
		dd := assetgraph.DepDef{Key: domain.AssetKey(dep.Key)}
		if dep.Mapping != nil {
			m, err := dep.Mapping.Mapping()
			if err != nil {
				return def, &DefinitionError{Asset: a.Key, Field: "deps", Err: err}
			}
			dd.Mapping = m
		}
		def.Deps = append(def.Deps, dd)
	}

	return def, nil
}

// Definition создаёт определение партиций.
func (p *PartitionsSpec) Definition() (partitions.Definition, error) {
	if p.Type == "static" {
		def, err := partitions.NewStatic(p.Keys...)
		if err != nil {
			return nil, err
		}
		return def, nil
	}

	start, err := parseStart(p.Start)
	if err != nil {
		return nil, err
	}

	switch p.Type {
	case "daily":
		return partitions.Daily(start), nil
	case "hourly":
		return partitions.Hourly(start), nil
	case "time_window":
		def, err := partitions.NewTimeWindow(start, p.Cron, p.Timezone, p.Format, p.EndOffset)
		if err != nil {
			return nil, err
		}
		return def, nil
	default:
		return nil, fmt.Errorf("unknown partitions type %q", p.Type)
	}
}

func parseStart(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start %q: expected YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}

// Mapping создаёт отображение партиций.
func (m *MappingSpec) Mapping() (assetgraph.Mapping, error) {
	switch assetgraph.MappingKind(m.Type) {
	case assetgraph.MappingIdentity:
		return assetgraph.Identity{}, nil
	case assetgraph.MappingAllPartitions:
		return assetgraph.AllPartitions{}, nil
	case assetgraph.MappingLastPartition:
		return assetgraph.LastPartition{}, nil
	case assetgraph.MappingStatic:
		return assetgraph.StaticMapping{DownstreamByUpstream: m.DownstreamByUpstream}, nil
	case assetgraph.MappingTimeWindow:
		return assetgraph.TimeWindowMapping{}, nil
	default:
		return nil, fmt.Errorf("unknown mapping type %q", m.Type)
	}
}

// Decode строит дерево условий.
func (c *ConditionSpec) Decode() (condition.Condition, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: missing operand", condition.ErrInvalidCondition)
	}
	kind, ok := NormalizeKind(c.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}

	switch kind {
	case condition.KindAnd, condition.KindOr:
		operands := make([]condition.Condition, 0, len(c.Operands))
		for _, op := range c.Operands {
			decoded, err := op.Decode()
			if err != nil {
				return nil, err
			}
			operands = append(operands, decoded)
		}
		if kind == condition.KindAnd {
			return condition.And(operands...), nil
		}
		return condition.Or(operands...), nil

	case condition.KindNot, condition.KindAnyDepsMatch, condition.KindAllDepsMatch, condition.KindDep:
		operand, err := c.Operand.Decode()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		switch kind {
		case condition.KindNot:
			return condition.Not(operand), nil
		case condition.KindAnyDepsMatch:
			return condition.AnyDepsMatch(operand), nil
		case condition.KindAllDepsMatch:
			return condition.AllDepsMatch(operand), nil
		}
		mode := assetgraph.DepModeAny
		if c.Mode == "all" {
			mode = assetgraph.DepModeAll
		}
		return &condition.DepCondition{DepKey: domain.AssetKey(c.Dep), Operand: operand, Mode: mode}, nil

	case condition.KindMaterialized:
		return condition.Materialized(), nil
	case condition.KindMissing:
		return condition.Missing(), nil
	case condition.KindInProgress:
		return condition.InProgress(), nil

	case condition.KindInLatestTimeWindow:
		var lookback time.Duration
		if c.Lookback != "" {
			d, err := time.ParseDuration(c.Lookback)
			if err != nil {
				return nil, fmt.Errorf("%w: lookback: %v", condition.ErrInvalidCondition, err)
			}
			lookback = d
		}
		return condition.InLatestTimeWindow(lookback), nil

	case condition.KindUpdatedSinceCron:
		return condition.UpdatedSinceCron(c.Cron, c.Timezone), nil

	case legacy.KindRule:
		if c.Rule == nil {
			return nil, fmt.Errorf("%w: rule is required", condition.ErrInvalidCondition)
		}
		rule, err := c.Rule.Rule()
		if err != nil {
			return nil, err
		}
		return legacy.NewRuleCondition(rule), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
}

// Rule создаёт правило старого формата.
func (r RuleSpec) Rule() (legacy.Rule, error) {
	return legacy.NewRule(legacy.RuleKind(r.Kind), r.Cron, r.Timezone)
}

// Decode строит политику старого формата.
func (r *RulesSpec) Decode() (condition.Condition, error) {
	materialize, err := decodeRules(r.Materialize)
	if err != nil {
		return nil, err
	}
	skip, err := decodeRules(r.Skip)
	if err != nil {
		return nil, err
	}
	return legacy.PolicyFromRules(materialize, skip)
}

func decodeRules(specs []RuleSpec) ([]legacy.Rule, error) {
	rules := make([]legacy.Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := spec.Rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
