package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/legacy"
	"github.com/shaiso/assetsched/internal/partitions"
)

// --- Load Tests ---

func TestLoad(t *testing.T) {
	defs, err := Load("testdata/definitions.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(defs.Assets) != 4 {
		t.Fatalf("expected 4 assets, got %d", len(defs.Assets))
	}

	bundle, err := defs.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []domain.AssetKey{"marts/daily_events", "marts/users_report"}
	if diff := cmp.Diff(want, bundle.Keys()); diff != "" {
		t.Errorf("policy keys mismatch (-want +got):\n%s", diff)
	}

	daily, ok := bundle.Policy("marts/daily_events")
	if !ok {
		t.Fatal("expected policy for marts/daily_events")
	}
	var kinds []condition.Kind
	condition.Walk(daily, func(c condition.Condition) { kinds = append(kinds, c.Kind()) })
	wantKinds := []condition.Kind{
		condition.KindAnd,
		condition.KindInLatestTimeWindow,
		condition.KindAnyDepsMatch,
		condition.KindUpdatedSinceCron,
		condition.KindNot,
		condition.KindInProgress,
	}
	if diff := cmp.Diff(wantKinds, kinds); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}

	report, _ := bundle.Policy("marts/users_report")
	if report.Kind() != condition.KindAnd {
		t.Errorf("legacy policy: expected and, got %s", report.Kind())
	}

	if def := bundle.Graph.PartitionsDef("raw/events"); def == nil || def.Kind() != partitions.KindTimeWindow {
		t.Errorf("raw/events should have time-window partitions, got %v", def)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("testdata/nope.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

// --- Parse Tests ---

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
		wantMsg string
	}{
		{
			name:    "no assets",
			yaml:    "version: 1\n",
			wantErr: ErrInvalidDefinitions,
			wantMsg: "assets",
		},
		{
			name:    "empty key",
			yaml:    "version: 1\nassets:\n  - partitions: {type: daily, start: '2024-01-01'}\n",
			wantErr: ErrInvalidDefinitions,
			wantMsg: "assets[0].key",
		},
		{
			name:    "bad partitions type",
			yaml:    "version: 1\nassets:\n  - key: a\n    partitions: {type: weekly, start: '2024-01-01'}\n",
			wantErr: ErrInvalidDefinitions,
			wantMsg: "oneof",
		},
		{
			name:    "static without keys",
			yaml:    "version: 1\nassets:\n  - key: a\n    partitions: {type: static}\n",
			wantErr: ErrInvalidDefinitions,
			wantMsg: "keys",
		},
		{
			name:    "bad cron",
			yaml:    "version: 1\nassets:\n  - key: a\n    condition: {kind: updated_since_cron, cron: 'every day'}\n",
			wantErr: ErrInvalidDefinitions,
			wantMsg: "cron",
		},
		{
			name:    "condition and auto_materialize",
			yaml:    "version: 1\nassets:\n  - key: a\n    condition: missing\n    auto_materialize:\n      materialize: [{kind: materialize_on_missing}]\n",
			wantErr: ErrInvalidDefinitions,
			wantMsg: "excluded_with",
		},
		{
			name:    "unknown field",
			yaml:    "version: 1\nassets:\n  - key: a\n    owner: me\n",
			wantErr: ErrInvalidDefinitions,
			wantMsg: "owner",
		},
		{
			name:    "unsupported version",
			yaml:    "version: 2\nassets:\n  - key: a\n",
			wantErr: ErrUnsupportedVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error to mention %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestParse_ShortConditionForm(t *testing.T) {
	defs, err := Parse([]byte("version: 1\nassets:\n  - key: a\n    condition: missing\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := defs.Assets[0].Condition.Kind; got != "missing" {
		t.Errorf("expected kind missing, got %q", got)
	}
}

// --- Build Tests ---

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "unknown kind",
			yaml:    "version: 1\nassets:\n  - key: a\n    condition: sometimes\n",
			wantErr: ErrUnknownKind,
		},
		{
			name:    "deps operator on root asset",
			yaml:    "version: 1\nassets:\n  - key: a\n    condition: {kind: any_deps_match, operand: materialized}\n",
			wantErr: condition.ErrNoDependencies,
		},
		{
			name:    "not without operand",
			yaml:    "version: 1\nassets:\n  - key: a\n    condition: not\n",
			wantErr: condition.ErrInvalidCondition,
		},
		{
			name:    "unknown rule",
			yaml:    "version: 1\nassets:\n  - key: a\n    auto_materialize:\n      materialize: [{kind: materialize_sometimes}]\n",
			wantErr: legacy.ErrUnknownRule,
		},
		{
			name:    "skip rule as materialize",
			yaml:    "version: 1\nassets:\n  - key: a\n    auto_materialize:\n      materialize: [{kind: skip_on_parent_missing}]\n",
			wantErr: legacy.ErrWrongDecision,
		},
		{
			name:    "dep is not a parent",
			yaml:    "version: 1\nassets:\n  - key: a\n  - key: b\n    condition: {kind: dep, dep: c, operand: materialized}\n",
			wantErr: condition.ErrInvalidCondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defs, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = defs.Build()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var defErr *DefinitionError
			if !errors.As(err, &defErr) {
				t.Errorf("expected DefinitionError, got %T", err)
			}
		})
	}
}

func TestBuild_StaticMapping(t *testing.T) {
	src := `
version: 1
assets:
  - key: regions
    partitions: {type: static, keys: [eu, us]}
  - key: report
    partitions: {type: static, keys: [all]}
    deps:
      - key: regions
        mapping:
          type: static
          downstream_by_upstream: {eu: [all], us: [all]}
    condition:
      kind: AllDepsCondition
      operand: MaterializedSchedulingCondition
`
	defs, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bundle, err := defs.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	m, ok := bundle.Graph.Mapping("report", "regions")
	if !ok {
		t.Fatal("expected mapping for report <- regions")
	}
	if m.Kind() != "static" {
		t.Errorf("expected static mapping, got %s", m.Kind())
	}
}

func TestBuild_CycleRejected(t *testing.T) {
	src := "version: 1\nassets:\n  - key: a\n    deps: [{key: b}]\n  - key: b\n    deps: [{key: a}]\n"
	defs, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := defs.Build(); err == nil {
		t.Error("expected cycle error")
	}
}

// --- Alias Tests ---

func TestNormalizeKind(t *testing.T) {
	tests := []struct {
		name string
		want condition.Kind
		ok   bool
	}{
		{"and", condition.KindAnd, true},
		{"AndAssetCondition", condition.KindAnd, true},
		{"OrAssetCondition", condition.KindOr, true},
		{"NotAssetCondition", condition.KindNot, true},
		{"AnyDepsCondition", condition.KindAnyDepsMatch, true},
		{"AllDepsCondition", condition.KindAllDepsMatch, true},
		{"DepConditionWrapperCondition", condition.KindDep, true},
		{"UpdatedSinceCronCondition", condition.KindUpdatedSinceCron, true},
		{"RuleCondition", legacy.KindRule, true},
		{"rule", legacy.KindRule, true},
		{"FancyCondition", "FancyCondition", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeKind(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeKind(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
