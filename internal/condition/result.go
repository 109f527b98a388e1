package condition

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/history"
	"github.com/shaiso/assetsched/internal/subset"
)

// SubsetWithMetadata — часть истинного подмножества с пояснением.
type SubsetWithMetadata struct {
	Subset   subset.AssetSubset
	Metadata map[string]any
}

// Result — результат вычисления одного узла дерева.
//
// Дерево результатов повторяет дерево условий и одновременно служит
// полным объяснением решения. Метаданные детей не сливаются с родителем.
type Result struct {
	Condition           Condition
	AssetKey            domain.AssetKey
	UniqueID            string
	Start               time.Time
	End                 time.Time
	TrueSubset          subset.AssetSubset
	Candidate           subset.AssetSubset
	SubsetsWithMetadata []SubsetWithMetadata
	ExtraState          any
	Children            []*Result

	// FromCache — истинное подмножество взято из предыдущего тика.
	FromCache bool
}

// Create создаёт результат листового условия.
func Create(ctx *Context, trueSubset subset.AssetSubset, metadata []SubsetWithMetadata, extraState any) *Result {
	return &Result{
		Condition:           ctx.Condition,
		AssetKey:            ctx.AssetKey,
		UniqueID:            ctx.UniqueID,
		Start:               ctx.Start,
		End:                 ctx.Now(),
		TrueSubset:          trueSubset,
		Candidate:           ctx.Candidate,
		SubsetsWithMetadata: metadata,
		ExtraState:          extraState,
	}
}

// CreateFromChildren создаёт результат составного условия.
func CreateFromChildren(ctx *Context, trueSubset subset.AssetSubset, children []*Result) *Result {
	return &Result{
		Condition:  ctx.Condition,
		AssetKey:   ctx.AssetKey,
		UniqueID:   ctx.UniqueID,
		Start:      ctx.Start,
		End:        ctx.Now(),
		TrueSubset: trueSubset,
		Candidate:  ctx.Candidate,
		Children:   children,
	}
}

// Snapshot возвращает сериализуемую копию дерева результатов.
func (r *Result) Snapshot() *ResultSnapshot {
	snap := &ResultSnapshot{
		AssetKey:    r.AssetKey,
		Kind:        r.Condition.Kind(),
		Description: r.Condition.Description(),
		UniqueID:    r.UniqueID,
		Start:       r.Start,
		End:         r.End,
		TrueSubset:  r.TrueSubset.Serialize(),
		Candidate:   r.Candidate.Serialize(),
		ExtraState:  r.ExtraState,
		FromCache:   r.FromCache,
	}
	for _, sm := range r.SubsetsWithMetadata {
		snap.SubsetsWithMetadata = append(snap.SubsetsWithMetadata, SerializedSubsetWithMetadata{
			Subset:   sm.Subset.Serialize(),
			Metadata: sm.Metadata,
		})
	}
	for _, child := range r.Children {
		snap.Children = append(snap.Children, child.Snapshot())
	}
	return snap
}

// SerializedSubsetWithMetadata — сохраняемая форма SubsetWithMetadata.
type SerializedSubsetWithMetadata struct {
	Subset   subset.Serialized `json:"subset"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// ResultSnapshot — сохраняемая форма результата узла.
type ResultSnapshot struct {
	AssetKey            domain.AssetKey                `json:"asset_key"`
	Kind                Kind                           `json:"kind"`
	Description         string                         `json:"description"`
	UniqueID            string                         `json:"unique_id"`
	Start               time.Time                      `json:"start"`
	End                 time.Time                      `json:"end"`
	TrueSubset          subset.Serialized              `json:"true_subset"`
	Candidate           subset.Serialized              `json:"candidate_subset"`
	SubsetsWithMetadata []SerializedSubsetWithMetadata `json:"subsets_with_metadata,omitempty"`
	ExtraState          any                            `json:"extra_state,omitempty"`
	FromCache           bool                           `json:"from_cache,omitempty"`
	Children            []*ResultSnapshot              `json:"children,omitempty"`
}

// Find ищет узел по asset, идентификатору и кандидатам.
// Возвращает nil, если подходящего узла нет.
func (s *ResultSnapshot) Find(asset domain.AssetKey, uniqueID string, candidate subset.Serialized) *ResultSnapshot {
	if s == nil {
		return nil
	}
	if s.AssetKey == asset && s.UniqueID == uniqueID && sameSerialized(s.Candidate, candidate) {
		return s
	}
	for _, child := range s.Children {
		if found := child.Find(asset, uniqueID, candidate); found != nil {
			return found
		}
	}
	return nil
}

func sameSerialized(a, b subset.Serialized) bool {
	return a.AssetKey == b.AssetKey &&
		a.Fingerprint == b.Fingerprint &&
		a.Partitioned == b.Partitioned &&
		a.All == b.All &&
		slices.Equal(a.Keys, b.Keys)
}

// EvaluationState — сохраняемое состояние вычисления asset после тика.
type EvaluationState struct {
	AssetKey     domain.AssetKey `json:"asset_key"`
	EvaluationID uuid.UUID       `json:"evaluation_id"`
	EvaluatedAt  time.Time       `json:"evaluated_at"`
	MaxStorageID int64           `json:"max_storage_id"`
	Result       *ResultSnapshot `json:"result"`

	// AssetVersions — отпечатки истории asset, участвовавших в вычислении.
	AssetVersions map[domain.AssetKey]string `json:"asset_versions,omitempty"`
}

// NewEvaluationState создаёт состояние тика из результата и снимка истории,
// на котором он вычислен.
func NewEvaluationState(evaluationID uuid.UUID, evaluatedAt time.Time, res *Result, h *history.Snapshot) *EvaluationState {
	snap := res.Snapshot()
	versions := make(map[domain.AssetKey]string)
	snap.walk(func(node *ResultSnapshot) {
		if _, ok := versions[node.AssetKey]; !ok {
			versions[node.AssetKey] = h.AssetVersion(node.AssetKey)
		}
	})
	return &EvaluationState{
		AssetKey:      res.AssetKey,
		EvaluationID:  evaluationID,
		EvaluatedAt:   evaluatedAt,
		MaxStorageID:  h.MaxStorageID(),
		Result:        snap,
		AssetVersions: versions,
	}
}

func (s *ResultSnapshot) walk(fn func(*ResultSnapshot)) {
	fn(s)
	for _, child := range s.Children {
		child.walk(fn)
	}
}

// TrueSubset возвращает сохранённое истинное подмножество корня.
func (s *EvaluationState) TrueSubset() (subset.Serialized, bool) {
	if s == nil || s.Result == nil {
		return subset.Serialized{}, false
	}
	return s.Result.TrueSubset, true
}
