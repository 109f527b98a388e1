package api

import (
	"net/http"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/partitions"
	"github.com/shaiso/assetsched/internal/telemetry"
)

// ListAssets возвращает все asset графа в топологическом порядке.
// GET /api/v1/assets
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	states, err := h.states.LoadStates(r.Context())
	if HandleStoreError(w, telemetry.FromContext(r.Context()), err) {
		return
	}

	keys := h.bundle.Graph.Keys()
	result := make([]AssetResponse, len(keys))
	for i, key := range keys {
		result[i] = h.assetResponse(key)
		result[i].LastEvaluation = SummaryFromDomain(states[key])
	}

	List(w, result, len(result))
}

// GetAsset возвращает asset с деревом условий политики.
// GET /api/v1/assets/{key...}
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	key := domain.AssetKey(r.PathValue("key"))
	if !h.bundle.Graph.Has(key) {
		NotFound(w, "asset not found")
		return
	}

	states, err := h.states.LoadStates(r.Context())
	if HandleStoreError(w, telemetry.FromContext(r.Context()), err) {
		return
	}

	resp := h.assetResponse(key)
	resp.LastEvaluation = SummaryFromDomain(states[key])
	Success(w, resp)
}

// GetEvaluation возвращает дерево результатов последнего тика для asset.
// GET /api/v1/evaluations/{key...}
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	key := domain.AssetKey(r.PathValue("key"))
	if _, ok := h.bundle.Policy(key); !ok {
		NotFound(w, "asset has no policy")
		return
	}

	states, err := h.states.LoadStates(r.Context())
	if HandleStoreError(w, telemetry.FromContext(r.Context()), err) {
		return
	}
	state, ok := states[key]
	if !ok || state.Result == nil {
		NotFound(w, "asset has not been evaluated yet")
		return
	}

	Success(w, EvaluationResponse{
		EvaluationSummary: *SummaryFromDomain(state),
		AssetKey:          key,
		Result:            state.Result,
	})
}

func (h *Handler) assetResponse(key domain.AssetKey) AssetResponse {
	g := h.bundle.Graph
	resp := AssetResponse{
		Key:        key,
		Deps:       g.ParentKeys(key),
		Dependents: g.ChildKeys(key),
		Partitions: partitions.KindUnpartitioned,
	}
	if def := g.PartitionsDef(key); def != nil {
		resp.Partitions = def.Kind()
	}
	if c, ok := h.bundle.Policy(key); ok {
		resp.Policy = ConditionFromDomain(c)
	}
	return resp
}
