package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
//
// Ключ asset содержит "/", поэтому он всегда последний сегмент пути.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Assets
	mux.Handle("GET /api/v1/assets", chain(http.HandlerFunc(h.ListAssets)))
	mux.Handle("GET /api/v1/assets/{key...}", chain(http.HandlerFunc(h.GetAsset)))

	// Evaluations
	mux.Handle("GET /api/v1/evaluations/{key...}", chain(http.HandlerFunc(h.GetEvaluation)))

	// Events
	mux.Handle("POST /api/v1/events", chain(http.HandlerFunc(h.ReportEvent)))
	mux.Handle("POST /api/v1/runs/{id}/status", chain(http.HandlerFunc(h.ReportRunStatus)))
}
