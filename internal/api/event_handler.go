package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/mq"
	"github.com/shaiso/assetsched/internal/telemetry"
)

// ReportEvent принимает материализацию или наблюдение партиции.
// POST /api/v1/events
//
// Событие публикуется в очередь; в журнал его записывает consumer,
// поэтому ответ 202, а не 201.
func (h *Handler) ReportEvent(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		Unavailable(w, "event intake is disabled")
		return
	}

	var req ReportEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if !req.Type.IsValid() {
		BadRequest(w, fmt.Sprintf("invalid event type %q", req.Type))
		return
	}
	if err := h.checkPartition(req.AssetKey, req.PartitionKey); err != nil {
		InvalidEvent(w, err.Error())
		return
	}

	payload := mq.AssetEventPayload{
		Type:         req.Type,
		AssetKey:     req.AssetKey,
		PartitionKey: req.PartitionKey,
		RunID:        req.RunID,
		Timestamp:    h.clock.Now().UTC(),
	}
	if req.Timestamp != nil {
		payload.Timestamp = req.Timestamp.UTC()
	}

	if err := h.publisher.PublishAssetEvent(r.Context(), payload); err != nil {
		InternalError(w, telemetry.FromContext(r.Context()), err)
		return
	}

	Accepted(w, payload)
}

// ReportRunStatus принимает статус run для его партиций.
// POST /api/v1/runs/{id}/status
func (h *Handler) ReportRunStatus(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		Unavailable(w, "event intake is disabled")
		return
	}

	runID := r.PathValue("id")
	var req ReportRunStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if !req.Status.IsValid() {
		BadRequest(w, fmt.Sprintf("invalid run status %q", req.Status))
		return
	}
	if len(req.Partitions) == 0 {
		BadRequest(w, "partitions are required")
		return
	}
	for _, p := range req.Partitions {
		if err := h.checkPartition(p.AssetKey, p.PartitionKey); err != nil {
			InvalidEvent(w, err.Error())
			return
		}
	}

	payload := mq.RunStatusPayload{
		RunID:      runID,
		Status:     req.Status,
		Partitions: req.Partitions,
	}
	if err := h.publisher.PublishRunStatus(r.Context(), payload); err != nil {
		InternalError(w, telemetry.FromContext(r.Context()), err)
		return
	}

	Accepted(w, payload)
}

// checkPartition проверяет, что asset есть в графе и ключ партиции
// согласован с его определением партиций.
func (h *Handler) checkPartition(key domain.AssetKey, partitionKey string) error {
	if key.IsZero() {
		return errors.New("asset_key is required")
	}
	if !h.bundle.Graph.Has(key) {
		return fmt.Errorf("unknown asset %s", key)
	}
	partitioned := h.bundle.Graph.PartitionsDef(key) != nil
	if partitioned && partitionKey == "" {
		return fmt.Errorf("asset %s is partitioned: partition_key is required", key)
	}
	if !partitioned && partitionKey != "" {
		return fmt.Errorf("asset %s is not partitioned", key)
	}
	return nil
}
