package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/partitions"
)

// Asset DTOs

// AssetResponse — ответ с asset и его политикой.
type AssetResponse struct {
	Key            domain.AssetKey    `json:"key"`
	Deps           []domain.AssetKey  `json:"deps"`
	Dependents     []domain.AssetKey  `json:"dependents"`
	Partitions     partitions.Kind    `json:"partitions"`
	Policy         *ConditionResponse `json:"policy,omitempty"`
	LastEvaluation *EvaluationSummary `json:"last_evaluation,omitempty"`
}

// ConditionResponse — узел дерева условий политики.
type ConditionResponse struct {
	Kind        condition.Kind       `json:"kind"`
	Description string               `json:"description"`
	UniqueID    string               `json:"unique_id"`
	Children    []*ConditionResponse `json:"children,omitempty"`
}

// ConditionFromDomain конвертирует дерево условий в ConditionResponse.
func ConditionFromDomain(c condition.Condition) *ConditionResponse {
	if c == nil {
		return nil
	}
	resp := &ConditionResponse{
		Kind:        c.Kind(),
		Description: c.Description(),
		UniqueID:    condition.UniqueID(c),
	}
	for _, child := range c.Children() {
		if child != nil {
			resp.Children = append(resp.Children, ConditionFromDomain(child))
		}
	}
	return resp
}

// Evaluation DTOs

// EvaluationSummary — краткий итог последнего тика для asset.
type EvaluationSummary struct {
	EvaluationID   uuid.UUID `json:"evaluation_id"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
	MaxStorageID   int64     `json:"max_storage_id"`
	AllPartitions  bool      `json:"all_partitions,omitempty"`
	TruePartitions []string  `json:"true_partitions"`
}

// SummaryFromDomain конвертирует EvaluationState в EvaluationSummary.
func SummaryFromDomain(s *condition.EvaluationState) *EvaluationSummary {
	if s == nil {
		return nil
	}
	summary := &EvaluationSummary{
		EvaluationID:   s.EvaluationID,
		EvaluatedAt:    s.EvaluatedAt,
		MaxStorageID:   s.MaxStorageID,
		TruePartitions: []string{},
	}
	if ts, ok := s.TrueSubset(); ok {
		summary.AllPartitions = ts.All
		if ts.Keys != nil {
			summary.TruePartitions = ts.Keys
		}
	}
	return summary
}

// EvaluationResponse — полное дерево результатов последнего тика.
type EvaluationResponse struct {
	EvaluationSummary
	AssetKey domain.AssetKey           `json:"asset_key"`
	Result   *condition.ResultSnapshot `json:"result"`
}

// Event DTOs

// ReportEventRequest — запрос на регистрацию события asset.
type ReportEventRequest struct {
	Type         domain.EventType `json:"type"`
	AssetKey     domain.AssetKey  `json:"asset_key"`
	PartitionKey string           `json:"partition_key,omitempty"`
	RunID        string           `json:"run_id,omitempty"`
	Timestamp    *time.Time       `json:"timestamp,omitempty"`
}

// ReportRunStatusRequest — запрос на обновление статуса run.
type ReportRunStatusRequest struct {
	Status     domain.RunStatus        `json:"status"`
	Partitions []domain.AssetPartition `json:"partitions"`
}
