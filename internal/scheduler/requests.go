package scheduler

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
)

// Метки запроса на запуск.
const (
	TagEvaluationID = "assetsched/evaluation_id"
	TagPartitionSet = "assetsched/partitions_fingerprint"
)

// requestGroup — asset с одинаковым набором партиций и ключом партиции.
type requestGroup struct {
	fingerprint  string
	partitionKey string
}

// BuildRunRequests сворачивает истинные подмножества корневых условий
// в запросы на запуск.
//
// Один запрос соответствует паре (набор партиций, ключ партиции): asset
// с одинаковыми определениями партиций и одним ключом запускаются вместе.
// Все непартиционированные asset попадают в один запрос. Порядок запросов
// и asset внутри запроса детерминирован; ID запроса выводится из
// evaluationID и группы.
func BuildRunRequests(evaluationID uuid.UUID, results []*condition.Result, createdAt time.Time) []domain.RunRequest {
	groups := make(map[requestGroup][]domain.AssetKey)
	for _, res := range results {
		if res == nil || res.TrueSubset.IsEmpty() {
			continue
		}
		space := res.TrueSubset.Space()
		fingerprint := ""
		if space.Partitioned() {
			fingerprint = space.Fingerprint()
		}
		res.TrueSubset.Each(func(_ int, pk string) {
			g := requestGroup{fingerprint: fingerprint, partitionKey: pk}
			groups[g] = append(groups[g], res.AssetKey)
		})
	}

	keys := make([]requestGroup, 0, len(groups))
	for g := range groups {
		keys = append(keys, g)
	}
	slices.SortFunc(keys, func(a, b requestGroup) int {
		if c := cmp.Compare(a.fingerprint, b.fingerprint); c != 0 {
			return c
		}
		return cmp.Compare(a.partitionKey, b.partitionKey)
	})

	requests := make([]domain.RunRequest, 0, len(keys))
	for _, g := range keys {
		tags := map[string]string{TagEvaluationID: evaluationID.String()}
		if g.fingerprint != "" {
			tags[TagPartitionSet] = g.fingerprint
		}
		requests = append(requests, domain.RunRequest{
			ID:           uuid.NewSHA1(evaluationID, []byte(g.fingerprint+"\x00"+g.partitionKey)),
			EvaluationID: evaluationID,
			AssetKeys:    domain.SortAssetKeys(groups[g]),
			PartitionKey: g.partitionKey,
			Tags:         tags,
			CreatedAt:    createdAt,
		})
	}
	return requests
}
