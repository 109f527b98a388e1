package history

import (
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/shaiso/assetsched/internal/domain"
)

// Record — последнее событие партиции.
type Record struct {
	StorageID int64     `json:"storage_id"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
}

// assetHistory — история одного asset по ключам партиций.
type assetHistory struct {
	materializations map[string]Record
	updates          map[string]Record
	updatedAt        map[string]time.Time
	inProgress       map[string]string
}

func newAssetHistory() *assetHistory {
	return &assetHistory{
		materializations: make(map[string]Record),
		updates:          make(map[string]Record),
		updatedAt:        make(map[string]time.Time),
		inProgress:       make(map[string]string),
	}
}

// Snapshot — согласованный снимок журнала событий и run на начало тика.
//
// Снимок загружается один раз до вычисления условий и дальше только
// читается, поэтому безопасен для конкурентного использования.
type Snapshot struct {
	assets       map[domain.AssetKey]*assetHistory
	maxStorageID int64
}

// NewSnapshot строит снимок из событий и run.
// Порядок событий не важен: для каждой партиции берётся событие с наибольшим
// StorageID. Время обновления партиции — наибольший Timestamp среди её
// событий, так как время задаёт отправитель и оно может быть в прошлом.
func NewSnapshot(events []domain.AssetEvent, runs []domain.AssetRun) *Snapshot {
	s := &Snapshot{assets: make(map[domain.AssetKey]*assetHistory)}

	for _, e := range events {
		h := s.asset(e.Partition.AssetKey)
		rec := Record{StorageID: e.StorageID, Timestamp: e.Timestamp, RunID: e.RunID}
		pk := e.Partition.PartitionKey

		if e.Type == domain.EventTypeMaterialization {
			if prev, ok := h.materializations[pk]; !ok || prev.StorageID < rec.StorageID {
				h.materializations[pk] = rec
			}
		}
		if prev, ok := h.updates[pk]; !ok || prev.StorageID < rec.StorageID {
			h.updates[pk] = rec
		}
		if e.Timestamp.After(h.updatedAt[pk]) {
			h.updatedAt[pk] = e.Timestamp
		}
		if e.StorageID > s.maxStorageID {
			s.maxStorageID = e.StorageID
		}
	}

	for i := range runs {
		run := &runs[i]
		if !run.IsInProgress() {
			continue
		}
		s.asset(run.Partition.AssetKey).inProgress[run.Partition.PartitionKey] = run.RunID
	}

	return s
}

func (s *Snapshot) asset(key domain.AssetKey) *assetHistory {
	h, ok := s.assets[key]
	if !ok {
		h = newAssetHistory()
		s.assets[key] = h
	}
	return h
}

// MaxStorageID возвращает наибольший видимый StorageID.
// StorageID выдаются до фиксации транзакции, поэтому событие с меньшим
// номером может стать видимым позже; для проверки изменений служит AssetVersion.
func (s *Snapshot) MaxStorageID() int64 {
	return s.maxStorageID
}

// LatestMaterialization возвращает последнюю материализацию партиции.
func (s *Snapshot) LatestMaterialization(p domain.AssetPartition) (Record, bool) {
	h, ok := s.assets[p.AssetKey]
	if !ok {
		return Record{}, false
	}
	rec, ok := h.materializations[p.PartitionKey]
	return rec, ok
}

// LatestUpdate возвращает последнее событие партиции (материализацию или наблюдение).
func (s *Snapshot) LatestUpdate(p domain.AssetPartition) (Record, bool) {
	h, ok := s.assets[p.AssetKey]
	if !ok {
		return Record{}, false
	}
	rec, ok := h.updates[p.PartitionKey]
	return rec, ok
}

// IsInProgress возвращает true, если на партицию нацелен незавершённый run.
func (s *Snapshot) IsInProgress(p domain.AssetPartition) bool {
	h, ok := s.assets[p.AssetKey]
	if !ok {
		return false
	}
	_, ok = h.inProgress[p.PartitionKey]
	return ok
}

// MaterializedKeys возвращает отсортированные ключи материализованных партиций asset.
func (s *Snapshot) MaterializedKeys(key domain.AssetKey) []string {
	h, ok := s.assets[key]
	if !ok {
		return nil
	}
	return sortedKeys(h.materializations, func(Record) bool { return true })
}

// InProgressKeys возвращает отсортированные ключи партиций с незавершёнными run.
func (s *Snapshot) InProgressKeys(key domain.AssetKey) []string {
	h, ok := s.assets[key]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(h.inProgress))
	for pk := range h.inProgress {
		keys = append(keys, pk)
	}
	slices.Sort(keys)
	return keys
}

// UpdatedAfterTime возвращает ключи партиций asset, обновлённых строго после t.
func (s *Snapshot) UpdatedAfterTime(key domain.AssetKey, t time.Time) []string {
	h, ok := s.assets[key]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(h.updatedAt))
	for pk, ts := range h.updatedAt {
		if ts.After(t) {
			keys = append(keys, pk)
		}
	}
	slices.Sort(keys)
	return keys
}

// AssetVersion возвращает отпечаток истории asset: последние материализация
// и обновление каждой партиции и время её обновления.
// Отпечаток меняется, только если меняется ответ хотя бы одного запроса
// к истории asset, кроме IsInProgress.
func (s *Snapshot) AssetVersion(key domain.AssetKey) string {
	d := xxhash.New()
	h, ok := s.assets[key]
	if ok {
		keys := make([]string, 0, len(h.updates))
		for pk := range h.updates {
			keys = append(keys, pk)
		}
		slices.Sort(keys)

		for _, pk := range keys {
			_, _ = d.WriteString(strconv.Quote(pk))
			_, _ = d.WriteString(":" + strconv.FormatInt(h.materializations[pk].StorageID, 10))
			_, _ = d.WriteString(":" + strconv.FormatInt(h.updates[pk].StorageID, 10))
			_, _ = d.WriteString(":" + strconv.FormatInt(h.updatedAt[pk].UnixNano(), 10) + ";")
		}
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

func sortedKeys(m map[string]Record, keep func(Record) bool) []string {
	keys := make([]string, 0, len(m))
	for pk, r := range m {
		if keep(r) {
			keys = append(keys, pk)
		}
	}
	slices.Sort(keys)
	return keys
}
