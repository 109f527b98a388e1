package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/mq"
	"github.com/shaiso/assetsched/internal/policy"
	"github.com/shaiso/assetsched/internal/scheduler"
	"github.com/shaiso/assetsched/internal/subset"
)

const testDefinitions = `
version: 1
assets:
  - key: raw/events
    partitions:
      type: daily
      start: "2024-01-01"
  - key: raw/users
  - key: marts/daily_events
    partitions:
      type: daily
      start: "2024-01-01"
    deps:
      - key: raw/events
      - key: raw/users
    condition:
      kind: and
      operands:
        - in_latest_time_window
        - missing
  - key: marts/users_report
    deps:
      - key: raw/users
    condition: missing
`

type fakePublisher struct {
	events   []mq.AssetEventPayload
	statuses []mq.RunStatusPayload
	err      error
}

func (p *fakePublisher) PublishAssetEvent(_ context.Context, payload mq.AssetEventPayload) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, payload)
	return nil
}

func (p *fakePublisher) PublishRunStatus(_ context.Context, payload mq.RunStatusPayload) error {
	if p.err != nil {
		return p.err
	}
	p.statuses = append(p.statuses, payload)
	return nil
}

type failingStates struct{}

func (failingStates) LoadStates(context.Context) (map[domain.AssetKey]*condition.EvaluationState, error) {
	return nil, errors.New("db down")
}

type testServer struct {
	mux       *http.ServeMux
	states    *scheduler.MemoryStateStore
	publisher *fakePublisher
	clock     *clockwork.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	defs, err := policy.Parse([]byte(testDefinitions))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bundle, err := defs.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ts := &testServer{
		mux:       http.NewServeMux(),
		states:    scheduler.NewMemoryStateStore(),
		publisher: &fakePublisher{},
		clock:     clockwork.NewFakeClockAt(time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)),
	}
	h := NewHandler(Config{
		Bundle:    bundle,
		States:    ts.states,
		Publisher: ts.publisher,
		Clock:     ts.clock,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.RegisterRoutes(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func (ts *testServer) saveState(t *testing.T, key domain.AssetKey, keys ...string) *condition.EvaluationState {
	t.Helper()
	state := &condition.EvaluationState{
		AssetKey:     key,
		EvaluationID: uuid.New(),
		EvaluatedAt:  ts.clock.Now(),
		MaxStorageID: 7,
		Result: &condition.ResultSnapshot{
			AssetKey:    key,
			Kind:        condition.KindAnd,
			Description: "All of",
			TrueSubset:  subset.Serialized{AssetKey: key, Partitioned: true, Keys: keys},
		},
	}
	if err := ts.states.SaveStates(context.Background(), []*condition.EvaluationState{state}, nil); err != nil {
		t.Fatalf("SaveStates: %v", err)
	}
	return state
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) ErrorCode {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error.Code
}

// --- Asset Tests ---

func TestListAssets(t *testing.T) {
	ts := newTestServer(t)
	ts.saveState(t, "marts/daily_events", "2024-01-02")

	rec := ts.do(t, http.MethodGet, "/api/v1/assets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	assets := decode[[]AssetResponse](t, rec)
	want := []domain.AssetKey{"raw/events", "raw/users", "marts/daily_events", "marts/users_report"}
	if len(assets) != len(want) {
		t.Fatalf("expected %d assets, got %d", len(want), len(assets))
	}
	for i, key := range want {
		if assets[i].Key != key {
			t.Errorf("asset %d: expected %s, got %s", i, key, assets[i].Key)
		}
	}

	if assets[0].Policy != nil {
		t.Error("raw/events has no policy")
	}
	if assets[0].Partitions != "time_window" || assets[1].Partitions != "unpartitioned" {
		t.Errorf("unexpected partitions kinds: %s, %s", assets[0].Partitions, assets[1].Partitions)
	}

	daily := assets[2]
	if daily.LastEvaluation == nil || len(daily.LastEvaluation.TruePartitions) != 1 {
		t.Fatalf("expected last evaluation with one partition, got %+v", daily.LastEvaluation)
	}
	if assets[3].LastEvaluation != nil {
		t.Error("marts/users_report was not evaluated")
	}
}

func TestListAssets_StoreFailure(t *testing.T) {
	ts := newTestServer(t)
	defs, _ := policy.Parse([]byte(testDefinitions))
	bundle, _ := defs.Build()
	var buf bytes.Buffer
	h := NewHandler(Config{Bundle: bundle, States: failingStates{}, Logger: slog.New(slog.NewJSONHandler(&buf, nil))})
	ts.mux = http.NewServeMux()
	h.RegisterRoutes(ts.mux)

	rec := ts.do(t, http.MethodGet, "/api/v1/assets", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	// Ошибка пишется логгером запроса
	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if entry["msg"] == "internal error" {
			found = true
			if entry["path"] != "/api/v1/assets" || entry["method"] != http.MethodGet {
				t.Errorf("expected request attributes, got %v", entry)
			}
		}
	}
	if !found {
		t.Errorf("internal error was not logged:\n%s", buf.String())
	}
}

func TestGetAsset(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/assets/marts/daily_events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	asset := decode[AssetResponse](t, rec)
	if asset.Key != "marts/daily_events" {
		t.Errorf("unexpected key %s", asset.Key)
	}
	if len(asset.Deps) != 2 {
		t.Errorf("expected 2 deps, got %v", asset.Deps)
	}
	if asset.Policy == nil || asset.Policy.Kind != condition.KindAnd || len(asset.Policy.Children) != 2 {
		t.Fatalf("unexpected policy %+v", asset.Policy)
	}
	if asset.Policy.Children[1].Kind != condition.KindMissing {
		t.Errorf("expected second operand missing, got %s", asset.Policy.Children[1].Kind)
	}
	if asset.Policy.UniqueID == "" {
		t.Error("expected unique id")
	}
}

func TestGetAsset_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/assets/raw/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeNotFound {
		t.Errorf("expected %s, got %s", ErrCodeNotFound, code)
	}
}

// --- Evaluation Tests ---

func TestGetEvaluation(t *testing.T) {
	ts := newTestServer(t)
	state := ts.saveState(t, "marts/daily_events", "2024-01-01", "2024-01-02")

	rec := ts.do(t, http.MethodGet, "/api/v1/evaluations/marts/daily_events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	got := decode[EvaluationResponse](t, rec)
	if got.EvaluationID != state.EvaluationID {
		t.Errorf("expected evaluation %s, got %s", state.EvaluationID, got.EvaluationID)
	}
	if got.MaxStorageID != 7 || len(got.TruePartitions) != 2 {
		t.Errorf("unexpected summary %+v", got.EvaluationSummary)
	}
	if got.Result == nil || got.Result.Kind != condition.KindAnd {
		t.Errorf("unexpected result %+v", got.Result)
	}
}

func TestGetEvaluation_NotFound(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		path string
	}{
		{"not evaluated", "/api/v1/evaluations/marts/daily_events"},
		{"no policy", "/api/v1/evaluations/raw/events"},
		{"unknown asset", "/api/v1/evaluations/nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.path, nil)
			if rec.Code != http.StatusNotFound {
				t.Errorf("expected 404, got %d", rec.Code)
			}
		})
	}
}

// --- Event Tests ---

func TestReportEvent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/events", ReportEventRequest{
		Type:         domain.EventTypeMaterialization,
		AssetKey:     "raw/events",
		PartitionKey: "2024-01-01",
		RunID:        "run-1",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	if len(ts.publisher.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(ts.publisher.events))
	}
	ev := ts.publisher.events[0]
	if ev.AssetKey != "raw/events" || ev.PartitionKey != "2024-01-01" || ev.RunID != "run-1" {
		t.Errorf("unexpected payload %+v", ev)
	}
	if !ev.Timestamp.Equal(ts.clock.Now()) {
		t.Errorf("expected timestamp from clock, got %v", ev.Timestamp)
	}
}

func TestReportEvent_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		req    ReportEventRequest
		status int
	}{
		{
			name:   "unknown type",
			req:    ReportEventRequest{Type: "DELETED", AssetKey: "raw/users"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown asset",
			req:    ReportEventRequest{Type: domain.EventTypeObservation, AssetKey: "raw/nope"},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "partition key on unpartitioned asset",
			req:    ReportEventRequest{Type: domain.EventTypeObservation, AssetKey: "raw/users", PartitionKey: "x"},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "missing partition key",
			req:    ReportEventRequest{Type: domain.EventTypeMaterialization, AssetKey: "raw/events"},
			status: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPost, "/api/v1/events", tt.req)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body)
			}
			if len(ts.publisher.events) != 0 {
				t.Error("invalid event must not be published")
			}
		})
	}
}

func TestReportEvent_PublishFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.publisher.err = errors.New("broker down")

	rec := ts.do(t, http.MethodPost, "/api/v1/events", ReportEventRequest{
		Type:     domain.EventTypeObservation,
		AssetKey: "raw/users",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestReportEvent_Disabled(t *testing.T) {
	defs, _ := policy.Parse([]byte(testDefinitions))
	bundle, _ := defs.Build()
	mux := http.NewServeMux()
	NewHandler(Config{Bundle: bundle, States: scheduler.NewMemoryStateStore()}).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader([]byte(`{}`))))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReportRunStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/runs/run-9/status", ReportRunStatusRequest{
		Status:     domain.RunStatusRunning,
		Partitions: []domain.AssetPartition{domain.NewAssetPartition("raw/events", "2024-01-02")},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	if len(ts.publisher.statuses) != 1 || ts.publisher.statuses[0].RunID != "run-9" {
		t.Fatalf("unexpected statuses %+v", ts.publisher.statuses)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/runs/run-9/status", ReportRunStatusRequest{
		Status:     "EXPLODED",
		Partitions: []domain.AssetPartition{domain.NewAssetPartition("raw/users", "")},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/runs/run-9/status", ReportRunStatusRequest{Status: domain.RunStatusFailed})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without partitions, got %d", rec.Code)
	}
}

// --- Middleware Tests ---

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mw("a"), mw("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "handler" {
		t.Errorf("unexpected order %v", order)
	}
}

func TestLogging_CapturesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		NotFound(w, "nope")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if entry["status"] != float64(http.StatusNotFound) {
		t.Errorf("expected logged status 404, got %v", entry["status"])
	}
}
