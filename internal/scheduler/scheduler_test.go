package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/assetsched/internal/assetgraph"
	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/history"
	"github.com/shaiso/assetsched/internal/policy"
	"github.com/shaiso/assetsched/internal/telemetry"
)

const definitions = `
version: 1
assets:
  - key: a
    condition: missing
  - key: b
    condition: missing
  - key: c
    partitions: {type: static, keys: [x, y]}
    condition: missing
  - key: d
    partitions: {type: static, keys: [x, y]}
    condition: missing
  - key: e
    partitions: {type: static, keys: [x, y, z]}
    condition: missing
  - key: f
    condition: {kind: updated_since_cron, cron: "0 0 * * *"}
`

func mustBundle(t *testing.T, src string) *policy.Bundle {
	t.Helper()
	defs, err := policy.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bundle, err := defs.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return bundle
}

type fixture struct {
	clock   *clockwork.FakeClock
	history *history.MemoryStore
	states  *MemoryStateStore
	metrics *telemetry.Metrics
}

func newFixture() *fixture {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{
		clock:   clock,
		history: history.NewMemoryStore(clock),
		states:  NewMemoryStateStore(),
		metrics: telemetry.NewMetrics(prometheus.NewRegistry()),
	}
}

func (f *fixture) scheduler(bundle *policy.Bundle, loader history.Loader, pub RunRequestPublisher) *Scheduler {
	return New(Config{
		Bundle:    bundle,
		Loader:    loader,
		States:    f.states,
		Publisher: pub,
		Metrics:   f.metrics,
		Clock:     f.clock,
		Workers:   2,
	})
}

// --- Test doubles ---

type failingLoader struct{}

func (failingLoader) LoadSnapshot(context.Context) (*history.Snapshot, error) {
	return nil, errors.New("db down")
}

type recordingPublisher struct {
	mu       sync.Mutex
	requests []domain.RunRequest
	err      error
}

func (p *recordingPublisher) PublishRunRequests(_ context.Context, requests []domain.RunRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, requests...)
	return nil
}

type failingCondition struct{}

func (failingCondition) Kind() condition.Kind            { return "failing" }
func (failingCondition) Description() string             { return "Always fails" }
func (failingCondition) Children() []condition.Condition { return nil }
func (failingCondition) Evaluate(*condition.Context) (*condition.Result, error) {
	return nil, errors.New("evaluation failed")
}

// --- Tick Tests ---

func TestTick_BuildsRunRequests(t *testing.T) {
	f := newFixture()
	pub := &recordingPublisher{}
	sched := f.scheduler(mustBundle(t, definitions), f.history, pub)

	res, err := sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// {a,b} + {c,d}×{x,y} + {e}×{x,y,z}
	if len(res.RunRequests) != 6 {
		t.Fatalf("expected 6 run requests, got %d", len(res.RunRequests))
	}

	first := res.RunRequests[0]
	if first.PartitionKey != "" {
		t.Errorf("unpartitioned group should come first, got %q", first.PartitionKey)
	}
	if diff := cmp.Diff([]domain.AssetKey{"a", "b"}, first.AssetKeys); diff != "" {
		t.Errorf("unpartitioned group (-want +got):\n%s", diff)
	}

	var shared int
	for _, rr := range res.RunRequests[1:] {
		if rr.EvaluationID != res.EvaluationID {
			t.Errorf("request %s has evaluation %s, want %s", rr.ID, rr.EvaluationID, res.EvaluationID)
		}
		if len(rr.AssetKeys) == 2 {
			shared++
			if diff := cmp.Diff([]domain.AssetKey{"c", "d"}, rr.AssetKeys); diff != "" {
				t.Errorf("shared partitions group (-want +got):\n%s", diff)
			}
		}
	}
	if shared != 2 {
		t.Errorf("expected 2 requests for c and d, got %d", shared)
	}

	if f.states.Saves() != 1 {
		t.Errorf("expected 1 save, got %d", f.states.Saves())
	}
	if got := len(f.states.RunRequests()); got != 6 {
		t.Errorf("expected 6 stored run requests, got %d", got)
	}
	if got := len(pub.requests); got != 6 {
		t.Errorf("expected 6 published run requests, got %d", got)
	}
	if got := testutil.ToFloat64(f.metrics.RunRequestsTotal); got != 6 {
		t.Errorf("expected run requests metric 6, got %v", got)
	}

	state, ok := f.states.State("f")
	if !ok {
		t.Fatal("expected state for f")
	}
	if state.EvaluationID != res.EvaluationID || !state.EvaluatedAt.Equal(f.clock.Now()) {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestTick_UsesPreviousState(t *testing.T) {
	f := newFixture()
	sched := f.scheduler(mustBundle(t, definitions), f.history, nil)

	if _, err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	f.clock.Advance(time.Minute)

	res, err := sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if !res.Results["f"].FromCache {
		t.Error("second tick should reuse the updated_since_cron result")
	}
}

func TestTick_MaterializedAssetsDropOut(t *testing.T) {
	f := newFixture()
	sched := f.scheduler(mustBundle(t, definitions), f.history, nil)

	f.history.RecordMaterialization(domain.NewAssetPartition("a", ""), "")
	f.history.RecordMaterialization(domain.NewAssetPartition("e", "x"), "")

	res, err := sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if diff := cmp.Diff([]domain.AssetKey{"b"}, res.RunRequests[0].AssetKeys); diff != "" {
		t.Errorf("unpartitioned group (-want +got):\n%s", diff)
	}
	if len(res.RunRequests) != 5 {
		t.Errorf("expected 5 run requests, got %d", len(res.RunRequests))
	}
}

// --- Failure Tests ---

func TestTick_HistoryFailureWritesNothing(t *testing.T) {
	f := newFixture()
	sched := f.scheduler(mustBundle(t, definitions), failingLoader{}, nil)

	if _, err := sched.Tick(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if f.states.Saves() != 0 {
		t.Errorf("failed tick must not save, got %d saves", f.states.Saves())
	}
	if got := testutil.ToFloat64(f.metrics.TicksTotal.WithLabelValues(telemetry.TickStatusFailed)); got != 1 {
		t.Errorf("expected 1 failed tick, got %v", got)
	}
}

func TestTick_CancelledWritesNothing(t *testing.T) {
	f := newFixture()
	sched := f.scheduler(mustBundle(t, definitions), f.history, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sched.Tick(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.states.Saves() != 0 {
		t.Errorf("cancelled tick must not save, got %d saves", f.states.Saves())
	}
}

func TestTick_EvaluationFailureWritesNothing(t *testing.T) {
	f := newFixture()
	g, err := assetgraph.Build([]assetgraph.AssetDef{{Key: "a"}, {Key: "b"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	bundle := &policy.Bundle{
		Graph: g,
		Policies: map[domain.AssetKey]condition.Condition{
			"a": condition.Missing(),
			"b": failingCondition{},
		},
	}
	sched := f.scheduler(bundle, f.history, nil)

	if _, err := sched.Tick(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := f.states.State("a"); ok {
		t.Error("state of a must not be saved when b fails")
	}
}

func TestTick_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	pub := &recordingPublisher{err: errors.New("broker down")}
	sched := f.scheduler(mustBundle(t, definitions), f.history, pub)

	if _, err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if f.states.Saves() != 1 {
		t.Errorf("states must be saved despite publish failure, got %d saves", f.states.Saves())
	}
	if got := testutil.ToFloat64(f.metrics.PublishFailures); got != 1 {
		t.Errorf("expected 1 publish failure, got %v", got)
	}
}

// --- BuildRunRequests Tests ---

func TestBuildRunRequests_Deterministic(t *testing.T) {
	f := newFixture()
	sched := f.scheduler(mustBundle(t, definitions), f.history, nil)
	res, err := sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}

	results := make([]*condition.Result, 0, len(res.Results))
	for _, r := range res.Results {
		results = append(results, r)
	}

	id := uuid.New()
	first := BuildRunRequests(id, results, f.clock.Now())
	second := BuildRunRequests(id, results, f.clock.Now())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("requests differ between calls (-first +second):\n%s", diff)
	}
}

func TestBuildRunRequests_Empty(t *testing.T) {
	if got := BuildRunRequests(uuid.New(), nil, time.Now()); len(got) != 0 {
		t.Errorf("expected no requests, got %d", len(got))
	}
}

// --- Run Tests ---

func TestRun_TicksOnInterval(t *testing.T) {
	f := newFixture()
	sched := f.scheduler(mustBundle(t, definitions), f.history, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx, time.Minute)
		close(done)
	}()

	waitFor(t, func() bool { return f.states.Saves() >= 1 })

	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}
	f.clock.Advance(time.Minute)
	waitFor(t, func() bool { return f.states.Saves() >= 2 })

	cancel()
	<-done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
