package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/assetsched/internal/api"
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
  - key: marts/report
    deps:
      - key: raw/events
    condition:
      kind: and
      operands:
        - missing
        - kind: any_deps_match
          operand: materialized
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func writeHistory(t *testing.T, events ...domain.AssetEvent) string {
	t.Helper()
	data, err := json.Marshal(HistoryFile{Events: events})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return writeFile(t, "history.json", string(data))
}

func materialization(key domain.AssetKey) domain.AssetEvent {
	return domain.AssetEvent{
		Type:      domain.EventTypeMaterialization,
		Partition: domain.NewAssetPartition(key, ""),
		RunID:     "run-1",
	}
}

func run(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetArgs(args)
	return cmd.Execute()
}

type evaluateOutput struct {
	Results     map[string]*condition.ResultSnapshot `json:"results"`
	RunRequests []domain.RunRequest                   `json:"run_requests"`
}

// --- Validate Tests ---

func TestValidateCmd(t *testing.T) {
	defs := writeFile(t, "defs.yaml", testDefinitions)
	var stdout, stderr bytes.Buffer
	cmd := NewValidateCmd(func() *Output { return NewOutputTo(false, &stdout, &stderr) })

	if err := run(t, cmd, "-f", defs); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(stderr.String(), "2 assets, 1 policies, 4 conditions") {
		t.Errorf("unexpected message %q", stderr.String())
	}
}

func TestValidateCmd_Invalid(t *testing.T) {
	defs := writeFile(t, "defs.yaml", `
version: 1
assets:
  - key: a
    condition: sometimes
`)
	cmd := NewValidateCmd(func() *Output { return NewOutputTo(false, io.Discard, io.Discard) })
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := run(t, cmd, "-f", defs); err == nil {
		t.Fatal("expected error for unknown condition kind")
	}
}

// --- Evaluate Tests ---

func TestEvaluateCmd_JSON(t *testing.T) {
	defs := writeFile(t, "defs.yaml", testDefinitions)
	hist := writeHistory(t, materialization("raw/events"))
	var stdout bytes.Buffer
	cmd := NewEvaluateCmd(func() *Output { return NewOutputTo(true, &stdout, io.Discard) })

	if err := run(t, cmd, "-f", defs, "--events", hist, "--at", "2024-01-02T00:00:00Z"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	var got evaluateOutput
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v\n%s", err, stdout.String())
	}
	if len(got.RunRequests) != 1 {
		t.Fatalf("expected 1 run request, got %d", len(got.RunRequests))
	}
	rr := got.RunRequests[0]
	if len(rr.AssetKeys) != 1 || rr.AssetKeys[0] != "marts/report" || rr.PartitionKey != "" {
		t.Errorf("unexpected run request %+v", rr)
	}
	if res := got.Results["marts/report"]; res == nil || res.Kind != condition.KindAnd {
		t.Errorf("unexpected result tree %+v", res)
	}
}

func TestEvaluateCmd_SkipsEventsAfterAt(t *testing.T) {
	defs := writeFile(t, "defs.yaml", testDefinitions)
	later := materialization("raw/events")
	later.Timestamp = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	hist := writeHistory(t, later)
	var stdout bytes.Buffer
	cmd := NewEvaluateCmd(func() *Output { return NewOutputTo(true, &stdout, io.Discard) })

	if err := run(t, cmd, "-f", defs, "--events", hist, "--at", "2024-01-02T00:00:00Z"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	var got evaluateOutput
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v\n%s", err, stdout.String())
	}
	if len(got.RunRequests) != 0 {
		t.Errorf("raw/events is not materialized at --at, got %d run requests", len(got.RunRequests))
	}
}

func TestEvaluateCmd_Table(t *testing.T) {
	defs := writeFile(t, "defs.yaml", testDefinitions)
	var stdout bytes.Buffer
	cmd := NewEvaluateCmd(func() *Output { return NewOutputTo(false, &stdout, io.Discard) })

	if err := run(t, cmd, "-f", defs, "--at", "2024-01-02T00:00:00Z"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	out := stdout.String()
	if !strings.HasPrefix(out, "marts/report\n") {
		t.Errorf("expected tree for marts/report first, got:\n%s", out)
	}
	// Родитель не материализован: запросов нет, таблица пустая.
	if !strings.Contains(out, "ID") || strings.Contains(out, "marts/report\n  1/") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestEvaluateCmd_StateFile(t *testing.T) {
	defs := writeFile(t, "defs.yaml", testDefinitions)
	statePath := filepath.Join(t.TempDir(), "state.json")

	evaluate := func(hist string) evaluateOutput {
		var stdout bytes.Buffer
		cmd := NewEvaluateCmd(func() *Output { return NewOutputTo(true, &stdout, io.Discard) })
		if err := run(t, cmd, "-f", defs, "--events", hist, "--state", statePath, "--at", "2024-01-02T00:00:00Z"); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		var got evaluateOutput
		if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		return got
	}

	first := evaluate(writeHistory(t, materialization("raw/events")))
	if len(first.RunRequests) != 1 {
		t.Fatalf("expected 1 run request, got %d", len(first.RunRequests))
	}

	store := &stateFile{path: statePath}
	states, err := store.LoadStates(context.Background())
	if err != nil {
		t.Fatalf("LoadStates: %v", err)
	}
	if _, ok := states["marts/report"]; !ok {
		t.Fatal("expected state for marts/report in state file")
	}

	second := evaluate(writeHistory(t, materialization("raw/events"), materialization("marts/report")))
	if len(second.RunRequests) != 0 {
		t.Errorf("materialized asset must not be requested again, got %d", len(second.RunRequests))
	}
}

func TestStateFile_Missing(t *testing.T) {
	store := &stateFile{path: filepath.Join(t.TempDir(), "absent.json")}
	states, err := store.LoadStates(context.Background())
	if err != nil {
		t.Fatalf("LoadStates: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("expected no states, got %d", len(states))
	}
}

// --- Client Tests ---

type recordingPublisher struct {
	events []mq.AssetEventPayload
}

func (p *recordingPublisher) PublishAssetEvent(_ context.Context, payload mq.AssetEventPayload) error {
	p.events = append(p.events, payload)
	return nil
}

func (p *recordingPublisher) PublishRunStatus(context.Context, mq.RunStatusPayload) error {
	return nil
}

func newTestAPI(t *testing.T) (*Client, *scheduler.MemoryStateStore, *recordingPublisher) {
	t.Helper()
	defs, err := policy.Parse([]byte(testDefinitions))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bundle, err := defs.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	states := scheduler.NewMemoryStateStore()
	pub := &recordingPublisher{}
	mux := http.NewServeMux()
	api.NewHandler(api.Config{
		Bundle:    bundle,
		States:    states,
		Publisher: pub,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), states, pub
}

func TestClient_Assets(t *testing.T) {
	client, _, _ := newTestAPI(t)

	assets, err := client.ListAssets()
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 2 || assets[0].Key != "raw/events" {
		t.Fatalf("unexpected assets %+v", assets)
	}

	asset, err := client.GetAsset("marts/report")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.Policy == nil || asset.Policy.Kind != condition.KindAnd {
		t.Errorf("unexpected policy %+v", asset.Policy)
	}

	if _, err := client.GetAsset("nope"); err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestClient_GetEvaluation(t *testing.T) {
	client, states, _ := newTestAPI(t)
	key := domain.AssetKey("marts/report")
	err := states.SaveStates(context.Background(), []*condition.EvaluationState{{
		AssetKey: key,
		Result: &condition.ResultSnapshot{
			AssetKey:    key,
			Kind:        condition.KindAnd,
			Description: "All of",
			TrueSubset:  subset.Serialized{AssetKey: key, All: true},
		},
	}}, nil)
	if err != nil {
		t.Fatalf("SaveStates: %v", err)
	}

	eval, err := client.GetEvaluation("marts/report")
	if err != nil {
		t.Fatalf("GetEvaluation: %v", err)
	}
	if !eval.AllPartitions || eval.Result == nil || eval.Result.Description != "All of" {
		t.Errorf("unexpected evaluation %+v", eval)
	}
}

func TestClient_ReportEvent(t *testing.T) {
	client, _, pub := newTestAPI(t)

	ev, err := client.ReportEvent(ReportEventRequest{
		Type:     domain.EventTypeMaterialization,
		AssetKey: "raw/events",
	})
	if err != nil {
		t.Fatalf("ReportEvent: %v", err)
	}
	if ev.AssetKey != "raw/events" || len(pub.events) != 1 {
		t.Errorf("unexpected result %+v, published %d", ev, len(pub.events))
	}

	_, err = client.ReportEvent(ReportEventRequest{
		Type:         domain.EventTypeMaterialization,
		AssetKey:     "raw/events",
		PartitionKey: "2024-01-01",
	})
	if err == nil || !strings.Contains(err.Error(), "INVALID_EVENT") {
		t.Errorf("expected INVALID_EVENT, got %v", err)
	}
}

// --- Output Tests ---

func TestOutput_Tree(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(false, &buf, io.Discard)

	out.Tree(&condition.ResultSnapshot{
		AssetKey:    "child",
		Description: "All of",
		TrueSubset:  subset.Serialized{AssetKey: "child", Keys: []string{"a"}},
		Candidate:   subset.Serialized{AssetKey: "child", All: true},
		Children: []*condition.ResultSnapshot{
			{
				AssetKey:    "parent",
				Description: "Materialized",
				TrueSubset:  subset.Serialized{AssetKey: "parent", Keys: []string{"a", "b"}},
				Candidate:   subset.Serialized{AssetKey: "parent", Keys: []string{"a", "b", "c"}},
				FromCache:   true,
			},
		},
	})

	want := "child\n  1/all  All of\n    2/3  Materialized (parent) [cached]\n"
	if buf.String() != want {
		t.Errorf("unexpected tree:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer
	NewOutputTo(false, &buf, io.Discard).Table([]string{"KEY", "N"}, [][]string{{"a", "1"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "---") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in   string
		want domain.AssetPartition
	}{
		{"raw/events@2024-01-01", domain.NewAssetPartition("raw/events", "2024-01-01")},
		{"raw/users", domain.NewAssetPartition("raw/users", "")},
	}
	for _, tt := range tests {
		if got := parseTarget(tt.in); got != tt.want {
			t.Errorf("parseTarget(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
