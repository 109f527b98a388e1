package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/history"
	"github.com/shaiso/assetsched/internal/policy"
	"github.com/shaiso/assetsched/internal/scheduler"
)

// HistoryFile — журнал событий для локального вычисления.
//
// События получают StorageID в порядке следования в файле.
// События позже времени тика пропускаются.
type HistoryFile struct {
	Events []domain.AssetEvent `json:"events"`
	Runs   []domain.AssetRun   `json:"runs,omitempty"`
}

// NewValidateCmd создаёт команду проверки файла определений.
// Работает локально, без API.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an asset definitions file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			bundle, err := loadBundle(file)
			if err != nil {
				return err
			}

			summary := map[string]any{
				"assets":     bundle.Graph.Size(),
				"policies":   len(bundle.Policies),
				"conditions": bundle.ConditionCount(),
				"order":      bundle.Graph.Keys(),
			}
			if out.JSONMode() {
				out.JSON(summary)
				return nil
			}
			out.Success(fmt.Sprintf("%s is valid: %d assets, %d policies, %d conditions",
				file, bundle.Graph.Size(), len(bundle.Policies), bundle.ConditionCount()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Asset definitions file (YAML)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// NewEvaluateCmd создаёт команду локального вычисления одного тика.
//
// История читается из JSON-файла, время тика задаётся флагом --at,
// результаты предыдущего запуска берутся из --state (если задан).
// Выводит дерево результатов каждой политики и запросы на запуск.
func NewEvaluateCmd(outputFn func() *Output) *cobra.Command {
	var file string
	var eventsFile string
	var stateFilePath string
	var at string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate all policies once against a local event history",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			tickTime := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				tickTime = t
			}

			bundle, err := loadBundle(file)
			if err != nil {
				return err
			}

			clock := clockwork.NewFakeClockAt(tickTime)
			store := history.NewMemoryStore(clock)
			if eventsFile != "" {
				if err := loadHistory(ctx, eventsFile, store, tickTime); err != nil {
					return err
				}
			}

			logOut := io.Discard
			if verbose {
				logOut = out.errW
			}

			s := scheduler.New(scheduler.Config{
				Bundle:  bundle,
				Loader:  store,
				States:  &stateFile{path: stateFilePath},
				Clock:   clock,
				Logger:  slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug})),
				Workers: 1,
			})

			res, err := s.Tick(ctx)
			if err != nil {
				return err
			}

			if out.JSONMode() {
				trees := make(map[string]any, len(res.Results))
				for key, r := range res.Results {
					trees[key.String()] = r.Snapshot()
				}
				out.JSON(map[string]any{
					"evaluation_id": res.EvaluationID,
					"evaluated_at":  res.EvaluatedAt,
					"results":       trees,
					"run_requests":  res.RunRequests,
				})
				return nil
			}

			for _, key := range bundle.Keys() {
				out.Tree(res.Results[key].Snapshot())
				fmt.Fprintln(out.w)
			}

			headers := []string{"ID", "PARTITION", "ASSETS"}
			rows := make([][]string, len(res.RunRequests))
			for i, rr := range res.RunRequests {
				keys := make([]string, len(rr.AssetKeys))
				for j, k := range rr.AssetKeys {
					keys[j] = k.String()
				}
				partition := rr.PartitionKey
				if partition == "" {
					partition = "-"
				}
				rows[i] = []string{rr.ID.String(), partition, strings.Join(keys, ",")}
			}
			out.Table(headers, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Asset definitions file (YAML)")
	cmd.Flags().StringVar(&eventsFile, "events", "", "Event history file (JSON)")
	cmd.Flags().StringVar(&stateFilePath, "state", "", "State file carried between evaluations (JSON)")
	cmd.Flags().StringVar(&at, "at", "", "Evaluation time (RFC3339, default: now)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log evaluation details to stderr")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// loadBundle читает и собирает определения.
func loadBundle(path string) (*policy.Bundle, error) {
	defs, err := policy.Load(path)
	if err != nil {
		return nil, err
	}
	return defs.Build()
}

// loadHistory заполняет store событиями и runs из файла.
// События с временем позже at не загружаются.
func loadHistory(ctx context.Context, path string, store *history.MemoryStore, at time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read events file: %w", err)
	}

	var hf HistoryFile
	if err := json.Unmarshal(data, &hf); err != nil {
		return fmt.Errorf("parse events file %s: %w", path, err)
	}

	for i, e := range hf.Events {
		if e.Timestamp.After(at) {
			continue
		}
		if _, err := store.AppendEvent(ctx, e); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	for _, r := range hf.Runs {
		if err := store.UpsertRun(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
