package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/assetsched/internal/domain"
)

// NewEventCmd создаёт группу команд для регистрации событий.
func NewEventCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Report asset events and run statuses",
	}

	cmd.AddCommand(
		newEventReportCmd(clientFn, outputFn),
		newEventRunStatusCmd(clientFn, outputFn),
	)

	return cmd
}

func newEventReportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var partitionKey string
	var runID string
	var observation bool
	var at string

	cmd := &cobra.Command{
		Use:   "report ASSET_KEY",
		Short: "Report a materialization (or observation) of an asset partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := ReportEventRequest{
				Type:         domain.EventTypeMaterialization,
				AssetKey:     domain.AssetKey(args[0]),
				PartitionKey: partitionKey,
				RunID:        runID,
			}
			if observation {
				req.Type = domain.EventTypeObservation
			}
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				req.Timestamp = &ts
			}

			ev, err := client.ReportEvent(req)
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(ev)
				return nil
			}
			out.Success(fmt.Sprintf("%s of %s accepted", ev.Type, domain.NewAssetPartition(ev.AssetKey, ev.PartitionKey)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&partitionKey, "partition", "p", "", "Partition key")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run that produced the event")
	cmd.Flags().BoolVar(&observation, "observation", false, "Report an observation instead of a materialization")
	cmd.Flags().StringVar(&at, "at", "", "Event time (RFC3339, default: now)")

	return cmd
}

func newEventRunStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var targets []string

	cmd := &cobra.Command{
		Use:   "run-status RUN_ID",
		Short: "Report status of a run targeting asset partitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			parts := make([]domain.AssetPartition, 0, len(targets))
			for _, t := range targets {
				parts = append(parts, parseTarget(t))
			}

			st, err := client.ReportRunStatus(args[0], ReportRunStatusRequest{
				Status:     domain.RunStatus(strings.ToUpper(status)),
				Partitions: parts,
			})
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(st)
				return nil
			}
			out.Success(fmt.Sprintf("Run %s: %s (%d partitions)", st.RunID, st.Status, len(st.Partitions)))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Run status (PENDING, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().StringArrayVarP(&targets, "target", "t", nil, "Target partition as ASSET or ASSET@PARTITION (repeatable)")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}

// parseTarget разбирает "asset@partition" в AssetPartition.
func parseTarget(s string) domain.AssetPartition {
	key, partition, _ := strings.Cut(s, "@")
	return domain.NewAssetPartition(domain.AssetKey(key), partition)
}
