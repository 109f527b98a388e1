package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewAssetCmd создаёт группу команд для просмотра asset.
func NewAssetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Inspect assets and their policies",
	}

	cmd.AddCommand(
		newAssetListCmd(clientFn, outputFn),
		newAssetShowCmd(clientFn, outputFn),
		newAssetEvaluationCmd(clientFn, outputFn),
	)

	return cmd
}

func newAssetListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			assets, err := client.ListAssets()
			if err != nil {
				return err
			}

			headers := []string{"KEY", "PARTITIONS", "DEPS", "POLICY", "LAST_EVALUATED", "TRUE"}
			rows := make([][]string, len(assets))
			for i, a := range assets {
				policy, evaluated, trueParts := "-", "-", "-"
				if a.Policy != nil {
					policy = a.Policy.Description
				}
				if e := a.LastEvaluation; e != nil {
					evaluated = e.EvaluatedAt.Format("2006-01-02 15:04:05")
					trueParts = fmt.Sprintf("%d", len(e.TruePartitions))
					if e.AllPartitions {
						trueParts = "all"
					}
				}
				deps := make([]string, len(a.Deps))
				for j, d := range a.Deps {
					deps[j] = d.String()
				}
				rows[i] = []string{a.Key.String(), string(a.Partitions), strings.Join(deps, ","), policy, evaluated, trueParts}
			}

			out.Print(headers, rows, assets)
			return nil
		},
	}
}

func newAssetShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show KEY",
		Short: "Show asset details and its condition tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			asset, err := client.GetAsset(args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(asset)
				return nil
			}

			fmt.Fprintf(out.w, "Key:         %s\n", asset.Key)
			fmt.Fprintf(out.w, "Partitions:  %s\n", asset.Partitions)
			fmt.Fprintf(out.w, "Deps:        %v\n", asset.Deps)
			fmt.Fprintf(out.w, "Dependents:  %v\n", asset.Dependents)
			if asset.Policy == nil {
				fmt.Fprintln(out.w, "Policy:      -")
				return nil
			}
			fmt.Fprintln(out.w, "Policy:")
			printCondition(out, asset.Policy, 1)
			return nil
		},
	}
}

func printCondition(out *Output, c *ConditionResponse, depth int) {
	fmt.Fprintf(out.w, "%s%s\n", strings.Repeat("  ", depth), c.Description)
	for _, child := range c.Children {
		printCondition(out, child, depth+1)
	}
}

func newAssetEvaluationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluation KEY",
		Short: "Show the latest evaluation tree of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			eval, err := client.GetEvaluation(args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(eval)
				return nil
			}

			fmt.Fprintf(out.w, "Evaluation:  %s\n", eval.EvaluationID)
			fmt.Fprintf(out.w, "Evaluated:   %s\n", eval.EvaluatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out.w, "Cursor:      %d\n", eval.MaxStorageID)
			fmt.Fprintln(out.w)
			out.Tree(eval.Result)
			return nil
		},
	}
}
