package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agenthands/storyline/internal/app"
	"github.com/agenthands/storyline/internal/core/cluster"
	"github.com/agenthands/storyline/internal/printer"
	"github.com/spf13/cobra"
)

var (
	clusterMinSize int
	clusterSince   string
	clusterUntil   string
	clusterOutput  string
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Rebuild clusters over the stored activities",
	Long: `Rebuild clusters over every stored activity. Activities sharing at least
one reference end up in the same cluster; the previous clusters are replaced.

Examples:
  storyctl cluster
  storyctl cluster --min-size 3 --since 2026-01-01T00:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runCluster,
}

func init() {
	clusterCmd.Flags().IntVar(&clusterMinSize, "min-size", 0, "Minimum activities per cluster (default from config)")
	clusterCmd.Flags().StringVar(&clusterSince, "since", "", "Only cluster activities at or after this RFC3339 time")
	clusterCmd.Flags().StringVar(&clusterUntil, "until", "", "Only cluster activities at or before this RFC3339 time")
	clusterCmd.Flags().StringVarP(&clusterOutput, "output", "o", "table", "Output format: table or json")
	rootCmd.AddCommand(clusterCmd)
}

func runCluster(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var dr *cluster.DateRange
	if clusterSince != "" || clusterUntil != "" {
		dr = &cluster.DateRange{}
		var err error
		if dr.From, err = parseTime(clusterSince); err != nil {
			return printer.Error("invalid --since", err.Error(), []string{"Use RFC3339, e.g. 2026-01-01T00:00:00Z"})
		}
		if dr.To, err = parseTime(clusterUntil); err != nil {
			return printer.Error("invalid --until", err.Error(), []string{"Use RFC3339, e.g. 2026-03-31T23:59:59Z"})
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := app.ClusterOptions(a.Config)
	opts.DateRange = dr
	if clusterMinSize > 0 {
		opts.MinClusterSize = clusterMinSize
	}

	res, err := a.Recluster(ctx, opts)
	if err != nil {
		return printer.Error("clustering failed", err.Error(), nil)
	}
	if clusterOutput == "json" {
		return printJSON(res)
	}

	for _, w := range res.Warnings {
		printer.Warning("%s: %s", w.Code, w.Message)
	}
	rows := make([][]string, len(res.Clusters))
	for i, c := range res.Clusters {
		tools := make([]string, len(c.Metrics.Tools))
		for j, t := range c.Metrics.Tools {
			tools[j] = string(t)
		}
		rows[i] = []string{
			c.ID,
			fmt.Sprint(len(c.ActivityIDs)),
			strings.Join(tools, ","),
			strings.Join(c.SharedReferences, ","),
		}
	}
	printer.Table([]string{"id", "size", "tools", "references"}, rows)
	printer.Success("%d clusters, %d unclustered of %d activities",
		res.Metrics.Clusters, res.Metrics.Unclustered, res.Metrics.TotalActivities)
	return nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
