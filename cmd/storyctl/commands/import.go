package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/agenthands/storyline/internal/app"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/printer"
	"github.com/spf13/cobra"
)

var importRecluster bool

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import activities from a JSON file",
	Long: `Import activities from a JSON file holding either an array of activities
or an object with an "activities" array. References are extracted from each
activity's title, body and source URL and merged with any supplied ones.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importRecluster, "recluster", false, "Rebuild clusters after importing")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	acts, err := readActivities(args[0])
	if err != nil {
		return printer.Error("failed to read activities", err.Error(), nil)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Import(ctx, acts)
	if err != nil {
		return printer.Error("import failed", err.Error(), nil)
	}
	for _, w := range res.Warnings {
		printer.Warning("%s: %s", w.Code, w.Message)
	}
	printer.Success("imported %d activities with %d distinct references", len(acts), len(res.References))

	if importRecluster {
		cres, err := a.Recluster(ctx, app.ClusterOptions(a.Config))
		if err != nil {
			return printer.Error("clustering failed", err.Error(), nil)
		}
		printer.Success("built %d clusters, %d activities unclustered", len(cres.Clusters), len(cres.Unclustered))
	}
	return nil
}

func readActivities(path string) ([]model.Activity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var acts []model.Activity
		if err := json.Unmarshal(data, &acts); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return acts, nil
	}
	var wrapped struct {
		Activities []model.Activity `json:"activities"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return wrapped.Activities, nil
}
