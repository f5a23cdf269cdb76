package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/storyline/internal/core"
	"github.com/agenthands/storyline/internal/core/narrative"
	"github.com/agenthands/storyline/internal/printer"
	"github.com/spf13/cobra"
)

var (
	generatePersona        string
	generateFramework      string
	generateSkipEnrichment bool
	generateOutput         string
)

var generateCmd = &cobra.Command{
	Use:   "generate CLUSTER_ID [CLUSTER_ID...]",
	Short: "Generate narratives for one or more clusters",
	Long: `Generate a narrative for each cluster from the point of view of a persona.
Several clusters are generated concurrently; a failing cluster does not stop
the others.

Examples:
  storyctl generate 6f1c... --persona p-jane
  storyctl generate 6f1c... 9a2b... --persona p-jane --framework soar -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generatePersona, "persona", "p", "", "Persona id (required)")
	generateCmd.Flags().StringVarP(&generateFramework, "framework", "f", "", "Narrative framework (default from config)")
	generateCmd.Flags().BoolVar(&generateSkipEnrichment, "skip-enrichment", false, "Keep the extracted draft text")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "text", "Output format: text or json")
	_ = generateCmd.MarkFlagRequired("persona")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if generateFramework != "" {
		if _, ok := narrative.Lookup(generateFramework); !ok {
			return printer.Error("unknown framework", fmt.Sprintf("Framework %q is not supported", generateFramework),
				[]string{"List frameworks with: storyctl frameworks"})
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := core.GenerateOptions{Framework: generateFramework, SkipEnrichment: generateSkipEnrichment}
	results := a.Generator.GenerateBatch(ctx, args, generatePersona, opts)

	if generateOutput == "json" {
		if err := printJSON(results); err != nil {
			return err
		}
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
		if generateOutput != "json" {
			printResult(r)
		}
	}
	if failed > 0 {
		return printer.Error(fmt.Sprintf("%d of %d narratives failed", failed, len(results)), "", nil)
	}
	return nil
}

func printResult(r core.BatchResult) {
	if r.Err != nil {
		printer.Warning("cluster %s: %v", r.ClusterID, r.Err)
		if r.Result != nil && r.Result.Validation != nil && len(r.Result.Validation.FailedGates) > 0 {
			printer.Info("  failed gates: %s", strings.Join(r.Result.Validation.FailedGates, ", "))
		}
		return
	}

	n := r.Result.Narrative
	title := n.Framework
	if fw, ok := narrative.Lookup(n.Framework); ok {
		title = fw.Title
	}
	printer.Heading("%s  (cluster %s, confidence %.2f)", title, n.ClusterID, n.Confidence)
	for _, c := range n.Components {
		printer.Field(strings.ToUpper(c.Section), fmt.Sprintf("%s  [%.2f | %s]", c.Text, c.Confidence, strings.Join(c.Sources, ", ")))
	}
	for _, e := range n.SuggestedEdits {
		printer.Info("  - %s", e)
	}
	for _, w := range r.Result.Warnings {
		printer.Warning("%s: %s", w.Code, w.Message)
	}
	if err := r.Result.PolishFailure(); err != nil {
		printer.Warning("%v", err)
	}
	printer.Info("")
}
