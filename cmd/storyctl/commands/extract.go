package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/core/patterns"
	"github.com/agenthands/storyline/internal/core/references"
	"github.com/agenthands/storyline/internal/printer"
	"github.com/spf13/cobra"
)

var (
	extractFile          string
	extractURL           string
	extractTools         []string
	extractPatterns      []string
	extractMinConfidence string
	extractDebug         bool
	extractOutput        string
)

var extractCmd = &cobra.Command{
	Use:   "extract [TEXT...]",
	Short: "Extract references from text without touching the store",
	Long: `Extract canonical references (AUTH-123, acme/api#42, ...) from the given
texts, a file, or a URL. With --debug, patterns that found nothing report
near misses.

Examples:
  storyctl extract "Fixed AUTH-123 and closed acme/api#42"
  storyctl extract --file notes.md --tool jira --min-confidence high`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractFile, "file", "", "Read text from a file")
	extractCmd.Flags().StringVar(&extractURL, "url", "", "Also scan this source URL")
	extractCmd.Flags().StringSliceVar(&extractTools, "tool", nil, "Only run patterns for these tools")
	extractCmd.Flags().StringSliceVar(&extractPatterns, "pattern", nil, "Only run these pattern ids")
	extractCmd.Flags().StringVar(&extractMinConfidence, "min-confidence", "", "Minimum pattern confidence: low, medium or high")
	extractCmd.Flags().BoolVar(&extractDebug, "debug", false, "Report near misses for patterns without matches")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "table", "Output format: table or json")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	texts := make([]*string, 0, len(args)+1)
	for i := range args {
		texts = append(texts, &args[i])
	}
	if extractFile != "" {
		data, err := os.ReadFile(extractFile)
		if err != nil {
			return printer.Error("failed to read file", err.Error(), nil)
		}
		s := string(data)
		texts = append(texts, &s)
	}
	if len(texts) == 0 && extractURL == "" {
		return printer.Error("nothing to extract from", "Pass text arguments, --file or --url", nil)
	}

	conf, err := model.ParseConfidence(extractMinConfidence)
	if err != nil {
		return printer.Error("invalid --min-confidence", err.Error(), []string{"Use low, medium or high"})
	}
	opts := references.Options{
		Debug:         extractDebug,
		PatternIDs:    extractPatterns,
		MinConfidence: conf,
		IncludeURL:    extractURL != "",
	}
	for _, t := range extractTools {
		opts.ToolTypes = append(opts.ToolTypes, model.ParseToolType(t))
	}

	res := references.NewExtractor(patterns.Default()).Extract(texts, extractURL, opts)
	if extractOutput == "json" {
		return printJSON(res)
	}

	for _, w := range res.Warnings {
		printer.Warning("%s: %s", w.Code, w.Message)
	}
	for _, e := range res.Errors {
		printer.Warning("%s: %s", e.Code, e.Message)
	}
	rows := make([][]string, len(res.Matches))
	for i, m := range res.Matches {
		rows[i] = []string{m.Reference, m.PatternID, m.Confidence.String(), m.Source, m.Context}
	}
	printer.Table([]string{"reference", "pattern", "confidence", "source", "context"}, rows)

	if extractDebug {
		for _, an := range res.Analysis {
			if an.Matches == 0 && len(an.NearMisses) > 0 {
				printer.Info("%s: %s; near misses: %s", an.PatternID, an.Reason, strings.Join(an.NearMisses, ", "))
			}
		}
	}
	printer.Success("%s", pluralRefs(len(res.References)))
	return nil
}

func pluralRefs(n int) string {
	if n == 1 {
		return "1 reference"
	}
	return fmt.Sprintf("%d references", n)
}
