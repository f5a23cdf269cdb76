package commands

import (
	"fmt"
	"strings"

	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/core/narrative"
	"github.com/agenthands/storyline/internal/core/patterns"
	"github.com/agenthands/storyline/internal/printer"
	"github.com/spf13/cobra"
)

var patternsTool string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect the reference pattern library",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered patterns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lib := patterns.Default()
		opts := patterns.ListOptions{}
		if patternsTool != "" {
			opts.ToolTypes = []model.ToolType{model.ParseToolType(patternsTool)}
		}
		active := make(map[string]bool)
		for _, p := range lib.ListActive(opts) {
			active[p.ID] = true
		}

		var rows [][]string
		for _, p := range lib.All() {
			if patternsTool != "" && p.ToolType != opts.ToolTypes[0] {
				continue
			}
			state := "active"
			if !active[p.ID] {
				state = "superseded"
			}
			rows = append(rows, []string{p.ID, fmt.Sprintf("v%d", p.Version), string(p.ToolType), p.Confidence.String(), state})
		}
		printer.Table([]string{"id", "version", "tool", "confidence", "state"}, rows)
		return nil
	},
}

var patternsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run every builtin pattern against its own fixtures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		builtin := patterns.Builtin()
		lib := patterns.NewLibrary()
		failed := 0
		for _, p := range builtin {
			failures := lib.Validate(p)
			if len(failures) == 0 {
				_ = lib.Register(p)
				printer.Success("%s v%d (%d positive, %d negative)", p.ID, p.Version, len(p.Positive), len(p.Negative))
				continue
			}
			failed++
			printer.Warning("%s v%d:\n    %s", p.ID, p.Version, strings.Join(failures, "\n    "))
		}
		if failed > 0 {
			return printer.Error(fmt.Sprintf("%d of %d patterns failed validation", failed, len(builtin)), "", nil)
		}
		return nil
	},
}

var frameworksCmd = &cobra.Command{
	Use:   "frameworks",
	Short: "List narrative frameworks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, fw := range narrative.Frameworks() {
			names := make([]string, len(fw.Sections))
			for i, s := range fw.Sections {
				names[i] = s.Name
			}
			printer.Heading("%s  %s", fw.Name, fw.Title)
			printer.Field("sections", strings.Join(names, " → "))
			printer.Field("best for", fw.Suitability)
		}
		return nil
	},
}

func init() {
	patternsListCmd.Flags().StringVar(&patternsTool, "tool", "", "Only list patterns for this tool")
	patternsCmd.AddCommand(patternsListCmd, patternsValidateCmd)
	rootCmd.AddCommand(patternsCmd, frameworksCmd)
}
