package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/agenthands/storyline/internal/app"
	"github.com/agenthands/storyline/internal/config"
	"github.com/agenthands/storyline/internal/logging"
	"github.com/agenthands/storyline/internal/printer"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "storyctl",
	Short: "Turn tool activity into evidence-backed career narratives",
	Long: `storyctl imports activities from work tools, links them into clusters
through shared references (ticket keys, pull requests) and generates
structured narratives (STAR, CAR, SOAR, ...) for one person.

Examples:
  storyctl import activities.json
  storyctl cluster --min-size 3
  storyctl persona set jane.yaml
  storyctl generate <cluster-id> --persona p-jane --framework star`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Errors are printed by the printer package.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func SetVersionInfo(v, c string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s)", v, c)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.toml", "Path to the TOML config file")
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.Error("invalid configuration", err.Error(), []string{"Check " + configPath + " and the environment overrides"})
	}
	if err := logging.Init(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, printer.Error("invalid logging configuration", err.Error(), nil)
	}
	return cfg, nil
}

// openApp builds the pipeline against the configured store. Callers close it.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, printer.Error("failed to open pipeline", err.Error(), []string{
			"Check store.driver and store.sqlite_path",
			"Set LLM_PROVIDER=none to run without enrichment",
		})
	}
	return a, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(printer.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
