package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/printer"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Manage the people narratives are generated for",
}

var personaSetCmd = &cobra.Command{
	Use:   "set FILE",
	Short: "Create or replace a persona from a YAML file",
	Long: `Create or replace a persona from a YAML file, for example:

  id: p-jane
  display_name: Jane Doe
  emails: [jane@acme.io]
  identities:
    github: {login: janedoe}
    jira: {account_id: 5f1a2b, display_name: Jane Doe}
    slack: {account_id: U024JANE}`,
	Args: cobra.ExactArgs(1),
	RunE: runPersonaSet,
}

var personaShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a stored persona as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonaShow,
}

func init() {
	personaCmd.AddCommand(personaSetCmd, personaShowCmd)
	rootCmd.AddCommand(personaCmd)
}

func readPersona(path string) (model.Persona, error) {
	var p model.Persona
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if p.ID == "" {
		return p, fmt.Errorf("%s: id is required", path)
	}
	return p, nil
}

func runPersonaSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, err := readPersona(args[0])
	if err != nil {
		return printer.Error("invalid persona file", err.Error(), nil)
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Store.SavePersona(ctx, p); err != nil {
		return printer.Error("failed to save persona", err.Error(), nil)
	}
	printer.Success("saved persona %s (%s) with %d tool identities", p.ID, p.DisplayName, len(p.Identities))
	return nil
}

func runPersonaShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Store.GetPersona(ctx, args[0])
	if errors.Is(err, common.ErrNotFound) {
		return printer.Error("persona not found", fmt.Sprintf("No persona with id %q", args[0]),
			[]string{"Create one with: storyctl persona set FILE"})
	}
	if err != nil {
		return printer.Error("failed to load persona", err.Error(), nil)
	}
	enc := yaml.NewEncoder(printer.Out)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(p)
}
