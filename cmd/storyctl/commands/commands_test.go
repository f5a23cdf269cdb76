package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/agenthands/storyline/internal/core/cluster"
	"github.com/agenthands/storyline/internal/printer"
	"github.com/agenthands/storyline/internal/testutil"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes storyctl with args against a fresh sqlite file per test and
// returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	out := new(bytes.Buffer)
	prevOut, prevErr := printer.Out, printer.ErrOut
	printer.Out, printer.ErrOut = out, new(bytes.Buffer)
	t.Cleanup(func() { printer.Out, printer.ErrOut = prevOut, prevErr })

	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.toml")))
	err := Execute()
	return out.String(), err
}

func sandbox(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "story.db"))
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestFrameworks(t *testing.T) {
	out, err := run(t, "frameworks")
	require.NoError(t, err)
	assert.Contains(t, out, "star")
	assert.Contains(t, out, "situation → task → action → result")
}

func TestPatternsValidate(t *testing.T) {
	out, err := run(t, "patterns", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "✓")
}

func TestExtract(t *testing.T) {
	out, err := run(t, "extract", "Fixed AUTH-123 before the release")
	require.NoError(t, err)
	assert.Contains(t, out, "AUTH-123")
	assert.Contains(t, out, "1 reference")

	_, err = run(t, "extract", "AUTH-123", "--min-confidence", "certain")
	assert.EqualError(t, err, "invalid --min-confidence")
}

func TestImportClusterGenerate(t *testing.T) {
	dir := sandbox(t)

	acts, err := json.Marshal(map[string]any{"activities": testutil.AuthStory()})
	require.NoError(t, err)
	actsPath := filepath.Join(dir, "activities.json")
	require.NoError(t, os.WriteFile(actsPath, acts, 0o644))

	personaPath := filepath.Join(dir, "jane.yaml")
	require.NoError(t, os.WriteFile(personaPath, []byte(`id: p-jane
display_name: Jane Doe
emails: [jane@acme.io]
identities:
  github: {login: janedoe}
  jira: {account_id: 5f1a2b, display_name: Jane Doe}
  slack: {account_id: U024JANE}
`), 0o644))

	out, err := run(t, "import", actsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 activities")

	out, err = run(t, "persona", "set", personaPath)
	require.NoError(t, err)
	assert.Contains(t, out, "saved persona p-jane")

	out, err = run(t, "cluster", "-o", "json")
	require.NoError(t, err)
	var res cluster.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Clusters, 1)

	out, err = run(t, "generate", res.Clusters[0].ID, "--persona", "p-jane", "--framework", "par", "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "PROBLEM")
	assert.Contains(t, out, "pr-1")

	_, err = run(t, "generate", "missing", "--persona", "p-jane", "--framework", "star")
	assert.EqualError(t, err, "1 of 1 narratives failed")
}
