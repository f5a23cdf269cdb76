//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/storyline/internal/app"
	"github.com/agenthands/storyline/internal/core/narrative"
	"github.com/agenthands/storyline/internal/core/participation"
	"github.com/agenthands/storyline/internal/llm"
	"github.com/agenthands/storyline/internal/testutil"
)

func TestPolishWithLLM(t *testing.T) {
	cfg := loadConfig(t)
	if cfg.LLM.Provider == "" || cfg.LLM.Provider == "none" {
		t.Skip("Skipping integration test: LLM_PROVIDER not set")
	}
	if cfg.LLM.Provider != "ollama" && os.Getenv("LLM_API_KEY") == "" {
		t.Skip("Skipping integration test: LLM_API_KEY not set")
	}
	cfg.Enrichment.Enabled = true
	cfg.Enrichment.Timeout.Duration = 90 * time.Second

	ctx := context.Background()
	client, err := llm.NewClient(ctx, cfg.LLM)
	require.NoError(t, err)

	hc := testutil.AuthCluster()
	persona := testutil.Jane()
	parts := participation.NewAnalyzer().Analyze(hc, persona)
	xres, err := narrative.NewExtractor(nil).ExtractWith(hc, persona, parts, narrative.DefaultOptions())
	require.NoError(t, err)
	require.True(t, xres.Validation.Passed)

	res := app.Polisher(cfg, client).Polish(ctx, xres.Narrative, hc.Activities)
	for _, pe := range res.PolishErrors {
		t.Logf("component %s kept draft: %s %v", pe.Component, pe.Code, pe.Err)
	}
	require.Len(t, res.Narrative.Components, len(xres.Narrative.Components))
	if len(res.PolishErrors) < len(res.Narrative.Components) {
		assert.True(t, res.Narrative.Enriched)
	}
	for i, c := range res.Narrative.Components {
		assert.NotEmpty(t, c.Text)
		assert.Equal(t, xres.Narrative.Components[i].Sources, c.Sources)
		t.Logf("%s: %s", c.Section, c.Text)
	}

}
