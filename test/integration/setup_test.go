//go:build integration

package integration

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/storyline/internal/config"
	"github.com/agenthands/storyline/internal/driver"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	_ = godotenv.Load("../../.env")
	cfg, err := config.LoadOrDefault("../../config/config.toml")
	require.NoError(t, err)
	return cfg
}

// memgraph connects to MEMGRAPH_URI or skips the test.
func memgraph(t *testing.T, cfg *config.Config) *driver.MemgraphDriver {
	t.Helper()
	if os.Getenv("MEMGRAPH_URI") == "" {
		t.Skip("Skipping integration test: MEMGRAPH_URI not set")
	}
	ctx := context.Background()
	d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
	require.NoError(t, err)
	require.NoError(t, d.BuildIndices(ctx))
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}
