package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agenthands/storyline/internal/config"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/driver"
)

// Store is the persistence contract shared by SQLiteStore and the Memgraph
// GraphStore. It satisfies the activity, cluster and persona lookups the
// generator depends on.
type Store interface {
	SaveActivities(ctx context.Context, activities []model.Activity) (int, error)
	Lookup(ctx context.Context, ids []string) ([]model.Activity, error)
	ListActivities(ctx context.Context, since time.Time) ([]model.Activity, error)
	SaveClusters(ctx context.Context, clusters []model.Cluster) error
	GetCluster(ctx context.Context, id string) (model.Cluster, error)
	SavePersona(ctx context.Context, p model.Persona) error
	GetPersona(ctx context.Context, id string) (model.Persona, error)
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*driver.GraphStore)(nil)
)

// New opens the configured backend. The returned func releases it.
func New(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "", "sqlite":
		s, err := Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "memgraph":
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
		if err != nil {
			return nil, nil, err
		}
		if err := d.BuildIndices(ctx); err != nil {
			_ = d.Close(ctx)
			return nil, nil, err
		}
		return driver.NewGraphStore(d), func() error { return d.Close(context.Background()) }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
