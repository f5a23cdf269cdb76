// Package hydrate resolves cluster members into full activity records.
package hydrate

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
)

const stage = "hydration"

// ActivityStore looks up activities by id. Partial results are allowed;
// ids that do not exist are simply absent from the returned slice.
type ActivityStore interface {
	Lookup(ctx context.Context, ids []string) ([]model.Activity, error)
}

type Result struct {
	common.Envelope
	Cluster model.HydratedCluster `json:"cluster"`
	Missing []string              `json:"missing,omitempty"`
}

type Hydrator struct {
	Store   ActivityStore
	Timeout time.Duration
}

func NewHydrator(store ActivityStore, timeout time.Duration) *Hydrator {
	return &Hydrator{Store: store, Timeout: timeout}
}

// Hydrate resolves every member of the cluster. Missing members produce an
// ACTIVITIES_NOT_FOUND warning; when none resolve the result is the fatal
// NO_ACTIVITIES_FOUND error.
func (h *Hydrator) Hydrate(ctx context.Context, c model.Cluster) (*Result, error) {
	res := &Result{}
	defer res.Begin(stage)()

	if c.ID == "" || len(c.ActivityIDs) == 0 {
		return nil, common.NewStageError(stage, common.CodeInvalidCluster, common.ErrInput, nil,
			"cluster must have an id and at least one member").With("cluster_id", c.ID)
	}

	requested := make(map[string]bool, len(c.ActivityIDs))
	var ids []string
	for _, id := range c.ActivityIDs {
		if !requested[id] {
			requested[id] = true
			ids = append(ids, id)
		}
	}

	lookupCtx := ctx
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	found, err := h.Store.Lookup(lookupCtx, ids)
	if err != nil {
		se := common.NewStageError(stage, common.CodeActivityLookupFailed, common.ErrDependency, err,
			"activity lookup failed for cluster %s", c.ID).With("cluster_id", c.ID)
		if errors.Is(err, context.DeadlineExceeded) {
			se.With("timeout", h.Timeout.String())
		}
		return nil, se
	}

	resolved := make(map[string]model.Activity, len(found))
	for _, a := range found {
		if requested[a.ID] {
			if _, dup := resolved[a.ID]; !dup {
				resolved[a.ID] = a
			}
		}
	}
	res.Count("requested", len(ids))
	res.Count("resolved", len(resolved))

	if len(resolved) == 0 {
		return nil, common.NewStageError(stage, common.CodeNoActivitiesFound, common.ErrPartialData, nil,
			"none of the %d activities of cluster %s could be found", len(ids), c.ID).
			With("cluster_id", c.ID).
			With("activity_ids", ids)
	}

	activities := make([]model.Activity, 0, len(resolved))
	for _, id := range ids {
		if a, ok := resolved[id]; ok {
			activities = append(activities, a)
		} else {
			res.Missing = append(res.Missing, id)
		}
	}
	sort.SliceStable(activities, func(i, j int) bool {
		if !activities[i].Timestamp.Equal(activities[j].Timestamp) {
			return activities[i].Timestamp.Before(activities[j].Timestamp)
		}
		return activities[i].ID < activities[j].ID
	})

	if len(res.Missing) > 0 {
		res.Warn(common.CodeActivitiesNotFound, map[string]any{"activity_ids": res.Missing},
			"%d of %d activities were not found and are skipped", len(res.Missing), len(ids))
	}

	res.Cluster = model.HydratedCluster{Cluster: c, Activities: activities}
	return res, nil
}
