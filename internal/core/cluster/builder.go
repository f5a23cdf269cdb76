// Package cluster groups activities into connected components of shared
// canonical references.
package cluster

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
)

const stage = "clustering"

const DefaultMinClusterSize = 2

// DateRange bounds activity timestamps inclusively. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

type Options struct {
	MinClusterSize int
	DateRange      *DateRange
	// IDGenerator receives the sorted member ids of a new cluster.
	IDGenerator func(memberIDs []string) string
}

type Metrics struct {
	TotalActivities     int     `json:"total_activities"`
	DateFiltered        int     `json:"date_filtered"`
	WithoutReferences   int     `json:"without_references"`
	Clusters            int     `json:"clusters"`
	ClusteredActivities int     `json:"clustered_activities"`
	Unclustered         int     `json:"unclustered"`
	AverageClusterSize  float64 `json:"average_cluster_size"`
	LargestCluster      int     `json:"largest_cluster"`
}

type Result struct {
	common.Envelope
	Clusters    []model.Cluster `json:"clusters"`
	Unclustered []string        `json:"unclustered"`
	Metrics     Metrics         `json:"metrics"`
}

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build links activities that share at least one reference and returns the
// connected components. The outcome depends only on the set of activities,
// not on their order.
func (b *Builder) Build(activities []model.Activity, opts Options) (*Result, error) {
	res := &Result{Clusters: []model.Cluster{}, Unclustered: []string{}}
	defer res.Begin(stage)()

	if err := validate(activities); err != nil {
		return nil, err
	}
	minSize := opts.MinClusterSize
	if minSize < 1 {
		minSize = DefaultMinClusterSize
	}
	newID := opts.IDGenerator
	if newID == nil {
		newID = func([]string) string { return uuid.New().String() }
	}

	nodes := make([]model.Activity, 0, len(activities))
	filtered := 0
	for _, a := range activities {
		if opts.DateRange != nil && !opts.DateRange.contains(a.Timestamp) {
			filtered++
			continue
		}
		nodes = append(nodes, a)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	res.Metrics.TotalActivities = len(activities)
	res.Metrics.DateFiltered = filtered
	if filtered > 0 {
		res.Warn(common.CodeDateFiltered, map[string]any{"excluded": filtered},
			"%d activities fell outside the date range and were excluded", filtered)
	}

	var withoutRefs []string
	uf := newUnionFind(len(nodes))
	firstHolder := make(map[string]int)
	for i, a := range nodes {
		if len(a.References) == 0 {
			withoutRefs = append(withoutRefs, a.ID)
			continue
		}
		for _, ref := range a.References {
			if j, ok := firstHolder[ref]; ok {
				uf.union(i, j)
			} else {
				firstHolder[ref] = i
			}
		}
	}
	res.Metrics.WithoutReferences = len(withoutRefs)
	if len(withoutRefs) > 0 {
		res.Warn(common.CodeActivitiesWithoutRefs, map[string]any{"activity_ids": withoutRefs},
			"%d activities carry no references and cannot be clustered", len(withoutRefs))
	}

	components := make(map[int][]int)
	var roots []int
	for i := range nodes {
		r := uf.find(i)
		if _, ok := components[r]; !ok {
			roots = append(roots, r)
		}
		components[r] = append(components[r], i)
	}

	for _, r := range roots {
		members := components[r]
		if len(members) < minSize {
			for _, i := range members {
				res.Unclustered = append(res.Unclustered, nodes[i].ID)
			}
			continue
		}
		res.Clusters = append(res.Clusters, buildCluster(nodes, members, newID))
	}

	sort.Strings(res.Unclustered)
	sort.SliceStable(res.Clusters, func(i, j int) bool {
		ci, cj := res.Clusters[i], res.Clusters[j]
		if len(ci.ActivityIDs) != len(cj.ActivityIDs) {
			return len(ci.ActivityIDs) > len(cj.ActivityIDs)
		}
		return ci.ActivityIDs[0] < cj.ActivityIDs[0]
	})

	res.Metrics.Clusters = len(res.Clusters)
	res.Metrics.Unclustered = len(res.Unclustered)
	for _, c := range res.Clusters {
		res.Metrics.ClusteredActivities += len(c.ActivityIDs)
		if len(c.ActivityIDs) > res.Metrics.LargestCluster {
			res.Metrics.LargestCluster = len(c.ActivityIDs)
		}
	}
	if len(res.Clusters) > 0 {
		res.Metrics.AverageClusterSize = float64(res.Metrics.ClusteredActivities) / float64(len(res.Clusters))
	}
	res.Count("clusters", res.Metrics.Clusters)
	res.Count("unclustered", res.Metrics.Unclustered)
	return res, nil
}

func validate(activities []model.Activity) error {
	seen := make(map[string]bool, len(activities))
	for i, a := range activities {
		if a.ID == "" {
			return common.NewStageError(stage, common.CodeInvalidActivities, common.ErrInput, nil,
				"activity at index %d has no id", i).With("index", i)
		}
		if seen[a.ID] {
			return common.NewStageError(stage, common.CodeInvalidActivities, common.ErrInput, nil,
				"activity %q appears more than once", a.ID).With("activity_id", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// buildCluster assembles a component. Members arrive in ascending id order
// because nodes were sorted before union-find.
func buildCluster(nodes []model.Activity, members []int, newID func([]string) string) model.Cluster {
	ids := make([]string, len(members))
	refCount := make(map[string]int)
	tools := make(map[model.ToolType]bool)
	var earliest, latest time.Time
	for k, i := range members {
		a := nodes[i]
		ids[k] = a.ID
		for _, ref := range uniq(a.References) {
			refCount[ref]++
		}
		tools[a.Tool] = true
		if earliest.IsZero() || a.Timestamp.Before(earliest) {
			earliest = a.Timestamp
		}
		if a.Timestamp.After(latest) {
			latest = a.Timestamp
		}
	}

	shared := []string{}
	for ref, n := range refCount {
		if n >= 2 {
			shared = append(shared, ref)
		}
	}
	sort.Strings(shared)

	toolList := make([]model.ToolType, 0, len(tools))
	for t := range tools {
		toolList = append(toolList, t)
	}
	sort.Slice(toolList, func(i, j int) bool { return toolList[i] < toolList[j] })

	return model.Cluster{
		ID:               newID(ids),
		ActivityIDs:      ids,
		SharedReferences: shared,
		Metrics: model.ClusterMetrics{
			ActivityCount: len(ids),
			ToolCount:     len(toolList),
			Tools:         toolList,
			Earliest:      earliest,
			Latest:        latest,
		},
	}
}

func uniq(refs []string) []string {
	seen := make(map[string]bool, len(refs))
	out := refs[:0:0]
	for _, r := range refs {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
