package cluster

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func act(id string, tool model.ToolType, offset int, refs ...string) model.Activity {
	return model.Activity{
		ID:         id,
		Tool:       tool,
		Title:      id,
		References: refs,
		Timestamp:  day.Add(time.Duration(offset) * time.Hour),
	}
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

func fixedIDs(members []string) string {
	return "c:" + joinIDs(members)
}

func TestBuild_SharedReferenceScenario(t *testing.T) {
	acts := []model.Activity{
		act("pr-1", model.ToolGitHub, 2, "AUTH-123", "github:acme/api#7"),
		act("jira-1", model.ToolJira, 0, "AUTH-123"),
		act("slack-1", model.ToolSlack, 5, "AUTH-123"),
	}

	res, err := NewBuilder().Build(acts, Options{IDGenerator: fixedIDs})
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)

	c := res.Clusters[0]
	assert.Equal(t, "c:jira-1,pr-1,slack-1", c.ID)
	assert.Equal(t, []string{"jira-1", "pr-1", "slack-1"}, c.ActivityIDs)
	assert.Equal(t, []string{"AUTH-123"}, c.SharedReferences)
	assert.Equal(t, 3, c.Metrics.ActivityCount)
	assert.Equal(t, 3, c.Metrics.ToolCount)
	assert.Equal(t, []model.ToolType{model.ToolGitHub, model.ToolJira, model.ToolSlack}, c.Metrics.Tools)
	assert.Equal(t, day, c.Metrics.Earliest)
	assert.Equal(t, day.Add(5*time.Hour), c.Metrics.Latest)
	assert.Empty(t, res.Unclustered)
}

func TestBuild_IsolatedActivity(t *testing.T) {
	res, err := NewBuilder().Build([]model.Activity{act("solo", model.ToolJira, 0, "OPS-1")}, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Clusters)
	assert.Equal(t, []string{"solo"}, res.Unclustered)
	assert.Equal(t, 1, res.Metrics.Unclustered)
}

func TestBuild_TransitiveComponentsAndWarnings(t *testing.T) {
	acts := []model.Activity{
		act("a", model.ToolGitHub, 0, "X-1"),
		act("b", model.ToolJira, 1, "X-1", "Y-1"),
		act("c", model.ToolSlack, 2, "Y-1"),
		act("d", model.ToolGitHub, 3, "Z-1"),
		act("e", model.ToolJira, 4, "Z-1"),
		act("f", model.ToolSlack, 5),
		act("old", model.ToolSlack, -1000, "X-1"),
	}

	res, err := NewBuilder().Build(acts, Options{
		IDGenerator: fixedIDs,
		DateRange:   &DateRange{From: day.Add(-24 * time.Hour)},
	})
	require.NoError(t, err)

	require.Len(t, res.Clusters, 2)
	assert.Equal(t, []string{"a", "b", "c"}, res.Clusters[0].ActivityIDs)
	assert.Equal(t, []string{"X-1", "Y-1"}, res.Clusters[0].SharedReferences)
	assert.Equal(t, []string{"d", "e"}, res.Clusters[1].ActivityIDs)
	assert.Equal(t, []string{"f"}, res.Unclustered)

	assert.True(t, res.HasWarning(common.CodeDateFiltered))
	assert.True(t, res.HasWarning(common.CodeActivitiesWithoutRefs))
	assert.Equal(t, 1, res.Metrics.DateFiltered)
	assert.Equal(t, 1, res.Metrics.WithoutReferences)
	assert.Equal(t, 5, res.Metrics.ClusteredActivities)
	assert.Equal(t, 3, res.Metrics.LargestCluster)
	assert.InDelta(t, 2.5, res.Metrics.AverageClusterSize, 1e-9)
	assert.NotContains(t, res.Unclustered, "old", "filtered activities are excluded entirely")
}

func TestBuild_MinClusterSize(t *testing.T) {
	acts := []model.Activity{
		act("a", model.ToolGitHub, 0, "X-1"),
		act("b", model.ToolJira, 1, "X-1"),
		act("c", model.ToolGitHub, 0, "Y-1"),
		act("d", model.ToolJira, 1, "Y-1"),
		act("e", model.ToolSlack, 1, "Y-1"),
	}
	res, err := NewBuilder().Build(acts, Options{MinClusterSize: 3, IDGenerator: fixedIDs})
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, []string{"c", "d", "e"}, res.Clusters[0].ActivityIDs)
	assert.Equal(t, []string{"a", "b"}, res.Unclustered)
}

func TestBuild_InvalidActivities(t *testing.T) {
	_, err := NewBuilder().Build([]model.Activity{act("a", model.ToolJira, 0), act("a", model.ToolJira, 1)}, Options{})
	require.Error(t, err)
	assert.Equal(t, common.CodeInvalidActivities, common.CodeOf(err))
	assert.True(t, common.IsInput(err))

	_, err = NewBuilder().Build([]model.Activity{{Title: "no id"}}, Options{})
	assert.Equal(t, common.CodeInvalidActivities, common.CodeOf(err))
}

func TestBuild_OrderIndependentAndExclusive(t *testing.T) {
	var acts []model.Activity
	for i := 0; i < 60; i++ {
		refs := []string{fmt.Sprintf("R-%d", i%9+1)}
		if i%7 == 0 {
			refs = append(refs, fmt.Sprintf("R-%d", (i+3)%9+1))
		}
		if i%11 == 0 {
			refs = nil
		}
		acts = append(acts, act(fmt.Sprintf("act-%02d", i), model.ToolGitHub, i, refs...))
	}

	canonical := func(res *Result) []string {
		var sets []string
		for _, c := range res.Clusters {
			sets = append(sets, joinIDs(c.ActivityIDs))
		}
		sort.Strings(sets)
		return append(sets, "unclustered:"+joinIDs(res.Unclustered))
	}

	base, err := NewBuilder().Build(acts, Options{})
	require.NoError(t, err)
	want := canonical(base)

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 10; round++ {
		shuffled := append([]model.Activity(nil), acts...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		res, err := NewBuilder().Build(shuffled, Options{})
		require.NoError(t, err)
		assert.Equal(t, want, canonical(res))
	}

	seen := make(map[string]int)
	for _, c := range base.Clusters {
		for _, id := range c.ActivityIDs {
			seen[id]++
		}
	}
	for _, id := range base.Unclustered {
		seen[id]++
	}
	assert.Len(t, seen, len(acts))
	for id, n := range seen {
		assert.Equal(t, 1, n, "activity %s placed %d times", id, n)
	}
}
