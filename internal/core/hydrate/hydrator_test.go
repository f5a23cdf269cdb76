package hydrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func store() *MockActivityStore {
	return &MockActivityStore{Activities: map[string]model.Activity{
		"a": {ID: "a", Tool: model.ToolGitHub, Timestamp: t0.Add(2 * time.Hour)},
		"b": {ID: "b", Tool: model.ToolJira, Timestamp: t0},
		"c": {ID: "c", Tool: model.ToolSlack, Timestamp: t0.Add(time.Hour)},
	}}
}

func TestHydrate_AllFound(t *testing.T) {
	h := NewHydrator(store(), time.Second)
	res, err := h.Hydrate(context.Background(), model.Cluster{ID: "c1", ActivityIDs: []string{"a", "b", "c", "a"}})
	require.NoError(t, err)

	var ids []string
	for _, a := range res.Cluster.Activities {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids, "ordered by timestamp")
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "c1", res.Cluster.ID)
}

func TestHydrate_PartialIsWarning(t *testing.T) {
	s := store()
	s.Extra = []model.Activity{{ID: "intruder", Tool: model.ToolSlack}}
	h := NewHydrator(s, 0)

	res, err := h.Hydrate(context.Background(), model.Cluster{ID: "c1", ActivityIDs: []string{"a", "zzz", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"zzz"}, res.Missing)
	assert.True(t, res.HasWarning(common.CodeActivitiesNotFound))

	for _, a := range res.Cluster.Activities {
		assert.Contains(t, []string{"a", "b"}, a.ID, "never returns unrequested activities")
	}
}

func TestHydrate_NoneFoundIsFatal(t *testing.T) {
	h := NewHydrator(store(), 0)
	res, err := h.Hydrate(context.Background(), model.Cluster{ID: "c1", ActivityIDs: []string{"x", "y"}})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Equal(t, common.CodeNoActivitiesFound, common.CodeOf(err))
	assert.True(t, common.IsPartialData(err))
}

func TestHydrate_InvalidCluster(t *testing.T) {
	h := NewHydrator(store(), 0)
	_, err := h.Hydrate(context.Background(), model.Cluster{ID: "c1"})
	assert.Equal(t, common.CodeInvalidCluster, common.CodeOf(err))
	_, err = h.Hydrate(context.Background(), model.Cluster{ActivityIDs: []string{"a"}})
	assert.Equal(t, common.CodeInvalidCluster, common.CodeOf(err))
}

func TestHydrate_StoreFailure(t *testing.T) {
	s := store()
	s.Err = errors.New("bolt: connection reset")
	_, err := NewHydrator(s, 0).Hydrate(context.Background(), model.Cluster{ID: "c1", ActivityIDs: []string{"a"}})
	require.Error(t, err)
	assert.Equal(t, common.CodeActivityLookupFailed, common.CodeOf(err))
	assert.True(t, common.IsDependency(err))
	assert.ErrorIs(t, err, s.Err)
}

func TestHydrate_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := NewHydrator(store(), time.Second).Hydrate(ctx, model.Cluster{ID: "c1", ActivityIDs: []string{"a"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var se *common.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "1s", se.Context["timeout"])
}
