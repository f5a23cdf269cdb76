package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agenthands/storyline/internal/config"
	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Activities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.SaveActivities(ctx, testutil.AuthStory())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.Lookup(ctx, []string{"slack-1", "pr-1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pr-1", got[0].ID, "ordered by timestamp")

	want := testutil.AuthStory()[1]
	assert.Equal(t, want.Title, got[0].Title)
	assert.Equal(t, *want.Body, *got[0].Body)
	assert.Equal(t, want.Timestamp, got[0].Timestamp)
	assert.Equal(t, want.References, got[0].References)
	assert.JSONEq(t, string(want.Raw), string(got[0].Raw))

	// upsert
	updated := want
	updated.Title = "Renamed"
	updated.Body = nil
	_, err = s.SaveActivities(ctx, []model.Activity{updated})
	require.NoError(t, err)
	got, err = s.Lookup(ctx, []string{"pr-1"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got[0].Title)
	assert.Nil(t, got[0].Body)
}

func TestSQLiteStore_ListActivities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.SaveActivities(ctx, testutil.AuthStory())
	require.NoError(t, err)

	all, err := s.ListActivities(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	recent, err := s.ListActivities(ctx, testutil.Start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "pr-1", recent[0].ID)
}

func TestSQLiteStore_Clusters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testutil.AuthCluster().Cluster
	small := model.Cluster{ID: "small", ActivityIDs: []string{"x", "y"}}
	require.NoError(t, s.SaveClusters(ctx, []model.Cluster{small, c}))

	got, err := s.GetCluster(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ActivityIDs, got.ActivityIDs)
	assert.Equal(t, c.SharedReferences, got.SharedReferences)
	assert.True(t, c.Metrics.Earliest.Equal(got.Metrics.Earliest))

	list, err := s.ListClusters(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c.ID, list[0].ID)

	// a new run replaces the previous cluster set
	require.NoError(t, s.SaveClusters(ctx, []model.Cluster{small}))
	_, err = s.GetCluster(ctx, c.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStore_Personas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetPersona(ctx, "p-jane")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.SavePersona(ctx, testutil.Jane()))
	p, err := s.GetPersona(ctx, "p-jane")
	require.NoError(t, err)
	assert.Equal(t, testutil.Jane(), p)
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	first, err := Open(":memory:")
	require.NoError(t, err)
	defer first.Close()
	second, err := Open(":memory:")
	require.NoError(t, err)
	defer second.Close()

	_, err = first.SaveActivities(ctx, testutil.AuthStory()[:1])
	require.NoError(t, err)

	got, err := first.Lookup(ctx, []string{"jira-1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = second.Lookup(ctx, []string{"jira-1"})
	require.NoError(t, err)
	assert.Empty(t, got, "in-memory stores do not share data")
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "new.db")
	s, closeFn, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &SQLiteStore{}, s)

	cfg.Store.Driver = "cassandra"
	_, _, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
