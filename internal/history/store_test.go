package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/devicelab/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func twoTryAggregate() *models.AggregatedResultSet {
	first := models.NewResultSet()
	first.AddOutcome(models.TestOutcome{Name: "Net.Connect", Status: models.StatusPass, Duration: 120 * time.Millisecond})
	first.AddOutcome(models.TestOutcome{Name: "Net.Timeout", Status: models.StatusFail, Log: "assertion failed"})

	second := models.NewResultSet()
	second.AddOutcome(models.TestOutcome{Name: "Net.Timeout", Status: models.StatusPass})

	ag := &models.AggregatedResultSet{}
	ag.Append(first)
	ag.Append(second)
	return ag
}

func TestStore_RecordAndReadBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	runID, err := store.RecordRun(ctx, "plans/nightly.md", started, 42*time.Second, twoTryAggregate())
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "plans/nightly.md", runs[0].Manifest)
	assert.Equal(t, 42*time.Second, runs[0].Duration)
	assert.Equal(t, 2, runs[0].Tries)
	assert.True(t, runs[0].Passed)

	outcomes, err := store.RunOutcomes(ctx, runID)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, 1, outcomes[0].Try)
	assert.Equal(t, "Net.Connect", outcomes[0].Outcome.Name)
	assert.Equal(t, models.StatusPass, outcomes[0].Outcome.Status)
	assert.Equal(t, "assertion failed", outcomes[1].Outcome.Log)
	assert.Equal(t, 2, outcomes[2].Try)
	assert.Equal(t, "Net.Timeout", outcomes[2].Outcome.Name)
}

func TestStore_RecentRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.RecordRun(ctx, "plan.md", base.Add(time.Duration(i)*time.Hour), time.Second, twoTryAggregate())
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := store.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestStore_PruneKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var newest string
	for i := 0; i < 5; i++ {
		id, err := store.RecordRun(ctx, "plan.md", base.Add(time.Duration(i)*time.Hour), time.Second, twoTryAggregate())
		require.NoError(t, err)
		newest = id
	}

	require.NoError(t, store.Prune(ctx, 1))

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, newest, runs[0].ID)

	// Cascade removes the pruned runs' outcomes too.
	outcomes, err := store.RunOutcomes(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, outcomes, 3)
}

func TestStore_PruneDisabled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RecordRun(ctx, "plan.md", time.Now(), time.Second, twoTryAggregate())
	require.NoError(t, err)

	require.NoError(t, store.Prune(ctx, 0))

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestNewStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.RecentRuns(context.Background(), 5)
	assert.NoError(t, err)
}
