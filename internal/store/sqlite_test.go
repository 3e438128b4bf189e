package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-research/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

// --- Firms ---

func TestSQLite_Firms_UpsertAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertFirms(ctx, []model.Firm{
		{Key: "XOM", Ticker: "XOM", CIK: "0000034088", Name: "Exxon Mobil Corp", Sector: "Energy", Active: true},
		{Key: "MSFT", Ticker: "MSFT", CIK: "0000789019", Name: "Microsoft Corp", Sector: "Information Technology", IsAIBuilder: true, Active: true},
	}))

	// delisting flips active, never deletes
	require.NoError(t, st.UpsertFirms(ctx, []model.Firm{
		{Key: "XOM", Ticker: "XOM", CIK: "0000034088", Name: "Exxon Mobil Corp", Sector: "Energy", Active: false},
	}))

	firms, err := st.ListFirms(ctx)
	require.NoError(t, err)
	require.Len(t, firms, 2)
	assert.Equal(t, "MSFT", firms[0].Key)
	assert.True(t, firms[0].IsAIBuilder)
	assert.Equal(t, "XOM", firms[1].Key)
	assert.False(t, firms[1].Active)
}

func TestSQLite_Firms_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.UpsertFirms(context.Background(), nil))

	firms, err := st.ListFirms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, firms)
}

// --- Observations ---

func TestSQLite_Observations_UpsertReplacesSameSourceOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertObservations(ctx, []model.Observation{
		{FirmKey: "MSFT", Year: 2021, Metric: model.MetricScope2, Value: model.Float(6.0e6), Source: "cdp", Confidence: model.ConfidenceSelfReported, RunID: "r1"},
		{FirmKey: "MSFT", Year: 2021, Metric: model.MetricScope2, Value: model.Float(7.1e6), Source: "ghgrp", Confidence: model.ConfidenceVerified, RunID: "r1"},
	})
	require.NoError(t, err)

	// reload cdp with a corrected value
	n, err := st.UpsertObservations(ctx, []model.Observation{
		{FirmKey: "MSFT", Year: 2021, Metric: model.MetricScope2, Value: model.Float(6.2e6), Source: "cdp", Confidence: model.ConfidenceSelfReported, RunID: "r2"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	obs, err := st.ListObservations(ctx, ObservationFilter{})
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, "cdp", obs[0].Source)
	assert.Equal(t, 6.2e6, *obs[0].Value)
	assert.Equal(t, "r2", obs[0].RunID)
	assert.Equal(t, "ghgrp", obs[1].Source)
	assert.Equal(t, 7.1e6, *obs[1].Value)
	assert.Equal(t, model.ConfidenceVerified, obs[1].Confidence)
	assert.False(t, obs[1].LoadedAt.IsZero())
}

func TestSQLite_Observations_NullValue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertObservations(ctx, []model.Observation{
		{FirmKey: "AAPL", Year: 2020, Metric: model.MetricScope3, Source: "cdp", Confidence: model.ConfidenceSelfReported},
	})
	require.NoError(t, err)

	obs, err := st.ListObservations(ctx, ObservationFilter{})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Nil(t, obs[0].Value)
}

func TestSQLite_Observations_Filter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertObservations(ctx, []model.Observation{
		{FirmKey: "A", Year: 2020, Metric: model.MetricTotal, Value: model.Float(1), Source: "ghgrp", Confidence: model.ConfidenceVerified},
		{FirmKey: "A", Year: 2020, Metric: model.MetricESG, Value: model.Float(2), Source: "esg_ratings", Confidence: model.ConfidenceEstimated},
		{FirmKey: "B", Year: 2021, Metric: model.MetricTotal, Value: model.Float(3), Source: "manual", Confidence: model.ConfidenceVerified},
	})
	require.NoError(t, err)

	obs, err := st.ListObservations(ctx, ObservationFilter{Metrics: []model.Metric{model.MetricTotal}})
	require.NoError(t, err)
	assert.Len(t, obs, 2)

	obs, err = st.ListObservations(ctx, ObservationFilter{
		Metrics: []model.Metric{model.MetricTotal, model.MetricESG},
		Sources: []string{"manual"},
	})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "B", obs[0].FirmKey)
}

// --- Sync log ---

func TestSQLite_SyncLog_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	last, err := st.LastSuccess(ctx, "ghgrp")
	require.NoError(t, err)
	assert.Nil(t, last)

	okID, err := st.StartSync(ctx, "ghgrp", "run-1")
	require.NoError(t, err)
	require.NoError(t, st.CompleteSync(ctx, okID, 42))

	badID, err := st.StartSync(ctx, "cdp", "run-1")
	require.NoError(t, err)
	require.NoError(t, st.FailSync(ctx, badID, "cdp: open file: no such file"))

	entries, err := st.ListSyncs(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[int64]SyncEntry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	assert.Equal(t, SyncComplete, byID[okID].Status)
	assert.Equal(t, int64(42), byID[okID].RowsSynced)
	assert.NotNil(t, byID[okID].CompletedAt)
	assert.Equal(t, SyncFailed, byID[badID].Status)
	assert.Contains(t, byID[badID].Error, "no such file")
	assert.Equal(t, "run-1", byID[badID].RunID)

	last, err = st.LastSuccess(ctx, "ghgrp")
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestSQLite_CompleteSync_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.CompleteSync(context.Background(), 999, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync entry not found")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
