package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/model"
	"github.com/sells-group/esg-research/internal/resolve"
	"github.com/sells-group/esg-research/internal/store"
)

// mockSource implements Source for testing.
type mockSource struct {
	name    string
	records []model.RawRecord
	err     error
	loaded  bool
}

func (m *mockSource) Name() string { return m.name }
func (m *mockSource) Kind() Kind   { return KindFile }
func (m *mockSource) Load(context.Context, Env) ([]model.RawRecord, error) {
	m.loaded = true
	return m.records, m.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "obs.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEngine(t *testing.T, st store.Store, summary *model.RunSummary, sources ...Source) *Engine {
	t.Helper()
	reg := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		reg.Register(s)
	}
	roster := testRoster(t)
	resolver := resolve.NewResolver(roster, resolve.DefaultAliases(), resolve.Options{Summary: summary})
	return NewEngine(st, resolver, reg, Env{Roster: roster, Summary: summary}, "run-1")
}

func TestNewRegistry_Order(t *testing.T) {
	reg := NewRegistry(&config.Config{})
	assert.Equal(t, []string{"ghgrp", "cdp", "esg_ratings", "financials", "edgar_ai", "manual"}, reg.AllNames())
}

func TestRegistry_Select(t *testing.T) {
	reg := &Registry{sources: make(map[string]Source)}
	reg.Register(&mockSource{name: "a"})
	reg.Register(&mockSource{name: "b"})
	reg.Register(&mockSource{name: "a"})

	all, err := reg.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := reg.Select([]string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, "b", got[0].Name())
	assert.Equal(t, "a", got[1].Name())

	_, err = reg.Select([]string{"nope"})
	assert.Error(t, err)
}

func TestEngine_Run(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	summary := model.NewRunSummary("run-1")

	cdp := &mockSource{name: "cdp", records: []model.RawRecord{
		{Ticker: "MSFT", Year: 2021, Metric: model.MetricScope2, Value: model.Float(6.0e6), Confidence: model.ConfidenceSelfReported},
		{Name: "Microsoft Corporation", Year: 2021, Metric: model.MetricScope2, Value: model.Float(1), Confidence: model.ConfidenceSelfReported},
		{CIK: "34088", Year: 2021, Metric: model.MetricScope1, Value: model.Float(9.9e7)},
		{Name: "Totally Unknown Widgets", Year: 2021, Metric: model.MetricScope1, Value: model.Float(5)},
	}}
	broken := &mockSource{name: "ghgrp", err: errors.New("boom")}

	e := newTestEngine(t, st, summary, cdp, broken)
	results, err := e.Run(ctx, RunOpts{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, LoadResult{Source: "cdp", Loaded: 4, Resolved: 3, Unresolved: 1, Duplicates: 1, Upserted: 2}, results[0])
	assert.Equal(t, "boom", results[1].Error)

	obs, err := st.ListObservations(ctx, store.ObservationFilter{})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "MSFT", obs[0].FirmKey)
	assert.InDelta(t, 6.0e6, *obs[0].Value, 1e-9)
	assert.Equal(t, "run-1", obs[0].RunID)
	assert.Equal(t, "XOM", obs[1].FirmKey)

	firms, err := st.ListFirms(ctx)
	require.NoError(t, err)
	assert.Len(t, firms, 3)

	syncs, err := st.ListSyncs(ctx)
	require.NoError(t, err)
	require.Len(t, syncs, 2)
	statuses := map[string]string{}
	for _, s := range syncs {
		statuses[s.Source] = s.Status
	}
	assert.Equal(t, store.SyncComplete, statuses["cdp"])
	assert.Equal(t, store.SyncFailed, statuses["ghgrp"])

	assert.Equal(t, 1, summary.Count(model.StageResolve, model.ReasonDuplicate))
	assert.Equal(t, 1, summary.Count(model.StageResolve, model.ReasonUnresolved))
}

func TestEngine_RunSelected(t *testing.T) {
	a := &mockSource{name: "a", records: []model.RawRecord{{Ticker: "AAPL", Year: 2022, Metric: model.MetricESG, Value: model.Float(7)}}}
	b := &mockSource{name: "b"}

	e := newTestEngine(t, newTestStore(t), nil, a, b)
	results, err := e.Run(context.Background(), RunOpts{Sources: []string{"a"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, a.loaded)
	assert.False(t, b.loaded)
}

func TestEngine_NoResolvableInput(t *testing.T) {
	src := &mockSource{name: "cdp", records: []model.RawRecord{
		{Name: "Nobody Ltd", Year: 2021, Metric: model.MetricScope1, Value: model.Float(1)},
	}}

	e := newTestEngine(t, newTestStore(t), nil, src)
	_, err := e.Run(context.Background(), RunOpts{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNoResolvableInput))
}

func TestEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &mockSource{name: "cdp"}
	e := newTestEngine(t, newTestStore(t), nil, src)
	_, err := e.Run(ctx, RunOpts{})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, src.loaded)
}
