// Package store persists the firm roster, source observations, and the per-source sync log.
package store

import (
	"context"
	"time"

	"github.com/sells-group/esg-research/internal/model"
)

// Sync statuses recorded in the sync log.
const (
	SyncRunning  = "running"
	SyncComplete = "complete"
	SyncFailed   = "failed"
)

// ObservationFilter narrows ListObservations. Empty slices match everything.
type ObservationFilter struct {
	Metrics []model.Metric
	Sources []string
}

// SyncEntry is one row of the sync log: a single load of one source.
type SyncEntry struct {
	ID          int64      `json:"id" yaml:"id"`
	Source      string     `json:"source" yaml:"source"`
	RunID       string     `json:"run_id" yaml:"run_id"`
	Status      string     `json:"status" yaml:"status"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	RowsSynced  int64      `json:"rows_synced" yaml:"rows_synced"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Store defines the persistence interface for the research pipeline.
type Store interface {
	// Firms
	UpsertFirms(ctx context.Context, firms []model.Firm) error
	ListFirms(ctx context.Context) ([]model.Firm, error)

	// Observations. Upserting replaces the value for an existing
	// (firm_key, year, metric, source) and leaves other sources untouched.
	UpsertObservations(ctx context.Context, obs []model.Observation) (int64, error)
	ListObservations(ctx context.Context, filter ObservationFilter) ([]model.Observation, error)

	// Sync log
	StartSync(ctx context.Context, source, runID string) (int64, error)
	CompleteSync(ctx context.Context, id int64, rows int64) error
	FailSync(ctx context.Context, id int64, msg string) error
	ListSyncs(ctx context.Context) ([]SyncEntry, error)
	LastSuccess(ctx context.Context, source string) (*time.Time, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
