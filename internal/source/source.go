// Package source loads raw research datasets into RawRecords and feeds them
// through identifier resolution into the observation store.
package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-research/internal/fetcher"
	"github.com/sells-group/esg-research/internal/model"
	"github.com/sells-group/esg-research/internal/resolve"
	"github.com/sells-group/esg-research/pkg/edgar"
)

// Kind tells whether a source reads a local file or calls a remote API.
type Kind string

const (
	KindFile Kind = "file"
	KindAPI  Kind = "api"
)

// Source names used in the observation store and the priority list.
const (
	NameGHGRP      = "ghgrp"
	NameCDP        = "cdp"
	NameESGRatings = "esg_ratings"
	NameFinancials = "financials"
	NameManual     = model.SourceManual
	NameEDGARAI    = "edgar_ai"
)

// Env is what a source may use while loading.
type Env struct {
	Fetcher fetcher.Fetcher // optional; needed only for URL-backed files
	EDGAR   edgar.Client    // optional; needed only by edgar_ai
	Roster  *resolve.Roster
	Summary *model.RunSummary
	TempDir string
}

// Source is a single raw dataset.
type Source interface {
	// Name is the source label stored on every observation (e.g. "ghgrp").
	Name() string

	// Kind reports whether the source is file- or API-backed.
	Kind() Kind

	// Load reads the raw data and returns one record per (identifiers, year, metric).
	// Bad rows are counted in env.Summary and skipped; only an unusable input is an error.
	Load(ctx context.Context, env Env) ([]model.RawRecord, error)
}

var errNotConfigured = eris.New("source not configured")
