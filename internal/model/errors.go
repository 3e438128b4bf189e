package model

import "github.com/rotisserie/eris"

// Sentinel errors shared across stages. Compare with eris.Is.
var (
	// ErrNoResolvableInput means no source produced a single resolvable
	// observation. It is the only condition that aborts a run.
	ErrNoResolvableInput = eris.New("no resolvable input data")
	// ErrInsufficientSample means a regression's sample is too small to estimate.
	ErrInsufficientSample = eris.New("insufficient sample")
	// ErrRankDeficient means the design matrix is singular.
	ErrRankDeficient = eris.New("rank deficient design matrix")
	// ErrMissingReferenceYear means the event-study reference year has no rows
	// in the estimation sample.
	ErrMissingReferenceYear = eris.New("event reference year not in sample")
)
