package model

import (
	"sort"
	"sync"
)

// Stage names a pipeline stage in the run summary.
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageResolve   Stage = "resolve"
	StageAssemble  Stage = "assemble"
	StageTreatment Stage = "treatment"
	StageEstimate  Stage = "estimate"
)

// Reason explains why rows were dropped or flagged.
type Reason string

const (
	ReasonParseError         Reason = "parse_error"
	ReasonFetchError         Reason = "fetch_error"
	ReasonDuplicate          Reason = "duplicate_record"
	ReasonUnresolved         Reason = "unresolved_identifier"
	ReasonAmbiguous          Reason = "ambiguous_identifier"
	ReasonConflictingSource  Reason = "conflicting_source"
	ReasonMissingPeriod      Reason = "missing_period"
	ReasonUnknownTreatment   Reason = "unknown_treatment"
	ReasonListwiseDeletion   Reason = "listwise_deletion"
	ReasonInsufficientSample Reason = "insufficient_sample"
	ReasonRankDeficient      Reason = "rank_deficient"
	ReasonMissingReference   Reason = "missing_reference_year"
)

// Unit says what a summary count counts.
type Unit string

const (
	UnitRows        Unit = "rows"
	UnitFirms       Unit = "firms"
	UnitValues      Unit = "values"
	UnitRegressions Unit = "regressions"
)

// Unit returns what counts under r measure. Source, resolve, assemble and
// listwise-deletion counts are rows (distinct firm-year-metric rows for
// listwise_deletion, however many regressions dropped them); conflicting_source
// counts discarded values; fetch_error and unknown_treatment count firms; sample
// rank and reference-year failures count regressions.
func (r Reason) Unit() Unit {
	switch r {
	case ReasonConflictingSource:
		return UnitValues
	case ReasonFetchError, ReasonUnknownTreatment:
		return UnitFirms
	case ReasonInsufficientSample, ReasonRankDeficient, ReasonMissingReference:
		return UnitRegressions
	default:
		return UnitRows
	}
}

// SummaryEntry is one (stage, reason) count.
type SummaryEntry struct {
	Stage  Stage  `json:"stage" yaml:"stage"`
	Reason Reason `json:"reason" yaml:"reason"`
	Count  int    `json:"count" yaml:"count"`
	Unit   Unit   `json:"unit" yaml:"unit"`
}

// RunSummary tallies what each stage dropped or flagged and why.
type RunSummary struct {
	RunID string `json:"run_id"`

	mu     sync.Mutex
	counts map[Stage]map[Reason]int
	marked map[Stage]map[Reason]map[string]struct{}
}

// NewRunSummary creates an empty summary for a run.
func NewRunSummary(runID string) *RunSummary {
	return &RunSummary{
		RunID:  runID,
		counts: make(map[Stage]map[Reason]int),
		marked: make(map[Stage]map[Reason]map[string]struct{}),
	}
}

// Add records n rows for (stage, reason). Non-positive n is ignored.
// A nil summary is a no-op so library callers may pass nil.
func (s *RunSummary) Add(stage Stage, reason Reason, n int) {
	if s == nil || n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[stage] == nil {
		s.counts[stage] = make(map[Reason]int)
	}
	s.counts[stage][reason] += n
}

// Mark records one item identified by key for (stage, reason), counting each key
// once per run. Stages that see the same row several times (one regression per
// spec and metric) use it so a row is not reported as dropped repeatedly.
func (s *RunSummary) Mark(stage Stage, reason Reason, key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marked == nil {
		s.marked = make(map[Stage]map[Reason]map[string]struct{})
	}
	if s.counts == nil {
		s.counts = make(map[Stage]map[Reason]int)
	}
	if s.marked[stage] == nil {
		s.marked[stage] = make(map[Reason]map[string]struct{})
	}
	seen := s.marked[stage][reason]
	if seen == nil {
		seen = make(map[string]struct{})
		s.marked[stage][reason] = seen
	}
	if _, dup := seen[key]; dup {
		return
	}
	seen[key] = struct{}{}
	if s.counts[stage] == nil {
		s.counts[stage] = make(map[Reason]int)
	}
	s.counts[stage][reason]++
}

// Count returns the tally for (stage, reason).
func (s *RunSummary) Count(stage Stage, reason Reason) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[stage][reason]
}

// Entries returns all tallies sorted by stage then reason.
func (s *RunSummary) Entries() []SummaryEntry {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SummaryEntry
	for stage, reasons := range s.counts {
		for reason, n := range reasons {
			out = append(out, SummaryEntry{Stage: stage, Reason: reason, Count: n, Unit: reason.Unit()})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}
