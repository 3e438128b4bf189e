package model

import (
	"regexp"
	"strings"
	"time"
)

// Metric names a measured quantity in the panel.
type Metric string

const (
	MetricScope1       Metric = "scope1_emissions"
	MetricScope2       Metric = "scope2_emissions"
	MetricScope2Market Metric = "scope2_market_emissions"
	MetricScope3       Metric = "scope3_emissions"
	MetricTotal        Metric = "total_emissions"
	MetricESG          Metric = "esg_score"
	MetricE            Metric = "e_score"
	MetricS            Metric = "s_score"
	MetricG            Metric = "g_score"
	MetricAIExposure   Metric = "ai_exposure_index"
	MetricAIMentions   Metric = "ai_mention_count"
	MetricAIIntensity  Metric = "ai_intensity"
	MetricStockReturn  Metric = "stock_return"
	MetricRevenue      Metric = "revenue"
)

var scopeSeparator = regexp.MustCompile(`scope_+([0-9])`)

// NormalizeMetric lower-cases a metric name and replaces separators with underscores
// so "Scope 2 Emissions" and "scope2-emissions" from hand-made files line up.
func NormalizeMetric(s string) Metric {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(s)
	s = scopeSeparator.ReplaceAllString(s, "scope$1")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return Metric(s)
}

// Confidence grades how a value was produced.
type Confidence string

const (
	ConfidenceVerified     Confidence = "verified"
	ConfidenceSelfReported Confidence = "self_reported"
	ConfidenceEstimated    Confidence = "estimated"
)

// ParseConfidence maps free-form labels to a Confidence. Unknown labels are estimated.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "verified", "audited", "regulatory":
		return ConfidenceVerified
	case "self_reported", "reported", "self reported", "corporate":
		return ConfidenceSelfReported
	default:
		return ConfidenceEstimated
	}
}

// SourceManual is the source name for hand-entered corrections.
const SourceManual = "manual"

// RawRecord is a source row before identifier resolution. Any subset of
// Ticker, CIK, and Name may be set.
type RawRecord struct {
	Ticker     string
	CIK        string
	Name       string
	Year       int
	Metric     Metric
	Value      *float64
	Source     string
	Confidence Confidence
	Line       int // 1-based row in the raw file, for review
}

// Identifiers returns a compact description of the raw identifiers for logs.
func (r RawRecord) Identifiers() string {
	var parts []string
	if r.Ticker != "" {
		parts = append(parts, "ticker="+r.Ticker)
	}
	if r.CIK != "" {
		parts = append(parts, "cik="+r.CIK)
	}
	if r.Name != "" {
		parts = append(parts, "name="+r.Name)
	}
	if len(parts) == 0 {
		return "<none>"
	}
	return strings.Join(parts, " ")
}

// Observation is one resolved value. At most one exists per ObservationKey.
type Observation struct {
	FirmKey    string     `json:"firm_key"`
	Year       int        `json:"year"`
	Metric     Metric     `json:"metric"`
	Value      *float64   `json:"value"`
	Source     string     `json:"source"`
	Confidence Confidence `json:"confidence"`
	RunID      string     `json:"run_id,omitempty"`
	LoadedAt   time.Time  `json:"loaded_at"`
}

// ObservationKey is the uniqueness key of an Observation.
type ObservationKey struct {
	FirmKey string
	Year    int
	Metric  Metric
	Source  string
}

// Key returns the observation's uniqueness key.
func (o Observation) Key() ObservationKey {
	return ObservationKey{FirmKey: o.FirmKey, Year: o.Year, Metric: o.Metric, Source: o.Source}
}

// Float returns a pointer to v. Handy for literals.
func Float(v float64) *float64 { return &v }
