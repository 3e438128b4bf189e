// Package estimate fits difference-in-differences regressions on a treated
// firm-year panel with dense OLS (gonum), fixed effects as dummies, and
// classical, heteroskedasticity-robust, or firm-clustered standard errors.
package estimate

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-research/internal/model"
)

// Spec names a regression specification.
type Spec string

const (
	// SpecBasic is y ~ const + treated + post + treated×post.
	SpecBasic Spec = "basic"
	// SpecTWFE is y ~ treated×post + firm FE + year FE.
	SpecTWFE Spec = "twfe"
	// SpecContinuous is y ~ z_exposure×post + firm FE + year FE.
	SpecContinuous Spec = "continuous"
	// SpecEvent is y ~ Σ_k treated×1[year=k] + firm FE + year FE, k ≠ reference year.
	SpecEvent Spec = "event"
	// SpecWithin is y ~ post + firm FE, the within-firm before/after change used
	// for per-sector estimates where a sector may have no control firms.
	SpecWithin Spec = "within"
	// SpecBuilder is y ~ treated×post + builder×post + firm FE + year FE,
	// separating firms that build AI infrastructure from firms that adopt it.
	SpecBuilder Spec = "builder"
)

// Specs lists every specification in reporting order.
var Specs = []Spec{SpecBasic, SpecTWFE, SpecContinuous, SpecEvent, SpecWithin, SpecBuilder}

// FixedEffects reports whether the spec absorbs firm effects.
func (s Spec) FixedEffects() bool { return s != SpecBasic }

// yearEffects reports whether the spec absorbs year effects.
func (s Spec) yearEffects() bool { return s != SpecBasic && s != SpecWithin }

// needsTreated reports whether rows with unknown treatment must be dropped.
func (s Spec) needsTreated() bool { return s != SpecContinuous && s != SpecWithin }

// SEType selects the coefficient covariance estimator.
type SEType string

const (
	SEClassical SEType = "classical"
	SEHC1       SEType = "hc1"
	SEHC3       SEType = "hc3"
	SECluster   SEType = "cluster" // CR1, clustered by firm
)

// Transform is applied to the outcome before estimation.
type Transform string

const (
	TransformLevel Transform = "level"
	TransformLog1p Transform = "log1p"
)

// Term names reported in results.
const (
	TermConst        = "const"
	TermTreated      = "treated"
	TermPost         = "post"
	TermTreatedPost  = "treated_x_post"
	TermExposurePost = "exposure_z_x_post"
	TermBuilderPost  = "builder_x_post"
)

// EventTerm names the event-study interaction for year k.
func EventTerm(year int) string { return "treated_x_" + itoa(year) }

// Options configures one regression.
type Options struct {
	Spec      Spec
	Metric    model.Metric
	SEType    SEType // empty: cluster when the spec has fixed effects, classical otherwise
	Transform Transform
	MinSample int
	// ReferenceYear is the omitted event-study year.
	ReferenceYear int
	// PostStart overrides the panel's first post-treatment year when non-zero.
	PostStart int
	// Sector restricts the sample to one sector (case-insensitive) when set.
	Sector string
}

// ParseSpec validates a spec name.
func ParseSpec(s string) (Spec, error) {
	spec := Spec(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Specs {
		if spec == known {
			return spec, nil
		}
	}
	names := make([]string, len(Specs))
	for i, known := range Specs {
		names[i] = string(known)
	}
	return "", eris.Errorf("estimate: unknown spec %q (valid: %s)", s, strings.Join(names, ", "))
}

// ParseSEType validates a standard-error type. Empty is allowed.
func ParseSEType(s string) (SEType, error) {
	switch t := SEType(strings.ToLower(strings.TrimSpace(s))); t {
	case "", SEClassical, SEHC1, SEHC3, SECluster:
		return t, nil
	default:
		return "", eris.Errorf("estimate: unknown se type %q (valid: classical, hc1, hc3, cluster)", s)
	}
}

// ParseTransform validates an outcome transform. Empty means level.
func ParseTransform(s string) (Transform, error) {
	switch t := Transform(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TransformLevel:
		return TransformLevel, nil
	case TransformLog1p:
		return t, nil
	default:
		return "", eris.Errorf("estimate: unknown transform %q (valid: level, log1p)", s)
	}
}

func (o Options) seType() SEType {
	if o.SEType != "" {
		return o.SEType
	}
	if o.Spec.FixedEffects() {
		return SECluster
	}
	return SEClassical
}
