package model

import "slices"

// Treated is a tri-state treatment flag. Unknown means no exposure data, which
// is not evidence of no exposure.
type Treated int8

const (
	TreatedUnknown Treated = iota
	TreatedNo
	TreatedYes
)

func (t Treated) String() string {
	switch t {
	case TreatedYes:
		return "yes"
	case TreatedNo:
		return "no"
	default:
		return "unknown"
	}
}

// MarshalText renders the flag as yes/no/unknown in JSON and YAML.
func (t Treated) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Known reports whether the firm can enter a treated/control contrast.
func (t Treated) Known() bool { return t != TreatedUnknown }

// Indicator returns 1 for treated, 0 for control. Callers must check Known first.
func (t Treated) Indicator() float64 {
	if t == TreatedYes {
		return 1
	}
	return 0
}

// PanelRow is one firm-year. Values holds an entry for every panel metric;
// nil means missing.
type PanelRow struct {
	FirmKey string `json:"firm_key"`
	Year    int    `json:"year"`
	Sector  string `json:"sector,omitempty"`
	// AIBuilder marks firms that sell AI infrastructure rather than only use it.
	AIBuilder bool                `json:"ai_builder,omitempty"`
	Values    map[Metric]*float64 `json:"values"`

	// Set by the treatment constructor.
	Exposure   *float64 `json:"exposure_score"`
	ExposureZ  *float64 `json:"exposure_z,omitempty"`
	Treated    Treated  `json:"treated"`
	PostPeriod bool     `json:"post_period"`
}

// Value returns the metric value and whether it is present.
func (r PanelRow) Value(m Metric) (float64, bool) {
	v := r.Values[m]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Empty reports whether every metric in the row is missing.
func (r PanelRow) Empty() bool {
	for _, v := range r.Values {
		if v != nil {
			return false
		}
	}
	return true
}

// Panel is the assembled firm-year table. Rows are unique on (FirmKey, Year)
// and sorted by that key; Metrics is sorted.
type Panel struct {
	Metrics    []Metric     `json:"metrics"`
	Rows       []PanelRow   `json:"rows"`
	Provenance []Provenance `json:"provenance"`

	// Treatment is nil until the treatment constructor has run.
	Treatment *TreatmentInfo `json:"treatment,omitempty"`
}

// TreatmentInfo records the fixed treatment definition applied to a panel.
type TreatmentInfo struct {
	Threshold     float64 `json:"threshold" yaml:"threshold"`
	CutoffDate    string  `json:"cutoff_date" yaml:"cutoff_date"`
	FirstPostYear int     `json:"first_post_year" yaml:"first_post_year"`
	Level         string  `json:"exposure_level" yaml:"exposure_level"`
	Treated       int     `json:"treated_firms" yaml:"treated_firms"`
	Control       int     `json:"control_firms" yaml:"control_firms"`
	Unknown       int     `json:"unknown_firms" yaml:"unknown_firms"`
}

// Firms returns the distinct firm keys in row order.
func (p *Panel) Firms() []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range p.Rows {
		if !seen[r.FirmKey] {
			seen[r.FirmKey] = true
			out = append(out, r.FirmKey)
		}
	}
	return out
}

// Years returns the distinct years, ascending.
func (p *Panel) Years() []int {
	seen := make(map[int]bool)
	var out []int
	for _, r := range p.Rows {
		if !seen[r.Year] {
			seen[r.Year] = true
			out = append(out, r.Year)
		}
	}
	slices.Sort(out)
	return out
}

// TreatmentAssignment is one firm's exposure and treatment status.
type TreatmentAssignment struct {
	FirmKey       string   `json:"firm_key"`
	Sector        string   `json:"sector,omitempty"`
	ExposureScore *float64 `json:"exposure_score"`
	ExposureZ     *float64 `json:"exposure_z"`
	Source        string   `json:"exposure_source"` // "firm", "sector" or ""
	Treated       Treated  `json:"treated"`
}
