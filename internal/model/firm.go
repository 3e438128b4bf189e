// Package model defines the shared types that flow through the research pipeline:
// firms, raw and resolved observations, the firm-year panel, treatment flags,
// regression results, and run summaries.
package model

import (
	"fmt"
	"strings"
)

// Firm is the canonical entity every source record resolves to.
type Firm struct {
	Key         string `json:"firm_key" yaml:"firm_key"`
	Ticker      string `json:"ticker" yaml:"ticker"`
	CIK         string `json:"cik,omitempty" yaml:"cik,omitempty"`
	Name        string `json:"name" yaml:"name"`
	Sector      string `json:"sector,omitempty" yaml:"sector,omitempty"`
	IsAIBuilder bool   `json:"is_ai_builder" yaml:"is_ai_builder"`
	Active      bool   `json:"active" yaml:"active"`
}

// PadCIK left-pads a CIK to the 10-digit EDGAR form. It accepts an optional "CIK"
// prefix and a zero decimal tail ("320193.0" from spreadsheet exports). Anything else
// that is not a plain integer (fractions, exponents, separators) returns "", as does a
// value with no significant digits or more than 10 of them.
func PadCIK(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 3 && strings.EqualFold(s[:3], "CIK") {
		s = strings.TrimSpace(s[3:])
	}
	if whole, frac, ok := strings.Cut(s, "."); ok {
		if strings.Trim(frac, "0") != "" {
			return ""
		}
		s = whole
	}
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return ""
	}
	s = strings.TrimLeft(s, "0")
	if s == "" || len(s) > 10 {
		return ""
	}
	return fmt.Sprintf("%010s", s)
}
