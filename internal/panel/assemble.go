// Package panel assembles resolved observations into the firm-year panel and
// writes it, with its provenance, to CSV and XLSX.
package panel

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-research/internal/model"
)

// Options configures the assembler.
type Options struct {
	// SourcePriority lists sources from most to least trusted. Sources not
	// listed rank after all listed ones, alphabetically.
	SourcePriority []string
	Summary        *model.RunSummary
}

// Assembler builds a Panel from observations.
type Assembler struct {
	priority map[string]int
	summary  *model.RunSummary
}

// NewAssembler creates an assembler with the given source priority.
func NewAssembler(opts Options) *Assembler {
	p := make(map[string]int, len(opts.SourcePriority))
	for i, s := range opts.SourcePriority {
		if _, dup := p[s]; !dup {
			p[s] = i
		}
	}
	return &Assembler{priority: p, summary: opts.Summary}
}

// ranked reports whether source a outranks source b.
func (a *Assembler) ranked(x, y string) bool {
	px, okx := a.priority[x]
	py, oky := a.priority[y]
	switch {
	case okx && oky:
		return px < py
	case okx != oky:
		return okx
	default:
		return x < y
	}
}

// Priority returns the 1-based rank of source; unlisted sources share
// len(SourcePriority)+1.
func (a *Assembler) Priority(source string) int {
	if p, ok := a.priority[source]; ok {
		return p + 1
	}
	return len(a.priority) + 1
}

type cellKey struct {
	firm   string
	year   int
	metric model.Metric
}

type rowKey struct {
	firm string
	year int
}

// Assemble builds the panel. Rows cover every observed firm × every observed
// year, sorted by (firm_key, year); metric columns are the sorted union of
// observed metrics. Each cell takes the highest-priority source with a value;
// every other source's attempt is kept as provenance. firms supplies sector
// labels and builder flags and may be nil.
func (a *Assembler) Assemble(obs []model.Observation, firms []model.Firm) (*model.Panel, error) {
	if len(obs) == 0 {
		return nil, eris.Wrap(model.ErrNoResolvableInput, "panel: assemble")
	}
	log := zap.L().With(zap.String("component", "panel.assembler"))

	sectors := make(map[string]string, len(firms))
	builders := make(map[string]bool)
	for _, f := range firms {
		sectors[f.Key] = f.Sector
		if f.IsAIBuilder {
			builders[f.Key] = true
		}
	}

	cells := make(map[cellKey][]model.Observation)
	seen := make(map[model.ObservationKey]bool, len(obs))
	firmSet := make(map[string]bool)
	yearSet := make(map[int]bool)
	metricSet := make(map[model.Metric]bool)
	for _, o := range obs {
		if seen[o.Key()] {
			log.Debug("duplicate observation ignored",
				zap.String("firm_key", o.FirmKey),
				zap.Int("year", o.Year),
				zap.String("metric", string(o.Metric)),
				zap.String("source", o.Source),
			)
			continue
		}
		seen[o.Key()] = true
		k := cellKey{o.FirmKey, o.Year, o.Metric}
		cells[k] = append(cells[k], o)
		firmSet[o.FirmKey] = true
		yearSet[o.Year] = true
		metricSet[o.Metric] = true
	}

	p := &model.Panel{
		Metrics: sortedKeys(metricSet, func(x, y model.Metric) bool { return x < y }),
	}
	firmKeys := sortedKeys(firmSet, func(x, y string) bool { return x < y })
	years := sortedKeys(yearSet, func(x, y int) bool { return x < y })

	conflicts, missing := 0, 0
	for _, firm := range firmKeys {
		for _, year := range years {
			row := model.PanelRow{
				FirmKey:   firm,
				Year:      year,
				Sector:    sectors[firm],
				AIBuilder: builders[firm],
				Values:    make(map[model.Metric]*float64, len(p.Metrics)),
			}
			for _, m := range p.Metrics {
				cell := cells[cellKey{firm, year, m}]
				winner, prov := a.decide(cell)
				row.Values[m] = winner
				if prov != nil {
					prov.FirmKey, prov.Year, prov.Metric = firm, year, m
					p.Provenance = append(p.Provenance, *prov)
					for _, d := range prov.Discarded {
						if d.Value != nil {
							conflicts++
						}
					}
				}
			}
			if row.Empty() {
				missing++
			}
			p.Rows = append(p.Rows, row)
		}
	}

	a.summary.Add(model.StageAssemble, model.ReasonConflictingSource, conflicts)
	a.summary.Add(model.StageAssemble, model.ReasonMissingPeriod, missing)
	log.Info("panel assembled",
		zap.Int("firms", len(firmKeys)),
		zap.Int("years", len(years)),
		zap.Int("metrics", len(p.Metrics)),
		zap.Int("rows", len(p.Rows)),
		zap.Int("conflicts", conflicts),
		zap.Int("missing_rows", missing),
	)
	return p, nil
}

// decide picks the cell value. A present value always beats a missing one;
// among present values the higher-priority source wins. Values are never
// averaged. Provenance is returned only when more than one source reported.
func (a *Assembler) decide(cell []model.Observation) (*float64, *model.Provenance) {
	if len(cell) == 0 {
		return nil, nil
	}
	sorted := append([]model.Observation(nil), cell...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Value != nil, sorted[j].Value != nil
		if pi != pj {
			return pi
		}
		return a.ranked(sorted[i].Source, sorted[j].Source)
	})

	winner := sorted[0]
	if len(sorted) == 1 {
		return winner.Value, nil
	}

	prov := &model.Provenance{
		WinnerSource: winner.Source,
		WinnerValue:  winner.Value,
	}
	for _, o := range sorted[1:] {
		prov.Discarded = append(prov.Discarded, model.ProvenanceAttempt{
			Source:     o.Source,
			Value:      o.Value,
			Confidence: o.Confidence,
			Priority:   a.Priority(o.Source),
		})
	}
	return winner.Value, prov
}

func sortedKeys[K comparable](set map[K]bool, less func(a, b K) bool) []K {
	out := make([]K, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
