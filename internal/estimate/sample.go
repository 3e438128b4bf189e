package estimate

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/esg-research/internal/model"
)

// Deletion counts rows removed listwise from one regression, by cause.
type Deletion struct {
	MissingOutcome   int `json:"missing_outcome"`
	NegativeOutcome  int `json:"negative_outcome"`
	UnknownTreatment int `json:"unknown_treatment"`
	MissingExposure  int `json:"missing_exposure"`
}

// Total returns the number of rows deleted.
func (d Deletion) Total() int {
	return d.MissingOutcome + d.NegativeOutcome + d.UnknownTreatment + d.MissingExposure
}

type obs struct {
	firm    string
	year    int
	sector  string
	builder bool
	y       float64
	treated bool
	z       float64
	post    bool
}

// postStart returns the first post-treatment year for opts.
func postStart(p *model.Panel, opts Options) (int, error) {
	if opts.PostStart != 0 {
		return opts.PostStart, nil
	}
	if p.Treatment == nil {
		return 0, eris.New("estimate: panel has no treatment assignment")
	}
	return p.Treatment.FirstPostYear, nil
}

// sample applies the sector filter, the outcome transform and listwise deletion
// for opts.Spec. The returned keys identify each deleted firm-year-metric row.
// Rows outside opts.Sector are not deletions.
func sample(p *model.Panel, opts Options, start int) ([]obs, Deletion, []string) {
	var (
		out     []obs
		del     Deletion
		dropped []string
	)
	drop := func(r model.PanelRow, count *int) {
		*count++
		dropped = append(dropped, rowKey(r.FirmKey, r.Year, opts.Metric))
	}
	for _, r := range p.Rows {
		if opts.Sector != "" && !strings.EqualFold(r.Sector, opts.Sector) {
			continue
		}
		y, ok := r.Value(opts.Metric)
		if !ok || math.IsNaN(y) {
			drop(r, &del.MissingOutcome)
			continue
		}
		if opts.Transform == TransformLog1p {
			if y < 0 {
				drop(r, &del.NegativeOutcome)
				continue
			}
			y = math.Log1p(y)
		}
		if opts.Spec.needsTreated() && !r.Treated.Known() {
			drop(r, &del.UnknownTreatment)
			continue
		}
		o := obs{
			firm:    r.FirmKey,
			year:    r.Year,
			sector:  r.Sector,
			builder: r.AIBuilder,
			y:       y,
			treated: r.Treated == model.TreatedYes,
			post:    r.Year >= start,
		}
		if opts.Spec == SpecContinuous {
			if r.ExposureZ == nil {
				drop(r, &del.MissingExposure)
				continue
			}
			o.z = *r.ExposureZ
		}
		out = append(out, o)
	}
	return out, del, dropped
}

func rowKey(firm string, year int, metric model.Metric) string {
	return firm + "|" + itoa(year) + "|" + string(metric)
}

// design is a dense regression problem: X is n×k, terms names its columns and
// report indexes the columns whose coefficients are returned.
type design struct {
	X        *mat.Dense
	y        *mat.VecDense
	terms    []string
	report   []int
	clusters []int // firm index per row
	nFirms   int
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// buildDesign encodes the specification. Fixed effects are dummies with the
// first (sorted) level dropped; every spec keeps an intercept.
func buildDesign(rows []obs, opts Options, start int) (*design, error) {
	firms := levels(rows, func(o obs) string { return o.firm })
	years := levels(rows, func(o obs) int { return o.year })
	firmIdx := index(firms)
	yearIdx := index(years)

	d := &design{terms: []string{TermConst}, nFirms: len(firms)}
	type column func(o obs) float64
	cols := []column{func(obs) float64 { return 1 }}

	add := func(term string, reported bool, f column) {
		if reported {
			d.report = append(d.report, len(d.terms))
		}
		d.terms = append(d.terms, term)
		cols = append(cols, f)
	}

	switch opts.Spec {
	case SpecBasic:
		d.report = append(d.report, 0)
		add(TermTreated, true, func(o obs) float64 { return b2f(o.treated) })
		add(TermPost, true, func(o obs) float64 { return b2f(o.post) })
		add(TermTreatedPost, true, func(o obs) float64 { return b2f(o.treated && o.post) })
	case SpecTWFE:
		add(TermTreatedPost, true, func(o obs) float64 { return b2f(o.treated && o.post) })
	case SpecContinuous:
		add(TermExposurePost, true, func(o obs) float64 {
			if o.post {
				return o.z
			}
			return 0
		})
	case SpecWithin:
		add(TermPost, true, func(o obs) float64 { return b2f(o.post) })
	case SpecBuilder:
		add(TermTreatedPost, true, func(o obs) float64 { return b2f(o.treated && o.post) })
		add(TermBuilderPost, true, func(o obs) float64 { return b2f(o.builder && o.post) })
	case SpecEvent:
		ref := opts.ReferenceYear
		if ref == 0 {
			ref = start - 1
		}
		if _, ok := yearIdx[ref]; !ok {
			return nil, eris.Wrapf(model.ErrMissingReferenceYear,
				"estimate: event reference year %d not in sample (years %d-%d); set estimate.reference_year to a sample year",
				ref, years[0], years[len(years)-1])
		}
		for _, y := range years {
			if y == ref {
				continue
			}
			add(EventTerm(y), true, func(o obs) float64 { return b2f(o.treated && o.year == y) })
		}
	default:
		return nil, eris.Errorf("estimate: unknown spec %q", opts.Spec)
	}

	if opts.Spec.FixedEffects() {
		for _, f := range firms[min(1, len(firms)):] {
			add("firm_"+f, false, func(o obs) float64 { return b2f(o.firm == f) })
		}
	}
	if opts.Spec.yearEffects() {
		for _, y := range years[min(1, len(years)):] {
			add("year_"+itoa(y), false, func(o obs) float64 { return b2f(o.year == y) })
		}
	}

	n, k := len(rows), len(cols)
	d.X = mat.NewDense(max(n, 1), k, nil)
	d.y = mat.NewVecDense(max(n, 1), nil)
	d.clusters = make([]int, n)
	for i, o := range rows {
		for j, f := range cols {
			d.X.Set(i, j, f(o))
		}
		d.y.SetVec(i, o.y)
		d.clusters[i] = firmIdx[o.firm]
	}
	return d, nil
}

func levels[T string | int](rows []obs, key func(obs) T) []T {
	seen := make(map[T]bool)
	var out []T
	for _, o := range rows {
		k := key(o)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func index[T comparable](xs []T) map[T]int {
	m := make(map[T]int, len(xs))
	for i, x := range xs {
		m[x] = i
	}
	return m
}

func itoa(n int) string { return strconv.Itoa(n) }
