package estimate

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/esg-research/internal/model"
)

// Coef is one reported coefficient.
type Coef struct {
	Term   string  `json:"term"`
	Coef   float64 `json:"coef"`
	StdErr float64 `json:"std_err"`
	TStat  float64 `json:"t_stat"`
	PValue float64 `json:"p_value"`
}

// Estimate is the outcome of one regression.
type Estimate struct {
	Spec      Spec         `json:"spec"`
	Metric    model.Metric `json:"metric"`
	SEType    SEType       `json:"se_type"`
	Transform Transform    `json:"transform"`
	PostStart int          `json:"post_start_year"`
	N         int          `json:"n"`
	K         int          `json:"k"`
	DF        int          `json:"df"`
	Deleted   Deletion     `json:"deleted"`
	Clusters  int          `json:"clusters,omitempty"`
	RSquared  float64      `json:"r_squared"`
	Coefs     []Coef       `json:"coefs"`
}

// Coef returns the named coefficient.
func (e *Estimate) Coef(term string) (Coef, bool) {
	for _, c := range e.Coefs {
		if c.Term == term {
			return c, true
		}
	}
	return Coef{}, false
}

// Results flattens the estimate into one row per coefficient.
func (e *Estimate) Results() []model.Result {
	out := make([]model.Result, 0, len(e.Coefs))
	for _, c := range e.Coefs {
		out = append(out, model.Result{
			Spec:     string(e.Spec),
			Metric:   e.Metric,
			Term:     c.Term,
			Coef:     c.Coef,
			StdErr:   c.StdErr,
			TStat:    c.TStat,
			PValue:   c.PValue,
			N:        e.N,
			Dropped:  e.Deleted.Total(),
			Clusters: e.Clusters,
			RSquared: e.RSquared,
			SEType:   string(e.SEType),
			Cutoff:   e.PostStart,
		})
	}
	return out
}

// Run estimates one specification on a panel that has been through the treatment
// constructor. Listwise deletions are marked in summary per firm-year-metric row,
// so a row dropped by several specs counts once. Returns an error wrapping
// model.ErrInsufficientSample when N ≤ k or N < opts.MinSample,
// model.ErrMissingReferenceYear when the event reference year has no rows, and
// model.ErrRankDeficient when the design is singular.
func Run(p *model.Panel, opts Options, summary *model.RunSummary) (*Estimate, error) {
	if p == nil {
		return nil, eris.New("estimate: nil panel")
	}
	if opts.Metric == "" {
		return nil, eris.New("estimate: no metric")
	}
	if opts.Transform == "" {
		opts.Transform = TransformLevel
	}
	log := zap.L().With(
		zap.String("component", "estimate"),
		zap.String("spec", string(opts.Spec)),
		zap.String("metric", string(opts.Metric)),
	)

	start, err := postStart(p, opts)
	if err != nil {
		return nil, err
	}
	rows, del, dropped := sample(p, opts, start)
	for _, k := range dropped {
		summary.Mark(model.StageEstimate, model.ReasonListwiseDeletion, k)
	}

	est := &Estimate{
		Spec:      opts.Spec,
		Metric:    opts.Metric,
		SEType:    opts.seType(),
		Transform: opts.Transform,
		PostStart: start,
		N:         len(rows),
		Deleted:   del,
	}

	if len(rows) == 0 || len(rows) < opts.MinSample {
		summary.Add(model.StageEstimate, model.ReasonInsufficientSample, 1)
		return est, eris.Wrapf(model.ErrInsufficientSample, "estimate: %s %s has %d rows (minimum %d)", opts.Spec, opts.Metric, len(rows), opts.MinSample)
	}

	d, err := buildDesign(rows, opts, start)
	if err != nil {
		switch {
		case eris.Is(err, model.ErrMissingReferenceYear):
			summary.Add(model.StageEstimate, model.ReasonMissingReference, 1)
		case eris.Is(err, model.ErrRankDeficient):
			summary.Add(model.StageEstimate, model.ReasonRankDeficient, 1)
		}
		return est, err
	}
	est.K = len(d.terms)
	if est.N <= est.K {
		summary.Add(model.StageEstimate, model.ReasonInsufficientSample, 1)
		return est, eris.Wrapf(model.ErrInsufficientSample, "estimate: %s %s has %d rows for %d parameters", opts.Spec, opts.Metric, est.N, est.K)
	}

	f, err := ols(d, est.SEType)
	if err != nil {
		switch {
		case eris.Is(err, model.ErrRankDeficient):
			summary.Add(model.StageEstimate, model.ReasonRankDeficient, 1)
		case eris.Is(err, model.ErrInsufficientSample):
			summary.Add(model.StageEstimate, model.ReasonInsufficientSample, 1)
		}
		return est, eris.Wrapf(err, "estimate: %s %s", opts.Spec, opts.Metric)
	}

	est.DF = f.df
	est.Clusters = f.clusters
	est.RSquared = f.r2
	for _, j := range d.report {
		b, se, t, pv := f.coef(j)
		est.Coefs = append(est.Coefs, Coef{Term: d.terms[j], Coef: b, StdErr: se, TStat: t, PValue: pv})
	}

	fields := []zap.Field{zap.Int("n", est.N), zap.Int("deleted", del.Total()), zap.Float64("r2", est.RSquared)}
	if c, ok := est.Coef(keyTerm(opts.Spec)); ok {
		fields = append(fields, zap.Float64("coef", c.Coef), zap.Float64("p", c.PValue))
	}
	log.Info("estimated", fields...)
	return est, nil
}

func keyTerm(s Spec) string {
	switch s {
	case SpecContinuous:
		return TermExposurePost
	case SpecWithin:
		return TermPost
	default:
		return TermTreatedPost
	}
}

// Cell is one group mean of the 2×2 table.
type Cell struct {
	Mean float64 `json:"mean"`
	N    int     `json:"n"`
}

// Descriptive is the 2×2 treated × post table of outcome means.
type Descriptive struct {
	Metric      model.Metric `json:"metric"`
	Transform   Transform    `json:"transform"`
	PostStart   int          `json:"post_start_year"`
	TreatedPre  Cell         `json:"treated_pre"`
	TreatedPost Cell         `json:"treated_post"`
	ControlPre  Cell         `json:"control_pre"`
	ControlPost Cell         `json:"control_post"`
	// DiD is (treated post − treated pre) − (control post − control pre); zero
	// when any cell is empty.
	DiD     float64  `json:"did"`
	Deleted Deletion `json:"deleted"`
}

// Describe computes group means on the same sample the basic spec uses.
func Describe(p *model.Panel, metric model.Metric, transform Transform, start int) (*Descriptive, error) {
	if p == nil {
		return nil, eris.New("estimate: nil panel")
	}
	if transform == "" {
		transform = TransformLevel
	}
	opts := Options{Spec: SpecBasic, Metric: metric, Transform: transform, PostStart: start}
	start, err := postStart(p, opts)
	if err != nil {
		return nil, err
	}
	rows, del, _ := sample(p, opts, start)

	var groups [2][2][]float64 // [treated][post]
	for _, o := range rows {
		t, q := 0, 0
		if o.treated {
			t = 1
		}
		if o.post {
			q = 1
		}
		groups[t][q] = append(groups[t][q], o.y)
	}
	cell := func(xs []float64) Cell {
		if len(xs) == 0 {
			return Cell{}
		}
		return Cell{Mean: stat.Mean(xs, nil), N: len(xs)}
	}

	d := &Descriptive{
		Metric:      metric,
		Transform:   transform,
		PostStart:   start,
		ControlPre:  cell(groups[0][0]),
		ControlPost: cell(groups[0][1]),
		TreatedPre:  cell(groups[1][0]),
		TreatedPost: cell(groups[1][1]),
		Deleted:     del,
	}
	if d.ControlPre.N > 0 && d.ControlPost.N > 0 && d.TreatedPre.N > 0 && d.TreatedPost.N > 0 {
		d.DiD = (d.TreatedPost.Mean - d.TreatedPre.Mean) - (d.ControlPost.Mean - d.ControlPre.Mean)
	}
	return d, nil
}

// BreakResult is one break-date robustness estimate.
type BreakResult struct {
	PostStart int       `json:"post_start_year"`
	Estimate  *Estimate `json:"estimate,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// BreakYears re-estimates the two-way fixed effects spec with each candidate year
// as the first post-treatment year. Failures are recorded per year.
func BreakYears(p *model.Panel, opts Options, years []int, summary *model.RunSummary) []BreakResult {
	out := make([]BreakResult, 0, len(years))
	for _, y := range years {
		o := opts
		o.Spec = SpecTWFE
		o.PostStart = y
		est, err := Run(p, o, summary)
		r := BreakResult{PostStart: y}
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Estimate = est
		}
		out = append(out, r)
	}
	return out
}
