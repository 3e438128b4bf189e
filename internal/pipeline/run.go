package pipeline

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-research/internal/estimate"
	"github.com/sells-group/esg-research/internal/model"
	"github.com/sells-group/esg-research/internal/report"
	"github.com/sells-group/esg-research/internal/source"
)

// EstimateRequest selects the regressions to run. Empty fields fall back to the
// estimate section of the config.
type EstimateRequest struct {
	Metrics    []string
	Specs      []string
	SEType     string
	Transform  string
	BreakYears []int
}

// Failure is a regression that could not be estimated.
type Failure struct {
	Spec   estimate.Spec `json:"spec"`
	Metric model.Metric  `json:"metric"`
	Error  string        `json:"error"`
}

// EstimateOutput collects every regression of a run.
type EstimateOutput struct {
	Estimates      []*estimate.Estimate                       `json:"estimates"`
	Failures       []Failure                                  `json:"failures,omitempty"`
	Descriptive    []*estimate.Descriptive                    `json:"descriptive"`
	Breaks         map[model.Metric][]estimate.BreakResult    `json:"break_years,omitempty"`
	Sectors        map[model.Metric][]estimate.SubgroupResult `json:"sectors,omitempty"`
	Decompositions map[model.Metric]*estimate.Decomposition   `json:"decompositions,omitempty"`
}

// skippable reports whether a regression error is recorded as a failure
// instead of aborting the run.
func skippable(err error) bool {
	return eris.Is(err, model.ErrInsufficientSample) ||
		eris.Is(err, model.ErrRankDeficient) ||
		eris.Is(err, model.ErrMissingReferenceYear)
}

// Results flattens the estimates into coefficient rows.
func (o *EstimateOutput) Results() []model.Result {
	var out []model.Result
	for _, e := range o.Estimates {
		out = append(out, e.Results()...)
	}
	return out
}

func (p *Pipeline) resolveRequest(req EstimateRequest) (EstimateRequest, []estimate.Spec, estimate.SEType, estimate.Transform, error) {
	if len(req.Metrics) == 0 {
		req.Metrics = p.cfg.Estimate.Metrics
	}
	if len(req.Specs) == 0 {
		req.Specs = p.cfg.Estimate.Specs
	}
	if req.SEType == "" {
		req.SEType = p.cfg.Estimate.SEType
	}
	if req.Transform == "" {
		req.Transform = p.cfg.Estimate.Transform
	}
	if req.BreakYears == nil {
		req.BreakYears = p.cfg.Estimate.BreakYears
	}
	if len(req.Metrics) == 0 {
		return req, nil, "", "", eris.New("pipeline: no metrics to estimate")
	}

	specs := make([]estimate.Spec, 0, len(req.Specs))
	for _, s := range req.Specs {
		spec, err := estimate.ParseSpec(s)
		if err != nil {
			return req, nil, "", "", err
		}
		specs = append(specs, spec)
	}
	se, err := estimate.ParseSEType(req.SEType)
	if err != nil {
		return req, nil, "", "", err
	}
	tr, err := estimate.ParseTransform(req.Transform)
	if err != nil {
		return req, nil, "", "", err
	}
	return req, specs, se, tr, nil
}

// Estimate runs every requested metric × spec on a treated panel. Regressions
// that fail for sample size, rank or a missing event reference year are recorded
// and skipped; any other error aborts. Successful event studies are decomposed
// into pre, anticipation and post windows, and with estimate.by_sector each
// sector gets a within-firm estimate. Writes results.csv, results.json and
// descriptive.json.
func (p *Pipeline) Estimate(pl *model.Panel, req EstimateRequest) (*EstimateOutput, error) {
	req, specs, se, tr, err := p.resolveRequest(req)
	if err != nil {
		return nil, err
	}

	out := &EstimateOutput{
		Breaks:         make(map[model.Metric][]estimate.BreakResult),
		Sectors:        make(map[model.Metric][]estimate.SubgroupResult),
		Decompositions: make(map[model.Metric]*estimate.Decomposition),
	}
	for _, name := range req.Metrics {
		metric := model.NormalizeMetric(name)

		desc, err := estimate.Describe(pl, metric, tr, 0)
		if err != nil {
			return nil, err
		}
		out.Descriptive = append(out.Descriptive, desc)

		base := estimate.Options{
			Metric:        metric,
			SEType:        se,
			Transform:     tr,
			MinSample:     p.cfg.Estimate.MinSample,
			ReferenceYear: p.cfg.Estimate.ReferenceYear,
		}
		for _, spec := range specs {
			opts := base
			opts.Spec = spec
			est, err := estimate.Run(pl, opts, p.summary)
			if err != nil {
				if !skippable(err) {
					return nil, err
				}
				zap.L().Warn("pipeline: regression skipped",
					zap.String("spec", string(spec)),
					zap.String("metric", string(metric)),
					zap.Error(err),
				)
				out.Failures = append(out.Failures, Failure{Spec: spec, Metric: metric, Error: err.Error()})
				continue
			}
			out.Estimates = append(out.Estimates, est)
			if spec == estimate.SpecEvent {
				d, err := estimate.Decompose(est, p.cfg.Estimate.AnticipationStart)
				if err != nil {
					zap.L().Warn("pipeline: event decomposition skipped", zap.String("metric", string(metric)), zap.Error(err))
				} else {
					out.Decompositions[metric] = d
				}
			}
		}

		if len(req.BreakYears) > 0 {
			out.Breaks[metric] = estimate.BreakYears(pl, base, req.BreakYears, nil)
		}
		if p.cfg.Estimate.BySector {
			within := base
			within.Spec = estimate.SpecWithin
			out.Sectors[metric] = estimate.BySector(pl, within, nil)
		}
	}

	dir := p.cfg.Paths.OutputDir
	paths, err := report.WriteResults(dir, out.Results())
	if err != nil {
		return nil, err
	}
	descPath := filepath.Join(dir, report.DescriptiveJSON)
	if err := report.WriteJSON(descPath, out); err != nil {
		return nil, err
	}
	p.output(append(paths, descPath)...)
	return out, nil
}

// RunResult is the outcome of a full run.
type RunResult struct {
	RunID       string
	Loads       []source.LoadResult
	Panel       *model.Panel
	Assignments []model.TreatmentAssignment
	Estimates   *EstimateOutput
}

// Run executes ingest → panel → treatment → estimate and writes the run summary
// and manifest. Only ErrNoResolvableInput and I/O or store failures abort.
func (p *Pipeline) Run(ctx context.Context, sources []string, req EstimateRequest) (*RunResult, error) {
	res := &RunResult{RunID: p.runID}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"ingest", func() (err error) {
			res.Loads, err = p.Ingest(ctx, sources)
			return err
		}},
		{"panel", func() (err error) {
			res.Panel, err = p.Panel(ctx)
			return err
		}},
		{"treatment", func() (err error) {
			if res.Assignments, err = p.Treat(ctx, res.Panel); err != nil {
				return err
			}
			return p.WritePanel(res.Panel)
		}},
		{"estimate", func() (err error) {
			res.Estimates, err = p.Estimate(res.Panel, req)
			return err
		}},
	}

	for _, s := range steps {
		if err := checkCtx(ctx); err != nil {
			return res, err
		}
		if err := p.track(s.name, s.fn); err != nil {
			// Record what happened before the failure.
			if finErr := p.Finish("run", treatmentInfo(res.Panel), nil); finErr != nil {
				zap.L().Error("pipeline: write run manifest", zap.Error(finErr))
			}
			return res, eris.Wrapf(err, "pipeline: %s", s.name)
		}
	}

	if err := p.Finish("run", treatmentInfo(res.Panel), map[string]any{"sources": sources}); err != nil {
		return res, err
	}
	return res, nil
}

func treatmentInfo(pl *model.Panel) *model.TreatmentInfo {
	if pl == nil {
		return nil
	}
	return pl.Treatment
}
