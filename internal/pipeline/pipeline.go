// Package pipeline wires the research stages together: roster, ingest, exposure
// index, panel assembly, treatment and estimation.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/fetcher"
	"github.com/sells-group/esg-research/internal/model"
	"github.com/sells-group/esg-research/internal/report"
	"github.com/sells-group/esg-research/internal/store"
	"github.com/sells-group/esg-research/pkg/edgar"
)

// Stage statuses.
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// StageResult records one stage of a run.
type StageResult struct {
	Name     string `json:"name" yaml:"name"`
	Status   string `json:"status" yaml:"status"`
	Duration int64  `json:"duration_ms" yaml:"duration_ms"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Pipeline orchestrates the research stages for one run.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	fetcher fetcher.Fetcher
	edgar   edgar.Client

	runID   string
	summary *model.RunSummary
	started time.Time
	stages  []StageResult
	outputs []string
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFetcher sets the HTTP fetcher used for URL-backed source files and O*NET downloads.
func WithFetcher(f fetcher.Fetcher) Option { return func(p *Pipeline) { p.fetcher = f } }

// WithEDGAR sets the SEC EDGAR client.
func WithEDGAR(c edgar.Client) Option { return func(p *Pipeline) { p.edgar = c } }

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option { return func(p *Pipeline) { p.runID = id } }

// New creates a Pipeline. st may be nil for stages that do not touch the store.
func New(cfg *config.Config, st store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, store: st, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	if p.runID == "" {
		p.runID = report.NewRunID()
	}
	p.summary = model.NewRunSummary(p.runID)
	p.started = p.now()
	return p
}

// RunID returns the run identifier.
func (p *Pipeline) RunID() string { return p.runID }

// Summary returns the run's drop summary.
func (p *Pipeline) Summary() *model.RunSummary { return p.summary }

// Stages returns the stages run so far, in order.
func (p *Pipeline) Stages() []StageResult { return append([]StageResult(nil), p.stages...) }

// Outputs returns the files written so far, in order.
func (p *Pipeline) Outputs() []string { return append([]string(nil), p.outputs...) }

// OutputDir returns the configured output directory.
func (p *Pipeline) OutputDir() string { return p.cfg.Paths.OutputDir }

func (p *Pipeline) output(paths ...string) { p.outputs = append(p.outputs, paths...) }

func (p *Pipeline) requireStore() error {
	if p.store == nil {
		return eris.New("pipeline: no store configured")
	}
	return nil
}

// track runs fn as a named stage and records its outcome.
func (p *Pipeline) track(name string, fn func() error) error {
	log := zap.L().With(zap.String("run_id", p.runID), zap.String("stage", name))
	log.Info("pipeline: starting stage")

	start := p.now()
	err := fn()
	res := StageResult{Name: name, Status: StatusComplete, Duration: p.now().Sub(start).Milliseconds()}
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		log.Error("pipeline: stage failed", zap.Int64("duration_ms", res.Duration), zap.Error(err))
	} else {
		log.Info("pipeline: stage complete", zap.Int64("duration_ms", res.Duration))
	}
	p.stages = append(p.stages, res)
	return err
}

// Finish writes summary.json and run.yaml for command and logs the drop summary.
func (p *Pipeline) Finish(command string, treatment *model.TreatmentInfo, extra map[string]any) error {
	dir := p.cfg.Paths.OutputDir
	summaryPath, err := report.WriteSummary(dir, p.summary)
	if err != nil {
		return err
	}
	p.output(summaryPath)

	params := map[string]any{
		"panel":     p.cfg.Panel,
		"treatment": p.cfg.Treatment,
		"estimate":  p.cfg.Estimate,
		"resolve":   p.cfg.Resolve,
		"edgar": map[string]any{
			"start_year": p.cfg.EDGAR.StartYear,
			"keywords":   p.cfg.EDGAR.Keywords,
		},
	}
	for k, v := range extra {
		params[k] = v
	}

	manifestPath := filepath.Join(dir, report.RunYAML)
	m := report.Manifest{
		RunID:      p.runID,
		Command:    command,
		StartedAt:  p.started.UTC(),
		FinishedAt: p.now().UTC(),
		Parameters: params,
		Treatment:  treatment,
		Sources:    p.cfg.Sources,
		Stages:     p.stages,
		Outputs:    append(p.Outputs(), manifestPath),
		Summary:    p.summary.Entries(),
	}
	if _, err := report.WriteManifest(dir, m); err != nil {
		return err
	}
	p.output(manifestPath)

	log := zap.L().With(zap.String("run_id", p.runID))
	for _, e := range m.Summary {
		log.Info("pipeline: dropped",
			zap.String("stage", string(e.Stage)),
			zap.String("reason", string(e.Reason)),
			zap.Int("count", e.Count),
			zap.String("unit", string(e.Unit)),
		)
	}
	return nil
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func checkCtx(ctx context.Context) error {
	return ctx.Err()
}
