package source

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/model"
	"github.com/sells-group/esg-research/pkg/edgar"
)

// Annual report forms counted for AI mentions.
var annualForms = []string{"10-K", "10-K/A"}

// EDGARAI counts AI-related keywords in each roster firm's annual reports.
// One 10-K per fiscal year is used: an original 10-K is preferred over an
// amendment, and the latest filing wins among equals.
type EDGARAI struct {
	cfg config.EDGARConfig
}

func (e *EDGARAI) Name() string { return NameEDGARAI }
func (e *EDGARAI) Kind() Kind   { return KindAPI }

func (e *EDGARAI) Load(ctx context.Context, env Env) ([]model.RawRecord, error) {
	if env.EDGAR == nil {
		return nil, eris.Wrap(errNotConfigured, "source edgar_ai: no EDGAR client")
	}
	if env.Roster == nil {
		return nil, eris.New("source edgar_ai: no roster")
	}

	var firms []model.Firm
	for _, f := range env.Roster.Firms() {
		if f.CIK != "" {
			firms = append(firms, f)
		}
	}
	if len(firms) == 0 {
		zap.L().Warn("edgar_ai: no roster firms have a CIK; run roster build with EDGAR enrichment")
		return nil, nil
	}

	keywords := e.cfg.Keywords
	if len(keywords) == 0 {
		keywords = edgar.DefaultKeywords
	}
	counter := edgar.NewCounter(keywords)
	limit := e.cfg.Concurrency
	if limit <= 0 {
		limit = 4
	}

	log := zap.L().With(zap.String("component", "source.edgar_ai"))
	log.Info("counting AI mentions in 10-K filings",
		zap.Int("firms", len(firms)),
		zap.Int("start_year", e.cfg.StartYear),
		zap.Int("concurrency", limit),
	)

	results := make([][]model.RawRecord, len(firms))
	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range firms {
		g.Go(func() error {
			recs, err := e.loadFirm(gctx, env.EDGAR, counter, f)
			if err != nil {
				// a context error means the whole load is cancelled
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("edgar_ai: firm skipped", zap.String("firm_key", f.Key), zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "source edgar_ai: load")
	}
	env.Summary.Add(model.StageIngest, model.ReasonFetchError, failed)

	var out []model.RawRecord
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, nil
}

func (e *EDGARAI) loadFirm(ctx context.Context, client edgar.Client, counter *edgar.Counter, f model.Firm) ([]model.RawRecord, error) {
	sub, err := client.Submissions(ctx, f.CIK)
	if err != nil {
		return nil, err
	}

	var out []model.RawRecord
	for _, filing := range annualReports(sub.Filings(e.cfg.StartYear, annualForms...)) {
		doc, err := client.Document(ctx, f.CIK, filing)
		if err != nil {
			return nil, eris.Wrapf(err, "filing %s", filing.AccessionNumber)
		}
		text, err := edgar.StripMarkup(doc)
		if err != nil {
			return nil, eris.Wrapf(err, "filing %s", filing.AccessionNumber)
		}
		counts := counter.Count(text)

		base := model.RawRecord{
			Ticker:     f.Ticker,
			CIK:        f.CIK,
			Name:       f.Name,
			Year:       filing.FiscalYear(),
			Source:     NameEDGARAI,
			Confidence: model.ConfidenceVerified,
		}
		mentions := base
		mentions.Metric = model.MetricAIMentions
		mentions.Value = model.Float(float64(counts.Total))
		intensity := base
		intensity.Metric = model.MetricAIIntensity
		intensity.Value = model.Float(counts.Intensity())
		out = append(out, mentions, intensity)
	}
	return out, nil
}

// annualReports keeps one filing per fiscal year, ordered by year.
func annualReports(filings []edgar.Filing) []edgar.Filing {
	best := make(map[int]edgar.Filing)
	for _, f := range filings {
		y := f.FiscalYear()
		cur, ok := best[y]
		if !ok || betterAnnual(f, cur) {
			best[y] = f
		}
	}
	out := make([]edgar.Filing, 0, len(best))
	for _, f := range best {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiscalYear() < out[j].FiscalYear() })
	return out
}

func betterAnnual(a, b edgar.Filing) bool {
	aOrig, bOrig := a.Form == "10-K", b.Form == "10-K"
	if aOrig != bOrig {
		return aOrig
	}
	return a.FilingDate.After(b.FilingDate)
}
