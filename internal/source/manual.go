package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/model"
)

// Manual loads hand-entered values in long format
// (ticker, cik, name, year, metric, value, confidence). It carries values
// copied from sustainability reports and corrections to other sources; an
// explicit NA records a known-missing value.
type Manual struct {
	cfg config.SourceConfig
}

func (m *Manual) Name() string { return NameManual }
func (m *Manual) Kind() Kind   { return KindFile }

func (m *Manual) Load(ctx context.Context, env Env) ([]model.RawRecord, error) {
	t, err := openTable(ctx, env, NameManual, m.cfg)
	if err != nil {
		return nil, err
	}
	if !t.Has("metric", "metric_name") || !t.Has("value") || !t.Has(yearCols...) {
		return nil, eris.Errorf("source manual: need year, metric and value columns, got %v", t.Header)
	}

	bad := rowCounter{source: NameManual}
	var out []model.RawRecord
	for i, row := range t.Rows {
		line := t.Line(i)
		rec := model.RawRecord{
			Ticker:     t.Get(row, tickerCols...),
			CIK:        t.Get(row, cikCols...),
			Name:       t.Get(row, nameCols...),
			Metric:     model.NormalizeMetric(t.Get(row, "metric", "metric_name")),
			Source:     NameManual,
			Confidence: model.ConfidenceSelfReported,
			Line:       line,
		}
		if c := t.Get(row, "confidence"); c != "" {
			rec.Confidence = model.ParseConfidence(c)
		}
		year, okYear := parseYear(t.Get(row, yearCols...))
		raw := t.Get(row, "value")
		v, okValue := parseValue(raw)
		if (rec.Ticker == "" && rec.CIK == "" && rec.Name == "") || rec.Metric == "" || raw == "" || !okYear || !okValue {
			bad.skip(line)
			continue
		}
		rec.Year = year
		rec.Value = v
		out = append(out, rec)
	}
	bad.flush(env)
	return out, nil
}
