package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/fetcher"
	"github.com/sells-group/esg-research/internal/model"
)

// Identifier and period column aliases shared by the firm-year sources.
var (
	tickerCols = []string{"ticker", "symbol", "ticker_symbol", "ticker symbol", "tickers"}
	cikCols    = []string{"cik", "cik_str", "cik number"}
	nameCols   = []string{"company_name", "company", "name", "security", "organization", "account_name", "issuer"}
	yearCols   = []string{"year", "accounting_year", "reporting_year", "fiscal_year", "fy", "as_of", "date"}
)

// wideColumn maps one or more raw columns to a metric. Fallback columns are
// read when the primary ones are blank and mark the value as estimated. Derive,
// when set, is the last resort for a blank cell.
type wideColumn struct {
	metric   model.Metric
	cols     []string
	fallback []string
	derive   func(t *fetcher.Table, row []string) *float64
}

// wideLayout describes a firm-year table with one column per metric.
type wideLayout struct {
	source     string
	confidence model.Confidence
	columns    []wideColumn
	ticker     func(string) string // optional ticker cleanup
}

// load reads a wide firm-year table into long RawRecords. Blank cells produce
// no record.
func (l wideLayout) load(ctx context.Context, env Env, sc config.SourceConfig) ([]model.RawRecord, error) {
	t, err := openTable(ctx, env, l.source, sc)
	if err != nil {
		return nil, err
	}
	return l.parse(t, env, sc)
}

func (l wideLayout) parse(t *fetcher.Table, env Env, sc config.SourceConfig) ([]model.RawRecord, error) {
	if !t.Has(tickerCols...) && !t.Has(cikCols...) && !t.Has(nameCols...) {
		return nil, eris.Errorf("source %s: no ticker, cik or name column in %v", l.source, t.Header)
	}
	if !t.Has(yearCols...) {
		return nil, eris.Errorf("source %s: no year column in %v", l.source, t.Header)
	}
	present := false
	for _, c := range l.columns {
		if t.Has(c.cols...) || t.Has(c.fallback...) || c.derive != nil {
			present = true
			break
		}
	}
	if !present {
		return nil, eris.Errorf("source %s: no metric columns in %v", l.source, t.Header)
	}

	bad := rowCounter{source: l.source}
	var out []model.RawRecord
	for i, row := range t.Rows {
		line := t.Line(i)
		ticker := t.Get(row, tickerCols...)
		if l.ticker != nil {
			ticker = l.ticker(ticker)
		}
		cik := t.Get(row, cikCols...)
		name := t.Get(row, nameCols...)
		year, okYear := parseYear(t.Get(row, yearCols...))
		if (ticker == "" && cik == "" && name == "") || !okYear {
			bad.skip(line)
			continue
		}

		var recs []model.RawRecord
		rowOK := true
		for _, c := range l.columns {
			conf := l.confidence
			v, ok := parseValue(t.Get(row, c.cols...))
			if ok && v == nil && len(c.fallback) > 0 {
				v, ok = parseValue(t.Get(row, c.fallback...))
				conf = model.ConfidenceEstimated
			}
			if ok && v == nil && c.derive != nil {
				v = c.derive(t, row)
				conf = model.ConfidenceEstimated
			}
			if !ok {
				rowOK = false
				break
			}
			if v == nil {
				continue
			}
			recs = append(recs, model.RawRecord{
				Ticker:     ticker,
				CIK:        cik,
				Name:       name,
				Year:       year,
				Metric:     c.metric,
				Value:      v,
				Source:     l.source,
				Confidence: conf,
				Line:       line,
			})
		}
		if !rowOK {
			bad.skip(line)
			continue
		}
		out = append(out, recs...)
	}
	bad.flush(env)
	return out, nil
}

// firstToken keeps the first whitespace-separated token: "AAPL US Equity" → "AAPL".
func firstToken(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
