package source

import (
	"context"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/model"
)

// Financials loads a firm-year financial export: revenue and annual stock return.
type Financials struct {
	cfg config.SourceConfig
}

func (f *Financials) Name() string { return NameFinancials }
func (f *Financials) Kind() Kind   { return KindFile }

var financialsLayout = wideLayout{
	source:     NameFinancials,
	confidence: model.ConfidenceVerified,
	columns: []wideColumn{
		{metric: model.MetricRevenue, cols: []string{"revenue", "revenues", "total_revenue", "sales"}},
		{metric: model.MetricStockReturn, cols: []string{"stock_return", "annual_return", "return", "ret"}},
	},
}

func (f *Financials) Load(ctx context.Context, env Env) ([]model.RawRecord, error) {
	return financialsLayout.load(ctx, env, f.cfg)
}
