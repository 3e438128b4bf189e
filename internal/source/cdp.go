package source

import (
	"context"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/model"
)

// CDP loads CDP climate-disclosure emissions. Reported values are
// self-reported; where a release only carries CDP's estimate, the estimate is
// used and marked estimated. Location-based Scope 2 is scope2_emissions, the
// market-based figure keeps its own metric.
type CDP struct {
	cfg config.SourceConfig
}

func (c *CDP) Name() string { return NameCDP }
func (c *CDP) Kind() Kind   { return KindFile }

var cdpLayout = wideLayout{
	source:     NameCDP,
	confidence: model.ConfidenceSelfReported,
	ticker:     firstToken,
	columns: []wideColumn{
		{
			metric:   model.MetricScope1,
			cols:     []string{"scope_1", "scope1", "reported_scope_1_metric_tonnes_co2e", "scope_1_metric_tonnes_co2e"},
			fallback: []string{"estimated_scope_1_metric_tonnes_co2e", "estimated_scope_1"},
		},
		{
			metric: model.MetricScope2,
			cols: []string{
				"scope_2", "scope2", "scope_2_location", "scope2_location",
				"reported_scope_2_metric_tonnes_co2e", "scope_2_metric_tonnes_co2e",
			},
			fallback: []string{"estimated_scope_2_metric_tonnes_co2e", "estimated_scope_2"},
		},
		{
			metric: model.MetricScope2Market,
			cols:   []string{"scope_2_market", "scope2_market", "scope_2_market_metric_tonnes_co2e"},
		},
		{
			metric: model.MetricScope3,
			cols:   []string{"scope_3", "scope3", "scope_3_metric_tonnes_co2e"},
		},
	},
}

func (c *CDP) Load(ctx context.Context, env Env) ([]model.RawRecord, error) {
	return cdpLayout.load(ctx, env, c.cfg)
}
