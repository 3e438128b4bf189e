package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/model"
)

func TestCDP_Load(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cdp.csv", `company_name,ticker_symbol,accounting_year,reported_scope_1_metric_tonnes_co2e,estimated_scope_1_metric_tonnes_co2e,reported_scope_2_metric_tonnes_co2e,scope_2_market
Microsoft Corp,MSFT US,2021,"118,100",,"6,000,000",
Apple Inc,AAPL US,2021,,55000,n/a,3000
Bad Co,BAD US,2021,abc,,,
No Year Inc,NY US,,1,,,
`)
	summary := model.NewRunSummary("test")
	c := &CDP{cfg: config.SourceConfig{Path: path}}

	recs, err := c.Load(context.Background(), Env{Summary: summary})
	require.NoError(t, err)
	require.Len(t, recs, 4)

	msft := byMetric(recs[:2])
	assert.Equal(t, "MSFT", msft[model.MetricScope1].Ticker)
	assert.Equal(t, "Microsoft Corp", msft[model.MetricScope1].Name)
	assert.InDelta(t, 118100, *msft[model.MetricScope1].Value, 1e-9)
	assert.InDelta(t, 6e6, *msft[model.MetricScope2].Value, 1e-9)
	assert.Equal(t, model.ConfidenceSelfReported, msft[model.MetricScope2].Confidence)

	aapl := byMetric(recs[2:])
	assert.InDelta(t, 55000, *aapl[model.MetricScope1].Value, 1e-9)
	assert.Equal(t, model.ConfidenceEstimated, aapl[model.MetricScope1].Confidence)
	assert.InDelta(t, 3000, *aapl[model.MetricScope2Market].Value, 1e-9)
	assert.Equal(t, model.ConfidenceSelfReported, aapl[model.MetricScope2Market].Confidence)
	_, hasScope2 := aapl[model.MetricScope2]
	assert.False(t, hasScope2)

	assert.Equal(t, 2, summary.Count(model.StageIngest, model.ReasonParseError))
}

func TestESGRatings_Load(t *testing.T) {
	path := writeFile(t, t.TempDir(), "esg.csv", `Symbol,Security,year,total_esg,environment_score,social_score,governance_score,msci_rating
MSFT,Microsoft,2022,15.2,1.1,,3.3,AAA
AAPL,Apple,2022,,,,,aa
XOM,Exxon,2022,,,,,
`)
	e := &ESGRatings{cfg: config.SourceConfig{Path: path}}

	recs, err := e.Load(context.Background(), Env{})
	require.NoError(t, err)
	require.Len(t, recs, 4)

	msft := byMetric(recs[:3])
	assert.InDelta(t, 15.2, *msft[model.MetricESG].Value, 1e-9)
	assert.InDelta(t, 1.1, *msft[model.MetricE].Value, 1e-9)
	assert.InDelta(t, 3.3, *msft[model.MetricG].Value, 1e-9)

	assert.Equal(t, "AAPL", recs[3].Ticker)
	assert.Equal(t, model.MetricESG, recs[3].Metric)
	assert.InDelta(t, 6, *recs[3].Value, 1e-9)
	assert.Equal(t, model.ConfidenceEstimated, recs[3].Confidence)
}

func TestLetterScore(t *testing.T) {
	for letter, want := range map[string]float64{"CCC": 1, "b": 2, "BB": 3, "BBB": 4, "A": 5, " AA ": 6, "AAA": 7} {
		got, ok := LetterScore(letter)
		assert.True(t, ok, letter)
		assert.InDelta(t, want, got, 1e-9, letter)
	}
	_, ok := LetterScore("A+")
	assert.False(t, ok)
}

func TestFinancials_Load(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fin.csv", `cik,fiscal_year,revenue,annual_return
0000789019,FY2022,"198,270",0.12
`)
	f := &Financials{cfg: config.SourceConfig{Path: path}}

	recs, err := f.Load(context.Background(), Env{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	got := byMetric(recs)
	assert.Equal(t, "0000789019", got[model.MetricRevenue].CIK)
	assert.Equal(t, 2022, got[model.MetricRevenue].Year)
	assert.InDelta(t, 198270, *got[model.MetricRevenue].Value, 1e-9)
	assert.InDelta(t, 0.12, *got[model.MetricStockReturn].Value, 1e-9)
	assert.Equal(t, model.ConfidenceVerified, got[model.MetricStockReturn].Confidence)
}

func TestWideLayout_MissingColumns(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no identifiers", "year,revenue\n2022,1\n", "no ticker, cik or name column"},
		{"no year", "ticker,revenue\nMSFT,1\n", "no year column"},
		{"no metrics", "ticker,year\nMSFT,2022\n", "no metric columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".csv", tt.content)
			_, err := financialsLayout.load(context.Background(), Env{}, config.SourceConfig{Path: path})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestManual_Load(t *testing.T) {
	path := writeFile(t, t.TempDir(), "manual.csv", `ticker,cik,name,year,metric,value,confidence
MSFT,,,2021,Scope 2 Emissions,"7,100,000",verified
,,Apple Inc,2022,esg_score,NA,
XOM,,,2021,revenue,,
XOM,,,2021,,5,
`)
	summary := model.NewRunSummary("test")
	m := &Manual{cfg: config.SourceConfig{Path: path}}

	recs, err := m.Load(context.Background(), Env{Summary: summary})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, model.MetricScope2, recs[0].Metric)
	assert.InDelta(t, 7.1e6, *recs[0].Value, 1e-9)
	assert.Equal(t, model.ConfidenceVerified, recs[0].Confidence)
	assert.Equal(t, model.SourceManual, recs[0].Source)
	assert.Equal(t, 2, recs[0].Line)

	assert.Equal(t, "Apple Inc", recs[1].Name)
	assert.Nil(t, recs[1].Value)
	assert.Equal(t, model.ConfidenceSelfReported, recs[1].Confidence)

	assert.Equal(t, 2, summary.Count(model.StageIngest, model.ReasonParseError))
}

func TestManual_LineNumbersAfterBlankRows(t *testing.T) {
	path := writeFile(t, t.TempDir(), "manual.csv", "ticker,year,metric,value\nMSFT,2021,scope1,1\n\n,,,\nXOM,2021,scope1,2\n")
	recs, err := (&Manual{cfg: config.SourceConfig{Path: path}}).Load(context.Background(), Env{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[0].Line)
	assert.Equal(t, 5, recs[1].Line)
}

func TestManual_RequiresLongFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "manual.csv", "ticker,year,scope2\nMSFT,2021,1\n")
	_, err := (&Manual{cfg: config.SourceConfig{Path: path}}).Load(context.Background(), Env{})
	require.Error(t, err)
}
