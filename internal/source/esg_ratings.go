package source

import (
	"context"
	"strings"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/fetcher"
	"github.com/sells-group/esg-research/internal/model"
)

// msciScale maps MSCI letter ratings onto 1 (CCC) … 7 (AAA).
var msciScale = map[string]float64{
	"CCC": 1,
	"B":   2,
	"BB":  3,
	"BBB": 4,
	"A":   5,
	"AA":  6,
	"AAA": 7,
}

// LetterScore converts an MSCI letter rating to its numeric step.
func LetterScore(s string) (float64, bool) {
	v, ok := msciScale[strings.ToUpper(strings.TrimSpace(s))]
	return v, ok
}

// ESGRatings loads third-party ESG rating exports: a total score and the
// E, S and G pillars. When a row has no numeric total, an MSCI letter grade
// is converted with LetterScore.
type ESGRatings struct {
	cfg config.SourceConfig
}

func (e *ESGRatings) Name() string { return NameESGRatings }
func (e *ESGRatings) Kind() Kind   { return KindFile }

var esgLetterCols = []string{"msci_rating", "msci", "rating", "letter_rating"}

var esgLayout = wideLayout{
	source:     NameESGRatings,
	confidence: model.ConfidenceEstimated,
	columns: []wideColumn{
		{
			metric: model.MetricESG,
			cols:   []string{"esg_score", "total_esg", "totalesg", "esg", "score"},
			derive: func(t *fetcher.Table, row []string) *float64 {
				if v, ok := LetterScore(t.Get(row, esgLetterCols...)); ok {
					return &v
				}
				return nil
			},
		},
		{metric: model.MetricE, cols: []string{"e_score", "environment_score", "environmental_score", "e_pillar"}},
		{metric: model.MetricS, cols: []string{"s_score", "social_score", "s_pillar"}},
		{metric: model.MetricG, cols: []string{"g_score", "governance_score", "g_pillar"}},
	},
}

func (e *ESGRatings) Load(ctx context.Context, env Env) ([]model.RawRecord, error) {
	return esgLayout.load(ctx, env, e.cfg)
}
