package estimate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/esg-research/internal/model"
)

// SubgroupResult is one per-group estimate.
type SubgroupResult struct {
	Group    string    `json:"group"`
	Estimate *Estimate `json:"estimate,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Sectors returns the distinct non-empty sector labels of the panel, sorted.
func Sectors(p *model.Panel) []string {
	if p == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range p.Rows {
		s := strings.TrimSpace(r.Sector)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// BySector runs opts.Spec once per sector. Sectors too small to estimate are
// recorded with their error rather than dropped.
func BySector(p *model.Panel, opts Options, summary *model.RunSummary) []SubgroupResult {
	sectors := Sectors(p)
	out := make([]SubgroupResult, 0, len(sectors))
	for _, s := range sectors {
		o := opts
		o.Sector = s
		est, err := Run(p, o, summary)
		r := SubgroupResult{Group: s}
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Estimate = est
		}
		out = append(out, r)
	}
	return out
}

// Window is the mean of the event-study coefficients for a span of years.
type Window struct {
	Years []int   `json:"years"`
	Mean  float64 `json:"mean"`
}

// Decomposition splits an event-study path into a pre-period baseline, an
// anticipation window before the break and the post-break period.
type Decomposition struct {
	Metric            model.Metric `json:"metric"`
	AnticipationStart int          `json:"anticipation_start"`
	PostStart         int          `json:"post_start_year"`
	Pre               Window       `json:"pre"`
	Anticipation      Window       `json:"anticipation"`
	Post              Window       `json:"post"`
	// Total is post − pre, AnticipationEffect is anticipation − pre and
	// Acceleration is post − anticipation.
	Total              float64 `json:"total"`
	AnticipationEffect float64 `json:"anticipation_effect"`
	Acceleration       float64 `json:"acceleration"`
}

// Decompose averages the event-study coefficients of est over three windows:
// years before anticipationStart, years from anticipationStart up to the first
// post year, and post years. The omitted reference year carries no coefficient
// and is in no window. An empty window has mean zero.
func Decompose(est *Estimate, anticipationStart int) (*Decomposition, error) {
	if est == nil || est.Spec != SpecEvent {
		return nil, eris.New("estimate: decomposition needs an event-study estimate")
	}
	if anticipationStart > est.PostStart {
		return nil, eris.Errorf("estimate: anticipation start %d after first post year %d", anticipationStart, est.PostStart)
	}

	var pre, antic, post []float64
	d := &Decomposition{Metric: est.Metric, AnticipationStart: anticipationStart, PostStart: est.PostStart}
	for _, c := range est.Coefs {
		year, ok := eventYear(c.Term)
		if !ok {
			continue
		}
		switch {
		case year < anticipationStart:
			pre = append(pre, c.Coef)
			d.Pre.Years = append(d.Pre.Years, year)
		case year < est.PostStart:
			antic = append(antic, c.Coef)
			d.Anticipation.Years = append(d.Anticipation.Years, year)
		default:
			post = append(post, c.Coef)
			d.Post.Years = append(d.Post.Years, year)
		}
	}
	d.Pre.Mean = mean(pre)
	d.Anticipation.Mean = mean(antic)
	d.Post.Mean = mean(post)
	d.Total = d.Post.Mean - d.Pre.Mean
	d.AnticipationEffect = d.Anticipation.Mean - d.Pre.Mean
	d.Acceleration = d.Post.Mean - d.Anticipation.Mean
	return d, nil
}

func eventYear(term string) (int, bool) {
	rest, ok := strings.CutPrefix(term, "treated_x_")
	if !ok {
		return 0, false
	}
	y, err := strconv.Atoi(rest)
	return y, err == nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}
