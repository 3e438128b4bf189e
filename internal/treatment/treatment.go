// Package treatment attaches AI exposure scores and difference-in-differences
// treatment flags to an assembled panel, and builds the sector exposure index
// from O*NET occupational data.
package treatment

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/model"
)

// Params fixes the treatment definition.
type Params struct {
	Threshold float64
	Cutoff    time.Time
	Level     string // exposure index level, recorded on the panel
	Summary   *model.RunSummary
}

// FirstPostYear is the first calendar year counted as post-treatment: the cutoff
// year itself when the cutoff falls on January 1st, otherwise the following year.
func FirstPostYear(cutoff time.Time) int {
	if cutoff.Month() == time.January && cutoff.Day() == 1 {
		return cutoff.Year()
	}
	return cutoff.Year() + 1
}

// Apply sets exposure, treated and post_period on every row of p and records the
// definition in p.Treatment. Firms with no score are TreatedUnknown and counted
// under unknown_treatment. Returns one assignment per firm, in firm key order.
func Apply(p *model.Panel, idx *Index, params Params) ([]model.TreatmentAssignment, error) {
	if p == nil {
		return nil, eris.New("treatment: nil panel")
	}
	if params.Threshold < 0 || params.Threshold > 100 {
		return nil, eris.Errorf("treatment: threshold %.2f outside 0-100", params.Threshold)
	}
	if params.Cutoff.IsZero() {
		return nil, eris.New("treatment: cutoff date not set")
	}
	log := zap.L().With(zap.String("component", "treatment"))

	// Rows are sorted by firm key, so the first row of each firm carries its sector.
	var assignments []model.TreatmentAssignment
	byFirm := make(map[string]int)
	for _, r := range p.Rows {
		if _, ok := byFirm[r.FirmKey]; ok {
			continue
		}
		a := model.TreatmentAssignment{FirmKey: r.FirmKey, Sector: r.Sector, Treated: model.TreatedUnknown}
		if v, src, ok := idx.Lookup(r.FirmKey, r.Sector); ok {
			a.ExposureScore = model.Float(v)
			a.Source = src
			a.Treated = model.TreatedNo
			if v >= params.Threshold {
				a.Treated = model.TreatedYes
			}
		}
		byFirm[r.FirmKey] = len(assignments)
		assignments = append(assignments, a)
	}

	standardize(assignments)

	info := &model.TreatmentInfo{
		Threshold:     params.Threshold,
		CutoffDate:    params.Cutoff.Format(config.CutoffLayout),
		FirstPostYear: FirstPostYear(params.Cutoff),
		Level:         params.Level,
	}
	for _, a := range assignments {
		switch a.Treated {
		case model.TreatedYes:
			info.Treated++
		case model.TreatedNo:
			info.Control++
		default:
			info.Unknown++
		}
	}

	for i := range p.Rows {
		row := &p.Rows[i]
		a := assignments[byFirm[row.FirmKey]]
		row.Exposure = a.ExposureScore
		row.ExposureZ = a.ExposureZ
		row.Treated = a.Treated
		row.PostPeriod = row.Year >= info.FirstPostYear
	}
	p.Treatment = info

	params.Summary.Add(model.StageTreatment, model.ReasonUnknownTreatment, info.Unknown)
	log.Info("assigned treatment",
		zap.Int("treated", info.Treated),
		zap.Int("control", info.Control),
		zap.Int("unknown", info.Unknown),
		zap.Int("first_post_year", info.FirstPostYear),
	)
	return assignments, nil
}

// standardize sets ExposureZ for every assignment with a score, using the mean and
// sample standard deviation across those firms. A constant score gives z = 0.
func standardize(as []model.TreatmentAssignment) {
	var scores []float64
	for _, a := range as {
		if a.ExposureScore != nil {
			scores = append(scores, *a.ExposureScore)
		}
	}
	if len(scores) == 0 {
		return
	}
	mean, std := stat.MeanStdDev(scores, nil)
	for i := range as {
		if as[i].ExposureScore == nil {
			continue
		}
		z := 0.0
		if len(scores) > 1 && std > 0 {
			z = (*as[i].ExposureScore - mean) / std
		}
		as[i].ExposureZ = model.Float(z)
	}
}

// WriteAssignmentsCSV writes one row per firm: key, sector, score, z, source, treated.
func WriteAssignmentsCSV(path string, as []model.TreatmentAssignment) error {
	records := [][]string{{"firm_key", "sector", "exposure_score", "exposure_z", "exposure_source", "treated"}}
	for _, a := range as {
		records = append(records, []string{
			a.FirmKey, a.Sector, optional(a.ExposureScore), optional(a.ExposureZ), a.Source, a.Treated.String(),
		})
	}
	return writeRecords(path, records)
}
