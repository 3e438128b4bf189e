package treatment

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/esg-research/internal/fetcher"
)

// O*NET element weights: how far each ability or work activity can be performed
// by current AI systems (0 = not at all, 1 = fully).
var (
	abilityWeights = map[string]float64{
		"1.A.1.a.1": 0.90, // oral comprehension
		"1.A.1.a.2": 0.95, // written comprehension
		"1.A.1.a.3": 0.85, // oral expression
		"1.A.1.a.4": 0.95, // written expression
		"1.A.1.b.4": 0.85, // deductive reasoning
		"1.A.1.b.5": 0.80, // inductive reasoning
		"1.A.1.c.1": 0.90, // mathematical reasoning
		"1.A.1.c.2": 0.95, // number facility
		"1.A.1.b.6": 0.85, // information ordering
		"1.A.1.b.7": 0.75, // category flexibility
		"1.A.1.b.1": 0.70, // fluency of ideas
		"1.A.1.b.2": 0.50, // originality
		"1.A.1.b.3": 0.65, // problem sensitivity
		"1.A.2.a.2": 0.80, // perceptual speed
		"1.A.2.b.1": 0.60, // flexibility of closure
		"1.A.2.c.1": 0.50, // speed of closure
		"1.A.1.d.1": 0.90, // memorization
		"1.A.2.a.1": 0.40, // selective attention
		"1.A.3.a.1": 0.20, // arm-hand steadiness
		"1.A.4.a.4": 0.05, // stamina
	}
	activityWeights = map[string]float64{
		"4.A.1.a.1": 0.85, // getting information
		"4.A.1.b.1": 0.70, // identifying objects, actions, events
		"4.A.2.a.2": 0.90, // processing information
		"4.A.2.a.4": 0.90, // analyzing data or information
		"4.A.2.b.1": 0.70, // making decisions and solving problems
		"4.A.2.b.2": 0.55, // thinking creatively
		"4.A.2.b.4": 0.60, // developing objectives and strategies
		"4.A.2.b.5": 0.80, // scheduling work and activities
		"4.A.3.a.1": 0.80, // interacting with computers
		"4.A.3.a.2": 0.70, // drafting and specifying technical devices
		"4.A.3.a.3": 0.70, // documenting information
		"4.A.3.b.1": 0.90, // working with computers
		"4.A.3.b.6": 0.95, // documenting/recording information
		"4.A.3.a.4": 0.40, // repairing electronic equipment
		"4.A.4.a.1": 0.10, // general physical activities
		"4.A.4.b.4": 0.30, // handling objects
	}

	// SOC major group → GICS sector. Unlisted groups are left out of every sector.
	socToGICS = map[string]string{
		"11": "Industrials",
		"13": "Financials",
		"15": "Information Technology",
		"17": "Industrials",
		"19": "Health Care",
		"21": "Health Care",
		"23": "Financials",
		"25": "Consumer Discretionary",
		"27": "Communication Services",
		"29": "Health Care",
		"31": "Health Care",
		"33": "Industrials",
		"35": "Consumer Discretionary",
		"37": "Real Estate",
		"39": "Consumer Discretionary",
		"41": "Consumer Discretionary",
		"43": "Industrials",
		"45": "Consumer Staples",
		"47": "Industrials",
		"49": "Industrials",
		"51": "Materials",
		"53": "Industrials",
		"55": "Industrials",
	}

	// Sectors with no SOC mapping get a fixed score from typical workforce mix.
	sectorOverrides = map[string]float64{
		"Energy":    45.0,
		"Utilities": 42.0,
	}
)

// O*NET text file names, in the order they are tried: the renamed copies kept
// under data/ai_exposure first, then the names used inside the O*NET database archive.
var (
	AbilitiesFiles   = []string{"onet_abilities.txt", "Abilities.txt"}
	ActivitiesFiles  = []string{"onet_work_activities.txt", "Work Activities.txt"}
	OccupationsFiles = []string{"onet_occupation_data.txt", "Occupation Data.txt"}
)

// Occupation is one O*NET occupation's AI exposure.
type Occupation struct {
	Code     string
	Title    string
	Sector   string
	Ability  *float64 // importance-weighted mean of ability weights
	Activity *float64 // importance-weighted mean of activity weights
	Raw      float64  // mean of the available components
	Score    float64  // Raw min-max scaled to 0–100 across occupations
}

type weighted struct {
	sumW, sumIW float64
}

func (w weighted) mean() *float64 {
	if w.sumW == 0 {
		return nil
	}
	v := w.sumIW / w.sumW
	return &v
}

// importanceWeighted returns, per occupation, sum(importance × weight) / sum(importance)
// over the rows of t whose element has a weight. Only importance ("IM") scale rows count.
func importanceWeighted(t *fetcher.Table, weights map[string]float64) (map[string]*float64, error) {
	for _, col := range []string{"O*NET-SOC Code", "Element ID", "Data Value"} {
		if !t.Has(col) {
			return nil, eris.Errorf("treatment: o*net file missing column %q", col)
		}
	}
	acc := make(map[string]weighted)
	for _, row := range t.Rows {
		if t.Has("Scale ID") && t.Get(row, "Scale ID") != "IM" {
			continue
		}
		weight, ok := weights[t.Get(row, "Element ID")]
		if !ok {
			continue
		}
		imp, err := strconv.ParseFloat(t.Get(row, "Data Value"), 64)
		if err != nil {
			continue
		}
		code := t.Get(row, "O*NET-SOC Code")
		w := acc[code]
		w.sumW += imp
		w.sumIW += imp * weight
		acc[code] = w
	}
	out := make(map[string]*float64, len(acc))
	for code, w := range acc {
		if m := w.mean(); m != nil {
			out[code] = m
		}
	}
	return out, nil
}

// BuildOccupations scores every occupation that has ability or activity data.
// titles may be nil. The result is sorted by code.
func BuildOccupations(abilities, activities *fetcher.Table, titles map[string]string) ([]Occupation, error) {
	ab, err := importanceWeighted(abilities, abilityWeights)
	if err != nil {
		return nil, eris.Wrap(err, "treatment: score abilities")
	}
	act, err := importanceWeighted(activities, activityWeights)
	if err != nil {
		return nil, eris.Wrap(err, "treatment: score work activities")
	}

	codes := make(map[string]bool, len(ab)+len(act))
	for c := range ab {
		codes[c] = true
	}
	for c := range act {
		codes[c] = true
	}
	if len(codes) == 0 {
		return nil, eris.New("treatment: no o*net occupations with weighted elements")
	}

	occs := make([]Occupation, 0, len(codes))
	lo, hi := math.Inf(1), math.Inf(-1)
	for code := range codes {
		o := Occupation{Code: code, Title: titles[code], Ability: ab[code], Activity: act[code]}
		switch {
		case o.Ability != nil && o.Activity != nil:
			o.Raw = (*o.Ability + *o.Activity) / 2
		case o.Ability != nil:
			o.Raw = *o.Ability
		default:
			o.Raw = *o.Activity
		}
		if len(code) >= 2 {
			o.Sector = socToGICS[code[:2]]
		}
		lo = math.Min(lo, o.Raw)
		hi = math.Max(hi, o.Raw)
		occs = append(occs, o)
	}
	for i := range occs {
		if hi > lo {
			occs[i].Score = (occs[i].Raw - lo) / (hi - lo) * 100
		}
	}
	sort.Slice(occs, func(i, j int) bool { return occs[i].Code < occs[j].Code })
	return occs, nil
}

// BuildSectors averages occupation scores by GICS sector (unweighted) and adds the
// fixed overrides for sectors no occupation maps to.
func BuildSectors(occs []Occupation) []SectorExposure {
	type group struct{ scores, ability, activity []float64 }
	groups := make(map[string]*group)
	for _, o := range occs {
		if o.Sector == "" {
			continue
		}
		g := groups[o.Sector]
		if g == nil {
			g = &group{}
			groups[o.Sector] = g
		}
		g.scores = append(g.scores, o.Score)
		if o.Ability != nil {
			g.ability = append(g.ability, *o.Ability)
		}
		if o.Activity != nil {
			g.activity = append(g.activity, *o.Activity)
		}
	}

	out := make([]SectorExposure, 0, len(groups)+len(sectorOverrides))
	for sector, g := range groups {
		mean, std := stat.MeanStdDev(g.scores, nil)
		if len(g.scores) < 2 {
			std = 0
		}
		out = append(out, SectorExposure{
			Sector:      sector,
			Exposure:    mean,
			Std:         std,
			Occupations: len(g.scores),
			Ability:     meanOrZero(g.ability),
			Activity:    meanOrZero(g.activity),
		})
	}
	for sector, v := range sectorOverrides {
		if _, ok := groups[sector]; !ok {
			out = append(out, SectorExposure{Sector: sector, Exposure: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sector < out[j].Sector })
	return out
}

// BuildFromDir reads the O*NET text files in dir and returns occupation and
// sector exposures. The occupation titles file is optional.
func BuildFromDir(dir string) ([]Occupation, []SectorExposure, error) {
	log := zap.L().With(zap.String("component", "treatment.onet"))

	abilities, err := readONET(dir, AbilitiesFiles)
	if err != nil {
		return nil, nil, err
	}
	activities, err := readONET(dir, ActivitiesFiles)
	if err != nil {
		return nil, nil, err
	}

	titles := make(map[string]string)
	if occ, err := readONET(dir, OccupationsFiles); err == nil {
		for _, row := range occ.Rows {
			titles[occ.Get(row, "O*NET-SOC Code")] = occ.Get(row, "Title")
		}
	} else {
		log.Debug("occupation titles not found", zap.Error(err))
	}

	occs, err := BuildOccupations(abilities, activities, titles)
	if err != nil {
		return nil, nil, err
	}
	sectors := BuildSectors(occs)
	log.Info("built ai exposure index",
		zap.Int("occupations", len(occs)),
		zap.Int("sectors", len(sectors)),
	)
	return occs, sectors, nil
}

// FindONETFile returns the first of names that exists in dir.
func FindONETFile(dir string, names []string) (string, error) {
	for _, n := range names {
		p := filepath.Join(dir, n)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", eris.Errorf("treatment: none of %s found in %s", strings.Join(names, ", "), dir)
}

func readONET(dir string, names []string) (*fetcher.Table, error) {
	path, err := FindONETFile(dir, names)
	if err != nil {
		return nil, err
	}
	t, err := fetcher.ReadCSVFile(path, fetcher.CSVOptions{Delimiter: '\t', LazyQuotes: true})
	if err != nil {
		return nil, eris.Wrap(err, "treatment: read o*net file")
	}
	return t, nil
}

// WriteOccupationCSV writes occupation exposures in code order.
func WriteOccupationCSV(path string, occs []Occupation) error {
	records := [][]string{{"soc_code", "occupation_title", "gics_sector", "ability_ai_exposure", "activity_ai_exposure", "ai_exposure", "ai_exposure_normalized"}}
	for _, o := range occs {
		records = append(records, []string{
			o.Code, o.Title, o.Sector,
			optional(o.Ability), optional(o.Activity),
			strconv.FormatFloat(o.Raw, 'f', 4, 64),
			round2(o.Score),
		})
	}
	return writeRecords(path, records)
}

func meanOrZero(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func optional(v *float64) string {
	if v == nil {
		return "NA"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

func round2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func itoa(n int) string { return strconv.Itoa(n) }

func parseScore(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse exposure %q", s)
	}
	if math.IsNaN(v) || v < 0 || v > 100 {
		return 0, eris.Errorf("exposure %v outside 0-100", v)
	}
	return v, nil
}
