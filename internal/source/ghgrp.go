package source

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/model"
)

// Column aliases seen across GHGRP releases.
var (
	ghgrpParentCols    = []string{"parent company name", "parent company", "parent_company", "parent", "company", "name"}
	ghgrpYearCols      = []string{"reporting year", "year"}
	ghgrpFacilityCols  = []string{"ghgrp facility id", "facility id", "facility_id", "ghgrp id"}
	ghgrpEmissionsCols = []string{
		"total reported direct emissions",
		"total reported emissions",
		"total emissions",
		"total_emissions",
		"ghg quantity (metric tons co2e)",
	}
)

// GHGRP loads EPA Greenhouse Gas Reporting Program emissions and sums them per
// parent company and year. Two layouts are accepted:
//
//   - a parent-level table with parent name, year and emissions columns
//     (one row per facility or per parent; rows are summed), or
//   - yearly facility summary files (Path may be a glob such as
//     data/ghgp_data_*.xlsx) joined to a facility → parent file (Parents).
//
// GHGRP covers direct emissions only, so each total is emitted as both
// scope1_emissions and total_emissions.
type GHGRP struct {
	cfg config.SourceConfig
}

func (g *GHGRP) Name() string { return NameGHGRP }
func (g *GHGRP) Kind() Kind   { return KindFile }

type parentYear struct {
	parent string
	year   int
}

type emissionsTotal struct {
	sum  float64
	line int
}

func (g *GHGRP) Load(ctx context.Context, env Env) ([]model.RawRecord, error) {
	totals := make(map[parentYear]*emissionsTotal)
	var err error
	if g.cfg.Parents != "" {
		err = g.loadFacilities(env, totals)
	} else {
		err = g.loadParents(ctx, env, totals)
	}
	if err != nil {
		return nil, err
	}
	return ghgrpRecords(totals), nil
}

func (g *GHGRP) loadParents(ctx context.Context, env Env, totals map[parentYear]*emissionsTotal) error {
	t, err := openTable(ctx, env, NameGHGRP, g.cfg)
	if err != nil {
		return err
	}
	if !t.Has(ghgrpParentCols...) || !t.Has(ghgrpYearCols...) || !t.Has(ghgrpEmissionsCols...) {
		return eris.Errorf("source ghgrp: missing parent, year or emissions column in %v", t.Header)
	}

	bad := rowCounter{source: NameGHGRP}
	for i, row := range t.Rows {
		parent := t.Get(row, ghgrpParentCols...)
		year, okYear := parseYear(t.Get(row, ghgrpYearCols...))
		v, okValue := parseValue(t.Get(row, ghgrpEmissionsCols...))
		if parent == "" || !okYear || !okValue {
			bad.skip(t.Line(i))
			continue
		}
		addEmissions(totals, parent, year, v, t.Line(i))
	}
	bad.flush(env)
	return nil
}

// facilityParent is one row of the parent mapping file.
type facilityParent struct {
	facility string
	year     int // 0 when the mapping file has no year column
}

func (g *GHGRP) loadFacilities(env Env, totals map[parentYear]*emissionsTotal) error {
	parents, err := g.loadParentMap()
	if err != nil {
		return err
	}

	files, err := filepath.Glob(g.cfg.Path)
	if err != nil {
		return eris.Wrapf(err, "source ghgrp: glob %s", g.cfg.Path)
	}
	if len(files) == 0 {
		return eris.Errorf("source ghgrp: no facility files match %s", g.cfg.Path)
	}
	sort.Strings(files)

	bad := rowCounter{source: NameGHGRP}
	unmapped := 0
	for _, file := range files {
		t, err := readTable(file, g.cfg)
		if err != nil {
			return eris.Wrapf(err, "source ghgrp: read %s", file)
		}
		if !t.Has(ghgrpFacilityCols...) || !t.Has(ghgrpEmissionsCols...) {
			return eris.Errorf("source ghgrp: %s lacks facility id or emissions column", filepath.Base(file))
		}
		fileYear, fileHasYear := parseYear(filepath.Base(file))

		for i, row := range t.Rows {
			facility := normalizeFacilityID(t.Get(row, ghgrpFacilityCols...))
			year, okYear := parseYear(t.Get(row, ghgrpYearCols...))
			if !okYear {
				year, okYear = fileYear, fileHasYear
			}
			v, okValue := parseValue(t.Get(row, ghgrpEmissionsCols...))
			if facility == "" || !okYear || !okValue {
				bad.skip(t.Line(i))
				continue
			}

			parent, ok := parents[facilityParent{facility, year}]
			if !ok {
				parent, ok = parents[facilityParent{facility, 0}]
			}
			if !ok {
				unmapped++
				continue
			}
			addEmissions(totals, parent, year, v, t.Line(i))
		}
	}
	bad.flush(env)
	if unmapped > 0 {
		zap.L().Debug("ghgrp facilities without parent company", zap.Int("rows", unmapped))
	}
	return nil
}

// loadParentMap reads the facility → parent file. The first parent listed for
// a facility wins, matching EPA's ordering by ownership share.
func (g *GHGRP) loadParentMap() (map[facilityParent]string, error) {
	pc := config.SourceConfig{Path: g.cfg.Parents}
	t, err := readTable(g.cfg.Parents, pc)
	if err != nil {
		return nil, eris.Wrapf(err, "source ghgrp: read parents %s", g.cfg.Parents)
	}
	if !t.Has(ghgrpFacilityCols...) || !t.Has(ghgrpParentCols...) {
		return nil, eris.Errorf("source ghgrp: parents file lacks facility id or parent column")
	}

	out := make(map[facilityParent]string)
	for _, row := range t.Rows {
		facility := normalizeFacilityID(t.Get(row, ghgrpFacilityCols...))
		parent := t.Get(row, ghgrpParentCols...)
		if facility == "" || parent == "" {
			continue
		}
		key := facilityParent{facility: facility}
		if y, ok := parseYear(t.Get(row, ghgrpYearCols...)); ok {
			key.year = y
		}
		if _, dup := out[key]; !dup {
			out[key] = parent
		}
		// year-specific rows also serve as the fallback mapping
		fallback := facilityParent{facility: facility}
		if _, dup := out[fallback]; !dup {
			out[fallback] = parent
		}
	}
	return out, nil
}

// normalizeFacilityID drops the ".0" Excel adds to numeric IDs.
func normalizeFacilityID(s string) string {
	s = strings.TrimSpace(s)
	if v, ok := parseValue(s); ok && v != nil && *v == float64(int64(*v)) {
		return strconv.FormatInt(int64(*v), 10)
	}
	return s
}

func addEmissions(totals map[parentYear]*emissionsTotal, parent string, year int, v *float64, line int) {
	if v == nil {
		return
	}
	// "(100%)" ownership suffixes and case differences name the same parent
	key := parentYear{parent: strings.ToUpper(strings.TrimSpace(stripOwnership(parent))), year: year}
	t, ok := totals[key]
	if !ok {
		t = &emissionsTotal{line: line}
		totals[key] = t
	}
	t.sum += *v
}

func stripOwnership(s string) string {
	if i := strings.LastIndex(s, "("); i > 0 && strings.HasSuffix(strings.TrimSpace(s), "%)") {
		return s[:i]
	}
	return s
}

func ghgrpRecords(totals map[parentYear]*emissionsTotal) []model.RawRecord {
	keys := make([]parentYear, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].parent != keys[j].parent {
			return keys[i].parent < keys[j].parent
		}
		return keys[i].year < keys[j].year
	})

	out := make([]model.RawRecord, 0, 2*len(keys))
	for _, k := range keys {
		t := totals[k]
		for _, m := range []model.Metric{model.MetricScope1, model.MetricTotal} {
			out = append(out, model.RawRecord{
				Name:       k.parent,
				Year:       k.year,
				Metric:     m,
				Value:      model.Float(t.sum),
				Source:     NameGHGRP,
				Confidence: model.ConfidenceVerified,
				Line:       t.line,
			})
		}
	}
	return out
}
