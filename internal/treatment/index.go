package treatment

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-research/internal/fetcher"
	"github.com/sells-group/esg-research/internal/resolve"
)

// Index holds AI exposure scores (0–100) by firm and by sector. Firm scores
// take precedence over sector scores.
type Index struct {
	Firm   map[string]float64 // firm key → score
	Sector map[string]float64 // normalized sector → score
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{Firm: make(map[string]float64), Sector: make(map[string]float64)}
}

// SectorKey normalizes a sector label for lookup.
func SectorKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Lookup returns the score for a firm and where it came from ("firm" or "sector").
func (x *Index) Lookup(firmKey, sector string) (float64, string, bool) {
	if x == nil {
		return 0, "", false
	}
	if v, ok := x.Firm[firmKey]; ok {
		return v, "firm", true
	}
	if v, ok := x.Sector[SectorKey(sector)]; ok && sector != "" {
		return v, "sector", true
	}
	return 0, "", false
}

var (
	exposureCols  = []string{"ai_exposure", "exposure", "exposure_score", "ai_exposure_index", "score"}
	firmKeyCols   = []string{"firm_key"}
	firmTickCols  = []string{"ticker", "symbol"}
	sectorCols    = []string{"gics_sector", "sector"}
	errNoExposure = eris.New("no exposure column")
)

// LoadIndex reads an exposure CSV. Rows with a firm_key or ticker become
// firm-level scores; rows with only a sector become sector-level scores. Blank
// scores are skipped; scores outside 0–100 are an error.
func LoadIndex(path string) (*Index, error) {
	t, err := fetcher.ReadCSVFile(path, fetcher.CSVOptions{Comment: '#'})
	if err != nil {
		return nil, eris.Wrap(err, "treatment: load exposure index")
	}
	if !t.Has(exposureCols...) {
		return nil, eris.Wrapf(errNoExposure, "treatment: %s", path)
	}
	if !t.Has(firmKeyCols...) && !t.Has(firmTickCols...) && !t.Has(sectorCols...) {
		return nil, eris.Errorf("treatment: %s needs a firm_key, ticker or sector column", path)
	}

	x := NewIndex()
	for i, row := range t.Rows {
		raw := t.Get(row, exposureCols...)
		if raw == "" || strings.EqualFold(raw, "NA") {
			continue
		}
		v, err := parseScore(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "treatment: %s line %d", filepath.Base(path), i+2)
		}

		key := t.Get(row, firmKeyCols...)
		if key == "" {
			key = resolve.NormalizeTicker(t.Get(row, firmTickCols...))
		}
		switch sector := t.Get(row, sectorCols...); {
		case key != "":
			x.Firm[key] = v
		case sector != "":
			x.Sector[SectorKey(sector)] = v
		}
	}
	return x, nil
}

// SectorExposure is one row of the sector-level exposure file.
type SectorExposure struct {
	Sector      string
	Exposure    float64
	Std         float64
	Occupations int
	Ability     float64
	Activity    float64
}

// WriteSectorCSV writes sector exposures sorted by sector, in the layout
// LoadIndex reads.
func WriteSectorCSV(path string, rows []SectorExposure) error {
	sorted := append([]SectorExposure(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sector < sorted[j].Sector })

	records := [][]string{{"gics_sector", "ai_exposure", "ai_exposure_std", "n_occupations", "ability_exposure", "activity_exposure"}}
	for _, r := range sorted {
		records = append(records, []string{
			r.Sector,
			round2(r.Exposure),
			round2(r.Std),
			itoa(r.Occupations),
			round2(r.Ability),
			round2(r.Activity),
		})
	}
	return writeRecords(path, records)
}

func writeRecords(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "treatment: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "treatment: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := csv.NewWriter(f).WriteAll(records); err != nil {
		return eris.Wrapf(err, "treatment: write %s", path)
	}
	return nil
}
