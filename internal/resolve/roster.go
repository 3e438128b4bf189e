package resolve

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-research/internal/fetcher"
	"github.com/sells-group/esg-research/internal/model"
)

// Roster is the canonical firm list with lookup indexes for the resolver.
type Roster struct {
	firms    []model.Firm
	byKey    map[string]int
	byCIK    map[string]int
	byTicker map[string]int
	names    []nameEntry

	// sharedCIK holds CIKs carried by more than one firm (share classes such as
	// GOOG/GOOGL). They are left out of byCIK so a CIK match is never a guess.
	sharedCIK map[string][]string
}

type nameEntry struct {
	norm string
	idx  int
}

// TickerEntry is one row of EDGAR's ticker directory.
type TickerEntry struct {
	CIK    string
	Ticker string
	Title  string
}

// FirmKey derives the canonical key for a firm: the normalized ticker when there is
// one, otherwise the padded CIK, otherwise the normalized name.
func FirmKey(ticker, cik, name string) string {
	if t := NormalizeTicker(ticker); t != "" {
		return t
	}
	if c := model.PadCIK(cik); c != "" {
		return "CIK" + c
	}
	if n := NormalizeName(name); n != "" {
		return "NAME:" + strings.ReplaceAll(n, " ", "_")
	}
	return ""
}

// NewRoster indexes firms. Firms without a derivable key are rejected; duplicate keys
// keep the first occurrence.
func NewRoster(firms []model.Firm) (*Roster, error) {
	r := &Roster{
		byKey:     make(map[string]int, len(firms)),
		byCIK:     make(map[string]int, len(firms)),
		byTicker:  make(map[string]int, len(firms)),
		sharedCIK: make(map[string][]string),
	}
	for _, f := range firms {
		f.Ticker = NormalizeTicker(f.Ticker)
		f.CIK = model.PadCIK(f.CIK)
		if f.Key == "" {
			f.Key = FirmKey(f.Ticker, f.CIK, f.Name)
		}
		if f.Key == "" {
			return nil, eris.Errorf("resolve: roster firm %q has no ticker, cik or name", f.Name)
		}
		if _, dup := r.byKey[f.Key]; dup {
			zap.L().Warn("resolve: duplicate roster key, keeping first", zap.String("firm_key", f.Key))
			continue
		}
		r.byKey[f.Key] = len(r.firms)
		r.firms = append(r.firms, f)
	}
	sort.Slice(r.firms, func(i, j int) bool { return r.firms[i].Key < r.firms[j].Key })
	r.reindex()
	return r, nil
}

func (r *Roster) reindex() {
	clear(r.byKey)
	clear(r.byCIK)
	clear(r.byTicker)
	clear(r.sharedCIK)
	r.names = r.names[:0]
	for i, f := range r.firms {
		r.byKey[f.Key] = i
		if f.CIK != "" {
			if keys, shared := r.sharedCIK[f.CIK]; shared {
				r.sharedCIK[f.CIK] = append(keys, f.Key)
			} else if first, dup := r.byCIK[f.CIK]; dup {
				r.sharedCIK[f.CIK] = []string{r.firms[first].Key, f.Key}
				delete(r.byCIK, f.CIK)
			} else {
				r.byCIK[f.CIK] = i
			}
		}
		if f.Ticker != "" {
			r.byTicker[f.Ticker] = i
		}
		if n := NormalizeName(f.Name); n != "" {
			r.names = append(r.names, nameEntry{norm: n, idx: i})
		}
	}
	for cik, keys := range r.sharedCIK {
		zap.L().Warn("resolve: cik shared by several roster firms, matching them by ticker or name only",
			zap.String("cik", cik), zap.Strings("firm_keys", keys))
	}
}

// SharedCIKs returns the CIKs carried by more than one firm, each with the keys of
// the firms that carry it.
func (r *Roster) SharedCIKs() map[string][]string {
	out := make(map[string][]string, len(r.sharedCIK))
	for cik, keys := range r.sharedCIK {
		out[cik] = slices.Clone(keys)
	}
	return out
}

// Firms returns the roster sorted by key.
func (r *Roster) Firms() []model.Firm {
	out := make([]model.Firm, len(r.firms))
	copy(out, r.firms)
	return out
}

// Len returns the number of firms.
func (r *Roster) Len() int { return len(r.firms) }

// Firm looks a firm up by key.
func (r *Roster) Firm(key string) (model.Firm, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return model.Firm{}, false
	}
	return r.firms[i], true
}

// Enrich fills missing CIKs and names from EDGAR's ticker directory, matching on
// normalized ticker. Returns how many firms gained a CIK.
func (r *Roster) Enrich(entries []TickerEntry) int {
	byTicker := make(map[string]TickerEntry, len(entries))
	for _, e := range entries {
		t := NormalizeTicker(e.Ticker)
		if _, seen := byTicker[t]; t != "" && !seen {
			byTicker[t] = e
		}
	}

	filled := 0
	for i := range r.firms {
		f := &r.firms[i]
		e, ok := byTicker[f.Ticker]
		if !ok {
			continue
		}
		if f.CIK == "" {
			if cik := model.PadCIK(e.CIK); cik != "" {
				f.CIK = cik
				filled++
			}
		}
		if f.Name == "" {
			f.Name = e.Title
		}
	}
	r.reindex()
	return filled
}

// LoadRoster reads a roster CSV with columns ticker, cik, name, sector, is_ai_builder,
// active and an optional firm_key. Missing active defaults to true.
func LoadRoster(path string) (*Roster, error) {
	tbl, err := fetcher.ReadCSVFile(path, fetcher.CSVOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "resolve: load roster")
	}
	if !tbl.Has("ticker", "symbol") && !tbl.Has("cik") && !tbl.Has("name", "security") {
		return nil, eris.Errorf("resolve: roster %s needs a ticker, cik or name column", path)
	}

	firms := make([]model.Firm, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		firms = append(firms, model.Firm{
			Key:         tbl.Get(row, "firm_key"),
			Ticker:      tbl.Get(row, "ticker", "symbol"),
			CIK:         tbl.Get(row, "cik"),
			Name:        tbl.Get(row, "name", "security", "company"),
			Sector:      tbl.Get(row, "sector", "gics_sector"),
			IsAIBuilder: parseBool(tbl.Get(row, "is_ai_builder", "ai_builder"), false),
			Active:      parseBool(tbl.Get(row, "active"), true),
		})
	}
	return NewRoster(firms)
}

// WriteRoster writes the roster back out as CSV in key order.
func WriteRoster(path string, r *Roster) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "resolve: create roster directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "resolve: create roster file")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	_ = w.Write([]string{"firm_key", "ticker", "cik", "name", "sector", "is_ai_builder", "active"})
	for _, firm := range r.firms {
		_ = w.Write([]string{
			firm.Key, firm.Ticker, firm.CIK, firm.Name, firm.Sector,
			strconv.FormatBool(firm.IsAIBuilder), strconv.FormatBool(firm.Active),
		})
	}
	w.Flush()
	return eris.Wrap(w.Error(), "resolve: write roster")
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y":
		return true
	case "0", "false", "f", "no", "n":
		return false
	default:
		return def
	}
}
