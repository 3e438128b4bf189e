package resolve

import (
	"maps"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-research/internal/fetcher"
)

// Aliases maps normalized alternate names to a ticker or a roster firm key. GHGRP reports emissions under
// parent-company names that rarely match the listed entity ("EXXONMOBIL", "CONOCO
// PHILLIPS"), so these are matched exactly before any fuzzy pass.
type Aliases map[string]string

// defaultAliases covers large emitters whose GHGRP parent names do not normalize to
// their roster names.
var defaultAliases = map[string]string{
	"3M":                        "MMM",
	"ALPHABET":                  "GOOGL",
	"GOOGLE":                    "GOOGL",
	"AMAZON COM":                "AMZN",
	"ARCHER DANIELS MIDLAND":    "ADM",
	"AT AND T":                  "T",
	"BERKSHIRE HATHAWAY":        "BRK-B",
	"BRISTOL MYERS SQUIBB":      "BMY",
	"CON EDISON":                "ED",
	"CONSOLIDATED EDISON":       "ED",
	"CONOCO PHILLIPS":           "COP",
	"DOW CHEMICAL":              "DOW",
	"DU PONT":                   "DD",
	"DUPONT":                    "DD",
	"ELI LILLY":                 "LLY",
	"EXXON":                     "XOM",
	"EXXONMOBIL":                "XOM",
	"FACEBOOK":                  "META",
	"FIRST ENERGY":              "FE",
	"FREEPORT MCMORAN":          "FCX",
	"JOHN DEERE":                "DE",
	"JP MORGAN":                 "JPM",
	"JPMORGAN CHASE":            "JPM",
	"KIMBERLY CLARK":            "KMB",
	"APACHE":                    "APA",
	"BROWN FORMAN":              "BF-B",
	"INTERNATIONAL FLAVORS":     "IFF",
	"ONSEMI":                    "ON",
	"PSEG":                      "PEG",
	"PUBLIC SERVICE ENTERPRISE": "PEG",
	"MOLSON COORS":              "TAP",
	"SOUTHERN":                  "SO",
}

// DefaultAliases returns a copy of the built-in alias table.
func DefaultAliases() Aliases {
	return maps.Clone(Aliases(defaultAliases))
}

// LoadAliases reads an alias CSV (alias plus ticker or firm_key) and merges it over the
// built-in table. A firm_key value is kept verbatim so aliases can reach firms without a
// ticker ("CIK0000012345", "NAME:ACME_HOLDINGS"). An empty path returns only the built-ins.
func LoadAliases(path string) (Aliases, error) {
	out := DefaultAliases()
	if path == "" {
		return out, nil
	}
	tbl, err := fetcher.ReadCSVFile(path, fetcher.CSVOptions{Comment: '#'})
	if err != nil {
		return nil, eris.Wrap(err, "resolve: load aliases")
	}
	if !tbl.Has("alias", "name") || !tbl.Has("ticker", "firm_key") {
		return nil, eris.Errorf("resolve: alias file %s needs alias and ticker columns", path)
	}
	for _, row := range tbl.Rows {
		alias := NormalizeName(tbl.Get(row, "alias", "name"))
		target := tbl.Get(row, "firm_key")
		if target == "" {
			target = NormalizeTicker(tbl.Get(row, "ticker"))
		}
		if alias == "" || target == "" {
			continue
		}
		out[alias] = target
	}
	return out, nil
}
