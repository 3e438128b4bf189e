package source

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-research/internal/config"
	"github.com/sells-group/esg-research/internal/fetcher"
	"github.com/sells-group/esg-research/internal/model"
)

// localPath returns a readable path for the source's file, downloading it
// (and unpacking the configured ZIP member) when only a URL is configured.
func localPath(ctx context.Context, env Env, name string, sc config.SourceConfig) (string, error) {
	if sc.Path == "" && sc.URL == "" {
		return "", eris.Wrapf(errNotConfigured, "source %s: set sources.%s.path or url", name, name)
	}
	if sc.Path != "" {
		if _, err := os.Stat(sc.Path); err == nil {
			return sc.Path, nil
		} else if sc.URL == "" {
			return "", eris.Wrapf(err, "source %s: stat %s", name, sc.Path)
		}
	}
	if env.Fetcher == nil {
		return "", eris.Errorf("source %s: no fetcher for %s", name, sc.URL)
	}

	dir := filepath.Join(env.TempDir, name)
	dest := sc.Path
	if dest == "" {
		dest = filepath.Join(dir, filepath.Base(strings.SplitN(sc.URL, "?", 2)[0]))
	}
	if sc.Member != "" {
		dest = filepath.Join(dir, "download.zip")
	}

	n, err := env.Fetcher.DownloadToFile(ctx, sc.URL, dest)
	if err != nil {
		return "", eris.Wrapf(err, "source %s: download", name)
	}
	zap.L().Info("downloaded source file",
		zap.String("source", name),
		zap.String("url", sc.URL),
		zap.Int64("bytes", n),
	)

	if sc.Member == "" {
		return dest, nil
	}
	path, err := fetcher.ExtractZIPMatch(dest, sc.Member, dir)
	if err != nil {
		return "", eris.Wrapf(err, "source %s: extract %s", name, sc.Member)
	}
	return path, nil
}

// readTable parses a CSV or XLSX file by extension.
func readTable(path string, sc config.SourceConfig) (*fetcher.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: sc.Sheet, SkipRows: sc.SkipRows})
	case ".tsv", ".txt":
		return fetcher.ReadCSVFile(path, fetcher.CSVOptions{Delimiter: '\t', LazyQuotes: true, SkipRows: sc.SkipRows})
	default:
		return fetcher.ReadCSVFile(path, fetcher.CSVOptions{LazyQuotes: true, SkipRows: sc.SkipRows})
	}
}

// openTable resolves the source file and parses it.
func openTable(ctx context.Context, env Env, name string, sc config.SourceConfig) (*fetcher.Table, error) {
	path, err := localPath(ctx, env, name, sc)
	if err != nil {
		return nil, err
	}
	t, err := readTable(path, sc)
	if err != nil {
		return nil, eris.Wrapf(err, "source %s: read %s", name, path)
	}
	return t, nil
}

var missingTokens = map[string]bool{
	"":      true,
	"na":    true,
	"n/a":   true,
	"nan":   true,
	"null":  true,
	"none":  true,
	"-":     true,
	"--":    true,
	"#n/a":  true,
	"n.a.":  true,
	"blank": true,
}

// parseValue parses a numeric cell. Missing markers return (nil, true);
// anything unparseable returns (nil, false). Thousands separators, currency
// signs, a trailing percent and accounting parentheses are accepted.
func parseValue(s string) (*float64, bool) {
	s = strings.TrimSpace(s)
	if missingTokens[strings.ToLower(s)] {
		return nil, true
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(",", "", "$", "", " ", "", "\u00a0", "").Replace(s)
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	if neg {
		v = -v
	}
	return &v, true
}

var yearPattern = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)[0-9]{2})(?:[^0-9]|$)`)

// parseYear extracts a four-digit year from "2021", "2021.0", "FY2021" or a date.
func parseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		y := int(f)
		if float64(y) == f && y >= 1900 && y < 2100 {
			return y, true
		}
		return 0, false
	}
	m := yearPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	y, _ := strconv.Atoi(m[1])
	return y, true
}

// rowCounter tallies skipped rows for one source and reports them once.
type rowCounter struct {
	source string
	bad    int
	first  int // first bad line, for the log
}

func (c *rowCounter) skip(line int) {
	if c.bad == 0 {
		c.first = line
	}
	c.bad++
}

func (c *rowCounter) flush(env Env) {
	if c.bad == 0 {
		return
	}
	env.Summary.Add(model.StageIngest, model.ReasonParseError, c.bad)
	zap.L().Warn("skipped unparseable rows",
		zap.String("source", c.source),
		zap.Int("rows", c.bad),
		zap.Int("first_line", c.first),
	)
}
