package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/esg-research/internal/model"
	"github.com/sells-group/esg-research/internal/resolve"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeXLSX(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Direct Emitters")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	require.NoError(t, f.Save(path))
}

// stubFetcher serves fixed bodies by URL.
type stubFetcher struct {
	bodies map[string][]byte
	calls  int
}

func (s *stubFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	s.calls++
	return io.NopCloser(strings.NewReader(string(s.bodies[url]))), nil
}

func (s *stubFetcher) DownloadToFile(ctx context.Context, url, path string) (int64, error) {
	body, _ := s.Download(ctx, url)
	defer body.Close() //nolint:errcheck
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer out.Close() //nolint:errcheck
	return io.Copy(out, body)
}

func testRoster(t *testing.T) *resolve.Roster {
	t.Helper()
	r, err := resolve.NewRoster([]model.Firm{
		{Ticker: "MSFT", CIK: "789019", Name: "Microsoft Corp", Sector: "Information Technology", Active: true},
		{Ticker: "XOM", CIK: "34088", Name: "Exxon Mobil Corp", Sector: "Energy", Active: true},
		{Ticker: "AAPL", Name: "Apple Inc", Sector: "Information Technology", Active: true},
	})
	require.NoError(t, err)
	return r
}

func byMetric(recs []model.RawRecord) map[model.Metric]model.RawRecord {
	out := make(map[model.Metric]model.RawRecord)
	for _, r := range recs {
		out[r.Metric] = r
	}
	return out
}
