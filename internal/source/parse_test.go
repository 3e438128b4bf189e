package source

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-research/internal/config"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		missing bool
		ok      bool
	}{
		{"123.5", 123.5, false, true},
		{" 1,234,567 ", 1234567, false, true},
		{"$2,000", 2000, false, true},
		{"12.5%", 12.5, false, true},
		{"(300)", -300, false, true},
		{"1e6", 1e6, false, true},
		{"", 0, true, true},
		{"NA", 0, true, true},
		{"n/a", 0, true, true},
		{"#N/A", 0, true, true},
		{"-", 0, true, true},
		{"abc", 0, false, false},
	}
	for _, tt := range tests {
		v, ok := parseValue(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if !tt.ok {
			continue
		}
		if tt.missing {
			assert.Nil(t, v, tt.in)
			continue
		}
		require.NotNil(t, v, tt.in)
		assert.InDelta(t, tt.want, *v, 1e-9, tt.in)
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"2021", 2021, true},
		{"2021.0", 2021, true},
		{"FY2022", 2022, true},
		{"2023-06-30", 2023, true},
		{"ghgp_data_2019.xlsx", 2019, true},
		{"2021.5", 0, false},
		{"1850", 0, false},
		{"", 0, false},
		{"12345", 0, false},
	}
	for _, tt := range tests {
		y, ok := parseYear(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, y, tt.in)
	}
}

func TestLocalPath_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cdp.csv", "ticker,year\n")

	got, err := localPath(context.Background(), Env{}, NameCDP, config.SourceConfig{Path: path, URL: "http://unused"})
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestLocalPath_NotConfigured(t *testing.T) {
	_, err := localPath(context.Background(), Env{}, NameCDP, config.SourceConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources.cdp.path")
}

func TestLocalPath_MissingWithoutURL(t *testing.T) {
	_, err := localPath(context.Background(), Env{}, NameCDP, config.SourceConfig{Path: "/nonexistent/cdp.csv"})
	require.Error(t, err)
}

func TestLocalPath_DownloadZIPMember(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("nested/Ratings.CSV")
	require.NoError(t, err)
	_, err = w.Write([]byte("ticker,year,esg_score\nMSFT,2022,7\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	f := &stubFetcher{bodies: map[string][]byte{"https://example.com/esg.zip": buf.Bytes()}}
	env := Env{Fetcher: f, TempDir: t.TempDir()}
	sc := config.SourceConfig{URL: "https://example.com/esg.zip", Member: "ratings.csv"}

	path, err := localPath(context.Background(), env, NameESGRatings, sc)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)

	tbl, err := readTable(path, sc)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "MSFT", tbl.Get(tbl.Rows[0], "ticker"))
}

func TestLocalPath_NoFetcher(t *testing.T) {
	_, err := localPath(context.Background(), Env{TempDir: t.TempDir()}, NameCDP, config.SourceConfig{URL: "https://example.com/cdp.csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fetcher")
}

func TestReadTable_TSV(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fin.tsv", "ticker\tyear\trevenue\nMSFT\t2022\t198270\n")
	tbl, err := readTable(path, config.SourceConfig{})
	require.NoError(t, err)
	assert.Equal(t, "198270", tbl.Get(tbl.Rows[0], "revenue"))
}

func TestFirstToken(t *testing.T) {
	assert.Equal(t, "AAPL", firstToken("AAPL US Equity"))
	assert.Equal(t, "", firstToken("  "))
}
