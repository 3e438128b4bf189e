package edgar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const testUA = "esg-research test@example.com"

func newTestClient(srv *httptest.Server) Client {
	return NewClient(testUA,
		WithBaseURL(srv.URL),
		WithDataURL(srv.URL+"/"),
		WithHTTPClient(srv.Client()),
		WithRateLimit(rate.Inf),
	)
}

func TestCompanyTickers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/company_tickers.json", r.URL.Path)
		assert.Equal(t, testUA, r.Header.Get("User-Agent"))
		w.Write([]byte(`{
			"10": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
			"2": {"cik_str": 789019, "ticker": "MSFT", "title": "MICROSOFT CORP"},
			"0": {"cik_str": 1045810, "ticker": "NVDA", "title": "NVIDIA CORP"}
		}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).CompanyTickers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Company{CIK: "0001045810", Ticker: "NVDA", Title: "NVIDIA CORP"}, got[0])
	assert.Equal(t, "MSFT", got[1].Ticker)
	assert.Equal(t, "0000320193", got[2].CIK)
}

func TestCompanyTickers_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CompanyTickers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestSubmissions(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions/CIK0000789019.json", r.URL.Path)
		w.Write([]byte(`{
			"cik": "789019",
			"name": "MICROSOFT CORP",
			"tickers": ["MSFT"],
			"filings": {"recent": {
				"accessionNumber": ["0000950170-24-087843", "0000950170-24-048288", "0000950170-23-035122", "0001564590-17-014900", "0000950170-23-099999"],
				"filingDate":      ["2024-07-30", "2024-04-25", "2023-07-27", "2017-08-02", "bad-date"],
				"reportDate":      ["2024-06-30", "2024-03-31", "2023-06-30", "2017-06-30", ""],
				"form":            ["10-K", "10-Q", "10-K", "10-K", "10-K"],
				"primaryDocument": ["msft-20240630.htm", "msft-10q.htm", "msft-20230630.htm", "msft-2017.htm", "x.htm"]
			}}
		}`))
	}))
	defer srv.Close()

	sub, err := newTestClient(srv).Submissions(context.Background(), "789019")
	require.NoError(t, err)
	assert.Equal(t, "MICROSOFT CORP", sub.Name)

	filings := sub.Filings(2018, "10-K", "10-K/A")
	require.Len(t, filings, 2)
	assert.Equal(t, "0000950170-23-035122", filings[0].AccessionNumber)
	assert.Equal(t, 2023, filings[0].FiscalYear())
	assert.Equal(t, "msft-20240630.htm", filings[1].PrimaryDocument)
	assert.Equal(t, 2024, filings[1].FiscalYear())

	all := sub.Filings(0)
	assert.Len(t, all, 4)
}

func TestSubmissions_InvalidCIK(t *testing.T) {
	t.Parallel()

	c := NewClient(testUA)
	for _, cik := range []string{"", "000", "12ab", "12345678901"} {
		_, err := c.Submissions(context.Background(), cik)
		assert.Error(t, err, cik)
	}
}

func TestFiling_FiscalYearFallback(t *testing.T) {
	t.Parallel()

	f := Filing{FilingDate: time.Date(2022, 2, 15, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 2021, f.FiscalYear())
}

func TestDocument(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Archives/edgar/data/789019/000095017024087843/msft-20240630.htm", r.URL.Path)
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	body, err := newTestClient(srv).Document(context.Background(), "0000789019", Filing{
		AccessionNumber: "0000950170-24-087843",
		PrimaryDocument: "msft-20240630.htm",
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), "hello")
}

func TestDocument_NoPrimary(t *testing.T) {
	t.Parallel()

	_, err := NewClient(testUA).Document(context.Background(), "1", Filing{AccessionNumber: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no primary document")
}

func TestPadCIK(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0000320193", padCIK("320193"))
	assert.Equal(t, "0000320193", padCIK(" 0000320193 "))
	assert.Equal(t, "", padCIK("CIK320193"))
}
