// Package edgar provides a client for the SEC EDGAR ticker directory, company
// submissions feed, and filing archive.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the EDGAR operations used by the pipeline.
type Client interface {
	// CompanyTickers returns SEC's ticker → CIK directory.
	CompanyTickers(ctx context.Context) ([]Company, error)
	// Submissions returns the filing history for a CIK.
	Submissions(ctx context.Context, cik string) (*Submissions, error)
	// Document downloads a filing's primary document.
	Document(ctx context.Context, cik string, f Filing) ([]byte, error)
}

// Company is one entry of company_tickers.json.
type Company struct {
	CIK    string `json:"cik"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// Submissions is the subset of data.sec.gov/submissions/CIK##########.json we use.
type Submissions struct {
	CIK         string   `json:"cik"`
	Name        string   `json:"name"`
	Tickers     []string `json:"tickers"`
	FilingIndex struct {
		Recent filingColumns `json:"recent"`
	} `json:"filings"`
}

// filingColumns is EDGAR's column-oriented filing list.
type filingColumns struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// Filing is a single filing row.
type Filing struct {
	AccessionNumber string
	Form            string
	FilingDate      time.Time
	ReportDate      time.Time // zero when EDGAR omits it
	PrimaryDocument string
}

// FiscalYear is the year the filing reports on: the report date's year when known,
// otherwise the year before the filing date.
func (f Filing) FiscalYear() int {
	if !f.ReportDate.IsZero() {
		return f.ReportDate.Year()
	}
	return f.FilingDate.Year() - 1
}

// Filings returns recent filings of the given forms filed in or after sinceYear,
// oldest first. Rows with unparseable filing dates are skipped.
func (s *Submissions) Filings(sinceYear int, forms ...string) []Filing {
	want := make(map[string]bool, len(forms))
	for _, f := range forms {
		want[f] = true
	}

	r := s.FilingIndex.Recent
	var out []Filing
	for i, acc := range r.AccessionNumber {
		form := at(r.Form, i)
		if acc == "" || (len(want) > 0 && !want[form]) {
			continue
		}
		filed, err := time.Parse(time.DateOnly, at(r.FilingDate, i))
		if err != nil || filed.Year() < sinceYear {
			continue
		}
		reported, _ := time.Parse(time.DateOnly, at(r.ReportDate, i))
		out = append(out, Filing{
			AccessionNumber: acc,
			Form:            form,
			FilingDate:      filed,
			ReportDate:      reported,
			PrimaryDocument: at(r.PrimaryDocument, i),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FilingDate.Before(out[j].FilingDate) })
	return out
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// Option configures the EDGAR client.
type Option func(*httpClient)

// WithBaseURL sets the www.sec.gov base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithDataURL sets the data.sec.gov base URL (for testing).
func WithDataURL(u string) Option {
	return func(c *httpClient) { c.dataURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit overrides SEC's 10 requests per second ceiling.
func WithRateLimit(l rate.Limit) Option {
	burst := 1
	if l != rate.Inf && l > 1 {
		burst = int(l)
	}
	return func(c *httpClient) { c.limiter = rate.NewLimiter(l, burst) }
}

type httpClient struct {
	userAgent string
	baseURL   string
	dataURL   string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates an EDGAR client. SEC rejects requests without a descriptive
// User-Agent that includes a contact address.
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		userAgent: userAgent,
		baseURL:   "https://www.sec.gov",
		dataURL:   "https://data.sec.gov",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "edgar: rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: get %s", url)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: read %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("edgar: unexpected status %d from %s", resp.StatusCode, url)
	}
	return body, nil
}

func (c *httpClient) CompanyTickers(ctx context.Context) ([]Company, error) {
	body, err := c.get(ctx, c.baseURL+"/files/company_tickers.json")
	if err != nil {
		return nil, err
	}

	var raw map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "edgar: decode company tickers")
	}

	// keys are "0", "1", ... in SEC's ranking order
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})

	out := make([]Company, 0, len(raw))
	for _, k := range keys {
		e := raw[k]
		out = append(out, Company{CIK: fmt.Sprintf("%010d", e.CIK), Ticker: e.Ticker, Title: e.Title})
	}
	return out, nil
}

func (c *httpClient) Submissions(ctx context.Context, cik string) (*Submissions, error) {
	padded := padCIK(cik)
	if padded == "" {
		return nil, eris.Errorf("edgar: invalid cik %q", cik)
	}
	body, err := c.get(ctx, fmt.Sprintf("%s/submissions/CIK%s.json", c.dataURL, padded))
	if err != nil {
		return nil, err
	}
	var s Submissions
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, eris.Wrapf(err, "edgar: decode submissions for %s", padded)
	}
	return &s, nil
}

func (c *httpClient) Document(ctx context.Context, cik string, f Filing) ([]byte, error) {
	if f.PrimaryDocument == "" {
		return nil, eris.Errorf("edgar: filing %s has no primary document", f.AccessionNumber)
	}
	url := fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		c.baseURL,
		strings.TrimLeft(cik, "0"),
		strings.ReplaceAll(f.AccessionNumber, "-", ""),
		f.PrimaryDocument,
	)
	return c.get(ctx, url)
}

func padCIK(cik string) string {
	cik = strings.TrimLeft(strings.TrimSpace(cik), "0")
	if cik == "" || len(cik) > 10 {
		return ""
	}
	for _, r := range cik {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return fmt.Sprintf("%010s", cik)
}
