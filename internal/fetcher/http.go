package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	// UserAgent is sent on every request. SEC requires a contact address in it.
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration // first retry delay, doubled per attempt
	HostLimits  map[string]rate.Limit
}

// DefaultHostLimits returns requests-per-second ceilings for the hosts the pipeline talks to.
func DefaultHostLimits() map[string]rate.Limit {
	return map[string]rate.Limit{
		"www.sec.gov":        10,
		"data.sec.gov":       10,
		"efts.sec.gov":       10,
		"www.epa.gov":        5,
		"www.onetcenter.org": 5,
	}
}

const fallbackLimit rate.Limit = 20

// hostLimiter throttles one host. A 429 halves its rate down to a quarter of the
// starting ceiling; each success steps it back up toward that ceiling.
type hostLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	ceiling rate.Limit
	floor   rate.Limit
	current rate.Limit
}

func newHostLimiter(limit rate.Limit) *hostLimiter {
	return &hostLimiter{
		limiter: rate.NewLimiter(limit, int(math.Max(1, float64(limit)))),
		ceiling: limit,
		floor:   limit / 4,
		current: limit,
	}
}

func (h *hostLimiter) wait(ctx context.Context) error {
	return h.limiter.Wait(ctx)
}

func (h *hostLimiter) onSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current >= h.ceiling {
		return
	}
	h.current = min(h.current*1.2, h.ceiling)
	h.limiter.SetLimit(h.current)
}

func (h *hostLimiter) onThrottle() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = max(h.current*0.5, h.floor)
	h.limiter.SetLimit(h.current)
	return h.current
}

func (h *hostLimiter) limit() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// HTTPFetcher implements Fetcher using net/http with per-host rate limiting and retry.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*hostLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "esg-research/1.0"
	}
	if opts.HostLimits == nil {
		opts.HostLimits = DefaultHostLimits()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*hostLimiter),
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *hostLimiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	limit, ok := f.opts.HostLimits[host]
	if !ok {
		limit = fallbackLimit
	}
	lim := newHostLimiter(limit)
	f.limiters[host] = lim
	return lim
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.limiterFor(req.URL.String())
	log := zap.L().With(zap.String("url", req.URL.String()))

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := lim.wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		switch {
		case err != nil:
			lastErr = err
			log.Warn("http request failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		case resp.StatusCode == http.StatusTooManyRequests:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http 429 from %s", req.URL.String())
			newRate := lim.onThrottle()
			log.Warn("rate limited (429), backing off",
				zap.Int("attempt", attempt+1),
				zap.Float64("new_rate", float64(newRate)),
			)
		case resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, req.URL.String())
			log.Warn("server error, retrying", zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
		default:
			lim.onSuccess()
			return resp, nil
		}

		if attempt+1 < f.opts.MaxRetries {
			f.backoff(ctx, attempt)
		}
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(f.opts.BackoffBase) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to path, creating parent directories.
// The body is staged in a sibling temp file so an interrupted transfer never leaves a
// truncated file at path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "create parent directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		return n, eris.Wrap(err, "write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "rename file")
	}

	return n, nil
}
