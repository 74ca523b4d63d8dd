package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/skiwithcare/datagen/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	Retry        resilience.RetryConfig
	RateLimiters map[string]*rate.Limiter
	// AdaptiveRates sets the starting rate of adaptive limiters by host,
	// replacing the built-in Overpass mirror defaults for those hosts.
	AdaptiveRates map[string]rate.Limit
	// Transport overrides the default transport; tests use it to redirect
	// fixed upstream hosts to a local server.
	Transport http.RoundTripper
}

// AdaptiveLimiter wraps a rate.Limiter that backs off on 429 responses.
// On success it increases the rate by 20% up to the initial rate; on 429 it
// halves the rate down to initial/4.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%, never above the initial rate: the
// initial rate is the politeness ceiling for the host.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.initialRate {
		newRate = a.initialRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("fetcher: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// DefaultRateLimiters returns fixed per-host ceilings for bulk downloads.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"data.cms.gov": rate.NewLimiter(2, 1),
	}
}

// DefaultAdaptiveLimiters returns adaptive limiters for the public Overpass
// mirrors, which answer 429 when a client queries too often.
func DefaultAdaptiveLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		"overpass-api.de":       NewAdaptiveLimiter(1, 1),
		"overpass.kumi.systems": NewAdaptiveLimiter(1, 1),
	}
}

// HostRates maps the host of each endpoint URL to rps. A non-positive rps
// or an unparsable URL contributes nothing.
func HostRates(endpoints []string, rps float64) map[string]rate.Limit {
	rates := make(map[string]rate.Limit, len(endpoints))
	if rps <= 0 {
		return rates
	}
	for _, e := range endpoints {
		u, err := url.Parse(e)
		if err != nil || u.Hostname() == "" {
			continue
		}
		rates[u.Hostname()] = rate.Limit(rps)
	}
	return rates
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client           *http.Client
	opts             HTTPOptions
	limiters         map[string]*rate.Limiter
	adaptiveLimiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "skiwithcare-datagen/1.0"
	}
	limiters := DefaultRateLimiters()
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	adaptive := DefaultAdaptiveLimiters()
	for host, r := range opts.AdaptiveRates {
		adaptive[host] = NewAdaptiveLimiter(r, 1)
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:             opts,
		limiters:         limiters,
		adaptiveLimiters: adaptive,
	}
}

func (f *HTTPFetcher) adaptiveLimiterFor(u *url.URL) *AdaptiveLimiter {
	return f.adaptiveLimiters[u.Hostname()]
}

func (f *HTTPFetcher) limiterFor(u *url.URL) *rate.Limiter {
	if lim, ok := f.limiters[u.Hostname()]; ok {
		return lim
	}
	return nil
}

func (f *HTTPFetcher) wait(ctx context.Context, u *url.URL) error {
	if adaptive := f.adaptiveLimiterFor(u); adaptive != nil {
		return adaptive.Wait(ctx)
	}
	if lim := f.limiterFor(u); lim != nil {
		return lim.Wait(ctx)
	}
	return nil
}

// do sends the request built by newReq, waiting on the host limiter before
// every attempt and retrying transient failures.
func (f *HTTPFetcher) do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) (io.ReadCloser, error) {
	retry := f.opts.Retry
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (io.ReadCloser, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		if err := f.wait(ctx, req.URL); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		resp, err := f.client.Do(req)
		if err != nil {
			zap.L().Warn("fetcher: request failed",
				zap.String("url", req.URL.String()),
				zap.Error(err),
			)
			return nil, eris.Wrapf(err, "fetcher: %s %s", req.Method, req.URL.Redacted())
		}

		adaptive := f.adaptiveLimiterFor(req.URL)
		if err := resilience.CheckResponse("fetcher: "+req.URL.Host, resp); err != nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests && adaptive != nil {
				adaptive.OnRateLimit()
			}
			return nil, err
		}
		if adaptive != nil {
			adaptive.OnSuccess()
		}
		return resp.Body, nil
	})
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	body, err := f.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}
	return body, nil
}

// PostForm submits form as application/x-www-form-urlencoded.
func (f *HTTPFetcher) PostForm(ctx context.Context, rawURL string, form url.Values) (io.ReadCloser, error) {
	encoded := form.Encode()
	body, err := f.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: post %s", rawURL)
	}
	return body, nil
}
