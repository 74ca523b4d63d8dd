package geocode

import (
	"net/http"
	"strings"
	"time"

	"github.com/skiwithcare/datagen/internal/resilience"
)

// fastRetry retries transient failures without waiting.
func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

// newTestGeocoder builds an unthrottled geocoder on hc.
func newTestGeocoder(hc *http.Client, opts ...Option) *geocoder {
	opts = append([]Option{WithHTTPClient(hc), WithRateLimit(0), WithRetry(fastRetry())}, opts...)
	return newGeocoder(opts...)
}

// newRewriteClient creates an HTTP client that rewrites requests to a test server URL.
// All requests matching the target prefix are redirected to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:     http.DefaultTransport,
			rewrites: map[string]string{targetPrefix: testServerURL},
		},
	}
}

// newMultiRewriteClient redirects each upstream prefix to its own test server.
func newMultiRewriteClient(rewrites map[string]string) *http.Client {
	return &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, rewrites: rewrites}}
}

type rewriteTransport struct {
	base     http.RoundTripper
	rewrites map[string]string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	for prefix, testURL := range t.rewrites {
		if !strings.HasPrefix(origURL, prefix) {
			continue
		}
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(testURL + origURL[len(prefix):])
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}
