package geocode

import (
	"context"
	"io"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/skiwithcare/datagen/internal/resilience"
)

// fetch runs one HTTP exchange under p and returns the body. newReq is called
// per attempt so request bodies are rebuilt on retry.
func fetch(ctx context.Context, hc *http.Client, p resilience.Policy, operation string, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	return resilience.Call(ctx, p, operation, func(ctx context.Context) ([]byte, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s build request", p.Service)
		}

		resp, err := hc.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s request", p.Service)
		}
		defer resp.Body.Close() //nolint:errcheck

		if err := resilience.CheckResponse(p.Service, resp); err != nil {
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "geocode: %s read body", p.Service), 0)
		}
		return body, nil
	})
}

func getURL(rawURL string, header http.Header) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		return req, nil
	}
}
