package source

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/stretchr/testify/mock"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	args := m.Called(ctx, rawURL)
	return readCloser(args.Get(0)), args.Error(1)
}

func (m *mockFetcher) PostForm(ctx context.Context, rawURL string, form url.Values) (io.ReadCloser, error) {
	args := m.Called(ctx, rawURL, form)
	return readCloser(args.Get(0)), args.Error(1)
}

// readCloser unpacks a mocked body. A func() io.ReadCloser yields a fresh
// body per call for expectations that repeat.
func readCloser(v any) io.ReadCloser {
	switch b := v.(type) {
	case nil:
		return nil
	case func() io.ReadCloser:
		return b()
	default:
		return b.(io.ReadCloser)
	}
}

func body(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func fresh(s string) func() io.ReadCloser {
	return func() io.ReadCloser { return body(s) }
}

// queryFor matches an Overpass form whose query targets the named state.
func queryFor(state string) any {
	return mock.MatchedBy(func(form url.Values) bool {
		return strings.Contains(form.Get("data"), `area["name"="`+state+`"]`)
	})
}
