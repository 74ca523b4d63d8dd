// Package fetcher downloads facility tables and query results over HTTP and
// parses CSV and JSON bodies.
package fetcher

import (
	"context"
	"io"
	"net/url"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// PostForm submits form values to the URL and returns the response body.
	PostForm(ctx context.Context, url string, form url.Values) (io.ReadCloser, error)
}
