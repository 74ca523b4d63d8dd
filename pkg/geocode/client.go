// Package geocode resolves facility addresses and resort names to coordinates.
// Addresses go to the Census Geocoder (single and batch) with Google as an
// optional fallback or to a local PostGIS TIGER install. Resort names go to
// OpenStreetMap Nominatim.
package geocode

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/geo"
	"github.com/skiwithcare/datagen/internal/resilience"
)

// Client geocodes street addresses.
type Client interface {
	// Geocode geocodes a single address. An address the service cannot place
	// is an unmatched Result, not an error.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// BatchGeocode geocodes addresses in order; results[i] belongs to addrs[i].
	BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error)
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	ID      string // Optional identifier for batch correlation
	Street  string
	City    string
	State   string
	ZipCode string
}

// OneLine formats the address as "street, city, state zip", skipping blanks.
func (a AddressInput) OneLine() string {
	stateZip := strings.TrimSpace(strings.TrimSpace(a.State) + " " + strings.TrimSpace(a.ZipCode))
	var parts []string
	for _, p := range []string{a.Street, a.City, stateZip} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Result holds the geocoding output for an address or place.
type Result struct {
	Latitude   float64
	Longitude  float64
	Source     string // "census", "google", "nominatim" or "tiger"
	Quality    string // "rooftop", "range", "centroid", "approximate"
	Matched    bool
	Query      string // the query text sent upstream
	Rating     int    // TIGER rating, lower is better
	CountyFIPS string
}

// Coordinate returns the matched location. Unmatched results and out of
// range coordinates report false.
func (r Result) Coordinate() (geo.Coordinate, bool) {
	if !r.Matched {
		return geo.Coordinate{}, false
	}
	c := geo.Coordinate{Lat: r.Latitude, Lon: r.Longitude}
	return c, c.Valid()
}

const (
	// DefaultCensusInterval is the minimum gap between Census requests.
	DefaultCensusInterval = 300 * time.Millisecond
	// maxCensusBatch is the Census batch endpoint's row limit.
	maxCensusBatch = 10000
)

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second ceiling for Census and Google
// calls. rps <= 0 removes the ceiling.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.rps = rps
	}
}

// WithRetry sets the retry schedule for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *geocoder) {
		g.retry = cfg
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	rps        float64
	retry      resilience.RetryConfig

	census resilience.Policy
	google resilience.Policy
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	return newGeocoder(opts...)
}

func newGeocoder(opts ...Option) *geocoder {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		rps:        resilience.Every(DefaultCensusInterval),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.census = resilience.NewPolicy("census", g.rps, g.retry)
	g.google = resilience.NewPolicy("google", g.rps, g.retry)
	return g
}

// Geocode geocodes a single address, trying Census first, then Google if configured.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	result, censusErr := g.geocodeCensus(ctx, addr)
	if censusErr == nil && result.Matched {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "geocode: cancelled")
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, addr)
		if googleErr == nil && (googleResult.Matched || censusErr != nil) {
			return googleResult, nil
		}
		if censusErr == nil && googleErr != nil {
			zap.L().Debug("geocode: google fallback failed",
				zap.String("address", addr.OneLine()), zap.Error(googleErr))
		}
	}

	if censusErr != nil {
		return nil, censusErr
	}
	return result, nil
}

// BatchGeocode geocodes addresses through the Census batch API, falling back
// to single lookups when a batch request fails and to Google for the rows
// Census could not match.
func (g *geocoder) BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(addrs))
	for start := 0; start < len(addrs); start += maxCensusBatch {
		end := min(start+maxCensusBatch, len(addrs))
		chunk, err := g.batchChunk(ctx, addrs[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}

	if g.googleKey != "" {
		for i, r := range results {
			if r.Matched {
				continue
			}
			googleResult, err := g.geocodeGoogle(ctx, addrs[i])
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "geocode: cancelled")
			}
			if err == nil && googleResult.Matched {
				results[i] = *googleResult
			}
		}
	}

	return results, nil
}

func (g *geocoder) batchChunk(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	// Batch rows are correlated by position so caller ids never need to be unique.
	keyed := make([]AddressInput, len(addrs))
	for i, addr := range addrs {
		addr.ID = strconv.Itoa(i)
		keyed[i] = addr
	}

	results, err := g.batchGeocodeCensus(ctx, keyed)
	if err == nil {
		return results, nil
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "geocode: cancelled")
	}

	zap.L().Warn("geocode: census batch failed, falling back to single lookups",
		zap.Int("addresses", len(addrs)), zap.Error(err))

	results = make([]Result, len(addrs))
	for i, addr := range addrs {
		r, geocodeErr := g.geocodeCensus(ctx, addr)
		if geocodeErr != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "geocode: cancelled")
			}
			zap.L().Debug("geocode: census single lookup failed",
				zap.String("address", addr.OneLine()), zap.Error(geocodeErr))
			results[i] = unmatched("census", addr.OneLine())
			continue
		}
		results[i] = *r
	}
	return results, nil
}

func unmatched(source, query string) Result {
	return Result{Matched: false, Source: source, Query: query}
}
