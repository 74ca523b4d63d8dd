package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/skiwithcare/datagen/internal/resilience"
)

const (
	// DefaultNominatimURL is the public OSM search endpoint.
	DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"
	// DefaultUserAgent identifies the project to Nominatim, whose usage policy
	// rejects anonymous clients.
	DefaultUserAgent = "skiwithcare/2.0 (personal project)"
	// DefaultNominatimInterval keeps under the one request per second policy.
	DefaultNominatimInterval = 1100 * time.Millisecond
)

// PlaceInput is a named place inside a US state.
type PlaceInput struct {
	Name  string
	State string
}

// Query is the free-text search sent upstream, e.g. "Vail, CO, USA".
func (p PlaceInput) Query() string {
	return fmt.Sprintf("%s, %s, USA", p.Name, p.State)
}

// PlaceGeocoder geocodes named places.
type PlaceGeocoder interface {
	GeocodePlace(ctx context.Context, place PlaceInput) (*Result, error)
}

// NominatimOption configures a Nominatim geocoder.
type NominatimOption func(*Nominatim)

// WithNominatimURL points the geocoder at another Nominatim instance.
func WithNominatimURL(u string) NominatimOption {
	return func(n *Nominatim) { n.baseURL = u }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) NominatimOption {
	return func(n *Nominatim) { n.userAgent = ua }
}

// WithNominatimHTTPClient sets the HTTP client.
func WithNominatimHTTPClient(hc *http.Client) NominatimOption {
	return func(n *Nominatim) { n.httpClient = hc }
}

// WithNominatimRateLimit sets the request ceiling. rps <= 0 removes it.
func WithNominatimRateLimit(rps float64) NominatimOption {
	return func(n *Nominatim) { n.rps = rps }
}

// WithNominatimRetry sets the retry schedule for transient failures.
func WithNominatimRetry(cfg resilience.RetryConfig) NominatimOption {
	return func(n *Nominatim) { n.retry = cfg }
}

// Nominatim geocodes resort names through OpenStreetMap Nominatim.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	rps        float64
	retry      resilience.RetryConfig
	policy     resilience.Policy
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Class       string `json:"class"`
	Type        string `json:"type"`
}

// NewNominatim creates a Nominatim geocoder. An empty User-Agent is an error.
func NewNominatim(opts ...NominatimOption) (*Nominatim, error) {
	n := &Nominatim{
		baseURL:    DefaultNominatimURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		rps:        resilience.Every(DefaultNominatimInterval),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if strings.TrimSpace(n.userAgent) == "" {
		return nil, eris.New("geocode: nominatim requires a user agent")
	}
	n.policy = resilience.NewPolicy("nominatim", n.rps, n.retry)
	return n, nil
}

// GeocodePlace implements PlaceGeocoder. No search hit is an unmatched Result.
func (n *Nominatim) GeocodePlace(ctx context.Context, place PlaceInput) (*Result, error) {
	query := place.Query()
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	header := http.Header{"User-Agent": {n.userAgent}}

	body, err := fetch(ctx, n.httpClient, n.policy, "search", getURL(n.baseURL+"?"+params.Encode(), header))
	if err != nil {
		return nil, err
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(places) == 0 {
		r := unmatched("nominatim", query)
		return &r, nil
	}

	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(places[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, eris.Errorf("geocode: nominatim returned bad coordinates %q,%q", places[0].Lat, places[0].Lon)
	}

	return &Result{
		Latitude:  lat,
		Longitude: lon,
		Source:    "nominatim",
		Quality:   "centroid",
		Matched:   true,
		Query:     query,
	}, nil
}
