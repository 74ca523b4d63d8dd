package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// geocodeGoogle geocodes a single address using the Google Geocoding API.
func (g *geocoder) geocodeGoogle(ctx context.Context, addr AddressInput) (*Result, error) {
	if g.googleKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	oneLine := addr.OneLine()
	params := url.Values{
		"address": {oneLine},
		"key":     {g.googleKey},
	}
	body, err := fetch(ctx, g.httpClient, g.google, "geocode", getURL(googleGeocodeURL+"?"+params.Encode(), nil))
	if err != nil {
		return nil, err
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch googleResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		r := unmatched("google", oneLine)
		return &r, nil
	default:
		// REQUEST_DENIED, OVER_QUERY_LIMIT and friends are not answers about the address.
		return nil, eris.Errorf("geocode: google status %s", googleResp.Status)
	}
	if len(googleResp.Results) == 0 {
		r := unmatched("google", oneLine)
		return &r, nil
	}

	result := googleResp.Results[0]
	return &Result{
		Latitude:  result.Geometry.Location.Lat,
		Longitude: result.Geometry.Location.Lng,
		Source:    "google",
		Quality:   googleLocationTypeToQuality(result.Geometry.LocationType),
		Matched:   true,
		Query:     oneLine,
	}, nil
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
