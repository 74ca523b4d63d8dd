package geocode

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBatchURL   = "https://geocoding.geo.census.gov/geocoder/locations/addressbatch"
	censusBenchmark  = "Public_AR_Current"
)

// censusOneLineResponse is the JSON response from the Census single-address API.
type censusOneLineResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	MatchedAddress string `json:"matchedAddress"`
}

// geocodeCensus geocodes a single address using the Census one-line API.
func (g *geocoder) geocodeCensus(ctx context.Context, addr AddressInput) (*Result, error) {
	oneLine := addr.OneLine()
	if oneLine == "" {
		r := unmatched("census", "")
		return &r, nil
	}

	params := url.Values{
		"address":   {oneLine},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}
	body, err := fetch(ctx, g.httpClient, g.census, "onelineaddress", getURL(censusOneLineURL+"?"+params.Encode(), nil))
	if err != nil {
		return nil, err
	}

	var censusResp censusOneLineResponse
	if err := json.Unmarshal(body, &censusResp); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}

	if len(censusResp.Result.AddressMatches) == 0 {
		r := unmatched("census", oneLine)
		return &r, nil
	}

	match := censusResp.Result.AddressMatches[0]
	return &Result{
		Latitude:  match.Coordinates.Y,
		Longitude: match.Coordinates.X,
		Source:    "census",
		Quality:   "rooftop", // one-line matches are exact address matches
		Matched:   true,
		Query:     oneLine,
	}, nil
}

// batchGeocodeCensus geocodes up to 10,000 addresses via the Census batch API.
// Every addrs[i].ID must be unique within the call.
func (g *geocoder) batchGeocodeCensus(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	// Upload CSV: id,street,city,state,zip
	var rows bytes.Buffer
	w := csv.NewWriter(&rows)
	idToIdx := make(map[string]int, len(addrs))
	for i, addr := range addrs {
		idToIdx[addr.ID] = i
		if err := w.Write([]string{addr.ID, addr.Street, addr.City, addr.State, addr.ZipCode}); err != nil {
			return nil, eris.Wrap(err, "geocode: census batch write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch write csv")
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	if err := writer.WriteField("benchmark", censusBenchmark); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch write benchmark")
	}
	part, err := writer.CreateFormFile("addressFile", "addresses.csv")
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch create form file")
	}
	if _, err := part.Write(rows.Bytes()); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch write csv")
	}
	if err := writer.Close(); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch close writer")
	}
	payload := form.Bytes()
	contentType := writer.FormDataContentType()

	body, err := fetch(ctx, g.httpClient, g.census, "addressbatch", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, censusBatchURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	results, err := parseCensusBatchResponse(bytes.NewReader(body), idToIdx, len(addrs))
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Query = addrs[i].OneLine()
	}
	return results, nil
}

// parseCensusBatchResponse parses the Census batch CSV response.
// Format: "id","input address","match","exact/non_exact","matched address","lon,lat",tigerlineid,side
// Rows missing from the response stay unmatched.
func parseCensusBatchResponse(r io.Reader, idToIdx map[string]int, total int) ([]Result, error) {
	results := make([]Result, total)
	for i := range results {
		results[i] = unmatched("census", "")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "geocode: census batch parse response")
		}
		if len(fields) < 6 {
			continue
		}

		idx, ok := idToIdx[strings.TrimSpace(fields[0])]
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(fields[2]), "Match") {
			continue
		}

		lon, lat, parseErr := parseCensusCoords(fields[5])
		if parseErr != nil {
			continue
		}

		results[idx] = Result{
			Latitude:  lat,
			Longitude: lon,
			Source:    "census",
			Quality:   censusBatchQuality(fields[3]),
			Matched:   true,
		}
	}

	return results, nil
}

// censusBatchQuality maps Census batch match exactness to quality.
func censusBatchQuality(exactness string) string {
	switch strings.ToLower(strings.TrimSpace(exactness)) {
	case "exact":
		return "rooftop"
	default:
		return "range"
	}
}

// parseCensusCoords parses "lon,lat" from Census batch response.
func parseCensusCoords(coords string) (lon, lat float64, err error) {
	parts := strings.SplitN(coords, ",", 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("geocode: invalid census coords %q", coords)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lon")
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lat")
	}
	return lon, lat, nil
}
