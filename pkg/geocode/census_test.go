package geocode

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiwithcare/datagen/internal/resilience"
)

const vailHealthMatch = `{
	"result": {
		"addressMatches": [{
			"coordinates": {"x": -106.3755, "y": 39.6422},
			"matchedAddress": "180 S FRONTAGE RD W, VAIL, CO, 81657"
		}]
	}
}`

func TestCensusSingleGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "180 S Frontage Rd W, Vail, CO 81657", r.URL.Query().Get("address"))
		assert.Equal(t, censusBenchmark, r.URL.Query().Get("benchmark"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, vailHealthMatch)
	}))
	defer srv.Close()

	g := newTestGeocoder(newRewriteClient(srv.URL, censusOneLineURL))
	result, err := g.geocodeCensus(context.Background(), AddressInput{
		Street: "180 S Frontage Rd W", City: "Vail", State: "CO", ZipCode: "81657",
	})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 39.6422, result.Latitude, 0.0001)
	assert.InDelta(t, -106.3755, result.Longitude, 0.0001)
	assert.Equal(t, "census", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
	assert.Equal(t, "180 S Frontage Rd W, Vail, CO 81657", result.Query)
}

func TestCensusSingleGeocode_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer srv.Close()

	g := newTestGeocoder(newRewriteClient(srv.URL, censusOneLineURL))
	result, err := g.geocodeCensus(context.Background(), AddressInput{
		Street: "1 Nowhere Rd", City: "Faketown", State: "CO", ZipCode: "00000",
	})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, "census", result.Source)
}

func TestCensusSingleGeocode_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, vailHealthMatch)
	}))
	defer srv.Close()

	g := newTestGeocoder(newRewriteClient(srv.URL, censusOneLineURL))
	result, err := g.geocodeCensus(context.Background(), AddressInput{Street: "180 S Frontage Rd W", City: "Vail", State: "CO"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCensusSingleGeocode_ExhaustedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := newTestGeocoder(newRewriteClient(srv.URL, censusOneLineURL))
	_, err := g.geocodeCensus(context.Background(), AddressInput{Street: "180 S Frontage Rd W", City: "Vail", State: "CO"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestCensusSingleGeocode_EmptyAddressSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected")
	}))
	defer srv.Close()

	g := newTestGeocoder(newRewriteClient(srv.URL, censusOneLineURL))
	result, err := g.geocodeCensus(context.Background(), AddressInput{})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestCensusBatch_MixedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, censusBenchmark, r.FormValue("benchmark"))

		f, _, err := r.FormFile("addressFile")
		require.NoError(t, err)
		rows, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"0", "360 Peak One Dr, Ste 100", "Frisco", "CO", "80443"}, rows[0])

		// Response rows come back in any order.
		_, _ = io.WriteString(w, `"1","1 Nowhere Rd, Faketown, CO, 00000","No_Match"
"0","360 Peak One Dr, Ste 100, Frisco, CO, 80443","Match","Exact","360 PEAK ONE DR, FRISCO, CO, 80443","-106.0936,39.5744","123","L"
`)
	}))
	defer srv.Close()

	g := newTestGeocoder(newRewriteClient(srv.URL, censusBatchURL))
	addrs := []AddressInput{
		{ID: "0", Street: "360 Peak One Dr, Ste 100", City: "Frisco", State: "CO", ZipCode: "80443"},
		{ID: "1", Street: "1 Nowhere Rd", City: "Faketown", State: "CO", ZipCode: "00000"},
	}

	results, err := g.batchGeocodeCensus(context.Background(), addrs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Matched)
	assert.InDelta(t, 39.5744, results[0].Latitude, 0.0001)
	assert.InDelta(t, -106.0936, results[0].Longitude, 0.0001)
	assert.Equal(t, "rooftop", results[0].Quality)
	assert.Equal(t, "360 Peak One Dr, Ste 100, Frisco, CO 80443", results[0].Query)

	assert.False(t, results[1].Matched)
	assert.Equal(t, "census", results[1].Source)
}

func TestParseCensusBatchResponse(t *testing.T) {
	body := `"0","input addr","Match","Non_Exact","matched","-105.9503,39.6386","999","R"
"1","input addr","No_Match"
"7","unknown id","Match","Exact","matched","-1,1","1","L"
"2","input addr","Match","Exact","matched","garbage","1","L"`

	results, err := parseCensusBatchResponse(strings.NewReader(body), map[string]int{"0": 0, "1": 1, "2": 2}, 4)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, results[0].Matched)
	assert.Equal(t, "range", results[0].Quality)
	assert.InDelta(t, 39.6386, results[0].Latitude, 0.0001)
	assert.InDelta(t, -105.9503, results[0].Longitude, 0.0001)

	assert.False(t, results[1].Matched)
	assert.False(t, results[2].Matched, "unparseable coordinates stay unmatched")
	assert.False(t, results[3].Matched, "rows absent from the response stay unmatched")
}

func TestAddressInput_OneLine(t *testing.T) {
	tests := []struct {
		addr     AddressInput
		expected string
	}{
		{
			AddressInput{Street: "1000 Lionshead Pl", City: "Vail", State: "CO", ZipCode: "81657"},
			"1000 Lionshead Pl, Vail, CO 81657",
		},
		{
			AddressInput{Street: "1 Hospital Dr", City: "Bend", State: "OR"},
			"1 Hospital Dr, Bend, OR",
		},
		{
			AddressInput{City: "Park City", State: "UT", ZipCode: "84060"},
			"Park City, UT 84060",
		},
		{
			AddressInput{Street: "  ", ZipCode: "05401"},
			"05401",
		},
		{AddressInput{}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.addr.OneLine())
	}
}

func TestResult_Coordinate(t *testing.T) {
	c, ok := Result{Matched: true, Latitude: 39.6, Longitude: -106.4}.Coordinate()
	assert.True(t, ok)
	assert.InDelta(t, 39.6, c.Lat, 1e-9)

	_, ok = Result{Matched: false, Latitude: 39.6, Longitude: -106.4}.Coordinate()
	assert.False(t, ok)

	_, ok = Result{Matched: true, Latitude: 139.6, Longitude: -106.4}.Coordinate()
	assert.False(t, ok)
}
