package build

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skiwithcare/datagen/internal/geo"
	"github.com/skiwithcare/datagen/internal/geocache"
	"github.com/skiwithcare/datagen/internal/jsonfile"
	"github.com/skiwithcare/datagen/internal/model"
	"github.com/skiwithcare/datagen/internal/schemas"
	"github.com/skiwithcare/datagen/internal/source"
	"github.com/skiwithcare/datagen/pkg/geocode"
)

var coloradoResorts = []model.Resort{
	resort("Vail", "CO", at(39.64, -106.37)),
	resort("Aspen", "CO", at(39.19, -106.82)),
}

func newFacilityBuilder(t *testing.T, src *facilityList, addrs geocode.Client, caches Caches, maxDistance float64) *Builder {
	t.Helper()
	reg := source.NewRegistry()
	reg.RegisterFacilities(src)
	b := New(reg, nil, addrs, caches, Options{
		OutputDir:           t.TempDir(),
		HospitalSource:      src.name,
		ClinicSource:        src.name,
		HospitalMaxDistance: maxDistance,
		ClinicMaxDistance:   maxDistance,
		BatchSize:           100,
	})
	b.UseResorts(coloradoResorts)
	return b
}

func readFacilities(t *testing.T, path string) []model.Facility {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []model.Facility
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestBuildFacilities_NearestResortCutoff(t *testing.T) {
	hospital := model.Facility{
		ID:           "060001",
		Kind:         model.KindHospital,
		Name:         "Valley Medical",
		Address:      "181 W MEADOW DR",
		City:         "VAIL",
		State:        "CO",
		Zip:          "81657",
		HasEmergency: true,
		Coordinate:   at(39.60, -106.40),
	}

	t.Run("within range", func(t *testing.T) {
		src := &facilityList{name: "cms", kind: model.KindHospital, facilities: []model.Facility{hospital}}
		b := newFacilityBuilder(t, src, nil, Caches{}, 75)

		stats, err := b.BuildFacilities(context.Background(), model.KindHospital)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Supplied)
		assert.Equal(t, 1, stats.Matched)
		assert.Equal(t, 1, stats.Emitted)

		got := readFacilities(t, b.OutputPath("hospitals"))
		require.Len(t, got, 1)
		require.NotNil(t, got[0].Nearest)
		assert.Equal(t, "Vail", got[0].Nearest.Name)
		assert.Less(t, got[0].Nearest.DistanceMiles, 10.0)
		assert.True(t, got[0].HasEmergency)
	})

	t.Run("beyond cutoff", func(t *testing.T) {
		src := &facilityList{name: "cms", kind: model.KindHospital, facilities: []model.Facility{hospital}}
		b := newFacilityBuilder(t, src, nil, Caches{}, 1)

		stats, err := b.BuildFacilities(context.Background(), model.KindHospital)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Beyond)
		assert.Equal(t, 0, stats.Emitted)

		data, err := os.ReadFile(b.OutputPath("hospitals"))
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(data))
	})
}

func TestBuildFacilities_DistancePrecisionByKind(t *testing.T) {
	site := at(39.60, -106.40)
	d := geo.Distance(*site, *coloradoResorts[0].Coordinate)
	require.NotEqual(t, geo.Round(d, 1), geo.Round(d, 2))

	tests := []struct {
		kind   model.FacilityKind
		places int
	}{
		{model.KindHospital, 1},
		{model.KindClinic, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			f := clinic("060001", "Valley Care", "VAIL", "CO", model.ProviderIndependent)
			f.Kind = tt.kind
			if tt.kind == model.KindHospital {
				f.Provider = ""
			}
			f.Coordinate = site
			src := &facilityList{name: "cms", kind: tt.kind, facilities: []model.Facility{f}}
			b := newFacilityBuilder(t, src, nil, Caches{}, 75)

			_, err := b.BuildFacilities(context.Background(), tt.kind)
			require.NoError(t, err)

			got := readFacilities(t, b.OutputPath(tt.kind.Dataset()))
			require.Len(t, got, 1)
			require.NotNil(t, got[0].Nearest)
			assert.Equal(t, "Vail", got[0].Nearest.Name)
			assert.Equal(t, geo.Round(d, tt.places), got[0].Nearest.DistanceMiles)
		})
	}
}

func TestBuildFacilities_GeocodesCacheMisses(t *testing.T) {
	resorts := append([]model.Resort{resort("Park City", "UT", at(40.6514, -111.508))}, coloradoResorts...)

	vail := clinic("C1", "DAVITA VAIL", "VAIL", "CO", model.ProviderDaVita)
	parkCity := clinic("C2", "FMC PARK CITY", "PARK CITY", "UT", model.ProviderFresenius)
	bronx := clinic("C3", "ROGOSIN", "BRONX", "NY", model.ProviderIndependent)
	known := clinic("C4", "NOWHERE DIALYSIS", "NOWHERE", "CO", model.ProviderOther)
	miami := clinic("C5", "MIAMI DIALYSIS", "MIAMI", "FL", model.ProviderDaVita)
	miami.Coordinate = at(25.76, -80.19)

	cache := geocache.NewMemory()
	cache.Store("C1", geocache.Resolved(geo.Coordinate{Lat: 39.6433, Lon: -106.3781}, "1 MAIN ST, VAIL, CO 00000"))
	cache.Store("C4", geocache.Failed("1 MAIN ST, NOWHERE, CO 00000"))

	addrs := &mockAddresses{}
	addrs.On("BatchGeocode", mock.Anything, withIDs("C2", "C3")).
		Return([]geocode.Result{matched(40.6461, -111.4980), {Source: "census"}}, nil).Once()

	src := &facilityList{name: "cms", kind: model.KindClinic, facilities: []model.Facility{vail, parkCity, bronx, known, miami, vail}}
	b := newFacilityBuilder(t, src, addrs, Caches{Clinics: cache}, 200)
	b.UseResorts(resorts)

	stats, err := b.BuildFacilities(context.Background(), model.KindClinic)
	require.NoError(t, err)
	addrs.AssertExpectations(t)

	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Supplied)
	assert.Equal(t, 2, stats.Cached)
	assert.Equal(t, 1, stats.Geocoded)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 1, stats.Beyond)
	assert.Equal(t, 2, stats.Emitted)

	got := readFacilities(t, b.OutputPath("clinics"))
	require.Len(t, got, 2)
	assert.Equal(t, "C1", got[0].ID)
	assert.Equal(t, "Vail", got[0].Nearest.Name)
	assert.Equal(t, "C2", got[1].ID)
	assert.Equal(t, "Park City", got[1].Nearest.Name)
	assert.Equal(t, model.ProviderFresenius, got[1].Provider)

	e, ok := cache.Lookup("C2")
	require.True(t, ok)
	assert.True(t, e.Resolved())
	assert.Equal(t, "1 MAIN ST, PARK CITY, UT 00000", e.Query)
	e, ok = cache.Lookup("C3")
	require.True(t, ok)
	assert.False(t, e.Resolved())
	_, ok = cache.Lookup("C5")
	assert.False(t, ok, "supplied coordinates are not cached")

	data, err := os.ReadFile(b.OutputPath("clinics"))
	require.NoError(t, err)
	assert.NoError(t, schemas.ValidateBytes("clinics", data))
}

func TestBuildFacilities_BatchFailureSkipsBatch(t *testing.T) {
	addrs := &mockAddresses{}
	addrs.On("BatchGeocode", mock.Anything, withIDs("C1")).
		Return(nil, errors.New("census: 502 after retries")).Once()
	addrs.On("BatchGeocode", mock.Anything, withIDs("C2")).
		Return([]geocode.Result{matched(39.61, -106.39)}, nil).Once()

	cache := geocache.NewMemory()
	src := &facilityList{name: "cms", kind: model.KindClinic, facilities: []model.Facility{
		clinic("C1", "A", "EAGLE", "CO", model.ProviderDaVita),
		clinic("C2", "B", "VAIL", "CO", model.ProviderDaVita),
	}}
	b := newFacilityBuilder(t, src, addrs, Caches{Clinics: cache}, 75)
	b.opts.BatchSize = 1

	stats, err := b.BuildFacilities(context.Background(), model.KindClinic)
	require.NoError(t, err)
	addrs.AssertExpectations(t)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Emitted)
	_, ok := cache.Lookup("C1")
	assert.False(t, ok, "a failed batch is retried next run")
	_, ok = cache.Lookup("C2")
	assert.True(t, ok)
}

func TestBuildFacilities_ShortBatchResult(t *testing.T) {
	addrs := &mockAddresses{}
	addrs.On("BatchGeocode", mock.Anything, mock.Anything).Return([]geocode.Result{}, nil).Once()

	cache := geocache.NewMemory()
	src := &facilityList{name: "cms", kind: model.KindClinic, facilities: []model.Facility{
		clinic("C1", "A", "EAGLE", "CO", model.ProviderDaVita),
	}}
	b := newFacilityBuilder(t, src, addrs, Caches{Clinics: cache}, 75)

	stats, err := b.BuildFacilities(context.Background(), model.KindClinic)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, cache.Len())
}

func TestBuildFacilities_CancelSavesCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cachePath := filepath.Join(t.TempDir(), "dialysis_cache.json")
	cache := geocache.New(cachePath)

	addrs := &mockAddresses{}
	addrs.On("BatchGeocode", mock.Anything, withIDs("C1")).
		Return([]geocode.Result{matched(39.61, -106.39)}, nil).Once()
	addrs.On("BatchGeocode", mock.Anything, withIDs("C2")).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	src := &facilityList{name: "cms", kind: model.KindClinic, facilities: []model.Facility{
		clinic("C1", "A", "EAGLE", "CO", model.ProviderDaVita),
		clinic("C2", "B", "VAIL", "CO", model.ProviderDaVita),
		clinic("C3", "C", "AVON", "CO", model.ProviderDaVita),
	}}
	b := newFacilityBuilder(t, src, addrs, Caches{Clinics: cache}, 75)
	b.opts.BatchSize = 1

	_, err := b.BuildFacilities(ctx, model.KindClinic)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, b.OutputPath("clinics"))

	reloaded, err := geocache.Open(cachePath)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
	_, ok := reloaded.Lookup("C1")
	assert.True(t, ok)
}

func TestBuildFacilities_SourceFailureKeepsOutput(t *testing.T) {
	src := &facilityList{name: "cms", kind: model.KindHospital, err: errors.New("cms: 503")}
	b := newFacilityBuilder(t, src, nil, Caches{}, 75)

	previous := []byte("[{\"previous\":true}]\n")
	require.NoError(t, jsonfile.WriteBytes(b.OutputPath("hospitals"), previous))

	_, err := b.BuildFacilities(context.Background(), model.KindHospital)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load hospitals from cms")

	data, err := os.ReadFile(b.OutputPath("hospitals"))
	require.NoError(t, err)
	assert.Equal(t, previous, data)
}

func TestBuildFacilities_EmptySource(t *testing.T) {
	src := &facilityList{name: "cms", kind: model.KindClinic}
	b := newFacilityBuilder(t, src, nil, Caches{}, 75)

	_, err := b.BuildFacilities(context.Background(), model.KindClinic)
	require.ErrorIs(t, err, ErrNoFacilities)
	assert.NoFileExists(t, b.OutputPath("clinics"))
}

func TestBuildFacilities_UnknownSource(t *testing.T) {
	src := &facilityList{name: "cms", kind: model.KindHospital}
	b := newFacilityBuilder(t, src, nil, Caches{}, 75)
	b.opts.ClinicSource = "osm"

	_, err := b.BuildFacilities(context.Background(), model.KindClinic)
	assert.ErrorIs(t, err, source.ErrUnknownSource)
}

func TestBuildFacilities_ReadsBuiltResorts(t *testing.T) {
	hospital := model.Facility{
		ID: "060001", Kind: model.KindHospital, Name: "Valley Medical",
		City: "VAIL", State: "CO", Coordinate: at(39.60, -106.40),
	}
	reg := source.NewRegistry()
	reg.RegisterFacilities(&facilityList{name: "cms", kind: model.KindHospital, facilities: []model.Facility{hospital}})
	b := New(reg, nil, nil, Caches{}, Options{OutputDir: t.TempDir(), HospitalSource: "cms", HospitalMaxDistance: 75})

	_, err := b.BuildFacilities(context.Background(), model.KindHospital)
	require.Error(t, err, "no resorts.json yet")

	require.NoError(t, jsonfile.Write(b.OutputPath("resorts"), coloradoResorts))
	stats, err := b.BuildFacilities(context.Background(), model.KindHospital)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Emitted)
}

func TestBuildFacilities_NoResorts(t *testing.T) {
	src := &facilityList{name: "cms", kind: model.KindHospital}
	b := newFacilityBuilder(t, src, nil, Caches{}, 75)
	b.UseResorts([]model.Resort{model.NewResort("Vail", "CO", model.PassEpic, model.RegionRockies)})

	_, err := b.BuildFacilities(context.Background(), model.KindHospital)
	assert.ErrorIs(t, err, ErrNoResorts)
}

func TestBuildFacilities_GeoJSON(t *testing.T) {
	src := &facilityList{name: "cms", kind: model.KindClinic, facilities: []model.Facility{
		func() model.Facility {
			f := clinic("C1", "DAVITA VAIL", "VAIL", "CO", model.ProviderDaVita)
			f.Coordinate = at(39.6433, -106.3781)
			return f
		}(),
	}}
	b := newFacilityBuilder(t, src, nil, Caches{}, 75)
	b.opts.GeoJSON = true

	_, err := b.BuildFacilities(context.Background(), model.KindClinic)
	require.NoError(t, err)

	data, err := os.ReadFile(b.geoJSONPath("clinics"))
	require.NoError(t, err)
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID         string         `json:"id"`
			Properties map[string]any `json:"properties"`
			Geometry   struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "C1", fc.Features[0].ID)
	assert.Equal(t, []float64{-106.3781, 39.6433}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "davita", fc.Features[0].Properties["provider"])
	assert.Equal(t, "Vail", fc.Features[0].Properties["nearestResort"])
}

func TestSortFacilities(t *testing.T) {
	list := []model.Facility{
		{ID: "3", State: "UT", City: "PARK CITY", Name: "A"},
		{ID: "2", State: "CO", City: "VAIL", Name: "B"},
		{ID: "1", State: "CO", City: "VAIL", Name: "B"},
		{ID: "4", State: "CO", City: "ASPEN", Name: "Z"},
	}
	SortFacilities(list)

	ids := make([]string, len(list))
	for i, f := range list {
		ids[i] = f.ID
	}
	assert.Equal(t, []string{"4", "1", "2", "3"}, ids)
}
