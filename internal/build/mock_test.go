package build

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/skiwithcare/datagen/internal/geo"
	"github.com/skiwithcare/datagen/internal/model"
	"github.com/skiwithcare/datagen/pkg/geocode"
)

// --- Geocoder mocks ---

type mockPlaces struct {
	mock.Mock
}

func (m *mockPlaces) GeocodePlace(ctx context.Context, place geocode.PlaceInput) (*geocode.Result, error) {
	args := m.Called(ctx, place)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

type mockAddresses struct {
	mock.Mock
}

func (m *mockAddresses) Geocode(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

func (m *mockAddresses) BatchGeocode(ctx context.Context, addrs []geocode.AddressInput) ([]geocode.Result, error) {
	args := m.Called(ctx, addrs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]geocode.Result), args.Error(1)
}

func matched(lat, lon float64) geocode.Result {
	return geocode.Result{Latitude: lat, Longitude: lon, Matched: true, Source: "census"}
}

func withIDs(ids ...string) any {
	return mock.MatchedBy(func(addrs []geocode.AddressInput) bool {
		if len(addrs) != len(ids) {
			return false
		}
		for i, a := range addrs {
			if a.ID != ids[i] {
				return false
			}
		}
		return true
	})
}

// --- Source stubs ---

type resortList struct {
	name    string
	resorts []model.Resort
	err     error
}

func (s *resortList) Name() string { return s.name }
func (s *resortList) Resorts(context.Context) ([]model.Resort, error) {
	return append([]model.Resort(nil), s.resorts...), s.err
}

type facilityList struct {
	name       string
	kind       model.FacilityKind
	facilities []model.Facility
	err        error
}

func (s *facilityList) Name() string             { return s.name }
func (s *facilityList) Kind() model.FacilityKind { return s.kind }
func (s *facilityList) Facilities(context.Context) ([]model.Facility, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]model.Facility(nil), s.facilities...), nil
}

func at(lat, lon float64) *geo.Coordinate {
	return &geo.Coordinate{Lat: lat, Lon: lon}
}

func resort(name, state string, c *geo.Coordinate) model.Resort {
	r := model.NewResort(name, state, model.PassIndependent, model.RegionRockies)
	r.Coordinate = c
	return r
}

func clinic(id, name, city, state string, provider model.Provider) model.Facility {
	return model.Facility{
		ID:       id,
		Kind:     model.KindClinic,
		Name:     name,
		Address:  "1 MAIN ST",
		City:     city,
		State:    state,
		Zip:      "00000",
		Provider: provider,
	}
}
