// Package model defines the resort and facility records the builder emits.
package model

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/skiwithcare/datagen/internal/geo"
)

// PassNetwork is the season-pass program a resort belongs to.
type PassNetwork string

// Pass networks.
const (
	PassEpic        PassNetwork = "epic"
	PassIkon        PassNetwork = "ikon"
	PassBoth        PassNetwork = "both"
	PassIndependent PassNetwork = "independent"
)

// Region is the coarse geographic grouping of a resort.
type Region string

// Regions.
const (
	RegionRockies   Region = "rockies"
	RegionWest      Region = "west"
	RegionPacificNW Region = "pacific-northwest"
	RegionNortheast Region = "northeast"
	RegionMidwest   Region = "midwest"
	RegionSoutheast Region = "southeast"
	RegionOther     Region = "other"
)

// Resort is a ski resort. Coordinate is nil until the resort is geocoded.
type Resort struct {
	ID          string
	Name        string
	State       string
	Coordinate  *geo.Coordinate
	PassNetwork PassNetwork
	Region      Region
}

// ResortID derives the stable resort id from name and state.
func ResortID(name, state string) string {
	return name + "|" + state
}

// NewResort builds a resort with its derived id and no coordinate.
func NewResort(name, state string, network PassNetwork, region Region) Resort {
	return Resort{
		ID:          ResortID(name, state),
		Name:        name,
		State:       state,
		PassNetwork: network,
		Region:      region,
	}
}

// resortJSON is the on-disk shape of a resort.
type resortJSON struct {
	ID          string      `json:"id" validate:"required"`
	Name        string      `json:"name" validate:"required"`
	State       string      `json:"state" validate:"required"`
	Lat         *float64    `json:"lat" validate:"required,latitude"`
	Lon         *float64    `json:"lon" validate:"required,longitude"`
	PassNetwork PassNetwork `json:"passNetwork" validate:"oneof=epic ikon both independent"`
	Region      Region      `json:"region" validate:"oneof=rockies west pacific-northwest northeast midwest southeast other"`
}

func (r Resort) toJSON() resortJSON {
	out := resortJSON{
		ID:          r.ID,
		Name:        r.Name,
		State:       r.State,
		PassNetwork: r.PassNetwork,
		Region:      r.Region,
	}
	if r.Coordinate != nil {
		lat, lon := r.Coordinate.Lat, r.Coordinate.Lon
		out.Lat, out.Lon = &lat, &lon
	}
	return out
}

// MarshalJSON implements json.Marshaler with lat/lon flattened into the record.
func (r Resort) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.toJSON())
}

// UnmarshalJSON implements json.Unmarshaler. Missing or null lat/lon leave
// Coordinate nil, and a missing id is derived from name and state.
func (r *Resort) UnmarshalJSON(data []byte) error {
	var in resortJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return eris.Wrap(err, "model: decode resort")
	}
	*r = Resort{
		ID:          in.ID,
		Name:        in.Name,
		State:       in.State,
		PassNetwork: in.PassNetwork,
		Region:      in.Region,
	}
	if r.ID == "" {
		r.ID = ResortID(in.Name, in.State)
	}
	if in.Lat != nil && in.Lon != nil {
		r.Coordinate = &geo.Coordinate{Lat: *in.Lat, Lon: *in.Lon}
	}
	return nil
}

// Validate checks that the resort is complete enough to be emitted.
func (r Resort) Validate() error {
	if err := validate.Struct(r.toJSON()); err != nil {
		return eris.Wrapf(err, "model: invalid resort %q", r.ID)
	}
	return nil
}

var validate = validator.New()
