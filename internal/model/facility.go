package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/skiwithcare/datagen/internal/geo"
)

// FacilityKind distinguishes the facility datasets.
type FacilityKind string

// Facility kinds.
const (
	KindHospital FacilityKind = "hospital"
	KindClinic   FacilityKind = "clinic"
)

// ParseFacilityKind converts a string into a FacilityKind.
func ParseFacilityKind(s string) (FacilityKind, error) {
	switch s {
	case "hospital", "hospitals":
		return KindHospital, nil
	case "clinic", "clinics", "dialysis":
		return KindClinic, nil
	default:
		return "", eris.Errorf("unknown facility kind: %q (valid: hospital, clinic)", s)
	}
}

// Dataset returns the output file stem for the kind.
func (k FacilityKind) Dataset() string {
	switch k {
	case KindClinic:
		return "clinics"
	default:
		return "hospitals"
	}
}

// Provider is the canonical dialysis chain of a clinic.
type Provider string

// Providers.
const (
	ProviderDaVita      Provider = "davita"
	ProviderFresenius   Provider = "fresenius"
	ProviderIndependent Provider = "independent"
	ProviderOther       Provider = "other"
)

// NearestResort is the closest resort to a facility. A facility either has
// both the name and the distance or neither.
type NearestResort struct {
	Name          string
	DistanceMiles float64
}

// Facility is a hospital or dialysis clinic.
type Facility struct {
	ID         string
	Kind       FacilityKind
	Name       string
	Address    string
	City       string
	State      string
	Zip        string
	Phone      string
	Coordinate *geo.Coordinate

	// HasEmergency applies to hospitals only.
	HasEmergency bool
	// Provider applies to clinics only.
	Provider Provider

	Nearest *NearestResort
}

type facilityJSON struct {
	ID                string   `json:"id" validate:"required"`
	Name              string   `json:"name" validate:"required"`
	Provider          Provider `json:"provider,omitempty" validate:"omitempty,oneof=davita fresenius independent other"`
	Address           string   `json:"address"`
	City              string   `json:"city"`
	State             string   `json:"state" validate:"required"`
	Zip               string   `json:"zip"`
	Lat               *float64 `json:"lat" validate:"required,latitude"`
	Lon               *float64 `json:"lon" validate:"required,longitude"`
	HasEmergency      *bool    `json:"hasEmergency,omitempty"`
	Phone             string   `json:"phone,omitempty"`
	NearestResort     *string  `json:"nearestResort,omitempty"`
	NearestResortDist *float64 `json:"nearestResortDist,omitempty" validate:"omitempty,gte=0"`
}

func (f Facility) toJSON() facilityJSON {
	out := facilityJSON{
		ID:      f.ID,
		Name:    f.Name,
		Address: f.Address,
		City:    f.City,
		State:   f.State,
		Zip:     f.Zip,
		Phone:   f.Phone,
	}
	switch f.Kind {
	case KindHospital:
		has := f.HasEmergency
		out.HasEmergency = &has
	case KindClinic:
		out.Provider = f.Provider
	}
	if f.Coordinate != nil {
		lat, lon := f.Coordinate.Lat, f.Coordinate.Lon
		out.Lat, out.Lon = &lat, &lon
	}
	if f.Nearest != nil {
		name, dist := f.Nearest.Name, f.Nearest.DistanceMiles
		out.NearestResort, out.NearestResortDist = &name, &dist
	}
	return out
}

// MarshalJSON implements json.Marshaler. Hospital records carry hasEmergency,
// clinic records carry provider.
func (f Facility) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.toJSON())
}

// UnmarshalJSON implements json.Unmarshaler. The kind is inferred from the
// presence of provider (clinic) or hasEmergency (hospital).
func (f *Facility) UnmarshalJSON(data []byte) error {
	var in facilityJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return eris.Wrap(err, "model: decode facility")
	}
	*f = Facility{
		ID:       in.ID,
		Name:     in.Name,
		Address:  in.Address,
		City:     in.City,
		State:    in.State,
		Zip:      in.Zip,
		Phone:    in.Phone,
		Provider: in.Provider,
	}
	switch {
	case in.Provider != "":
		f.Kind = KindClinic
	case in.HasEmergency != nil:
		f.Kind = KindHospital
		f.HasEmergency = *in.HasEmergency
	}
	if in.Lat != nil && in.Lon != nil {
		f.Coordinate = &geo.Coordinate{Lat: *in.Lat, Lon: *in.Lon}
	}
	if in.NearestResort != nil && in.NearestResortDist != nil {
		f.Nearest = &NearestResort{Name: *in.NearestResort, DistanceMiles: *in.NearestResortDist}
	}
	return nil
}

// Validate checks that the facility is complete enough to be emitted.
func (f Facility) Validate() error {
	if f.Kind == KindClinic && f.Provider == "" {
		return eris.Errorf("model: clinic %q has no provider", f.ID)
	}
	if err := validate.Struct(f.toJSON()); err != nil {
		return eris.Wrapf(err, "model: invalid facility %q", f.ID)
	}
	return nil
}
