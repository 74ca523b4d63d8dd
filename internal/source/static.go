package source

import (
	"context"
	"embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/skiwithcare/datagen/internal/classify"
	"github.com/skiwithcare/datagen/internal/geo"
	"github.com/skiwithcare/datagen/internal/model"
)

//go:embed data/resorts.yaml data/hospitals.yaml
var staticData embed.FS

type staticResort struct {
	Name   string `yaml:"name"`
	State  string `yaml:"state"`
	Region string `yaml:"region"`
}

type staticResortFile struct {
	Epic []staticResort `yaml:"epic"`
	Ikon []staticResort `yaml:"ikon"`
}

type staticHospital struct {
	Name      string  `yaml:"name"`
	City      string  `yaml:"city"`
	State     string  `yaml:"state"`
	Lat       float64 `yaml:"lat"`
	Lon       float64 `yaml:"lon"`
	Emergency bool    `yaml:"emergency"`
}

type staticHospitalFile struct {
	Hospitals []staticHospital `yaml:"hospitals"`
}

// StaticResorts lists the season-pass member resorts. Coordinates are left
// for the geocoder.
type StaticResorts struct {
	resorts []model.Resort
}

// NewStaticResorts loads the built-in pass lists.
func NewStaticResorts() (*StaticResorts, error) {
	data, err := staticData.ReadFile("data/resorts.yaml")
	if err != nil {
		return nil, eris.Wrap(err, "source: read static resorts")
	}
	return ParseStaticResorts(data)
}

// ParseStaticResorts parses a YAML document with "epic" and "ikon" lists of
// {name, state, region}. A resort on both lists is tagged both. A missing
// region is derived from the state.
func ParseStaticResorts(data []byte) (*StaticResorts, error) {
	var f staticResortFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "source: parse static resorts")
	}

	var resorts []model.Resort
	index := make(map[string]int)
	add := func(list []staticResort, network model.PassNetwork) error {
		for _, r := range list {
			if r.Name == "" || r.State == "" {
				return eris.Errorf("source: static %s resort missing name or state: %+v", network, r)
			}
			id := model.ResortID(r.Name, r.State)
			if i, ok := index[id]; ok {
				resorts[i].PassNetwork = classify.Merge(resorts[i].PassNetwork, network)
				continue
			}
			region := model.Region(r.Region)
			if region == "" {
				region = classify.Region(r.State)
			}
			index[id] = len(resorts)
			resorts = append(resorts, model.NewResort(r.Name, r.State, network, region))
		}
		return nil
	}
	if err := add(f.Epic, model.PassEpic); err != nil {
		return nil, err
	}
	if err := add(f.Ikon, model.PassIkon); err != nil {
		return nil, err
	}
	return &StaticResorts{resorts: resorts}, nil
}

// Name implements ResortSource.
func (s *StaticResorts) Name() string { return "static" }

// Resorts implements ResortSource. The returned slice is a copy.
func (s *StaticResorts) Resorts(context.Context) ([]model.Resort, error) {
	return append([]model.Resort(nil), s.resorts...), nil
}

// StaticHospitals lists major hospitals near ski areas with known coordinates.
type StaticHospitals struct {
	hospitals []model.Facility
}

// NewStaticHospitals loads the built-in hospital list.
func NewStaticHospitals() (*StaticHospitals, error) {
	data, err := staticData.ReadFile("data/hospitals.yaml")
	if err != nil {
		return nil, eris.Wrap(err, "source: read static hospitals")
	}
	return ParseStaticHospitals(data)
}

// ParseStaticHospitals parses a YAML document with a "hospitals" list. Ids
// are the slug of "name|state".
func ParseStaticHospitals(data []byte) (*StaticHospitals, error) {
	var f staticHospitalFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "source: parse static hospitals")
	}

	out := make([]model.Facility, 0, len(f.Hospitals))
	for _, h := range f.Hospitals {
		c := geo.Coordinate{Lat: h.Lat, Lon: h.Lon}
		if h.Name == "" || h.State == "" || !c.Valid() {
			return nil, eris.Errorf("source: invalid static hospital %+v", h)
		}
		out = append(out, model.Facility{
			ID:           classify.Slug(h.Name + "|" + h.State),
			Kind:         model.KindHospital,
			Name:         h.Name,
			City:         h.City,
			State:        h.State,
			Coordinate:   &c,
			HasEmergency: h.Emergency,
		})
	}
	return &StaticHospitals{hospitals: out}, nil
}

// Name implements FacilitySource.
func (s *StaticHospitals) Name() string { return "static" }

// Kind implements FacilitySource.
func (s *StaticHospitals) Kind() model.FacilityKind { return model.KindHospital }

// Facilities implements FacilitySource. The returned slice is a copy.
func (s *StaticHospitals) Facilities(context.Context) ([]model.Facility, error) {
	return append([]model.Facility(nil), s.hospitals...), nil
}
