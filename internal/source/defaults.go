package source

import (
	"github.com/rotisserie/eris"

	"github.com/skiwithcare/datagen/internal/fetcher"
)

// Deps carries what the built-in sources need.
type Deps struct {
	Fetcher   fetcher.Fetcher
	Overpass  OverpassOptions
	Hospitals CMSOptions
	Clinics   CMSOptions
	// ResortsFile is the previously built resorts.json read by the "file" source.
	ResortsFile string
	// RetagResorts re-derives pass network and region for file resorts.
	RetagResorts bool
}

// NewDefaultRegistry registers every built-in source: static, osm and file
// resorts; static, osm and cms hospitals; cms clinics.
func NewDefaultRegistry(d Deps) (*Registry, error) {
	if d.Fetcher == nil {
		return nil, eris.New("source: default registry requires a fetcher")
	}

	staticResorts, err := NewStaticResorts()
	if err != nil {
		return nil, err
	}
	staticHospitals, err := NewStaticHospitals()
	if err != nil {
		return nil, err
	}
	overpass := NewOverpass(d.Fetcher, d.Overpass)

	r := NewRegistry()
	r.RegisterResorts(staticResorts)
	r.RegisterResorts(NewOSMResorts(overpass))
	if d.ResortsFile != "" {
		r.RegisterResorts(NewFileResorts(d.ResortsFile).WithRetag(d.RetagResorts))
	}

	r.RegisterFacilities(NewCMSHospitals(d.Fetcher, d.Hospitals))
	r.RegisterFacilities(staticHospitals)
	r.RegisterFacilities(NewOSMHospitals(overpass))
	r.RegisterFacilities(NewCMSDialysis(d.Fetcher, d.Clinics))
	return r, nil
}
