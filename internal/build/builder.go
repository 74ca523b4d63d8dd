// Package build turns source lists into the published datasets: it resolves
// coordinates through the geocode caches and geocoders, matches facilities to
// their nearest resort, and writes sorted JSON arrays.
package build

import (
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/geocache"
	"github.com/skiwithcare/datagen/internal/model"
	"github.com/skiwithcare/datagen/internal/source"
	"github.com/skiwithcare/datagen/pkg/geocode"
)

var (
	// ErrNoFacilities is returned when a facility source yields nothing.
	ErrNoFacilities = eris.New("build: facility source returned no facilities")
	// ErrNoResorts is returned when no resort has a coordinate to match against.
	ErrNoResorts = eris.New("build: no geocoded resorts")
)

const coordinatePlaces = 6

// distancePlaces is the precision of a facility's nearest-resort distance:
// clinics keep hundredths of a mile, hospitals tenths.
func distancePlaces(kind model.FacilityKind) int {
	if kind == model.KindClinic {
		return 2
	}
	return 1
}

// Options configures a Builder.
type Options struct {
	OutputDir      string
	ResortSource   string
	HospitalSource string
	ClinicSource   string
	// MaxDistance is the match cutoff in miles per facility kind. <= 0
	// disables the cutoff.
	HospitalMaxDistance float64
	ClinicMaxDistance   float64
	// BatchSize caps the addresses sent in one batch geocode call.
	BatchSize int
	// CacheSaveEvery saves the cache after this many new lookups. 0 saves
	// only at stage boundaries.
	CacheSaveEvery int
	GeoJSON        bool
}

// Caches holds the geocode cache of each dataset.
type Caches struct {
	Resorts   *geocache.Cache
	Hospitals *geocache.Cache
	Clinics   *geocache.Cache
}

// Builder runs dataset builds. It is not safe for concurrent use.
type Builder struct {
	opts      Options
	registry  *source.Registry
	places    geocode.PlaceGeocoder
	addresses geocode.Client
	caches    Caches
	runID     string

	// resorts built earlier in this run, used by facility builds.
	resorts []model.Resort
}

// New creates a Builder. places geocodes resort names and addresses
// geocodes facility addresses; either may be nil when every entity is
// already cached or carries a coordinate.
func New(reg *source.Registry, places geocode.PlaceGeocoder, addresses geocode.Client, caches Caches, opts Options) *Builder {
	if opts.OutputDir == "" {
		opts.OutputDir = "public"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if caches.Resorts == nil {
		caches.Resorts = geocache.NewMemory()
	}
	if caches.Hospitals == nil {
		caches.Hospitals = geocache.NewMemory()
	}
	if caches.Clinics == nil {
		caches.Clinics = geocache.NewMemory()
	}
	return &Builder{
		opts:      opts,
		registry:  reg,
		places:    places,
		addresses: addresses,
		caches:    caches,
		runID:     uuid.NewString(),
	}
}

// RunID identifies this builder's run in logs.
func (b *Builder) RunID() string { return b.runID }

// OutputPath returns the JSON output path of dataset.
func (b *Builder) OutputPath(dataset string) string {
	return filepath.Join(b.opts.OutputDir, dataset+".json")
}

func (b *Builder) geoJSONPath(dataset string) string {
	return filepath.Join(b.opts.OutputDir, dataset+".geojson")
}

func (b *Builder) logger(dataset string) *zap.Logger {
	return zap.L().With(
		zap.String("component", "build"),
		zap.String("dataset", dataset),
		zap.String("run_id", b.runID),
	)
}

func (b *Builder) facilityCache(kind model.FacilityKind) *geocache.Cache {
	if kind == model.KindClinic {
		return b.caches.Clinics
	}
	return b.caches.Hospitals
}

func (b *Builder) facilityOptions(kind model.FacilityKind) (sourceName string, maxDistance float64) {
	if kind == model.KindClinic {
		return b.opts.ClinicSource, b.opts.ClinicMaxDistance
	}
	return b.opts.HospitalSource, b.opts.HospitalMaxDistance
}

// saver saves a cache every n stores.
type saver struct {
	cache   *geocache.Cache
	every   int
	pending int
	log     *zap.Logger
}

func (s *saver) stored() {
	s.pending++
	if s.every > 0 && s.pending >= s.every {
		s.flush()
	}
}

// flush saves the cache, logging rather than failing: a failed checkpoint
// only costs repeated lookups next run.
func (s *saver) flush() {
	s.pending = 0
	if err := s.cache.Save(); err != nil {
		s.log.Warn("cache checkpoint failed", zap.Error(err))
	}
}
