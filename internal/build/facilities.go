package build

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/geo"
	"github.com/skiwithcare/datagen/internal/geocache"
	"github.com/skiwithcare/datagen/internal/match"
	"github.com/skiwithcare/datagen/internal/model"
	"github.com/skiwithcare/datagen/internal/source"
	"github.com/skiwithcare/datagen/pkg/geocode"
)

// BuildFacilities builds hospitals.json or clinics.json. The facility list
// comes from the configured source; failing to obtain it is fatal and leaves
// the previous output in place. Each facility is resolved to a coordinate,
// matched to its nearest resort, and kept only when that resort is within
// the kind's distance cutoff.
func (b *Builder) BuildFacilities(ctx context.Context, kind model.FacilityKind) (*Stats, error) {
	dataset := kind.Dataset()
	log := b.logger(dataset)
	stats := &Stats{Dataset: dataset, Output: b.OutputPath(dataset)}
	sourceName, maxDistance := b.facilityOptions(kind)

	resorts, err := b.matchableResorts(ctx)
	if err != nil {
		return stats, err
	}

	src, err := b.registry.FacilitySource(kind, sourceName)
	if err != nil {
		return stats, err
	}
	list, err := src.Facilities(ctx)
	if err != nil {
		return stats, eris.Wrapf(err, "build: load %s from %s", dataset, src.Name())
	}
	if len(list) == 0 {
		return stats, eris.Wrapf(ErrNoFacilities, "%s/%s", dataset, src.Name())
	}
	stats.Total = len(list)
	log.Info("facility list loaded",
		zap.String("source", src.Name()),
		zap.Int("facilities", len(list)),
		zap.Int("resorts", len(resorts)),
		zap.Float64("max_distance_miles", maxDistance),
	)

	list = dedupeFacilities(list, stats)
	coords, err := b.resolveFacilities(ctx, kind, list, stats, log)
	if err != nil {
		return stats, err
	}

	idx := match.NewIndex(resorts)
	out := make([]model.Facility, 0, len(list))
	for i, f := range list {
		c := coords[i]
		if c == nil {
			continue
		}
		m, ok := idx.Nearest(*c, maxDistance)
		if !ok {
			stats.Beyond++
			continue
		}
		stats.Matched++

		rounded := c.Rounded(coordinatePlaces)
		f.Coordinate = &rounded
		f.Nearest = &model.NearestResort{
			Name:          m.Resort.Name,
			DistanceMiles: geo.Round(m.DistanceMiles, distancePlaces(kind)),
		}
		if err := f.Validate(); err != nil {
			stats.Invalid++
			log.Warn("dropping invalid facility", zap.String("id", f.ID), zap.Error(err))
			continue
		}
		out = append(out, f)
	}

	if len(out) == 0 {
		log.Warn("no facilities within range of any resort")
	}
	SortFacilities(out)
	if err := b.write(dataset, out, facilityFeatures(out)); err != nil {
		return stats, err
	}
	stats.Emitted = len(out)

	log.Info("facilities built", stats.Fields()...)
	return stats, nil
}

// matchableResorts returns the resorts built in this run, or those in
// resorts.json, that have a coordinate.
func (b *Builder) matchableResorts(ctx context.Context) ([]model.Resort, error) {
	resorts := b.resorts
	if resorts == nil {
		loaded, err := source.NewFileResorts(b.OutputPath("resorts")).Resorts(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "build: load built resorts")
		}
		resorts = loaded
	}

	out := make([]model.Resort, 0, len(resorts))
	for _, r := range resorts {
		if r.Coordinate != nil {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoResorts
	}
	return out, nil
}

func dedupeFacilities(list []model.Facility, stats *Stats) []model.Facility {
	seen := make(map[string]bool, len(list))
	out := make([]model.Facility, 0, len(list))
	for _, f := range list {
		if f.ID != "" && seen[f.ID] {
			stats.Skipped++
			continue
		}
		seen[f.ID] = true
		out = append(out, f)
	}
	return out
}

// resolveFacilities returns a coordinate per facility, nil when unresolved.
// Cache misses are batch geocoded; the cache is saved after every batch so
// an interrupted build resumes where it stopped.
func (b *Builder) resolveFacilities(ctx context.Context, kind model.FacilityKind, list []model.Facility, stats *Stats, log *zap.Logger) ([]*geo.Coordinate, error) {
	cache := b.facilityCache(kind)
	coords := make([]*geo.Coordinate, len(list))

	var pending []int
	for i, f := range list {
		if f.Coordinate != nil && f.Coordinate.Valid() {
			stats.Supplied++
			c := *f.Coordinate
			coords[i] = &c
			continue
		}
		if f.ID == "" {
			stats.Failed++
			continue
		}
		if e, ok := cache.Lookup(f.ID); ok {
			stats.Cached++
			if c, resolved := e.Coordinate(); resolved {
				coords[i] = &c
			} else {
				stats.Failed++
			}
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return coords, nil
	}
	if b.addresses == nil {
		return nil, eris.New("build: no address geocoder configured")
	}

	size := b.opts.BatchSize
	if every := b.opts.CacheSaveEvery; every > 0 && every < size {
		size = every
	}
	log.Info("geocoding uncached facilities", zap.Int("pending", len(pending)), zap.Int("batch_size", size))

	for start := 0; start < len(pending); start += size {
		batch := pending[start:min(start+size, len(pending))]
		addrs := make([]geocode.AddressInput, len(batch))
		for j, i := range batch {
			addrs[j] = addressOf(list[i])
		}

		results, err := b.addresses.BatchGeocode(ctx, addrs)
		if err == nil && len(results) != len(addrs) {
			err = eris.Errorf("build: geocoder returned %d results for %d addresses", len(results), len(addrs))
		}
		if err != nil {
			if ctx.Err() != nil {
				if saveErr := cache.Save(); saveErr != nil {
					log.Warn("cache save after cancellation failed", zap.Error(saveErr))
				}
				return nil, eris.Wrap(err, "build: facility geocoding interrupted")
			}
			// Nothing in the batch was answered; leave it uncached for the next run.
			log.Warn("batch geocode failed, skipping batch", zap.Int("addresses", len(addrs)), zap.Error(err))
			stats.Failed += len(batch)
			continue
		}

		for j, i := range batch {
			query := addrs[j].OneLine()
			if c, ok := results[j].Coordinate(); ok {
				cache.Store(list[i].ID, geocache.Resolved(c, query))
				coords[i] = &c
				stats.Geocoded++
			} else {
				cache.Store(list[i].ID, geocache.Failed(query))
				stats.Failed++
			}
		}
		if err := cache.Save(); err != nil {
			log.Warn("cache checkpoint failed", zap.Error(err))
		}
		log.Info("geocode progress",
			zap.Int("done", min(start+size, len(pending))),
			zap.Int("pending", len(pending)),
			zap.Int("geocoded", stats.Geocoded),
			zap.Int("failed", stats.Failed),
		)
	}
	return coords, nil
}

func addressOf(f model.Facility) geocode.AddressInput {
	return geocode.AddressInput{
		ID:      f.ID,
		Street:  f.Address,
		City:    f.City,
		State:   f.State,
		ZipCode: f.Zip,
	}
}

// SortFacilities orders facilities by state, city, name, then id.
func SortFacilities(facilities []model.Facility) {
	sort.Slice(facilities, func(i, j int) bool {
		a, b := facilities[i], facilities[j]
		if a.State != b.State {
			return a.State < b.State
		}
		if a.City != b.City {
			return a.City < b.City
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}
