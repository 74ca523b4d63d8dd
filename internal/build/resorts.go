package build

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/skiwithcare/datagen/internal/classify"
	"github.com/skiwithcare/datagen/internal/geo"
	"github.com/skiwithcare/datagen/internal/geocache"
	"github.com/skiwithcare/datagen/internal/model"
	"github.com/skiwithcare/datagen/pkg/geocode"
)

// BuildResorts loads the configured resort source, resolves every US resort
// to a coordinate and writes resorts.json sorted by name. Resorts that cannot
// be resolved are left out. The built list is kept for facility builds in the
// same run.
func (b *Builder) BuildResorts(ctx context.Context) (*Stats, error) {
	log := b.logger("resorts")
	stats := &Stats{Dataset: "resorts", Output: b.OutputPath("resorts")}

	src, err := b.registry.ResortSource(b.opts.ResortSource)
	if err != nil {
		return stats, err
	}
	list, err := src.Resorts(ctx)
	if err != nil {
		return stats, eris.Wrapf(err, "build: load resorts from %s", src.Name())
	}
	stats.Total = len(list)
	log.Info("resort list loaded", zap.String("source", src.Name()), zap.Int("resorts", len(list)))

	cache := b.caches.Resorts
	sv := &saver{cache: cache, every: b.opts.CacheSaveEvery, log: log}

	seen := make(map[string]bool, len(list))
	out := make([]model.Resort, 0, len(list))
	for _, r := range list {
		if !classify.IsUSState(r.State) || seen[r.ID] {
			stats.Skipped++
			continue
		}
		seen[r.ID] = true

		c, ok, err := b.resolveResort(ctx, r, stats, sv, log)
		if err != nil {
			sv.flush()
			return stats, err
		}
		if !ok {
			continue
		}

		rounded := c.Rounded(coordinatePlaces)
		r.Coordinate = &rounded
		if err := r.Validate(); err != nil {
			stats.Invalid++
			log.Warn("dropping invalid resort", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		out = append(out, r)
	}

	if err := cache.Save(); err != nil {
		return stats, eris.Wrap(err, "build: save resort cache")
	}
	if len(out) == 0 {
		return stats, ErrNoResorts
	}

	SortResorts(out)
	if err := b.write("resorts", out, resortFeatures(out)); err != nil {
		return stats, err
	}
	b.resorts = out
	stats.Emitted = len(out)

	log.Info("resorts built", stats.Fields()...)
	return stats, nil
}

// resolveResort returns the resort's coordinate from the source, the cache or
// the place geocoder. Only cancellation is returned as an error.
func (b *Builder) resolveResort(ctx context.Context, r model.Resort, stats *Stats, sv *saver, log *zap.Logger) (geo.Coordinate, bool, error) {
	if r.Coordinate != nil && r.Coordinate.Valid() {
		stats.Supplied++
		return *r.Coordinate, true, nil
	}

	key := geocache.ResortKey(r.Name, r.State)
	if e, ok := sv.cache.Lookup(key); ok {
		stats.Cached++
		c, resolved := e.Coordinate()
		if !resolved {
			stats.Failed++
		}
		return c, resolved, nil
	}

	if b.places == nil {
		return geo.Coordinate{}, false, eris.New("build: no place geocoder configured")
	}

	place := geocode.PlaceInput{Name: r.Name, State: r.State}
	res, err := b.places.GeocodePlace(ctx, place)
	if err != nil {
		if ctx.Err() != nil {
			return geo.Coordinate{}, false, eris.Wrap(err, "build: resort geocoding interrupted")
		}
		// Retries are exhausted; the failure is cached like a miss.
		log.Warn("resort geocode failed", zap.String("id", r.ID), zap.Error(err))
		res = &geocode.Result{}
	}

	c, ok := res.Coordinate()
	if ok {
		sv.cache.Store(key, geocache.Resolved(c, place.Query()))
		stats.Geocoded++
	} else {
		sv.cache.Store(key, geocache.Failed(place.Query()))
		stats.Failed++
		log.Debug("resort not found", zap.String("id", r.ID))
	}
	sv.stored()
	return c, ok, nil
}

// SortResorts orders resorts by name, then id.
func SortResorts(resorts []model.Resort) {
	sort.Slice(resorts, func(i, j int) bool {
		if resorts[i].Name != resorts[j].Name {
			return resorts[i].Name < resorts[j].Name
		}
		return resorts[i].ID < resorts[j].ID
	})
}

// UseResorts sets the resorts facility builds match against, instead of
// reading resorts.json.
func (b *Builder) UseResorts(resorts []model.Resort) {
	b.resorts = resorts
}
