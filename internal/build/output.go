package build

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/skiwithcare/datagen/internal/jsonfile"
	"github.com/skiwithcare/datagen/internal/model"
)

// write replaces the dataset's JSON array and, when enabled, its GeoJSON
// companion. Both writes are atomic.
func (b *Builder) write(dataset string, records any, features []*geojson.Feature) error {
	if err := jsonfile.Write(b.OutputPath(dataset), records); err != nil {
		return eris.Wrapf(err, "build: write %s", dataset)
	}
	if !b.opts.GeoJSON {
		return nil
	}
	fc := &geojson.FeatureCollection{Features: features}
	if fc.Features == nil {
		fc.Features = []*geojson.Feature{}
	}
	if err := jsonfile.Write(b.geoJSONPath(dataset), fc); err != nil {
		return eris.Wrapf(err, "build: write %s geojson", dataset)
	}
	return nil
}

func point(lat, lon float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat})
}

func resortFeatures(resorts []model.Resort) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(resorts))
	for _, r := range resorts {
		if r.Coordinate == nil {
			continue
		}
		out = append(out, &geojson.Feature{
			ID:       r.ID,
			Geometry: point(r.Coordinate.Lat, r.Coordinate.Lon),
			Properties: map[string]any{
				"name":        r.Name,
				"state":       r.State,
				"passNetwork": string(r.PassNetwork),
				"region":      string(r.Region),
			},
		})
	}
	return out
}

func facilityFeatures(facilities []model.Facility) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(facilities))
	for _, f := range facilities {
		if f.Coordinate == nil {
			continue
		}
		props := map[string]any{
			"name":  f.Name,
			"city":  f.City,
			"state": f.State,
		}
		switch f.Kind {
		case model.KindHospital:
			props["hasEmergency"] = f.HasEmergency
		case model.KindClinic:
			props["provider"] = string(f.Provider)
		}
		if f.Nearest != nil {
			props["nearestResort"] = f.Nearest.Name
			props["nearestResortDist"] = f.Nearest.DistanceMiles
		}
		out = append(out, &geojson.Feature{
			ID:         f.ID,
			Geometry:   point(f.Coordinate.Lat, f.Coordinate.Lon),
			Properties: props,
		})
	}
	return out
}
