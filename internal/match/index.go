package match

import (
	"math"
	"sort"

	"github.com/skiwithcare/datagen/internal/geo"
	"github.com/skiwithcare/datagen/internal/model"
)

// pruneSlack absorbs float rounding between the haversine distance and the
// latitude gap bound.
const pruneSlack = 1e-9

type entry struct {
	lat   float64
	coord geo.Coordinate
	pos   int // position in the input slice, used for tie-breaks
}

// Index answers nearest-resort queries without scanning every resort. Resorts
// are sorted by latitude; a query walks outward from its own latitude in both
// directions and stops a direction once the latitude gap alone is longer than
// the best distance found. The great-circle distance between two points is
// never shorter than their meridian separation, so the result is identical to
// Nearest, including which resort wins a tie.
type Index struct {
	resorts []model.Resort
	entries []entry
}

// NewIndex builds an index over resorts. Resorts without a coordinate are left
// out. The slice is retained, not copied.
func NewIndex(resorts []model.Resort) *Index {
	idx := &Index{resorts: resorts, entries: make([]entry, 0, len(resorts))}
	for i := range resorts {
		if c := resorts[i].Coordinate; c != nil {
			idx.entries = append(idx.entries, entry{lat: c.Lat, coord: *c, pos: i})
		}
	}
	sort.SliceStable(idx.entries, func(a, b int) bool {
		return idx.entries[a].lat < idx.entries[b].lat
	})
	return idx
}

// Len returns the number of resorts with a coordinate.
func (idx *Index) Len() int { return len(idx.entries) }

// Nearest returns the same result as the package-level Nearest over the
// resorts the index was built from.
func (idx *Index) Nearest(at geo.Coordinate, maxDistance float64) (Match, bool) {
	if len(idx.entries) == 0 {
		return Match{}, false
	}

	start := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].lat >= at.Lat
	})

	best := -1
	bestDist := math.Inf(1)
	consider := func(e entry) {
		d := geo.Distance(at, e.coord)
		if d < bestDist || (d == bestDist && e.pos < best) {
			best, bestDist = e.pos, d
		}
	}

	up, down := start, start-1
	for up < len(idx.entries) || down >= 0 {
		if up < len(idx.entries) {
			if geo.LatitudeGapMiles(idx.entries[up].lat-at.Lat) > bestDist+pruneSlack {
				up = len(idx.entries)
			} else {
				consider(idx.entries[up])
				up++
			}
		}
		if down >= 0 {
			if geo.LatitudeGapMiles(at.Lat-idx.entries[down].lat) > bestDist+pruneSlack {
				down = -1
			} else {
				consider(idx.entries[down])
				down--
			}
		}
	}

	if best < 0 || exceeds(bestDist, maxDistance) {
		return Match{}, false
	}
	return Match{Resort: idx.resorts[best], DistanceMiles: bestDist}, true
}
