// Package match finds the resort nearest to a facility under the haversine
// metric.
package match

import (
	"math"

	"github.com/skiwithcare/datagen/internal/geo"
	"github.com/skiwithcare/datagen/internal/model"
)

// Match is the nearest resort to a query point.
type Match struct {
	Resort        model.Resort
	DistanceMiles float64
}

// Nearest scans resorts linearly and returns the closest one to at. Ties go to
// the resort that appears first. Resorts without a coordinate are skipped.
// When maxDistance > 0 and the closest resort is farther than maxDistance, no
// match is returned.
func Nearest(at geo.Coordinate, resorts []model.Resort, maxDistance float64) (Match, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i := range resorts {
		c := resorts[i].Coordinate
		if c == nil {
			continue
		}
		if d := geo.Distance(at, *c); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || exceeds(bestDist, maxDistance) {
		return Match{}, false
	}
	return Match{Resort: resorts[best], DistanceMiles: bestDist}, true
}

func exceeds(d, maxDistance float64) bool {
	return maxDistance > 0 && d > maxDistance
}
