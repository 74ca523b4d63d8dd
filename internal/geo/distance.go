// Package geo provides coordinates and great-circle distance in miles.
package geo

import "math"

// EarthRadiusMiles is the mean Earth radius used by Distance.
const EarthRadiusMiles = 3958.8

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate is finite and inside lat [-90,90], lon [-180,180].
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Rounded returns the coordinate rounded to the given number of decimal places.
func (c Coordinate) Rounded(places int) Coordinate {
	return Coordinate{Lat: Round(c.Lat, places), Lon: Round(c.Lon, places)}
}

// Distance returns the haversine great-circle distance between a and b in miles.
// Inputs are not range checked.
func Distance(a, b Coordinate) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Floating point error can push h a hair past 1 for antipodal points.
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(h))
}

// LatitudeGapMiles is a lower bound on Distance for two points whose latitudes
// differ by dLat degrees, whatever their longitudes.
func LatitudeGapMiles(dLat float64) float64 {
	return EarthRadiusMiles * radians(math.Abs(dLat))
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
