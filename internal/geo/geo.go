package geo

import "math"

// EarthRadius is the spherical-earth radius in meters used for all
// great-circle calculations.
const EarthRadius = 6371000

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Distance returns the great-circle distance between two points in meters
// using the Haversine formula.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadius * c
}

// ContainsCircle reports whether p lies inside or on the boundary of the
// circle around center with the given radius in meters.
func ContainsCircle(p, center Point, radiusMeters float64) bool {
	return Distance(p, center) <= radiusMeters
}

// ContainsPolygon reports whether p lies inside the polygon described by
// ring using the even-odd ray casting rule. The ring is implicitly closed;
// the last vertex connects back to the first. Rings with fewer than three
// vertices must be rejected by the caller.
func ContainsPolygon(p Point, ring []Point) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		pi := ring[i]
		pj := ring[j]
		if ((pi.Lng > p.Lng) != (pj.Lng > p.Lng)) &&
			(p.Lat < (pj.Lat-pi.Lat)*(p.Lng-pi.Lng)/(pj.Lng-pi.Lng)+pi.Lat) {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Valid reports whether the point has finite coordinates within WGS84 bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
