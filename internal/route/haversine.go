package route

import (
	"math"

	"bustrack/internal/model"
)

const earthRadiusM = 6371000.0

// fallbackSpeedMps is the heuristic speed for estimated segment durations,
// roughly 30 km/h of urban driving.
const fallbackSpeedMps = 8.33

// HaversineM returns the great-circle distance between two points in metres.
func HaversineM(a, b model.GeoPoint) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// validPoint reports whether p is a finite coordinate within geographic bounds.
func validPoint(p model.GeoPoint) bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
