package utils

import "math"

// EarthRadiusKm is the mean Earth radius used for distance ranking.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points given in decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// BoundingBox returns the latitude/longitude ranges that contain every point
// within radiusKm of (lat, lng).  It is a cheap SQL prefilter; callers still
// compute the exact distance.  Boxes reaching a pole or spanning the
// antimeridian widen to the full longitude range.
func BoundingBox(lat, lng, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	ang := radiusKm / EarthRadiusKm
	dLat := ang * 180 / math.Pi
	minLat, maxLat = lat-dLat, lat+dLat
	if minLat <= -90 || maxLat >= 90 {
		return math.Max(minLat, -90), math.Min(maxLat, 90), -180, 180
	}
	x := math.Sin(ang) / math.Cos(lat*math.Pi/180)
	if x >= 1 {
		return minLat, maxLat, -180, 180
	}
	dLng := math.Asin(x) * 180 / math.Pi
	minLng, maxLng = lng-dLng, lng+dLng
	if minLng < -180 || maxLng > 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLng, maxLng
}
