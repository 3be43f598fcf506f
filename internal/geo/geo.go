// ABOUTME: Great-circle distance between coordinates
// ABOUTME: Used by the recorder to measure fix-to-point distance in meters

package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6371000.0

// Distance returns the haversine distance in meters between two coordinates
// given in degrees.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// OffsetNorth returns the latitude reached by moving meters due north from lat.
func OffsetNorth(lat, meters float64) float64 {
	return lat + meters/EarthRadiusMeters*180/math.Pi
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
