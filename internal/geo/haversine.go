package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distance.
const EarthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two
// latitude/longitude pairs given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// PathLength sums the haversine distance along a (lon, lat) polyline.
func PathLength(line orb.LineString) float64 {
	total := 0.0
	for i := 1; i < len(line); i++ {
		total += Haversine(line[i-1].Lat(), line[i-1].Lon(), line[i].Lat(), line[i].Lon())
	}
	return total
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ValidCoordinate reports whether lat is within [-90, 90] and lon within
// [-180, 180]. NaN is never valid.
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
