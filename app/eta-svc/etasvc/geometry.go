package etasvc

import "math"

const earthRadiusKm = 6371.0

// LatLon is a geographic coordinate in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

//equirectangularKm calculates the approximate distance in kilometers between two
//coordinates with the equirectangular flat-earth approximation.
//adequately accurate for coordinates that are close together (in the same transit area)
//will not produce good results where longitude rolls over from -179.9 to 179.9
func equirectangularKm(a, b LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lon1 := a.Lon * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lon2 := b.Lon * math.Pi / 180

	x := (lon2 - lon1) * math.Cos((lat1+lat2)/2)
	y := lat2 - lat1

	return math.Sqrt(x*x+y*y) * earthRadiusKm
}

//equirectangularMeters convenience wrapper around equirectangularKm returning meters
func equirectangularMeters(a, b LatLon) float64 {
	return equirectangularKm(a, b) * 1000
}

//nearestPointOnSegment calculates the approximate nearest point on the segment from
//start to end from point, working in planar coordinate space.
//results are close enough for coordinates in the same transit area
func nearestPointOnSegment(start, end, point LatLon) LatLon {
	pointLatDiff := point.Lat - start.Lat
	pointLonDiff := point.Lon - start.Lon
	segmentLatDiff := end.Lat - start.Lat
	segmentLonDiff := end.Lon - start.Lon
	segmentLengthSquared := segmentLatDiff*segmentLatDiff + segmentLonDiff*segmentLonDiff
	t := 0.0
	if segmentLengthSquared > 0 {
		dot := pointLatDiff*segmentLatDiff + pointLonDiff*segmentLonDiff
		t = math.Min(1, math.Max(0, dot/segmentLengthSquared))
	}
	return LatLon{
		Lat: start.Lat + segmentLatDiff*t,
		Lon: start.Lon + segmentLonDiff*t,
	}
}

//nearestPointOnPolyline returns the point on line closest to point.
//candidate points are compared in planar coordinate space, matching the
//segment projection above.
func nearestPointOnPolyline(line []LatLon, point LatLon) LatLon {
	if len(line) == 0 {
		return point
	}
	best := line[0]
	bestSquared := planarSquaredDistance(best, point)
	for i := 0; i+1 < len(line); i++ {
		candidate := nearestPointOnSegment(line[i], line[i+1], point)
		candidateSquared := planarSquaredDistance(candidate, point)
		if candidateSquared < bestSquared {
			best = candidate
			bestSquared = candidateSquared
		}
	}
	return best
}

func planarSquaredDistance(a, b LatLon) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return dLat*dLat + dLon*dLon
}

//distanceToPolylineMeters ground distance in meters from point to the nearest
//point on line
func distanceToPolylineMeters(line []LatLon, point LatLon) float64 {
	return equirectangularMeters(point, nearestPointOnPolyline(line, point))
}
