package etasvc

//defaultOnRouteThresholdMeters is how far a fix may be from its corridor
//polyline before it is considered off route
const defaultOnRouteThresholdMeters = 100.0

//resolveRouteAdherence computes each fix's shortest ground distance to its
//corridor polyline and tags it on-route when within thresholdMeters.
//Fix order does not affect the computed distances.
func resolveRouteAdherence(batch []Fix,
	index *GeometryIndex,
	thresholdMeters float64) ([]routedFix, error) {

	polylines := make(map[string][]LatLon)
	result := make([]routedFix, 0, len(batch))

	for _, fix := range batch {
		polyline, present := polylines[fix.Corridor]
		if !present {
			loaded, err := index.CorridorPolyline(fix.Corridor)
			if err != nil {
				return nil, err
			}
			polyline = loaded
			polylines[fix.Corridor] = polyline
		}
		distance := distanceToPolylineMeters(polyline, LatLon{Lat: fix.Latitude, Lon: fix.Longitude})
		result = append(result, routedFix{
			Fix:                fix,
			DistanceToCorridor: distance,
			OnRoute:            distance <= thresholdMeters,
		})
	}
	return result, nil
}
