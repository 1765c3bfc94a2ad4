package etasvc

import (
	"github.com/jaktransit/etacast/business/data/schedule"
	"github.com/jaktransit/etacast/foundation/kdtree"
)

// TripStop locates one scheduled stop on a directional trip shape.
type TripStop struct {
	StopId      string
	VertexIndex int
}

// StopPairRow gives, for one shape vertex, the stops immediately behind and
// ahead of a vehicle located at that vertex.
type StopPairRow struct {
	Position    LatLon
	TripShapeId string
	NextStop    string
	PrevStop    string
	NextStopSeq int
	PrevStopSeq int
}

//tripGeometry holds the per-directional-shape tables derived at build time
type tripGeometry struct {
	shapeId       string
	tripId        string
	corridorId    string
	pairShapeId   string
	shape         []LatLon
	stopSequence  []TripStop
	cumNextStopKm map[string]float64
}

//corridorGeometry holds the per-corridor polyline and the stop pair index
type corridorGeometry struct {
	id             string
	polyline       []LatLon
	tripShapeIds   []string
	pairRows       []StopPairRow
	pairTree       *kdtree.Tree
	pairTreeByTrip map[string]*kdtree.Tree
}

// GeometryIndex holds every static geometric structure the pipeline needs.
// Built once at startup and read-only afterwards; safe for concurrent use.
type GeometryIndex struct {
	corridors       map[string]*corridorGeometry
	trips           map[string]*tripGeometry
	shapeIdByTripId map[string]string
	stopNames       map[string]string
}

// BuildGeometryIndex derives all geometric lookup tables from the static schedule.
// Degenerate shapes (fewer than two vertices, zero-length segments) and corridors
// with other than one or two directional trips are rejected.
func BuildGeometryIndex(static *schedule.Static) (*GeometryIndex, error) {
	index := GeometryIndex{
		corridors:       make(map[string]*corridorGeometry),
		trips:           make(map[string]*tripGeometry),
		shapeIdByTripId: make(map[string]string),
		stopNames:       make(map[string]string),
	}

	shapesById := make(map[string][]LatLon)
	for _, point := range static.ShapePoints {
		shapesById[point.ShapeId] = append(shapesById[point.ShapeId], LatLon{Lat: point.ShapePtLat, Lon: point.ShapePtLon})
	}
	for shapeId, shape := range shapesById {
		if len(shape) < 2 {
			return nil, newConfigurationErrorf("shape %s has fewer than two vertices", shapeId)
		}
		for i := 0; i+1 < len(shape); i++ {
			if shape[i] == shape[i+1] {
				return nil, newConfigurationErrorf("shape %s has a zero-length segment at vertex %d", shapeId, i)
			}
		}
	}

	stopsById := make(map[string]*schedule.Stop)
	for _, stop := range static.Stops {
		stopsById[stop.StopId] = stop
		index.stopNames[stop.StopId] = stop.StopName
	}

	stopTimesByTrip := make(map[string][]*schedule.StopTime)
	for _, stopTime := range static.StopTimes {
		stopTimesByTrip[stopTime.TripId] = append(stopTimesByTrip[stopTime.TripId], stopTime)
	}

	tripsByCorridor := make(map[string][]*schedule.Trip)
	for _, trip := range static.Trips {
		tripsByCorridor[trip.RouteId] = append(tripsByCorridor[trip.RouteId], trip)
	}

	for _, route := range static.Routes {
		corridorTrips := tripsByCorridor[route.RouteId]
		if len(corridorTrips) < 1 || len(corridorTrips) > 2 {
			return nil, newConfigurationErrorf("corridor %s has %d directional trips, expected one or two",
				route.RouteId, len(corridorTrips))
		}

		corridor := corridorGeometry{
			id:             route.RouteId,
			pairTreeByTrip: make(map[string]*kdtree.Tree),
		}

		for _, trip := range corridorTrips {
			shape, present := shapesById[trip.ShapeId]
			if !present {
				return nil, newConfigurationErrorf("trip %s references unknown shape %s", trip.TripId, trip.ShapeId)
			}
			stopTimes := stopTimesByTrip[trip.TripId]
			if len(stopTimes) < 2 {
				return nil, newConfigurationErrorf("trip %s has fewer than two scheduled stops", trip.TripId)
			}

			tg, err := buildTripGeometry(trip, shape, stopTimes, stopsById)
			if err != nil {
				return nil, err
			}
			index.trips[trip.ShapeId] = tg
			index.shapeIdByTripId[trip.TripId] = trip.ShapeId
			corridor.tripShapeIds = append(corridor.tripShapeIds, trip.ShapeId)
			corridor.polyline = append(corridor.polyline, shape...)
		}

		if len(corridor.tripShapeIds) == 2 {
			first := index.trips[corridor.tripShapeIds[0]]
			second := index.trips[corridor.tripShapeIds[1]]
			first.pairShapeId = second.shapeId
			second.pairShapeId = first.shapeId
		}

		buildStopPairIndex(&corridor, index.trips)
		index.corridors[route.RouteId] = &corridor
	}

	return &index, nil
}

//buildTripGeometry derives the stop sequence and cumulative next stop distances for one trip
func buildTripGeometry(trip *schedule.Trip,
	shape []LatLon,
	stopTimes []*schedule.StopTime,
	stopsById map[string]*schedule.Stop) (*tripGeometry, error) {

	tg := tripGeometry{
		shapeId:       trip.ShapeId,
		tripId:        trip.TripId,
		corridorId:    trip.RouteId,
		shape:         shape,
		cumNextStopKm: make(map[string]float64),
	}

	// snap each scheduled stop to its nearest shape vertex, strictly after the
	// previous stop's vertex so the sequence stays ordered along the shape
	previousVertex := -1
	for _, stopTime := range stopTimes {
		stop, present := stopsById[stopTime.StopId]
		if !present {
			return nil, newConfigurationErrorf("trip %s references unknown stop %s", trip.TripId, stopTime.StopId)
		}
		vertex := nearestVertexAfter(shape, LatLon{Lat: stop.StopLat, Lon: stop.StopLon}, previousVertex)
		if vertex < 0 {
			return nil, newConfigurationErrorf("trip %s stop %s cannot be placed on shape %s after vertex %d",
				trip.TripId, stopTime.StopId, trip.ShapeId, previousVertex)
		}
		tg.stopSequence = append(tg.stopSequence, TripStop{StopId: stopTime.StopId, VertexIndex: vertex})
		previousVertex = vertex
	}

	for i := 0; i+1 < len(tg.stopSequence); i++ {
		from := tg.stopSequence[i]
		to := tg.stopSequence[i+1]
		distance := 0.0
		for v := from.VertexIndex; v < to.VertexIndex; v++ {
			distance += equirectangularKm(shape[v], shape[v+1])
		}
		tg.cumNextStopKm[from.StopId] = distance
	}

	return &tg, nil
}

//nearestVertexAfter returns the index of the shape vertex closest to point with
//index strictly greater than after, or -1 when none remain
func nearestVertexAfter(shape []LatLon, point LatLon, after int) int {
	best := -1
	bestSquared := 0.0
	for i := after + 1; i < len(shape); i++ {
		squared := planarSquaredDistance(shape[i], point)
		if best == -1 || squared < bestSquared {
			best = i
			bestSquared = squared
		}
	}
	return best
}

//buildStopPairIndex derives one StopPairRow per shape vertex per trip in the
//corridor and indexes the rows with k-d trees, one per trip plus a combined tree
func buildStopPairIndex(corridor *corridorGeometry, trips map[string]*tripGeometry) {
	allPoints := make([]kdtree.Point, 0)
	for _, shapeId := range corridor.tripShapeIds {
		tg := trips[shapeId]
		tripPoints := make([]kdtree.Point, 0, len(tg.shape))
		for v, vertex := range tg.shape {
			nextSeq := len(tg.stopSequence) - 1
			for s, stop := range tg.stopSequence {
				if stop.VertexIndex > v {
					nextSeq = s
					break
				}
			}
			// vertices ahead of the first stop are treated as between the
			// first two stops so prev always strictly precedes next
			if nextSeq == 0 {
				nextSeq = 1
			}
			prevSeq := nextSeq - 1
			row := StopPairRow{
				Position:    vertex,
				TripShapeId: shapeId,
				NextStop:    tg.stopSequence[nextSeq].StopId,
				PrevStop:    tg.stopSequence[prevSeq].StopId,
				NextStopSeq: nextSeq,
				PrevStopSeq: prevSeq,
			}
			rowIndex := len(corridor.pairRows)
			corridor.pairRows = append(corridor.pairRows, row)
			point := kdtree.Point{Lat: vertex.Lat, Lon: vertex.Lon, Index: rowIndex}
			tripPoints = append(tripPoints, point)
			allPoints = append(allPoints, point)
		}
		corridor.pairTreeByTrip[shapeId] = kdtree.Build(tripPoints)
	}
	corridor.pairTree = kdtree.Build(allPoints)
}

// CorridorPolyline returns the ordered polyline of all directional shapes on the corridor.
func (g *GeometryIndex) CorridorPolyline(corridorId string) ([]LatLon, error) {
	corridor, present := g.corridors[corridorId]
	if !present {
		return nil, newConfigurationErrorf("unknown corridor %s", corridorId)
	}
	return corridor.polyline, nil
}

// CorridorTripShapes returns the directional shape ids on the corridor, in schedule order.
func (g *GeometryIndex) CorridorTripShapes(corridorId string) ([]string, error) {
	corridor, present := g.corridors[corridorId]
	if !present {
		return nil, newConfigurationErrorf("unknown corridor %s", corridorId)
	}
	return corridor.tripShapeIds, nil
}

// TripShape returns the ordered coordinate list of the directional trip shape.
func (g *GeometryIndex) TripShape(shapeId string) ([]LatLon, error) {
	tg, present := g.trips[shapeId]
	if !present {
		return nil, newConfigurationErrorf("unknown trip shape %s", shapeId)
	}
	return tg.shape, nil
}

// TripStopSequence returns the ordered stops on the trip shape with their vertex indexes.
func (g *GeometryIndex) TripStopSequence(shapeId string) ([]TripStop, error) {
	tg, present := g.trips[shapeId]
	if !present {
		return nil, newConfigurationErrorf("unknown trip shape %s", shapeId)
	}
	return tg.stopSequence, nil
}

// PairShapeId returns the opposing directional shape id, or empty when the
// corridor has a single direction.
func (g *GeometryIndex) PairShapeId(shapeId string) (string, error) {
	tg, present := g.trips[shapeId]
	if !present {
		return "", newConfigurationErrorf("unknown trip shape %s", shapeId)
	}
	return tg.pairShapeId, nil
}

// ShapeIdForTripId maps a GTFS trip identifier to its directional shape id.
func (g *GeometryIndex) ShapeIdForTripId(tripId string) (string, error) {
	shapeId, present := g.shapeIdByTripId[tripId]
	if !present {
		return "", newConfigurationErrorf("unknown trip %s", tripId)
	}
	return shapeId, nil
}

// StopName returns the display name for a stop id, or the id itself when unknown.
func (g *GeometryIndex) StopName(stopId string) string {
	if name, present := g.stopNames[stopId]; present {
		return name
	}
	return stopId
}

// NextStopCumDistance returns the along-shape distance in km from fromStopId to
// the next stop on the trip shape.
func (g *GeometryIndex) NextStopCumDistance(shapeId string, fromStopId string) (float64, error) {
	tg, present := g.trips[shapeId]
	if !present {
		return 0, newConfigurationErrorf("unknown trip shape %s", shapeId)
	}
	distance, present := tg.cumNextStopKm[fromStopId]
	if !present {
		return 0, newConfigurationErrorf("trip shape %s has no next stop distance from stop %s", shapeId, fromStopId)
	}
	return distance, nil
}

// AlongShapeDistance computes the along-shape distance in km from the anchor
// coordinate through toStopId. The anchor is conceptually inserted between the
// vertex preceding fromStopId's projection and toStopId's vertex; the shape is
// left untouched.
func (g *GeometryIndex) AlongShapeDistance(shapeId string,
	fromStopId string,
	toStopId string,
	lat float64,
	lon float64) (float64, error) {

	tg, present := g.trips[shapeId]
	if !present {
		return 0, newConfigurationErrorf("unknown trip shape %s", shapeId)
	}
	l, err := tg.stopVertex(fromStopId)
	if err != nil {
		return 0, err
	}
	r, err := tg.stopVertex(toStopId)
	if err != nil {
		return 0, err
	}
	if r <= l {
		return 0, newConfigurationErrorf("trip shape %s stop %s does not precede stop %s", shapeId, fromStopId, toStopId)
	}

	anchor := LatLon{Lat: lat, Lon: lon}
	insertIndex := insertionIndex(tg.shape, anchor, l, r)

	total := equirectangularKm(anchor, tg.shape[insertIndex])
	for v := insertIndex; v < r; v++ {
		total += equirectangularKm(tg.shape[v], tg.shape[v+1])
	}
	return total, nil
}

//stopVertex returns the shape vertex index of the first occurrence of stopId
func (t *tripGeometry) stopVertex(stopId string) (int, error) {
	for _, stop := range t.stopSequence {
		if stop.StopId == stopId {
			return stop.VertexIndex, nil
		}
	}
	return 0, newConfigurationErrorf("trip shape %s has no stop %s", t.shapeId, stopId)
}

//insertionIndex projects anchor onto the shape restricted to [l, r], finds the
//two vertex neighbors of the projection with a small k-d tree over just those
//vertices, and returns the position immediately after the smaller neighbor index
func insertionIndex(shape []LatLon, anchor LatLon, l int, r int) int {
	segment := shape[l : r+1]
	projected := nearestPointOnPolyline(segment, anchor)

	points := make([]kdtree.Point, len(segment))
	for i, vertex := range segment {
		points[i] = kdtree.Point{Lat: vertex.Lat, Lon: vertex.Lon, Index: i}
	}
	neighbors := kdtree.Build(points).NearestK(projected.Lat, projected.Lon, 2)

	smaller := neighbors[0].Point.Index
	if len(neighbors) > 1 && neighbors[1].Point.Index < smaller {
		smaller = neighbors[1].Point.Index
	}
	return l + smaller + 1
}

// CorridorPairTree returns the combined k-d tree over every StopPairRow of the corridor.
func (g *GeometryIndex) CorridorPairTree(corridorId string) (*kdtree.Tree, error) {
	corridor, present := g.corridors[corridorId]
	if !present {
		return nil, newConfigurationErrorf("unknown corridor %s", corridorId)
	}
	return corridor.pairTree, nil
}

//tripPairTree returns the k-d tree restricted to the rows of one directional shape
func (g *GeometryIndex) tripPairTree(corridorId string, shapeId string) (*kdtree.Tree, error) {
	corridor, present := g.corridors[corridorId]
	if !present {
		return nil, newConfigurationErrorf("unknown corridor %s", corridorId)
	}
	tree, present := corridor.pairTreeByTrip[shapeId]
	if !present {
		return nil, newConfigurationErrorf("corridor %s has no trip shape %s", corridorId, shapeId)
	}
	return tree, nil
}

//pairRow resolves a k-d tree result index back into the corridor's StopPairRow
func (g *GeometryIndex) pairRow(corridorId string, rowIndex int) (StopPairRow, error) {
	corridor, present := g.corridors[corridorId]
	if !present {
		return StopPairRow{}, newConfigurationErrorf("unknown corridor %s", corridorId)
	}
	if rowIndex < 0 || rowIndex >= len(corridor.pairRows) {
		return StopPairRow{}, newConfigurationErrorf("corridor %s has no pair row %d", corridorId, rowIndex)
	}
	return corridor.pairRows[rowIndex], nil
}
