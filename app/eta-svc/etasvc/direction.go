package etasvc

import (
	"github.com/jaktransit/etacast/foundation/kdtree"
)

//voter defaults
const (
	defaultVoterWindowSize = 5
	defaultSkipMeters      = 15.0
	defaultTieMeters       = 20.0
)

// voterMethod identifies which of the seven decision methods chose a fix's
// directional trip. Closed enumeration, kept stable so tests can assert on it.
type voterMethod int

const (
	//methodFirstFixTwoDirections first fix on a corridor with two directions, nearer shape wins
	methodFirstFixTwoDirections voterMethod = 1
	//methodClearlyNearer one shape is more than the tie threshold nearer, or first fix with one direction
	methodClearlyNearer voterMethod = 2
	//methodSkipStationary the vehicle moved at most the skip threshold since the previous fix
	methodSkipStationary voterMethod = 3
	//methodNearOutboundStart both fixes project near the start of the first shape
	methodNearOutboundStart voterMethod = 4
	//methodNearReturnStart both fixes project near the start of the second shape
	methodNearReturnStart voterMethod = 5
	//methodPassedFirst ordering of the projected vertex indexes decides the direction
	methodPassedFirst voterMethod = 6
	//methodSingleDirection corridor has one directional shape
	methodSingleDirection voterMethod = 7
)

// directionDecision records one per-fix voter outcome for inspection.
type directionDecision struct {
	TripShapeId string
	Method      voterMethod
}

//directionVoter resolves the active directional trip per fix with a windowed vote
type directionVoter struct {
	index      *GeometryIndex
	windowSize int
	skipMeters float64
	tieMeters  float64
}

func makeDirectionVoter(index *GeometryIndex) *directionVoter {
	return &directionVoter{
		index:      index,
		windowSize: defaultVoterWindowSize,
		skipMeters: defaultSkipMeters,
		tieMeters:  defaultTieMeters,
	}
}

//resolve runs the windowed voter over the chronologically ordered batch and
//returns the committed trip per fix along with the per-fix decisions.
func (v *directionVoter) resolve(batch []routedFix, corridorId string) ([]directedFix, []directionDecision, error) {
	shapeIds, err := v.index.CorridorTripShapes(corridorId)
	if err != nil {
		return nil, nil, err
	}
	if len(shapeIds) == 0 {
		return nil, nil, newConfigurationErrorf("corridor %s has no directional shapes", corridorId)
	}

	trip1Id := shapeIds[0]
	trip1Shape, err := v.index.TripShape(trip1Id)
	if err != nil {
		return nil, nil, err
	}
	trip2Id := ""
	var trip2Shape []LatLon
	if len(shapeIds) > 1 {
		trip2Id = shapeIds[1]
		trip2Shape, err = v.index.TripShape(trip2Id)
		if err != nil {
			return nil, nil, err
		}
	}

	var previous *LatLon
	window := make([]string, 0, v.windowSize)
	result := make([]directedFix, 0, len(batch))
	decisions := make([]directionDecision, 0, len(batch))
	committed := ""

	for _, fix := range batch {
		current := LatLon{Lat: fix.Latitude, Lon: fix.Longitude}
		chosen, method := v.chooseTrip(current, previous, trip1Shape, trip2Shape, trip1Id, trip2Id)
		decisions = append(decisions, directionDecision{TripShapeId: chosen, Method: method})

		if method != methodSkipStationary {
			previous = &LatLon{Lat: current.Lat, Lon: current.Lon}
			window = append(window, chosen)
			committed = mostCommonTrip(window, chosen)
			if len(window) == v.windowSize {
				window = window[1:]
			}
		}
		if committed == "" {
			return nil, decisions, ErrDirectionUnresolved
		}
		result = append(result, directedFix{routedFix: fix, TripShapeId: committed})
	}
	if committed == "" {
		return nil, decisions, ErrDirectionUnresolved
	}
	return result, decisions, nil
}

//chooseTrip picks a directional trip for one fix, returning the tagged method.
//An empty trip id with methodSkipStationary means keep the last committed trip.
func (v *directionVoter) chooseTrip(current LatLon,
	previous *LatLon,
	trip1Shape []LatLon,
	trip2Shape []LatLon,
	trip1Id string,
	trip2Id string) (string, voterMethod) {

	distance1 := distanceToPolylineMeters(trip1Shape, current)

	if trip2Id != "" {
		distance2 := distanceToPolylineMeters(trip2Shape, current)
		nearer := trip1Id
		if distance2 < distance1 {
			nearer = trip2Id
		}
		diff := distance1 - distance2
		if diff < 0 {
			diff = -diff
		}
		if previous == nil {
			if diff > v.tieMeters {
				return nearer, methodClearlyNearer
			}
			return nearer, methodFirstFixTwoDirections
		}
		if diff > v.tieMeters {
			return nearer, methodClearlyNearer
		}
	} else if previous == nil {
		return trip1Id, methodClearlyNearer
	}

	if previous != nil && equirectangularMeters(*previous, current) <= v.skipMeters {
		return "", methodSkipStationary
	}

	if trip2Id != "" {
		first, startIndex, endIndex := firstPassed(*previous, current, trip1Shape)
		if startIndex <= 1 {
			return trip1Id, methodNearOutboundStart
		}
		if endIndex <= 1 {
			return trip2Id, methodNearReturnStart
		}
		if first {
			return trip1Id, methodPassedFirst
		}
		return trip2Id, methodPassedFirst
	}
	return trip1Id, methodSingleDirection
}

//firstPassed projects pointA (previous) and pointB (current) onto line and
//reports whether pointA passed first along the line's vertex ordering.
//startIndex is the smaller of the two projected vertex indexes, endIndex the
//smaller distance from the end of the line.
func firstPassed(pointA LatLon, pointB LatLon, line []LatLon) (aFirst bool, startIndex int, endIndex int) {
	nearestA := nearestPointOnPolyline(line, pointA)
	nearestB := nearestPointOnPolyline(line, pointB)

	points := make([]kdtree.Point, len(line))
	for i, vertex := range line {
		points[i] = kdtree.Point{Lat: vertex.Lat, Lon: vertex.Lon, Index: i}
	}
	tree := kdtree.Build(points)

	vertexA, _ := tree.Nearest(nearestA.Lat, nearestA.Lon)
	vertexB, _ := tree.Nearest(nearestB.Lat, nearestB.Lon)
	idxA := vertexA.Index
	idxB := vertexB.Index

	n := len(line)
	startIndex = idxA
	if idxB < startIndex {
		startIndex = idxB
	}
	endIndex = n - idxA
	if n-idxB < endIndex {
		endIndex = n - idxB
	}

	if idxA < idxB {
		return true, startIndex, endIndex
	}
	if idxA > idxB {
		return false, startIndex, endIndex
	}
	// same projected vertex, tie-break by distance to the preceding vertex
	previousVertex := idxA - 1
	if previousVertex < 0 {
		previousVertex = n - 1
	}
	distanceA := equirectangularMeters(line[previousVertex], pointA)
	distanceB := equirectangularMeters(line[previousVertex], pointB)
	return distanceA < distanceB, startIndex, endIndex
}

//mostCommonTrip commits the mode of the window, or the default when the window
//holds a single element. Ties break toward the earliest occurrence in window order.
func mostCommonTrip(window []string, defaultTrip string) string {
	if len(window) == 1 {
		return defaultTrip
	}
	counts := make(map[string]int, len(window))
	for _, tripId := range window {
		counts[tripId]++
	}
	best := ""
	bestCount := 0
	for _, tripId := range window {
		if counts[tripId] > bestCount {
			best = tripId
			bestCount = counts[tripId]
		}
	}
	return best
}
