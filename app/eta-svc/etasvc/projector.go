package etasvc

import (
	"math"
	"sort"
)

const (
	//defaultMinimumWindow is the fewest fixes that may produce a prediction
	defaultMinimumWindow = 10
	//defaultETAPercentile is the percentile of per-fix arrival times published per stop
	defaultETAPercentile = 25.0
	//maxTripHops bounds how many paired trips the projector follows, the
	//current trip plus at most two hops around the return loop
	maxTripHops = 3
)

// SegmentPredictor is the boundary to the trained travel time regression model.
// One call carries the full virtual row sequence for a single fix and returns
// one predicted travel time in seconds per row. Implementations must be safe
// for concurrent calls.
type SegmentPredictor interface {
	PredictSegments(features [][]float64) ([]float64, error)
}

//corridorFeatureIndex is the fixed corridor-to-feature mapping baked into the
//trained model. Changing it is a breaking change to the model contract.
var corridorFeatureIndex = map[string]float64{
	"4B":  0,
	"9H":  1,
	"D21": 2,
}

//segmentFeatures flattens a fix into the model's fixed feature vector:
//corridor index, day-of-week, hour-of-day, heading, speed, congestion bin,
//distance to next stop, latitude, longitude. Order is part of the model contract.
func segmentFeatures(fix stopFix) ([]float64, error) {
	corridorIndex, present := corridorFeatureIndex[fix.Corridor]
	if !present {
		return nil, newConfigurationErrorf("corridor %s has no model feature index", fix.Corridor)
	}
	return []float64{
		corridorIndex,
		float64(fix.DayOfWeek),
		float64(fix.HourOfDay),
		fix.Heading,
		fix.Speed,
		float64(fix.CongestionBin),
		fix.NextStopDistKm,
		fix.Latitude,
		fix.Longitude,
	}, nil
}

//horizonProjector turns a window of fixes into per-stop ETAs
type horizonProjector struct {
	index      *GeometryIndex
	predictor  SegmentPredictor
	percentile float64
}

func makeHorizonProjector(index *GeometryIndex, predictor SegmentPredictor) *horizonProjector {
	return &horizonProjector{
		index:      index,
		predictor:  predictor,
		percentile: defaultETAPercentile,
	}
}

//projectWindow produces the aggregated per-stop ETA seconds for one vehicle's
//window of fixes. Only stops reachable from every fix in the window survive;
//each surviving stop's ETA is the configured percentile of its accumulated
//per-fix arrival times.
func (p *horizonProjector) projectWindow(window []stopFix) (map[string]float64, error) {
	if len(window) == 0 {
		return map[string]float64{}, nil
	}

	// lap closure anchors on the first fix's previous stop
	lastStop := window[0].PrevStop
	accumulator := make(map[string][]float64)

	for _, fix := range window {
		rows, err := p.virtualRows(fix, lastStop)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}

		features := make([][]float64, len(rows))
		for i, row := range rows {
			features[i], err = segmentFeatures(row)
			if err != nil {
				return nil, err
			}
		}
		segmentSeconds, err := p.predictor.PredictSegments(features)
		if err != nil {
			return nil, &PredictorError{Err: err}
		}
		if len(segmentSeconds) != len(rows) {
			return nil, &PredictorError{
				Err: newConfigurationErrorf("predictor returned %d values for %d rows", len(segmentSeconds), len(rows)),
			}
		}

		arrival := 0.0
		for i, row := range rows {
			arrival += segmentSeconds[i]
			accumulator[row.NextStop] = append(accumulator[row.NextStop], arrival)
		}
	}

	result := make(map[string]float64)
	for stopId, arrivals := range accumulator {
		// stops not reachable from every fix in the window are dropped
		if len(arrivals) != len(window) {
			continue
		}
		result[stopId] = percentile(arrivals, p.percentile)
	}
	return result, nil
}

//virtualRows synthesizes the prediction row sequence for one fix: the fix
//itself, then one row per downstream stop on the current trip, continuing onto
//paired return trips, halting when the next stop closes the lap at lastStop.
func (p *horizonProjector) virtualRows(fix stopFix, lastStop string) ([]stopFix, error) {
	rows := make([]stopFix, 0)
	tripId := fix.TripShapeId

	for hop := 0; hop < maxTripHops; hop++ {
		stops, err := p.index.TripStopSequence(tripId)
		if err != nil {
			return nil, err
		}
		shape, err := p.index.TripShape(tripId)
		if err != nil {
			return nil, err
		}

		start := 1
		if hop == 0 {
			start = indexOfStop(stops, fix.NextStop)
			if start < 0 {
				return nil, newConfigurationErrorf("trip shape %s has no stop %s", tripId, fix.NextStop)
			}
		}

		for i := start; i < len(stops); i++ {
			if hop == 0 && i == start {
				rows = append(rows, fix)
				continue
			}
			prev := stops[i-1]
			next := stops[i]
			if next.StopId == lastStop {
				return rows, nil
			}

			distance, err := p.index.NextStopCumDistance(tripId, prev.StopId)
			if err != nil {
				return nil, err
			}
			virtual := fix
			virtual.TripShapeId = tripId
			virtual.PrevStop = prev.StopId
			virtual.NextStop = next.StopId
			virtual.Latitude = shape[prev.VertexIndex].Lat
			virtual.Longitude = shape[prev.VertexIndex].Lon
			virtual.NextStopDistKm = distance
			rows = append(rows, virtual)
		}

		pairId, err := p.index.PairShapeId(tripId)
		if err != nil {
			return nil, err
		}
		if pairId == "" {
			break
		}
		tripId = pairId
	}
	return rows, nil
}

func indexOfStop(stops []TripStop, stopId string) int {
	for i, stop := range stops {
		if stop.StopId == stopId {
			return i
		}
	}
	return -1
}

//percentile returns the pct percentile of values using linear interpolation
//between closest ranks
func percentile(values []float64, pct float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := pct / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	if lower+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[lower+1]-sorted[lower])
}
