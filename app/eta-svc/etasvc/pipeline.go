package etasvc

import (
	"time"
)

//vendorTripOverrides maps vendor trip identifiers straight to directional trip
//shapes, bypassing the direction voter. Unknown vendor trips fall through to
//the voter.
var vendorTripOverrides = map[string]string{
	"4.B001": "4B-R01_shp",
	"4.B011": "4B-R02_shp",
	"9H.R04": "9H-R04_shp",
	"9H.L03": "9H-R05_shp",
}

// VehiclePrediction is the result of one vehicle's pipeline run: the resolved
// directional trip, the most recent fix, and seconds-until-arrival per
// downstream stop measured from LastFix.Timestamp.
type VehiclePrediction struct {
	BusCode     string
	Corridor    string
	TripShapeId string
	LastFix     Fix
	NextStop    string
	PrevStop    string
	StopETAs    map[string]float64
}

//ArrivalTimes converts the relative per-stop ETAs to absolute times
func (v *VehiclePrediction) ArrivalTimes() map[string]time.Time {
	arrivals := make(map[string]time.Time, len(v.StopETAs))
	for stopId, seconds := range v.StopETAs {
		arrivals[stopId] = v.LastFix.Timestamp.Add(time.Duration(seconds * float64(time.Second)))
	}
	return arrivals
}

//vehiclePipeline runs the full fix-to-ETA pipeline for one vehicle's window
type vehiclePipeline struct {
	index           *GeometryIndex
	binning         *StopBinning
	preprocessor    *fixPreprocessor
	voter           *directionVoter
	projector       *horizonProjector
	thresholdMeters float64
	minimumWindow   int
}

func makeVehiclePipeline(index *GeometryIndex,
	binning *StopBinning,
	predictor SegmentPredictor,
	location *time.Location) *vehiclePipeline {
	return &vehiclePipeline{
		index:           index,
		binning:         binning,
		preprocessor:    &fixPreprocessor{location: location},
		voter:           makeDirectionVoter(index),
		projector:       makeHorizonProjector(index, predictor),
		thresholdMeters: defaultOnRouteThresholdMeters,
		minimumWindow:   defaultMinimumWindow,
	}
}

//run produces a VehiclePrediction for one vehicle's merged window of history
//and fresh fixes. Returns ErrNoFreshData, ErrInsufficientHistory, OffRouteError
//or ErrDirectionUnresolved when the window cannot produce a prediction this tick.
func (p *vehiclePipeline) run(batch []Fix) (*VehiclePrediction, error) {
	if !anyNew(batch) {
		return nil, ErrNoFreshData
	}
	if len(batch) < p.minimumWindow {
		return nil, ErrInsufficientHistory
	}

	window, err := p.preprocessor.preprocess(batch)
	if err != nil {
		return nil, err
	}

	routed, err := resolveRouteAdherence(window, p.index, p.thresholdMeters)
	if err != nil {
		return nil, err
	}
	last := routed[len(routed)-1]
	if !last.OnRoute {
		return nil, &OffRouteError{BusCode: last.BusCode, DistanceMeters: last.DistanceToCorridor}
	}

	directed, err := p.resolveDirection(routed, last.Corridor)
	if err != nil {
		return nil, err
	}

	located, err := resolveStopContext(directed, p.index)
	if err != nil {
		return nil, err
	}
	located, err = binNextStopCongestion(located, p.binning)
	if err != nil {
		return nil, err
	}

	stopETAs, err := p.projector.projectWindow(located)
	if err != nil {
		return nil, err
	}

	lastLocated := located[len(located)-1]
	return &VehiclePrediction{
		BusCode:     last.BusCode,
		Corridor:    last.Corridor,
		TripShapeId: directed[len(directed)-1].TripShapeId,
		LastFix:     last.Fix,
		NextStop:    lastLocated.NextStop,
		PrevStop:    lastLocated.PrevStop,
		StopETAs:    stopETAs,
	}, nil
}

//resolveDirection applies the static vendor trip override when present,
//otherwise runs the windowed direction voter over the batch
func (p *vehiclePipeline) resolveDirection(routed []routedFix, corridorId string) ([]directedFix, error) {
	last := routed[len(routed)-1]
	if tripShapeId, present := vendorTripOverrides[last.VendorTripId]; present {
		directed := make([]directedFix, 0, len(routed))
		for _, fix := range routed {
			directed = append(directed, directedFix{routedFix: fix, TripShapeId: tripShapeId})
		}
		return directed, nil
	}
	directed, _, err := p.voter.resolve(routed, corridorId)
	return directed, err
}

func anyNew(batch []Fix) bool {
	for _, fix := range batch {
		if fix.IsNew {
			return true
		}
	}
	return false
}
