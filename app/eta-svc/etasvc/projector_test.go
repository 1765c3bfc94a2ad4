package etasvc

import (
	"errors"
	"math"
	"testing"

	"github.com/matryer/is"
)

//locatedWindow runs raw fixes through stop context resolution and congestion
//binning for projector tests
func locatedWindow(t *testing.T, index *GeometryIndex, fixes []Fix, tripShapeId string) []stopFix {
	t.Helper()
	located, err := resolveStopContext(directedWindow(fixes, tripShapeId), index)
	if err != nil {
		t.Fatalf("resolving stop context: %v", err)
	}
	located, err = binNextStopCongestion(located, buildTestBinning(t))
	if err != nil {
		t.Fatalf("binning congestion: %v", err)
	}
	return located
}

func Test_virtualRows_walkTheLoop(t *testing.T) {
	is := is.New(t)
	index := buildTestIndex(t)
	projector := makeHorizonProjector(index, &stubSegmentPredictor{})

	window := locatedWindow(t, index, outboundWindow("TJ001", 10, 0.0002), "4B-R01_shp")
	lastStop := window[0].PrevStop
	is.Equal(lastStop, "A")

	rows, err := projector.virtualRows(window[0], lastStop)
	is.NoErr(err)

	// the fix itself, the rest of the outbound, then the return trip until the
	// lap closes one stop short of A
	nextStops := make([]string, 0, len(rows))
	for _, row := range rows {
		nextStops = append(nextStops, row.NextStop)
	}
	is.Equal(nextStops, []string{"B", "C", "D", "E", "F"})

	// the first row is the fix itself, untouched
	is.Equal(rows[0], window[0])

	// virtual rows sit on the previous stop's shape vertex with the scheduled
	// distance to the next stop
	is.Equal(rows[1].PrevStop, "B")
	is.Equal(rows[1].Latitude, -6.200)
	is.Equal(rows[1].Longitude, 106.803)
	scheduled, err := index.NextStopCumDistance("4B-R01_shp", "B")
	is.NoErr(err)
	is.Equal(rows[1].NextStopDistKm, scheduled)

	// rows past the outbound carry the return trip shape
	is.Equal(rows[3].TripShapeId, "4B-R02_shp")
	is.Equal(rows[3].PrevStop, "D")
	is.Equal(rows[3].NextStop, "E")
}

func Test_projectWindow_aggregates(t *testing.T) {
	is := is.New(t)
	index := buildTestIndex(t)
	predictor := &stubSegmentPredictor{}
	projector := makeHorizonProjector(index, predictor)

	window := locatedWindow(t, index, outboundWindow("TJ001", 10, 0.0002), "4B-R01_shp")
	result, err := projector.projectWindow(window)
	is.NoErr(err)

	// every downstream stop except the lap-closing A gets an eta
	is.Equal(len(result), 5)
	for _, stopId := range []string{"B", "C", "D", "E", "F"} {
		if _, present := result[stopId]; !present {
			t.Errorf("no eta for stop %s", stopId)
		}
	}
	if _, present := result["A"]; present {
		t.Error("the lap-closing stop must not get an eta")
	}

	// constant 60s per segment cumulates along the row sequence
	is.Equal(result["B"], 60.0)
	is.Equal(result["C"], 120.0)
	is.Equal(result["F"], 300.0)

	// one predictor call per fix in the window
	is.Equal(len(predictor.calls), 10)
}

func Test_projectWindow_percentileSmoothing(t *testing.T) {
	is := is.New(t)
	index := buildTestIndex(t)

	// two of ten fixes project twice the median per segment; the published
	// eta is the 25th percentile of the ten cumulative times per stop
	secondsPerRow := []float64{60, 60, 60, 60, 120, 60, 60, 120, 60, 60}
	predictor := &stubSegmentPredictor{secondsPerRow: secondsPerRow}
	projector := makeHorizonProjector(index, predictor)

	window := locatedWindow(t, index, outboundWindow("TJ001", 10, 0.0002), "4B-R01_shp")
	result, err := projector.projectWindow(window)
	is.NoErr(err)

	// sorted per-stop times at B: eight 60s and two 120s; the 25th percentile
	// lands inside the run of 60s
	is.Equal(result["B"], 60.0)
	is.Equal(result["C"], 120.0)
}

func Test_projectWindow_featureOrder(t *testing.T) {
	is := is.New(t)
	index := buildTestIndex(t)
	predictor := &stubSegmentPredictor{}
	projector := makeHorizonProjector(index, predictor)

	window := locatedWindow(t, index, outboundWindow("TJ001", 10, 0.0002), "4B-R01_shp")
	_, err := projector.projectWindow(window)
	is.NoErr(err)

	first := predictor.calls[0][0]
	fix := window[0]
	is.Equal(len(first), 9)
	is.Equal(first[0], 0.0) //corridor 4B
	is.Equal(first[1], float64(fix.DayOfWeek))
	is.Equal(first[2], float64(fix.HourOfDay))
	is.Equal(first[3], fix.Heading)
	is.Equal(first[4], fix.Speed)
	is.Equal(first[5], float64(fix.CongestionBin))
	is.Equal(first[6], fix.NextStopDistKm)
	is.Equal(first[7], fix.Latitude)
	is.Equal(first[8], fix.Longitude)
}

func Test_projectWindow_failures(t *testing.T) {
	index := buildTestIndex(t)

	window := locatedWindow(t, buildTestIndex(t), outboundWindow("TJ001", 10, 0.0002), "4B-R01_shp")

	projector := makeHorizonProjector(index, &stubSegmentPredictor{err: errors.New("model runner down")})
	if _, err := projector.projectWindow(window); err == nil {
		t.Fatal("expected a predictor failure to surface")
	} else {
		var predictorErr *PredictorError
		if !errors.As(err, &predictorErr) {
			t.Errorf("expected a PredictorError, got %T", err)
		}
	}

	// an empty window yields an empty result
	projector = makeHorizonProjector(index, &stubSegmentPredictor{})
	result, err := projector.projectWindow(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected no output for an empty window, got %v", result)
	}

	// a corridor outside the model contract cannot produce features
	badFix := window[0]
	badFix.Corridor = "99Z"
	if _, err = projector.projectWindow([]stopFix{badFix}); err == nil {
		t.Error("expected an error for a corridor with no feature index")
	}
}

func Test_percentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		pct    float64
		want   float64
	}{
		{name: "single value", values: []float64{42}, pct: 25, want: 42},
		{name: "interpolates between ranks", values: []float64{0, 100}, pct: 25, want: 25},
		{name: "median of three", values: []float64{30, 10, 20}, pct: 50, want: 20},
		{name: "upper bound", values: []float64{1, 2, 3}, pct: 100, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentile(tt.values, tt.pct); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("percentile() = %v, want %v", got, tt.want)
			}
		})
	}
}
