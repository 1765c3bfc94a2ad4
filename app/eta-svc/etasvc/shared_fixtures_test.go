package etasvc

import (
	"testing"
	"time"

	"github.com/jaktransit/etacast/business/data/schedule"
)

// The test corridor is a straight east-west loop near the real service area.
// Outbound shape 4B-R01_shp runs east along lat -6.200 with stops A, B, C, D at
// vertices 0, 3, 6, 9. Return shape 4B-R02_shp runs west along lat -6.202,
// roughly 220m south, with stops D, E, F, A at vertices 0, 3, 6, 9. Vertices
// are 0.001 degrees of longitude apart, about 111m on the ground.
func buildTestStatic() *schedule.Static {
	outbound := make([]*schedule.ShapePoint, 0, 10)
	returning := make([]*schedule.ShapePoint, 0, 10)
	for i := 0; i < 10; i++ {
		outbound = append(outbound, &schedule.ShapePoint{
			ShapeId:         "4B-R01_shp",
			ShapePtLat:      -6.200,
			ShapePtLon:      106.800 + 0.001*float64(i),
			ShapePtSequence: i,
		})
		returning = append(returning, &schedule.ShapePoint{
			ShapeId:         "4B-R02_shp",
			ShapePtLat:      -6.202,
			ShapePtLon:      106.809 - 0.001*float64(i),
			ShapePtSequence: i,
		})
	}

	return &schedule.Static{
		Routes: []*schedule.Route{
			{RouteId: "4B", RouteColor: "D71920"},
		},
		Trips: []*schedule.Trip{
			{TripId: "4B-R01", RouteId: "4B", TripHeadsign: "East Terminal", DirectionId: 0, ShapeId: "4B-R01_shp"},
			{TripId: "4B-R02", RouteId: "4B", TripHeadsign: "West Terminal", DirectionId: 1, ShapeId: "4B-R02_shp"},
		},
		Stops: []*schedule.Stop{
			{StopId: "A", StopName: "Stop A", StopLat: -6.200, StopLon: 106.800},
			{StopId: "B", StopName: "Stop B", StopLat: -6.200, StopLon: 106.803},
			{StopId: "C", StopName: "Stop C", StopLat: -6.200, StopLon: 106.806},
			{StopId: "D", StopName: "Stop D", StopLat: -6.200, StopLon: 106.809},
			{StopId: "E", StopName: "Stop E", StopLat: -6.202, StopLon: 106.806},
			{StopId: "F", StopName: "Stop F", StopLat: -6.202, StopLon: 106.803},
		},
		StopTimes: []*schedule.StopTime{
			{TripId: "4B-R01", StopId: "A", StopSequence: 1, ArrivalTime: 5 * 3600},
			{TripId: "4B-R01", StopId: "B", StopSequence: 2, ArrivalTime: 5*3600 + 300},
			{TripId: "4B-R01", StopId: "C", StopSequence: 3, ArrivalTime: 5*3600 + 600},
			{TripId: "4B-R01", StopId: "D", StopSequence: 4, ArrivalTime: 5*3600 + 900},
			{TripId: "4B-R02", StopId: "D", StopSequence: 1, ArrivalTime: 5 * 3600},
			{TripId: "4B-R02", StopId: "E", StopSequence: 2, ArrivalTime: 5*3600 + 300},
			{TripId: "4B-R02", StopId: "F", StopSequence: 3, ArrivalTime: 5*3600 + 600},
			{TripId: "4B-R02", StopId: "A", StopSequence: 4, ArrivalTime: 5*3600 + 900},
		},
		ShapePoints: append(outbound, returning...),
		StopMeanETAs: []*schedule.StopMeanETA{
			{StopSequence: 0, StopId: "A", MeanETA: 0},
			{StopSequence: 1, StopId: "B", MeanETA: 300},
			{StopSequence: 2, StopId: "C", MeanETA: 600},
			{StopSequence: 3, StopId: "D", MeanETA: 900},
		},
	}
}

func buildTestIndex(t *testing.T) *GeometryIndex {
	t.Helper()
	index, err := BuildGeometryIndex(buildTestStatic())
	if err != nil {
		t.Fatalf("building geometry index from test schedule: %v", err)
	}
	return index
}

func buildTestBinning(t *testing.T) *StopBinning {
	t.Helper()
	binning, err := BuildStopBinning(buildTestStatic().StopMeanETAs, 8)
	if err != nil {
		t.Fatalf("building congestion bins from test schedule: %v", err)
	}
	return binning
}

func testLocation(t *testing.T) *time.Location {
	t.Helper()
	location, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("loading test timezone: %v", err)
	}
	return location
}

func makeTestFix(busCode string, gpsDatetime string, lat float64, lon float64, isNew bool) Fix {
	return Fix{
		BusCode:      busCode,
		Corridor:     "4B",
		VendorTripId: "4.X999",
		GpsDatetime:  gpsDatetime,
		Latitude:     lat,
		Longitude:    lon,
		Heading:      90,
		Speed:        20,
		IsNew:        isNew,
	}
}

//outboundWindow builds count fixes moving east between stops A and B, spaced
//spacingDegrees of longitude and one second apart, oldest first
func outboundWindow(busCode string, count int, spacingDegrees float64) []Fix {
	fixes := make([]Fix, 0, count)
	for i := 0; i < count; i++ {
		gpsDatetime := time.Date(2024, time.March, 4, 7, 0, i, 0, time.UTC).Format("2006-01-02 15:04:05")
		fixes = append(fixes, makeTestFix(busCode, gpsDatetime,
			-6.200, 106.8005+spacingDegrees*float64(i), i == count-1))
	}
	return fixes
}

//stubSegmentPredictor returns a fixed number of seconds per virtual row and
//records the feature matrices it was called with
type stubSegmentPredictor struct {
	secondsPerRow []float64
	calls         [][][]float64
	err           error
}

func (s *stubSegmentPredictor) PredictSegments(features [][]float64) ([]float64, error) {
	s.calls = append(s.calls, features)
	if s.err != nil {
		return nil, s.err
	}
	call := len(s.calls) - 1
	seconds := 60.0
	if call < len(s.secondsPerRow) {
		seconds = s.secondsPerRow[call]
	}
	result := make([]float64, len(features))
	for i := range result {
		result[i] = seconds
	}
	return result, nil
}
