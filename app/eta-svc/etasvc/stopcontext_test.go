package etasvc

import (
	"math"
	"testing"

	"github.com/matryer/is"
)

func directedWindow(fixes []Fix, tripShapeId string) []directedFix {
	directed := make([]directedFix, 0, len(fixes))
	for _, fix := range fixes {
		directed = append(directed, directedFix{
			routedFix:   routedFix{Fix: fix, OnRoute: true},
			TripShapeId: tripShapeId,
		})
	}
	return directed
}

func Test_resolveStopContext(t *testing.T) {
	is := is.New(t)
	index := buildTestIndex(t)

	// between stops B and C on the outbound shape
	fix := makeTestFix("TJ001", "2024-03-04 07:00:00", -6.200, 106.8042, true)
	located, err := resolveStopContext(directedWindow([]Fix{fix}, "4B-R01_shp"), index)
	is.NoErr(err)
	is.Equal(len(located), 1)
	is.Equal(located[0].PrevStop, "B")
	is.Equal(located[0].NextStop, "C")
	is.Equal(located[0].PrevStopSeq, 1)
	is.Equal(located[0].NextStopSeq, 2)

	// remaining distance to C, about 0.0018 degrees of longitude
	want := 0.0018 * 110.5
	if math.Abs(located[0].NextStopDistKm-want) > 0.01 {
		t.Errorf("distance to next stop = %v km, want about %v", located[0].NextStopDistKm, want)
	}
}

func Test_resolveStopContext_usesResolvedTripShape(t *testing.T) {
	is := is.New(t)
	index := buildTestIndex(t)

	// the same coordinate resolves against whichever directional shape the
	// voter committed, not the geometrically nearest one
	fix := makeTestFix("TJ001", "2024-03-04 07:00:00", -6.202, 106.8042, true)
	located, err := resolveStopContext(directedWindow([]Fix{fix}, "4B-R02_shp"), index)
	is.NoErr(err)
	is.Equal(located[0].PrevStop, "E")
	is.Equal(located[0].NextStop, "F")
}

func Test_resolveStopContext_unknownTrip(t *testing.T) {
	index := buildTestIndex(t)
	fix := makeTestFix("TJ001", "2024-03-04 07:00:00", -6.200, 106.8042, true)
	if _, err := resolveStopContext(directedWindow([]Fix{fix}, "missing_shp"), index); err == nil {
		t.Fatal("expected an error for an unknown trip shape")
	}
}
