package etasvc

import (
	"math"
	"testing"

	"github.com/matryer/is"

	"github.com/jaktransit/etacast/business/data/schedule"
)

func Test_BuildGeometryIndex_tables(t *testing.T) {
	is := is.New(t)
	index := buildTestIndex(t)

	polyline, err := index.CorridorPolyline("4B")
	is.NoErr(err)
	is.Equal(len(polyline), 20) //both directional shapes concatenated

	shapeIds, err := index.CorridorTripShapes("4B")
	is.NoErr(err)
	is.Equal(shapeIds, []string{"4B-R01_shp", "4B-R02_shp"})

	stops, err := index.TripStopSequence("4B-R01_shp")
	is.NoErr(err)
	is.Equal(stops, []TripStop{
		{StopId: "A", VertexIndex: 0},
		{StopId: "B", VertexIndex: 3},
		{StopId: "C", VertexIndex: 6},
		{StopId: "D", VertexIndex: 9},
	})

	returnStops, err := index.TripStopSequence("4B-R02_shp")
	is.NoErr(err)
	is.Equal(returnStops, []TripStop{
		{StopId: "D", VertexIndex: 0},
		{StopId: "E", VertexIndex: 3},
		{StopId: "F", VertexIndex: 6},
		{StopId: "A", VertexIndex: 9},
	})

	pair, err := index.PairShapeId("4B-R01_shp")
	is.NoErr(err)
	is.Equal(pair, "4B-R02_shp")
	pair, err = index.PairShapeId("4B-R02_shp")
	is.NoErr(err)
	is.Equal(pair, "4B-R01_shp")

	shapeId, err := index.ShapeIdForTripId("4B-R01")
	is.NoErr(err)
	is.Equal(shapeId, "4B-R01_shp")

	is.Equal(index.StopName("A"), "Stop A")
	is.Equal(index.StopName("unknown"), "unknown")
}

func Test_NextStopCumDistance(t *testing.T) {
	index := buildTestIndex(t)

	// three vertices of 0.001 degrees of longitude each, about 0.3315km
	distance, err := index.NextStopCumDistance("4B-R01_shp", "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(distance-0.3315) > 0.003 {
		t.Errorf("distance A to B = %v km, want about 0.3315", distance)
	}

	// the final stop has no next stop
	if _, err = index.NextStopCumDistance("4B-R01_shp", "D"); err == nil {
		t.Error("expected an error for the final stop")
	}
}

func Test_AlongShapeDistance(t *testing.T) {
	index := buildTestIndex(t)

	// a fix just past vertex 1 still has two full segments plus a fraction to B
	distance, err := index.AlongShapeDistance("4B-R01_shp", "A", "B", -6.200, 106.8012)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 0.0018 * 110.5 //remaining longitude degrees, about 0.199km
	if math.Abs(distance-want) > 0.005 {
		t.Errorf("distance to B = %v km, want about %v", distance, want)
	}

	// the shape itself must not grow from repeated lookups
	for i := 0; i < 5; i++ {
		again, err := index.AlongShapeDistance("4B-R01_shp", "A", "B", -6.200, 106.8012)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != distance {
			t.Fatalf("lookup %d returned %v, first returned %v", i, again, distance)
		}
	}

	if _, err = index.AlongShapeDistance("4B-R01_shp", "B", "A", -6.200, 106.8012); err == nil {
		t.Error("expected an error when the from stop does not precede the to stop")
	}
	if _, err = index.AlongShapeDistance("4B-R01_shp", "A", "missing", -6.200, 106.8012); err == nil {
		t.Error("expected an error for an unknown stop")
	}
}

func Test_buildStopPairIndex_rows(t *testing.T) {
	is := is.New(t)
	index := buildTestIndex(t)

	tree, err := index.tripPairTree("4B", "4B-R01_shp")
	is.NoErr(err)

	// a point near vertex 4 sits between stops B and C
	nearest, ok := tree.Nearest(-6.200, 106.804)
	is.True(ok)
	row, err := index.pairRow("4B", nearest.Index)
	is.NoErr(err)
	is.Equal(row.TripShapeId, "4B-R01_shp")
	is.Equal(row.PrevStop, "B")
	is.Equal(row.NextStop, "C")
	is.Equal(row.PrevStopSeq, 1)
	is.Equal(row.NextStopSeq, 2)

	// the first vertex must still have a strictly preceding prev stop
	nearest, ok = tree.Nearest(-6.200, 106.800)
	is.True(ok)
	row, err = index.pairRow("4B", nearest.Index)
	is.NoErr(err)
	is.Equal(row.PrevStop, "A")
	is.Equal(row.NextStop, "B")

	// the per trip tree must never return rows from the opposing shape
	nearest, ok = tree.Nearest(-6.202, 106.806)
	is.True(ok)
	row, err = index.pairRow("4B", nearest.Index)
	is.NoErr(err)
	is.Equal(row.TripShapeId, "4B-R01_shp")
}

func Test_CorridorPairTree_spansBothDirections(t *testing.T) {
	is := is.New(t)
	index := buildTestIndex(t)

	tree, err := index.CorridorPairTree("4B")
	is.NoErr(err)

	// the combined tree resolves points on either directional shape
	nearest, ok := tree.Nearest(-6.200, 106.804)
	is.True(ok)
	row, err := index.pairRow("4B", nearest.Index)
	is.NoErr(err)
	is.Equal(row.TripShapeId, "4B-R01_shp")

	nearest, ok = tree.Nearest(-6.202, 106.804)
	is.True(ok)
	row, err = index.pairRow("4B", nearest.Index)
	is.NoErr(err)
	is.Equal(row.TripShapeId, "4B-R02_shp")

	if _, err = index.CorridorPairTree("99Z"); err == nil {
		t.Error("expected an error for an unknown corridor")
	}
}

func Test_BuildGeometryIndex_rejectsBadSchedules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(static *schedule.Static)
	}{
		{
			name: "zero length segment",
			mutate: func(static *schedule.Static) {
				static.ShapePoints = append(static.ShapePoints, &schedule.ShapePoint{
					ShapeId: "4B-R01_shp", ShapePtLat: -6.200, ShapePtLon: 106.809, ShapePtSequence: 10,
				})
			},
		},
		{
			name: "unknown shape reference",
			mutate: func(static *schedule.Static) {
				static.Trips[0].ShapeId = "missing_shp"
			},
		},
		{
			name: "unknown stop reference",
			mutate: func(static *schedule.Static) {
				static.StopTimes[0].StopId = "missing"
			},
		},
		{
			name: "too many directional trips",
			mutate: func(static *schedule.Static) {
				static.Trips = append(static.Trips, &schedule.Trip{
					TripId: "4B-R03", RouteId: "4B", ShapeId: "4B-R01_shp",
				})
			},
		},
		{
			name: "trip with a single stop",
			mutate: func(static *schedule.Static) {
				static.StopTimes = static.StopTimes[:1]
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			static := buildTestStatic()
			tt.mutate(static)
			if _, err := BuildGeometryIndex(static); err == nil {
				t.Error("expected a configuration error")
			}
		})
	}
}
