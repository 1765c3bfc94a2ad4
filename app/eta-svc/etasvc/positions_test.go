package etasvc

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func Test_positionCollection(t *testing.T) {
	is := is.New(t)
	collection := makePositionCollection()
	base := time.Date(2024, time.March, 4, 7, 0, 0, 0, time.UTC)

	is.True(collection.updatePosition(VehiclePositionUpdate{Id: "TJ001", Lat: -6.200}, base))
	is.True(collection.updatePosition(VehiclePositionUpdate{Id: "TJ002", Lat: -6.201}, base.Add(time.Second)))

	// a stale update for a known vehicle is discarded
	is.True(!collection.updatePosition(VehiclePositionUpdate{Id: "TJ001", Lat: -6.999}, base.Add(-time.Minute)))

	// a fresher update replaces the stored one
	is.True(collection.updatePosition(VehiclePositionUpdate{Id: "TJ001", Lat: -6.210}, base.Add(2*time.Second)))

	current := collection.currentPositions(base.Add(2*time.Second), time.Minute)
	is.Equal(len(current), 2)
	for _, entry := range current {
		if entry.update.Id == "TJ001" {
			is.Equal(entry.update.Lat, -6.210)
		}
	}
}

func Test_positionCollection_expiry(t *testing.T) {
	is := is.New(t)
	collection := makePositionCollection()
	base := time.Date(2024, time.March, 4, 7, 0, 0, 0, time.UTC)

	collection.updatePosition(VehiclePositionUpdate{Id: "TJ001"}, base)
	collection.updatePosition(VehiclePositionUpdate{Id: "TJ002"}, base.Add(10*time.Minute))

	// currentPositions hides but does not remove aged entries
	current := collection.currentPositions(base.Add(11*time.Minute), 5*time.Minute)
	is.Equal(len(current), 1)
	is.Equal(current[0].update.Id, "TJ002")

	removed, currentSize := collection.expirePositions(base.Add(11*time.Minute), 5*time.Minute)
	is.Equal(removed, 1)
	is.Equal(currentSize, 1)

	removed, currentSize = collection.expirePositions(base.Add(11*time.Minute), 5*time.Minute)
	is.Equal(removed, 0)
	is.Equal(currentSize, 1)
}
