package schedmanager

import (
	"testing"

	"github.com/matryer/is"

	"github.com/jaktransit/etacast/business/data/schedule"
)

func Test_computeStopMeanETAs(t *testing.T) {
	is := is.New(t)

	// two trips with different departure times but the same stop spacing,
	// plus one trip running 60s slower to its second stop
	stopTimes := []*schedule.StopTime{
		{TripId: "t1", StopId: "A", StopSequence: 1, ArrivalTime: 5 * 3600},
		{TripId: "t1", StopId: "B", StopSequence: 2, ArrivalTime: 5*3600 + 300},
		{TripId: "t2", StopId: "A", StopSequence: 1, ArrivalTime: 9 * 3600},
		{TripId: "t2", StopId: "B", StopSequence: 2, ArrivalTime: 9*3600 + 300},
		{TripId: "t3", StopId: "A", StopSequence: 1, ArrivalTime: 6 * 3600},
		{TripId: "t3", StopId: "B", StopSequence: 2, ArrivalTime: 6*3600 + 480},
	}

	meanETAs := computeStopMeanETAs(stopTimes)
	is.Equal(len(meanETAs), 2)

	// sequences come out sorted with per-sequence mean offsets from each
	// trip's first arrival
	is.Equal(meanETAs[0].StopSequence, 1)
	is.Equal(meanETAs[0].MeanETA, 0.0)
	is.Equal(meanETAs[1].StopSequence, 2)
	is.Equal(meanETAs[1].MeanETA, 360.0) //(300+300+480)/3
}

func Test_computeStopMeanETAs_empty(t *testing.T) {
	if got := computeStopMeanETAs(nil); len(got) != 0 {
		t.Errorf("expected no rows for an empty schedule, got %d", len(got))
	}
}
