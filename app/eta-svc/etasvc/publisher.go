package etasvc

import (
	"context"
	"encoding/json"
	"fmt"
	logger "log"
	"time"

	"github.com/jaktransit/etacast/business/data/history"
	"github.com/nats-io/nats.go"
)

// VehiclePositionUpdate is the JSON shape published to the per-vehicle channel.
type VehiclePositionUpdate struct {
	Id        string  `json:"id"`
	RouteId   string  `json:"route_id"`
	TripId    string  `json:"trip_id"`
	Timestamp string  `json:"timestamp"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Head      float64 `json:"head"`
	Speed     float64 `json:"speed"`
}

// TripAggregateRow is one vehicle's row in the per-trip aggregate published to
// the trip channel. Stop fields carry display names, not stop ids.
type TripAggregateRow struct {
	VehiclePositionUpdate
	NextStop string `json:"next_stop"`
	PrevStop string `json:"prev_stop"`
	Holiday  bool   `json:"holiday"`
}

//resultsPublisher sends per-vehicle positions and per-trip aggregates over
//nats and records per-stop ETAs in the history store
type resultsPublisher struct {
	log            *logger.Logger
	natsConnection *nats.Conn
	store          *history.Store
	holidays       *serviceHolidayCalendar
}

func makeResultsPublisher(log *logger.Logger,
	natsConnection *nats.Conn,
	store *history.Store) *resultsPublisher {
	return &resultsPublisher{
		log:            log,
		natsConnection: natsConnection,
		store:          store,
		holidays:       makeServiceHolidayCalendar(),
	}
}

//publishPosition sends one vehicle's position update on its bus channel
func (r *resultsPublisher) publishPosition(update VehiclePositionUpdate) {
	jsonData, err := json.Marshal(&update)
	if err != nil {
		r.log.Printf("failed to marshal position update for %s, error:%v", update.Id, err)
		return
	}
	subject := fmt.Sprintf("bus.%s", update.Id)
	if err = r.natsConnection.Publish(subject, jsonData); err != nil {
		r.log.Printf("failed to publish position update for %s, error:%v", update.Id, err)
	}
}

//publishTripAggregates groups rows by trip and sends each group on its trip channel
func (r *resultsPublisher) publishTripAggregates(rows []TripAggregateRow, at time.Time) {
	holiday := r.holidays.isHoliday(at)
	byTrip := make(map[string][]TripAggregateRow)
	for _, row := range rows {
		row.Holiday = holiday
		byTrip[row.TripId] = append(byTrip[row.TripId], row)
	}
	for tripId, group := range byTrip {
		jsonData, err := json.Marshal(group)
		if err != nil {
			r.log.Printf("failed to marshal trip aggregate for %s, error:%v", tripId, err)
			continue
		}
		subject := fmt.Sprintf("trip.%s", tripId)
		if err = r.natsConnection.Publish(subject, jsonData); err != nil {
			r.log.Printf("failed to publish trip aggregate for %s, error:%v", tripId, err)
		}
	}
}

//recordStopETAs writes a vehicle's predicted arrivals into the per-stop ETA map
func (r *resultsPublisher) recordStopETAs(ctx context.Context, prediction *VehiclePrediction) error {
	for stopId, arrival := range prediction.ArrivalTimes() {
		err := r.store.SetStopETA(ctx, stopId, prediction.BusCode, arrival)
		if err != nil {
			return err
		}
	}
	return nil
}

//pruneStopETAs removes stop ETA entries whose arrival time has passed
func (r *resultsPublisher) pruneStopETAs(ctx context.Context, now time.Time) {
	removed, err := r.store.PruneExpired(ctx, now)
	if err != nil {
		r.log.Printf("error pruning expired stop etas: %v", err)
		return
	}
	if removed > 0 {
		r.log.Printf("pruned %d expired stop etas", removed)
	}
}
