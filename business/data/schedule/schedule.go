// Package schedule provides access to the static transit schedule tables
package schedule

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jaktransit/etacast/foundation/database"
)

// Route contains rows from the GTFS routes.txt file, one per bus corridor
type Route struct {
	RouteId    string `db:"route_id" json:"route_id"`
	RouteColor string `db:"route_color" json:"route_color"`
}

// Trip contains rows from the GTFS trips.txt file, one per directional shape on a corridor
type Trip struct {
	TripId       string `db:"trip_id" json:"trip_id"`
	RouteId      string `db:"route_id" json:"route_id"`
	TripHeadsign string `db:"trip_headsign" json:"trip_headsign"`
	DirectionId  int    `db:"direction_id" json:"direction_id"`
	ShapeId      string `db:"shape_id" json:"shape_id"`
}

// Stop contains rows from the GTFS stops.txt file
type Stop struct {
	StopId   string  `db:"stop_id" json:"stop_id"`
	StopName string  `db:"stop_name" json:"stop_name"`
	StopLat  float64 `db:"stop_lat" json:"stop_lat"`
	StopLon  float64 `db:"stop_lon" json:"stop_lon"`
}

// StopTime contains rows from the GTFS stop_times.txt file
type StopTime struct {
	TripId       string `db:"trip_id" json:"trip_id"`
	StopId       string `db:"stop_id" json:"stop_id"`
	StopSequence int    `db:"stop_sequence" json:"stop_sequence"`
	ArrivalTime  int    `db:"arrival_time" json:"arrival_time"`
}

// ShapePoint contains rows from the GTFS shapes.txt file
type ShapePoint struct {
	ShapeId         string  `db:"shape_id" json:"shape_id"`
	ShapePtLat      float64 `db:"shape_pt_lat" json:"shape_pt_lat"`
	ShapePtLon      float64 `db:"shape_pt_lon" json:"shape_pt_lon"`
	ShapePtSequence int     `db:"shape_pt_sequence" json:"shape_pt_sequence"`
}

// StopMeanETA contains one row per stop in sequence order, giving the mean scheduled
// arrival offset in seconds from the start of a trip. Used only to assign congestion bins.
type StopMeanETA struct {
	StopSequence int     `db:"stop_sequence" json:"stop_sequence"`
	StopId       string  `db:"stop_id" json:"stop_id"`
	MeanETA      float64 `db:"mean_eta" json:"mean_eta"`
}

// Static aggregates every schedule table the ETA service needs at startup.
// Immutable once loaded.
type Static struct {
	Routes       []*Route
	Trips        []*Trip
	Stops        []*Stop
	StopTimes    []*StopTime
	ShapePoints  []*ShapePoint
	StopMeanETAs []*StopMeanETA
}

// LoadStatic reads all static schedule tables for the corridors in routeIds
func LoadStatic(db *sqlx.DB, routeIds []string) (*Static, error) {
	static := Static{}

	err := database.SelectNamedIn(db, &static.Routes,
		"select route_id, route_color from route where route_id in (:route_ids) order by route_id",
		map[string]interface{}{"route_ids": routeIds})
	if err != nil {
		return nil, fmt.Errorf("loading routes: %w", err)
	}

	err = database.SelectNamedIn(db, &static.Trips,
		"select trip_id, route_id, trip_headsign, direction_id, shape_id "+
			"from trip where route_id in (:route_ids) order by route_id, trip_id",
		map[string]interface{}{"route_ids": routeIds})
	if err != nil {
		return nil, fmt.Errorf("loading trips: %w", err)
	}

	tripIds := make([]string, 0, len(static.Trips))
	shapeIds := make([]string, 0, len(static.Trips))
	for _, trip := range static.Trips {
		tripIds = append(tripIds, trip.TripId)
		shapeIds = append(shapeIds, trip.ShapeId)
	}
	if len(tripIds) == 0 {
		return nil, fmt.Errorf("no trips found for corridors %v", routeIds)
	}

	err = database.SelectNamedIn(db, &static.StopTimes,
		"select trip_id, stop_id, stop_sequence, arrival_time "+
			"from stop_time where trip_id in (:trip_ids) order by trip_id, stop_sequence",
		map[string]interface{}{"trip_ids": tripIds})
	if err != nil {
		return nil, fmt.Errorf("loading stop_times: %w", err)
	}

	err = database.SelectNamedIn(db, &static.Stops,
		"select distinct s.stop_id, s.stop_name, s.stop_lat, s.stop_lon "+
			"from stop s join stop_time st on st.stop_id = s.stop_id "+
			"where st.trip_id in (:trip_ids) order by s.stop_id",
		map[string]interface{}{"trip_ids": tripIds})
	if err != nil {
		return nil, fmt.Errorf("loading stops: %w", err)
	}

	err = database.SelectNamedIn(db, &static.ShapePoints,
		"select shape_id, shape_pt_lat, shape_pt_lon, shape_pt_sequence "+
			"from shape where shape_id in (:shape_ids) order by shape_id, shape_pt_sequence",
		map[string]interface{}{"shape_ids": shapeIds})
	if err != nil {
		return nil, fmt.Errorf("loading shapes: %w", err)
	}

	err = db.Select(&static.StopMeanETAs,
		"select stop_sequence, stop_id, mean_eta from stop_mean_eta order by stop_sequence")
	if err != nil {
		return nil, fmt.Errorf("loading stop_mean_eta: %w", err)
	}

	return &static, nil
}

// RecordRoutes saves routes to database in a batch
func RecordRoutes(routes []*Route, tx *sqlx.Tx) error {
	if len(routes) == 0 {
		return nil
	}
	statementString := "insert into route (route_id, route_color) values (:route_id, :route_color)"
	_, err := tx.NamedExec(tx.Rebind(statementString), routes)
	return err
}

// RecordTrips saves trips to database in a batch
func RecordTrips(trips []*Trip, tx *sqlx.Tx) error {
	if len(trips) == 0 {
		return nil
	}
	statementString := "insert into trip (trip_id, route_id, trip_headsign, direction_id, shape_id) " +
		"values (:trip_id, :route_id, :trip_headsign, :direction_id, :shape_id)"
	_, err := tx.NamedExec(tx.Rebind(statementString), trips)
	return err
}

// RecordStops saves stops to database in a batch
func RecordStops(stops []*Stop, tx *sqlx.Tx) error {
	if len(stops) == 0 {
		return nil
	}
	statementString := "insert into stop (stop_id, stop_name, stop_lat, stop_lon) " +
		"values (:stop_id, :stop_name, :stop_lat, :stop_lon)"
	_, err := tx.NamedExec(tx.Rebind(statementString), stops)
	return err
}

// RecordStopTimes saves stop times to database in a batch
func RecordStopTimes(stopTimes []*StopTime, tx *sqlx.Tx) error {
	if len(stopTimes) == 0 {
		return nil
	}
	statementString := "insert into stop_time (trip_id, stop_id, stop_sequence, arrival_time) " +
		"values (:trip_id, :stop_id, :stop_sequence, :arrival_time)"
	_, err := tx.NamedExec(tx.Rebind(statementString), stopTimes)
	return err
}

// RecordShapePoints saves shape points to database in a batch
func RecordShapePoints(shapePoints []*ShapePoint, tx *sqlx.Tx) error {
	if len(shapePoints) == 0 {
		return nil
	}
	statementString := "insert into shape (shape_id, shape_pt_lat, shape_pt_lon, shape_pt_sequence) " +
		"values (:shape_id, :shape_pt_lat, :shape_pt_lon, :shape_pt_sequence)"
	_, err := tx.NamedExec(tx.Rebind(statementString), shapePoints)
	return err
}

// RecordStopMeanETAs replaces the stop_mean_eta table contents
func RecordStopMeanETAs(meanETAs []*StopMeanETA, tx *sqlx.Tx) error {
	if len(meanETAs) == 0 {
		return nil
	}
	_, err := tx.Exec("delete from stop_mean_eta")
	if err != nil {
		return err
	}
	statementString := "insert into stop_mean_eta (stop_sequence, stop_id, mean_eta) " +
		"values (:stop_sequence, :stop_id, :mean_eta)"
	_, err = tx.NamedExec(tx.Rebind(statementString), meanETAs)
	return err
}
