package schedmanager

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/jaktransit/etacast/business/data/schedule"
)

//routeCSV mirrors the routes.txt columns the service consumes
type routeCSV struct {
	RouteId    string `csv:"route_id"`
	RouteColor string `csv:"route_color"`
}

//tripCSV mirrors the trips.txt columns the service consumes
type tripCSV struct {
	TripId       string `csv:"trip_id"`
	RouteId      string `csv:"route_id"`
	TripHeadsign string `csv:"trip_headsign"`
	DirectionId  int    `csv:"direction_id"`
	ShapeId      string `csv:"shape_id"`
}

//stopCSV mirrors the stops.txt columns the service consumes
type stopCSV struct {
	StopId   string  `csv:"stop_id"`
	StopName string  `csv:"stop_name"`
	StopLat  float64 `csv:"stop_lat"`
	StopLon  float64 `csv:"stop_lon"`
}

//stopTimeCSV mirrors the stop_times.txt columns the service consumes
type stopTimeCSV struct {
	TripId       string `csv:"trip_id"`
	StopId       string `csv:"stop_id"`
	StopSequence int    `csv:"stop_sequence"`
	ArrivalTime  string `csv:"arrival_time"`
}

//shapePointCSV mirrors the shapes.txt columns the service consumes
type shapePointCSV struct {
	ShapeId         string  `csv:"shape_id"`
	ShapePtLat      float64 `csv:"shape_pt_lat"`
	ShapePtLon      float64 `csv:"shape_pt_lon"`
	ShapePtSequence int     `csv:"shape_pt_sequence"`
}

//feedFiles holds the raw bytes of every schedule file read from the feed zip
type feedFiles struct {
	routes    []byte
	trips     []byte
	stops     []byte
	stopTimes []byte
	shapes    []byte
}

//openFeedZip reads the required schedule files out of a GTFS feed zip
func openFeedZip(buf []byte) (*feedFiles, error) {
	wanted := map[string][]byte{
		"routes.txt":     nil,
		"trips.txt":      nil,
		"stops.txt":      nil,
		"stop_times.txt": nil,
		"shapes.txt":     nil,
	}

	reader, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping feed: %w", err)
	}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		//some agencies nest the files in a subdirectory
		path := strings.Split(file.Name, "/")
		name := path[len(path)-1]
		if _, found := wanted[name]; !found {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", file.Name, err)
		}
		contents, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file.Name, err)
		}
		wanted[name] = contents
	}

	for name, contents := range wanted {
		if contents == nil {
			return nil, fmt.Errorf("feed is missing %s", name)
		}
	}
	return &feedFiles{
		routes:    wanted["routes.txt"],
		trips:     wanted["trips.txt"],
		stops:     wanted["stops.txt"],
		stopTimes: wanted["stop_times.txt"],
		shapes:    wanted["shapes.txt"],
	}, nil
}

func init() {
	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

//parseRoutes reads routes.txt rows for the corridors in the whitelist
func parseRoutes(data []byte, corridors map[string]bool) ([]*schedule.Route, error) {
	rows := []*routeCSV{}
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling routes csv: %w", err)
	}
	routes := make([]*schedule.Route, 0, len(rows))
	for _, row := range rows {
		if !corridors[row.RouteId] {
			continue
		}
		routes = append(routes, &schedule.Route{
			RouteId:    row.RouteId,
			RouteColor: row.RouteColor,
		})
	}
	return routes, nil
}

//parseTrips reads trips.txt rows whose route survived the corridor whitelist
func parseTrips(data []byte, routes []*schedule.Route) ([]*schedule.Trip, error) {
	keep := make(map[string]bool, len(routes))
	for _, route := range routes {
		keep[route.RouteId] = true
	}
	rows := []*tripCSV{}
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling trips csv: %w", err)
	}
	trips := make([]*schedule.Trip, 0, len(rows))
	for _, row := range rows {
		if !keep[row.RouteId] {
			continue
		}
		if row.ShapeId == "" {
			return nil, fmt.Errorf("trip %s has no shape_id", row.TripId)
		}
		trips = append(trips, &schedule.Trip{
			TripId:       row.TripId,
			RouteId:      row.RouteId,
			TripHeadsign: row.TripHeadsign,
			DirectionId:  row.DirectionId,
			ShapeId:      row.ShapeId,
		})
	}
	return trips, nil
}

//parseStops reads all stops.txt rows
func parseStops(data []byte) ([]*schedule.Stop, error) {
	rows := []*stopCSV{}
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling stops csv: %w", err)
	}
	stops := make([]*schedule.Stop, 0, len(rows))
	for _, row := range rows {
		if row.StopId == "" {
			return nil, fmt.Errorf("empty stop_id in stops.txt")
		}
		stops = append(stops, &schedule.Stop{
			StopId:   row.StopId,
			StopName: row.StopName,
			StopLat:  row.StopLat,
			StopLon:  row.StopLon,
		})
	}
	return stops, nil
}

//parseStopTimes reads stop_times.txt rows for trips that survived the whitelist
func parseStopTimes(data []byte, trips []*schedule.Trip) ([]*schedule.StopTime, error) {
	keep := make(map[string]bool, len(trips))
	for _, trip := range trips {
		keep[trip.TripId] = true
	}
	rows := []*stopTimeCSV{}
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling stop_times csv: %w", err)
	}
	stopTimes := make([]*schedule.StopTime, 0, len(rows))
	for _, row := range rows {
		if !keep[row.TripId] {
			continue
		}
		arrivalSeconds, err := parseGtfsTime(row.ArrivalTime)
		if err != nil {
			return nil, fmt.Errorf("trip %s stop %s: %w", row.TripId, row.StopId, err)
		}
		stopTimes = append(stopTimes, &schedule.StopTime{
			TripId:       row.TripId,
			StopId:       row.StopId,
			StopSequence: row.StopSequence,
			ArrivalTime:  arrivalSeconds,
		})
	}
	return stopTimes, nil
}

//parseShapePoints reads shapes.txt rows for shapes referenced by kept trips
func parseShapePoints(data []byte, trips []*schedule.Trip) ([]*schedule.ShapePoint, error) {
	keep := make(map[string]bool, len(trips))
	for _, trip := range trips {
		keep[trip.ShapeId] = true
	}
	rows := []*shapePointCSV{}
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling shapes csv: %w", err)
	}
	shapePoints := make([]*schedule.ShapePoint, 0, len(rows))
	for _, row := range rows {
		if !keep[row.ShapeId] {
			continue
		}
		shapePoints = append(shapePoints, &schedule.ShapePoint{
			ShapeId:         row.ShapeId,
			ShapePtLat:      row.ShapePtLat,
			ShapePtLon:      row.ShapePtLon,
			ShapePtSequence: row.ShapePtSequence,
		})
	}
	return shapePoints, nil
}

//parseGtfsTime converts a GTFS HH:MM:SS time to seconds since midnight.
//Hours may exceed 23 for trips running past midnight.
func parseGtfsTime(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("unparseable gtfs time %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("unparseable gtfs time %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("unparseable gtfs time %q", value)
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("unparseable gtfs time %q", value)
	}
	return hours*3600 + minutes*60 + seconds, nil
}
