// Package schedmanager provides support for retrieving, parsing and saving the
// GTFS schedule tables the ETA service reads at startup.
package schedmanager

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/jaktransit/etacast/business/data/schedule"
	"github.com/jaktransit/etacast/foundation/httpclient"
)

// UpdateSchedule downloads the feed zip from url (or reads it from a local
// path when url has no scheme), parses the schedule tables for the corridors
// in the whitelist and replaces the database contents in one transaction.
func UpdateSchedule(log *log.Logger,
	db *sqlx.DB,
	tempDir string,
	url string,
	corridors []string) error {

	feedPath, err := retrieveFeed(log, tempDir, url)
	if err != nil {
		return err
	}

	buf, err := os.ReadFile(feedPath)
	if err != nil {
		return fmt.Errorf("reading feed file %s: %w", feedPath, err)
	}
	files, err := openFeedZip(buf)
	if err != nil {
		return err
	}

	whitelist := make(map[string]bool, len(corridors))
	for _, corridor := range corridors {
		whitelist[corridor] = true
	}

	routes, err := parseRoutes(files.routes, whitelist)
	if err != nil {
		return err
	}
	if len(routes) == 0 {
		return fmt.Errorf("feed contains none of the corridors %v", corridors)
	}
	trips, err := parseTrips(files.trips, routes)
	if err != nil {
		return err
	}
	stops, err := parseStops(files.stops)
	if err != nil {
		return err
	}
	stopTimes, err := parseStopTimes(files.stopTimes, trips)
	if err != nil {
		return err
	}
	shapePoints, err := parseShapePoints(files.shapes, trips)
	if err != nil {
		return err
	}
	meanETAs := computeStopMeanETAs(stopTimes)

	log.Printf("Loaded %d routes, %d trips, %d stops, %d stop times, %d shape points from feed",
		len(routes), len(trips), len(stops), len(stopTimes), len(shapePoints))

	return transact(log, db, func(tx *sqlx.Tx) error {
		deleteStatements := []struct {
			name  string
			query string
		}{
			{name: "stop_mean_eta", query: "delete from stop_mean_eta"},
			{name: "stop_time", query: "delete from stop_time"},
			{name: "shape", query: "delete from shape"},
			{name: "stop", query: "delete from stop"},
			{name: "trip", query: "delete from trip"},
			{name: "route", query: "delete from route"},
		}
		for _, statement := range deleteStatements {
			if _, err := tx.Exec(statement.query); err != nil {
				return fmt.Errorf("deleting %s rows: %w", statement.name, err)
			}
		}

		if err := schedule.RecordRoutes(routes, tx); err != nil {
			return fmt.Errorf("recording routes: %w", err)
		}
		if err := schedule.RecordTrips(trips, tx); err != nil {
			return fmt.Errorf("recording trips: %w", err)
		}
		if err := schedule.RecordStops(stops, tx); err != nil {
			return fmt.Errorf("recording stops: %w", err)
		}
		if err := schedule.RecordStopTimes(stopTimes, tx); err != nil {
			return fmt.Errorf("recording stop times: %w", err)
		}
		if err := schedule.RecordShapePoints(shapePoints, tx); err != nil {
			return fmt.Errorf("recording shape points: %w", err)
		}
		if err := schedule.RecordStopMeanETAs(meanETAs, tx); err != nil {
			return fmt.Errorf("recording stop mean etas: %w", err)
		}
		return nil
	})
}

// ListSchedule logs row counts for every schedule table.
func ListSchedule(log *log.Logger, db *sqlx.DB) error {
	tables := []string{"route", "trip", "stop", "stop_time", "shape", "stop_mean_eta"}
	for _, table := range tables {
		var count int
		if err := db.Get(&count, "select count(*) from "+table); err != nil {
			return fmt.Errorf("counting %s rows: %w", table, err)
		}
		log.Printf("table %s holds %d rows", table, count)
	}
	return nil
}

//retrieveFeed downloads the feed zip into tempDir, or returns url unchanged
//when it points at a local file
func retrieveFeed(log *log.Logger, tempDir string, url string) (string, error) {
	if _, err := os.Stat(url); err == nil {
		log.Printf("Using local feed file %s", url)
		return url, nil
	}

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", fmt.Errorf("creating temp dir %s: %w", tempDir, err)
	}
	destination := filepath.Join(tempDir, "gtfs.zip")
	log.Printf("Downloading feed from %s", url)
	downloaded, err := httpclient.DownloadRemoteFile(destination, url)
	if err != nil {
		return "", fmt.Errorf("downloading feed from %s: %w", url, err)
	}
	log.Printf("Downloaded %d bytes to %s", downloaded.Size, downloaded.LocalFilePath)
	return downloaded.LocalFilePath, nil
}

//computeStopMeanETAs derives the mean scheduled arrival offset per stop
//sequence index across all trips, the table the congestion binning is built
//from
func computeStopMeanETAs(stopTimes []*schedule.StopTime) []*schedule.StopMeanETA {
	firstArrival := make(map[string]int)
	for _, stopTime := range stopTimes {
		if first, present := firstArrival[stopTime.TripId]; !present || stopTime.ArrivalTime < first {
			firstArrival[stopTime.TripId] = stopTime.ArrivalTime
		}
	}

	type accumulator struct {
		stopId string
		total  float64
		count  int
	}
	bySequence := make(map[int]*accumulator)
	for _, stopTime := range stopTimes {
		offset := float64(stopTime.ArrivalTime - firstArrival[stopTime.TripId])
		acc, present := bySequence[stopTime.StopSequence]
		if !present {
			acc = &accumulator{stopId: stopTime.StopId}
			bySequence[stopTime.StopSequence] = acc
		}
		acc.total += offset
		acc.count++
	}

	sequences := make([]int, 0, len(bySequence))
	for sequence := range bySequence {
		sequences = append(sequences, sequence)
	}
	sort.Ints(sequences)

	meanETAs := make([]*schedule.StopMeanETA, 0, len(sequences))
	for _, sequence := range sequences {
		acc := bySequence[sequence]
		meanETAs = append(meanETAs, &schedule.StopMeanETA{
			StopSequence: sequence,
			StopId:       acc.stopId,
			MeanETA:      acc.total / float64(acc.count),
		})
	}
	return meanETAs
}

func transact(log *log.Logger, db *sqlx.DB, txFunc func(*sqlx.Tx) error) (err error) {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback() // err is non-nil; don't change it
			if rollbackErr != nil {
				log.Printf("Received error while attempting to rollback transaction. error:%v", rollbackErr)
			}
			return
		}
		err = tx.Commit() // err is nil; if Commit returns error update err
	}()
	err = txFunc(tx)
	return err
}
