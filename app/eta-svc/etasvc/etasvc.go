// Package etasvc polls a vendor fleet GPS feed, runs each vehicle's recent
// fixes through a route snapping and travel time prediction pipeline, and
// publishes per-vehicle positions, per-trip aggregates and per-stop ETAs.
package etasvc

import (
	"context"
	"errors"
	logger "log"
	"os"
	"sync"
	"time"

	"github.com/jaktransit/etacast/business/data/history"
	"github.com/nats-io/nats.go"
)

const (
	//offHoursStart and offHoursEnd bound the nightly window with no bus
	//service, local hours [start, end)
	offHoursStart = 1
	offHoursEnd   = 5
)

// Config holds the runtime settings for the ETA service.
type Config struct {
	Corridors             []string
	LoopEverySeconds      int
	ExpirePositionSeconds int
	HttpPort              int
	Vendor                VendorConfig
	Location              *time.Location
}

// StartServices brings up the poll loop and the web service. Returns on
// shutdown signal.
func StartServices(log *logger.Logger,
	index *GeometryIndex,
	binning *StopBinning,
	store *history.Store,
	natsConnection *nats.Conn,
	config Config,
	shutdownSignal chan os.Signal) {

	wg := sync.WaitGroup{}

	//positions shared between the poll loop and the web service
	positions := makePositionCollection()

	//create shutdown channels
	pollLoopShutdown := make(chan bool, 1)
	webServiceShutdown := make(chan bool, 1)

	//start all child services
	go runPollLoop(log, &wg, index, binning, store, natsConnection, positions, config, pollLoopShutdown)
	go runWebService(log, &wg, store, positions, config.ExpirePositionSeconds, config.HttpPort, webServiceShutdown)
	select {
	case <-shutdownSignal:
		log.Printf("Exiting on shutdown signal, shutting down subroutines")
		pollLoopShutdown <- true
		webServiceShutdown <- true
		wg.Wait()
		log.Printf("Subroutines shut down, exiting eta service")
	}
}

//runPollLoop runs the polling loop: fetch fleet positions, fan out the
//per-vehicle prediction pipeline, publish results
func runPollLoop(log *logger.Logger,
	wg *sync.WaitGroup,
	index *GeometryIndex,
	binning *StopBinning,
	store *history.Store,
	natsConnection *nats.Conn,
	positions *positionCollection,
	config Config,
	shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	loopDuration := time.Duration(config.LoopEverySeconds) * time.Second

	predictor := makeNatsSegmentPredictor(log, natsConnection)
	pipeline := makeVehiclePipeline(index, binning, predictor, config.Location)
	vendorClient := makeVendorGpsClient(log, config.Vendor)
	publisher := makeResultsPublisher(log, natsConnection, store)

	ctx := context.Background()
	if err := vendorClient.Authenticate(ctx); err != nil {
		log.Printf("initial vendor authentication failed, will retry: %v\n", err)
	}

	sleepChan := make(chan bool)
	sleep := time.Duration(0) //sleep for zero seconds the first time

	for {

		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting poll loop on shutdown signal")
			return
		case <-sleepChan:
			break
		}

		//set default sleep for next loop in the event of an error after continue statements
		sleep = loopDuration

		// mark the time we start working
		start := time.Now()

		if inOffHours(start, config.Location) {
			continue
		}

		rows, err := vendorClient.FetchPositions(ctx, config.Corridors)
		if err != nil {
			log.Printf("error attempting to get vehicle positions. error:%v\n", err)
			continue
		}
		log.Printf("loaded %d vehicle positions\n", len(rows))

		runTick(ctx, log, pipeline, index, store, publisher, positions, rows, start)

		publisher.pruneStopETAs(ctx, start)
		removed, currentSize := positions.expirePositions(start, time.Duration(config.ExpirePositionSeconds)*time.Second)
		if removed > 0 {
			log.Printf("position collection has %d vehicles. Removed %d stale positions", currentSize, removed)
		}

		// attempt to run the loop every LoopEverySeconds by subtracting the time it took to perform the work
		workTook := time.Now().Sub(start)

		// if the work took longer than loopDuration don't sleep at all on the next loop
		if workTook >= loopDuration {
			sleep = time.Duration(0)
		} else {
			sleep = loopDuration - workTook
		}

	}
}

//runTick processes one poll's worth of vendor rows: publish positions, update
//history, run the per-vehicle pipelines concurrently and publish the results
func runTick(ctx context.Context,
	log *logger.Logger,
	pipeline *vehiclePipeline,
	index *GeometryIndex,
	store *history.Store,
	publisher *resultsPublisher,
	positions *positionCollection,
	rows []history.FixRecord,
	now time.Time) {

	windows := make(map[string][]Fix, len(rows))
	for _, row := range rows {
		// history is read before the push so the fresh fix appears once
		replayed, err := store.VehicleHistory(ctx, row.BusCode)
		if err != nil {
			log.Printf("error reading history for %s: %v\n", row.BusCode, err)
			continue
		}
		if err = store.PushFix(ctx, row, now); err != nil {
			log.Printf("error recording fix for %s: %v\n", row.BusCode, err)
		}

		window := make([]Fix, 0, len(replayed)+1)
		window = append(window, recordToFix(row, true))
		for _, old := range replayed {
			window = append(window, recordToFix(old, false))
		}
		windows[row.BusCode] = window

		update := VehiclePositionUpdate{
			Id:        row.BusCode,
			RouteId:   row.Koridor,
			TripId:    resolveVendorTrip(row.TripId),
			Timestamp: row.GpsDatetime,
			Lat:       row.Latitude,
			Lon:       row.Longitude,
			Head:      row.GpsHeading,
			Speed:     row.GpsSpeed,
		}
		positions.updatePosition(update, now)
		publisher.publishPosition(update)
	}

	type outcome struct {
		busCode    string
		prediction *VehiclePrediction
		err        error
	}

	var wg sync.WaitGroup
	results := make(chan outcome, len(windows))
	for busCode, window := range windows {
		wg.Add(1)
		go func(busCode string, window []Fix) {
			defer wg.Done()
			prediction, err := pipeline.run(window)
			results <- outcome{busCode: busCode, prediction: prediction, err: err}
		}(busCode, window)
	}
	wg.Wait()
	close(results)

	aggregates := make([]TripAggregateRow, 0, len(windows))
	for result := range results {
		if result.err != nil {
			logPipelineOutcome(log, result.busCode, result.err)
			continue
		}
		prediction := result.prediction
		if err := publisher.recordStopETAs(ctx, prediction); err != nil {
			log.Printf("error recording stop etas for %s: %v\n", prediction.BusCode, err)
		}
		aggregates = append(aggregates, TripAggregateRow{
			VehiclePositionUpdate: VehiclePositionUpdate{
				Id:        prediction.BusCode,
				RouteId:   prediction.Corridor,
				TripId:    prediction.TripShapeId,
				Timestamp: prediction.LastFix.GpsDatetime,
				Lat:       prediction.LastFix.Latitude,
				Lon:       prediction.LastFix.Longitude,
				Head:      prediction.LastFix.Heading,
				Speed:     prediction.LastFix.Speed,
			},
			NextStop: index.StopName(prediction.NextStop),
			PrevStop: index.StopName(prediction.PrevStop),
		})
	}
	if len(aggregates) > 0 {
		publisher.publishTripAggregates(aggregates, now)
	}
}

//logPipelineOutcome distinguishes the expected per-vehicle null results from
//genuine pipeline failures
func logPipelineOutcome(log *logger.Logger, busCode string, err error) {
	var offRoute *OffRouteError
	switch {
	case errors.Is(err, ErrNoFreshData), errors.Is(err, ErrInsufficientHistory):
		return
	case errors.As(err, &offRoute):
		log.Printf("skipping %s: %v\n", busCode, err)
	case errors.Is(err, ErrDirectionUnresolved):
		log.Printf("skipping %s: %v\n", busCode, err)
	default:
		log.Printf("pipeline failed for %s: %v\n", busCode, err)
	}
}

//resolveVendorTrip maps a vendor trip id to its directional trip shape when
//the static table knows it, otherwise passes the vendor id through
func resolveVendorTrip(vendorTripId string) string {
	if tripShapeId, present := vendorTripOverrides[vendorTripId]; present {
		return tripShapeId
	}
	return vendorTripId
}

//recordToFix converts a stored or fresh vendor row into a pipeline Fix
func recordToFix(row history.FixRecord, isNew bool) Fix {
	return Fix{
		BusCode:      row.BusCode,
		Corridor:     row.Koridor,
		VendorTripId: row.TripId,
		GpsDatetime:  row.GpsDatetime,
		Latitude:     row.Latitude,
		Longitude:    row.Longitude,
		Heading:      row.GpsHeading,
		Speed:        row.GpsSpeed,
		IsNew:        isNew,
	}
}

//inOffHours reports whether local time is inside the nightly no-service window
func inOffHours(at time.Time, location *time.Location) bool {
	hour := at.In(location).Hour()
	return hour >= offHoursStart && hour < offHoursEnd
}
