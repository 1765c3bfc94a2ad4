package etasvc

import (
	"context"
	"encoding/json"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gorilla/mux"
	"github.com/jaktransit/etacast/business/data/history"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

//defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

//ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

//stopETAHandler serves the per-stop ETA map as json
type stopETAHandler struct {
	log   *logger.Logger
	store *history.Store
}

//ServeHTTP implements stopETAHandler's http.Handler interface
func (s *stopETAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stopId := mux.Vars(r)["stopID"]
	busCode := r.FormValue("bus")

	etas, err := s.store.StopETAs(r.Context(), stopId, busCode)
	if err != nil {
		s.log.Printf("Error reading etas for stop %s: %v\n", stopId, err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	writeJSON(s.log, w, struct {
		StopId string            `json:"stop_id"`
		ETAs   []history.StopETA `json:"etas"`
	}{StopId: stopId, ETAs: etas})
}

//vehicleHistoryHandler serves a vehicle's recent fix history as json
type vehicleHistoryHandler struct {
	log   *logger.Logger
	store *history.Store
}

//ServeHTTP implements vehicleHistoryHandler's http.Handler interface
func (v *vehicleHistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	busCode := mux.Vars(r)["busCode"]

	fixes, err := v.store.VehicleHistory(r.Context(), busCode)
	if err != nil {
		v.log.Printf("Error reading history for vehicle %s: %v\n", busCode, err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	writeJSON(v.log, w, struct {
		BusCode string              `json:"bus_code"`
		Fixes   []history.FixRecord `json:"fixes"`
	}{BusCode: busCode, Fixes: fixes})
}

//vehiclePositionsHandler serves current fleet positions as a gtfs-rt
//VehiclePosition feed, or as json or text when requested
type vehiclePositionsHandler struct {
	log       *logger.Logger
	positions *positionCollection
	expireAge time.Duration
}

func makeVehiclePositionsHandler(log *logger.Logger,
	positions *positionCollection,
	expirePositionSeconds int) *vehiclePositionsHandler {
	return &vehiclePositionsHandler{
		log:       log,
		positions: positions,
		expireAge: time.Duration(expirePositionSeconds) * time.Second,
	}
}

//ServeHTTP implements vehiclePositionsHandler's http.Handler interface
func (v *vehiclePositionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	asText := strings.ToLower(r.FormValue("text")) == "true"
	asJson := strings.ToLower(r.FormValue("json")) == "true"
	if asJson {
		v.serveJSON(w)
		return
	}
	v.serveGTFSRT(asText, w)
}

//serveJSON sends current positions as json
func (v *vehiclePositionsHandler) serveJSON(w http.ResponseWriter) {
	now := time.Now()
	entries := v.positions.currentPositions(now, v.expireAge)
	updates := make([]VehiclePositionUpdate, 0, len(entries))
	for _, entry := range entries {
		updates = append(updates, entry.update)
	}
	writeJSON(v.log, w, struct {
		Timestamp int64                   `json:"timestamp"`
		Positions []VehiclePositionUpdate `json:"positions"`
	}{Timestamp: now.Unix(), Positions: updates})
}

//serveGTFSRT sends current positions in google protocol buffer format, or as
//text if asText is true
func (v *vehiclePositionsHandler) serveGTFSRT(asText bool, w http.ResponseWriter) {
	feedMessage := v.buildFeedMessage(time.Now())

	if asText {
		stringResponse := prototext.MarshalOptions{Multiline: true}.Format(feedMessage)
		w.Header().Set("Content-Type", "text/plain")
		if _, err := w.Write([]byte(stringResponse)); err != nil {
			v.log.Printf("Error writing bytes to http.ResponseWriter, error:%s", err)
		}
		return
	}

	bytes, err := proto.Marshal(feedMessage)
	if err != nil {
		v.log.Printf("Failed to marshal FeedMessage to bytes, error:%s", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/grtfeed")
	if _, err = w.Write(bytes); err != nil {
		v.log.Printf("Error writing bytes to http.ResponseWriter, error:%s", err)
	}
}

//buildFeedMessage builds a gtfs-rt FeedMessage holding one VehiclePosition
//entity per current vehicle
func (v *vehiclePositionsHandler) buildFeedMessage(now time.Time) *gtfsrt.FeedMessage {
	gtfsRealtimeVersion := "2.0"
	incrementality := gtfsrt.FeedHeader_FULL_DATASET
	timestamp := uint64(now.Unix())
	feedMessage := gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: &gtfsRealtimeVersion,
			Incrementality:      &incrementality,
			Timestamp:           &timestamp,
		},
		Entity: []*gtfsrt.FeedEntity{},
	}

	var entities []*gtfsrt.FeedEntity
	for _, entry := range v.positions.currentPositions(now, v.expireAge) {
		entities = append(entities, makeVehiclePositionEntity(entry))
	}
	feedMessage.Entity = entities
	return &feedMessage
}

//makeVehiclePositionEntity creates a gtfs-rt FeedEntity from one positionEntry
func makeVehiclePositionEntity(entry positionEntry) *gtfsrt.FeedEntity {
	//make new variables so the proto pointers don't end up sharing the entry
	//reused by range
	busCode := entry.update.Id
	tripId := entry.update.TripId
	routeId := entry.update.RouteId
	latitude := float32(entry.update.Lat)
	longitude := float32(entry.update.Lon)
	bearing := float32(entry.update.Head)
	speed := float32(entry.update.Speed)
	timestamp := uint64(entry.at.Unix())

	return &gtfsrt.FeedEntity{
		Id: &busCode,
		Vehicle: &gtfsrt.VehiclePosition{
			Trip: &gtfsrt.TripDescriptor{
				TripId:  &tripId,
				RouteId: &routeId,
			},
			Vehicle: &gtfsrt.VehicleDescriptor{
				Id: &busCode,
			},
			Position: &gtfsrt.Position{
				Latitude:  &latitude,
				Longitude: &longitude,
				Bearing:   &bearing,
				Speed:     &speed,
			},
			Timestamp: &timestamp,
		},
	}
}

func writeJSON(log *logger.Logger, w http.ResponseWriter, body interface{}) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		log.Printf("Error marshaling json response: %v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(jsonData); err != nil {
		log.Printf("Error writing json response: %s", err)
	}
}

//createServer creates configured http.Server for the eta service endpoints
func createServer(log *logger.Logger,
	store *history.Store,
	positions *positionCollection,
	expirePositionSeconds int,
	httpPort int) *http.Server {

	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{})
	r.Handle("/stops/{stopID}/etas", &stopETAHandler{log: log, store: store})
	r.Handle("/vehicles/{busCode}/history", &vehicleHistoryHandler{log: log, store: store})
	r.Handle("/vehicles/positions", makeVehiclePositionsHandler(log, positions, expirePositionSeconds))
	srv := &http.Server{
		Addr: strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	return srv
}

//runWebService starts up the eta web service, and terminates on shutdown signal
func runWebService(log *logger.Logger,
	wg *sync.WaitGroup,
	store *history.Store,
	positions *positionCollection,
	expirePositionSeconds int,
	httpPort int,
	shutdownSignal chan bool,
) {
	wg.Add(1)
	defer wg.Done()
	srv := createServer(log, store, positions, expirePositionSeconds, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()
	shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer serverCancelFunc()

	select {
	case <-shutdownSignal:
		log.Printf("ending webservice on shutdown signal")
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			log.Printf("error shutting down webservice, error:%s", err)
		}
	}
}
