package etasvc

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/matryer/is"
)

//vendorStub mimics the vendor fleet API's signin and gps listing endpoints
type vendorStub struct {
	token       string
	signins     int
	fetches     int
	failList    bool
	lastAPIKey  string
	lastCreds   map[string]string
	lastGpsAuth string
	rows        []map[string]interface{}
}

func (v *vendorStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		v.signins++
		v.lastAPIKey = r.Header.Get("api_key")
		_ = json.NewDecoder(r.Body).Decode(&v.lastCreds)
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": v.token})
	})
	mux.HandleFunc("/gps/listGPSBusTripUI", func(w http.ResponseWriter, r *http.Request) {
		v.fetches++
		v.lastGpsAuth = r.Header.Get("x-access-token")
		if v.failList {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": v.rows})
	})
	return mux
}

func testVendorClient(baseURL string) *vendorGpsClient {
	return makeVendorGpsClient(log.New(os.Stdout, "TEST : ", log.LstdFlags), VendorConfig{
		BaseURL:  baseURL,
		Username: "ops",
		Password: "secret",
		APIKey:   "k-123",
	})
}

func Test_vendorGpsClient_authenticate(t *testing.T) {
	is := is.New(t)
	stub := &vendorStub{token: "tok-1"}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := testVendorClient(server.URL)
	err := client.Authenticate(context.Background())
	is.NoErr(err)
	is.Equal(client.token, "tok-1")
	is.Equal(stub.lastAPIKey, "k-123")
	is.Equal(stub.lastCreds["username"], "ops")
	is.Equal(stub.lastCreds["password"], "secret")
}

func Test_vendorGpsClient_fetchFiltersCorridors(t *testing.T) {
	is := is.New(t)
	stub := &vendorStub{
		token: "tok-1",
		rows: []map[string]interface{}{
			{"bus_code": "TJ001", "koridor": "4B", "trip_id": "4.B001", "gpsdatetime": "2024-03-04 07:00:00", "latitude": -6.2, "longitude": 106.8},
			{"bus_code": "TJ500", "koridor": "1", "trip_id": "1.A001", "gpsdatetime": "2024-03-04 07:00:00", "latitude": -6.1, "longitude": 106.8},
			{"bus_code": "TJ777", "koridor": "D21", "trip_id": "D21.X1", "gpsdatetime": "2024-03-04 07:00:01", "latitude": -6.3, "longitude": 106.7},
		},
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := testVendorClient(server.URL)
	rows, err := client.FetchPositions(context.Background(), []string{"4B", "D21", "9H"})
	is.NoErr(err)

	// signin runs lazily on the first fetch and its token travels on the listing
	is.Equal(stub.signins, 1)
	is.Equal(stub.lastGpsAuth, "tok-1")

	// corridor 1 is outside the whitelist
	is.Equal(len(rows), 2)
	is.Equal(rows[0].BusCode, "TJ001")
	is.Equal(rows[0].Koridor, "4B")
	is.Equal(rows[1].BusCode, "TJ777")
}

func Test_vendorGpsClient_refetchReusesToken(t *testing.T) {
	is := is.New(t)
	stub := &vendorStub{token: "tok-1"}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := testVendorClient(server.URL)
	_, err := client.FetchPositions(context.Background(), []string{"4B"})
	is.NoErr(err)
	_, err = client.FetchPositions(context.Background(), []string{"4B"})
	is.NoErr(err)
	is.Equal(stub.signins, 1)
	is.Equal(stub.fetches, 2)
}

func Test_vendorGpsClient_failureForcesReauth(t *testing.T) {
	is := is.New(t)
	stub := &vendorStub{token: "tok-1", failList: true}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := testVendorClient(server.URL)
	_, err := client.FetchPositions(context.Background(), []string{"4B"})
	var transient *TransientIngestError
	if !errors.As(err, &transient) {
		t.Fatalf("expected a TransientIngestError, got %v", err)
	}
	is.Equal(client.token, "")

	// the next tick signs in again
	stub.failList = false
	stub.token = "tok-2"
	_, err = client.FetchPositions(context.Background(), []string{"4B"})
	is.NoErr(err)
	is.Equal(stub.signins, 2)
	is.Equal(stub.lastGpsAuth, "tok-2")
}

func Test_vendorGpsClient_unreachableHost(t *testing.T) {
	client := testVendorClient("http://127.0.0.1:1")
	_, err := client.FetchPositions(context.Background(), []string{"4B"})
	var transient *TransientIngestError
	if !errors.As(err, &transient) {
		t.Fatalf("expected a TransientIngestError, got %v", err)
	}
}
