package etasvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	logger "log"
	"net/http"
	"time"

	"github.com/jaktransit/etacast/business/data/history"
)

// VendorConfig holds the credentials and endpoint for the vendor fleet GPS API.
type VendorConfig struct {
	BaseURL  string
	Username string
	Password string
	APIKey   string
}

//vendorGpsClient authenticates against the vendor fleet API and polls the
//realtime GPS listing. Not safe for concurrent use, the poll loop is the only
//caller.
type vendorGpsClient struct {
	log        *logger.Logger
	config     VendorConfig
	httpClient *http.Client
	token      string
}

func makeVendorGpsClient(log *logger.Logger, config VendorConfig) *vendorGpsClient {
	return &vendorGpsClient{
		log:    log,
		config: config,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

//Authenticate exchanges credentials for an access token. Called at startup and
//again whenever a fetch fails.
func (c *vendorGpsClient) Authenticate(ctx context.Context) error {
	credentials, err := json.Marshal(map[string]string{
		"username": c.config.Username,
		"password": c.config.Password,
	})
	if err != nil {
		return fmt.Errorf("marshaling vendor credentials: %w", err)
	}

	url := c.config.BaseURL + "/auth/signin"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(credentials))
	if err != nil {
		return fmt.Errorf("building signin request: %w", err)
	}
	request.Header.Set("api_key", c.config.APIKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return &TransientIngestError{Err: fmt.Errorf("vendor signin: %w", err)}
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode != http.StatusOK {
		return &TransientIngestError{Err: fmt.Errorf("vendor signin returned status %d", response.StatusCode)}
	}

	body := struct {
		AccessToken string `json:"accessToken"`
	}{}
	if err = json.NewDecoder(response.Body).Decode(&body); err != nil {
		return &TransientIngestError{Err: fmt.Errorf("parsing vendor signin response: %w", err)}
	}
	if body.AccessToken == "" {
		return &TransientIngestError{Err: fmt.Errorf("vendor signin returned no access token")}
	}
	c.token = body.AccessToken
	return nil
}

//FetchPositions retrieves the current fleet GPS listing. Rows outside the
//corridor whitelist are dropped. A failure invalidates the token so the next
//tick re-authenticates.
func (c *vendorGpsClient) FetchPositions(ctx context.Context, corridors []string) ([]history.FixRecord, error) {
	if c.token == "" {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	url := c.config.BaseURL + "/gps/listGPSBusTripUI"
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building gps list request: %w", err)
	}
	request.Header.Set("x-access-token", c.token)

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.token = ""
		return nil, &TransientIngestError{Err: fmt.Errorf("vendor gps list: %w", err)}
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode != http.StatusOK {
		c.token = ""
		return nil, &TransientIngestError{Err: fmt.Errorf("vendor gps list returned status %d", response.StatusCode)}
	}

	body := struct {
		Data []history.FixRecord `json:"data"`
	}{}
	if err = json.NewDecoder(response.Body).Decode(&body); err != nil {
		c.token = ""
		return nil, &TransientIngestError{Err: fmt.Errorf("parsing vendor gps list response: %w", err)}
	}

	whitelist := make(map[string]bool, len(corridors))
	for _, corridor := range corridors {
		whitelist[corridor] = true
	}
	rows := make([]history.FixRecord, 0, len(body.Data))
	for _, row := range body.Data {
		if whitelist[row.Koridor] {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
