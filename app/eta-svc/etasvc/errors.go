package etasvc

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates static schedule data is missing or malformed.
// Fatal when raised at startup; at runtime it surfaces a startup defect.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string {
	return e.msg
}

func newConfigurationErrorf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{msg: fmt.Sprintf(format, args...)}
}

// OffRouteError indicates a vehicle's most recent fix is farther from its
// corridor than the on-route threshold. Swallowed into a nil result per tick.
type OffRouteError struct {
	BusCode        string
	DistanceMeters float64
}

func (e *OffRouteError) Error() string {
	return fmt.Sprintf("vehicle %s is off route, %.1fm from corridor", e.BusCode, e.DistanceMeters)
}

// ErrNoFreshData indicates no fix in the vehicle's batch is newly arrived.
var ErrNoFreshData = errors.New("no incoming gps data")

// ErrInsufficientHistory indicates fewer fixes are available than the minimum
// prediction window.
var ErrInsufficientHistory = errors.New("insufficient gps history for prediction")

// ErrDirectionUnresolved indicates the direction voter produced no committed trip.
var ErrDirectionUnresolved = errors.New("trip direction unresolved")

// PredictorError wraps a failure from the segment travel time model.
type PredictorError struct {
	Err error
}

func (e *PredictorError) Error() string {
	return fmt.Sprintf("segment predictor failed: %v", e.Err)
}

func (e *PredictorError) Unwrap() error {
	return e.Err
}

// TransientIngestError wraps a vendor GPS API failure. The poll loop responds
// by re-authenticating and aborting the tick.
type TransientIngestError struct {
	Err error
}

func (e *TransientIngestError) Error() string {
	return fmt.Sprintf("vendor gps ingest failed: %v", e.Err)
}

func (e *TransientIngestError) Unwrap() error {
	return e.Err
}
