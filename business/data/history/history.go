// Package history provides the per-vehicle GPS history FIFO and the per-stop
// ETA map, both backed by redis.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// HistoryCap is the maximum number of fixes retained per vehicle.
const HistoryCap = 20

// FixRecord is the JSON shape of one GPS fix in a vehicle's history list.
// Field names follow the vendor feed so stored history can be replayed through
// the same preprocessing as fresh fixes.
type FixRecord struct {
	BusCode     string  `json:"bus_code"`
	Koridor     string  `json:"koridor"`
	TripId      string  `json:"trip_id"`
	GpsDatetime string  `json:"gpsdatetime"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	GpsHeading  float64 `json:"gpsheading"`
	GpsSpeed    float64 `json:"gpsspeed"`
}

// StopETA is the JSON value stored per (stop, vehicle) in the ETA map.
type StopETA struct {
	ETA   string `json:"eta"`
	BusId string `json:"bus_id"`
}

// Store wraps redis operations for vehicle history and stop ETAs.
// Writes are single-writer per vehicle (the poll loop); reads may be concurrent.
type Store struct {
	client   *redis.Client
	location *time.Location
}

// NewStore builds a Store. location determines the local calendar day used for
// key expiration.
func NewStore(client *redis.Client, location *time.Location) *Store {
	return &Store{client: client, location: location}
}

func vehicleKey(busCode string) string {
	return fmt.Sprintf("bus.%s", busCode)
}

func stopKey(stopId string) string {
	return fmt.Sprintf("stop.%s", stopId)
}

// PushFix prepends fix to the vehicle's history list, trims the list to
// HistoryCap entries and refreshes the key expiration.
func (s *Store) PushFix(ctx context.Context, fix FixRecord, now time.Time) error {
	payload, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("marshaling fix for %s: %w", fix.BusCode, err)
	}
	key := vehicleKey(fix.BusCode)
	if err = s.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("pushing fix for %s: %w", fix.BusCode, err)
	}
	if err = s.client.LTrim(ctx, key, 0, HistoryCap-1).Err(); err != nil {
		return fmt.Errorf("trimming history for %s: %w", fix.BusCode, err)
	}
	if err = s.client.ExpireAt(ctx, key, s.expiry(now)).Err(); err != nil {
		return fmt.Errorf("setting expiry for %s: %w", fix.BusCode, err)
	}
	return nil
}

// VehicleHistory reads up to HistoryCap most recent fixes for busCode, newest first.
func (s *Store) VehicleHistory(ctx context.Context, busCode string) ([]FixRecord, error) {
	entries, err := s.client.LRange(ctx, vehicleKey(busCode), 0, HistoryCap-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history for %s: %w", busCode, err)
	}
	fixes := make([]FixRecord, 0, len(entries))
	for _, entry := range entries {
		var fix FixRecord
		if err = json.Unmarshal([]byte(entry), &fix); err != nil {
			return nil, fmt.Errorf("unmarshaling history entry for %s: %w", busCode, err)
		}
		fixes = append(fixes, fix)
	}
	return fixes, nil
}

// SetStopETA records the predicted arrival of busCode at stopId.
// Layout is last-write-wins keyed by (stop, vehicle).
func (s *Store) SetStopETA(ctx context.Context, stopId string, busCode string, eta time.Time) error {
	value, err := json.Marshal(StopETA{
		ETA:   eta.Format(time.RFC3339),
		BusId: busCode,
	})
	if err != nil {
		return fmt.Errorf("marshaling eta for stop %s bus %s: %w", stopId, busCode, err)
	}
	err = s.client.HSet(ctx, stopKey(stopId), busCode, value).Err()
	if err != nil {
		return fmt.Errorf("storing eta for stop %s bus %s: %w", stopId, busCode, err)
	}
	return nil
}

// StopETAs reads all ETAs recorded for stopId, soonest first.
// If busCode is non empty only that vehicle's entry is returned.
func (s *Store) StopETAs(ctx context.Context, stopId string, busCode string) ([]StopETA, error) {
	if busCode != "" {
		value, err := s.client.HGet(ctx, stopKey(stopId), busCode).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading eta for stop %s bus %s: %w", stopId, busCode, err)
		}
		var eta StopETA
		if err = json.Unmarshal([]byte(value), &eta); err != nil {
			return nil, fmt.Errorf("unmarshaling eta for stop %s bus %s: %w", stopId, busCode, err)
		}
		return []StopETA{eta}, nil
	}

	values, err := s.client.HGetAll(ctx, stopKey(stopId)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading etas for stop %s: %w", stopId, err)
	}
	etas := make([]StopETA, 0, len(values))
	for _, value := range values {
		var eta StopETA
		if err = json.Unmarshal([]byte(value), &eta); err != nil {
			return nil, fmt.Errorf("unmarshaling eta for stop %s: %w", stopId, err)
		}
		etas = append(etas, eta)
	}
	sort.Slice(etas, func(i, j int) bool {
		return etas[i].ETA < etas[j].ETA
	})
	return etas, nil
}

// PruneExpired deletes stop ETA entries whose predicted arrival is before now.
// Returns the number of entries removed.
func (s *Store) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	keys, err := s.client.Keys(ctx, "stop.*").Result()
	if err != nil {
		return 0, fmt.Errorf("listing stop keys: %w", err)
	}
	removed := 0
	for _, key := range keys {
		values, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("reading etas for %s: %w", key, err)
		}
		for busCode, value := range values {
			var eta StopETA
			if err = json.Unmarshal([]byte(value), &eta); err != nil {
				// malformed entry, drop it
				_ = s.client.HDel(ctx, key, busCode).Err()
				removed++
				continue
			}
			arrival, err := time.Parse(time.RFC3339, eta.ETA)
			if err != nil || arrival.Before(now) {
				if err = s.client.HDel(ctx, key, busCode).Err(); err != nil {
					return removed, fmt.Errorf("deleting expired eta %s %s: %w", key, busCode, err)
				}
				removed++
			}
		}
	}
	return removed, nil
}

// expiry returns 01:00 local time on the calendar day after now
func (s *Store) expiry(now time.Time) time.Time {
	local := now.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 1, 0, 0, 0, s.location).AddDate(0, 0, 1)
}
