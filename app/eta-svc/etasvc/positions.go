package etasvc

import (
	"sync"
	"time"
)

//positionEntry pairs a vehicle's latest position update with its observation time
type positionEntry struct {
	update VehiclePositionUpdate
	at     time.Time
}

// positionCollection holds the latest position per vehicle and provides thread
// safe access to them. The poll loop writes, the web service reads.
type positionCollection struct {
	mu        sync.Mutex
	positions map[string]positionEntry
}

func makePositionCollection() *positionCollection {
	return &positionCollection{
		positions: make(map[string]positionEntry),
	}
}

//updatePosition stores a vehicle's latest position, discarding it if the
//collection already holds a newer one
func (c *positionCollection) updatePosition(update VehiclePositionUpdate, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if previous, present := c.positions[update.Id]; present {
		if previous.at.After(at) {
			return false
		}
	}
	c.positions[update.Id] = positionEntry{update: update, at: at}
	return true
}

//currentPositions returns all positions observed within maxAge of now
func (c *positionCollection) currentPositions(now time.Time, maxAge time.Duration) []positionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make([]positionEntry, 0, len(c.positions))
	for _, entry := range c.positions {
		if now.Sub(entry.at) <= maxAge {
			results = append(results, entry)
		}
	}
	return results
}

//expirePositions removes positions older than maxAge. Returns the number of
//positions removed and how many are currently stored.
func (c *positionCollection) expirePositions(now time.Time, maxAge time.Duration) (removed int, currentSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	previousSize := len(c.positions)
	for busCode, entry := range c.positions {
		if now.Sub(entry.at) > maxAge {
			delete(c.positions, busCode)
		}
	}
	currentSize = len(c.positions)
	return previousSize - currentSize, currentSize
}
