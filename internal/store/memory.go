package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
)

var (
	// ErrNotFound is returned when no observation is stored for a station.
	ErrNotFound = errors.New("no observations for station")
)

// History holds a time-ordered list of observations for a station.
type History struct {
	Observations []*buoy.Observation
}

// MemoryStore is a concurrency-safe in-memory observation history.
type MemoryStore struct {
	mu sync.RWMutex

	// key: station id
	data map[string]*History

	maxHistory int           // max number of observations per station
	maxAge     time.Duration // optional max age, measured on observation time
	now        func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*History),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Save appends an observation and enforces retention. Polls that return the
// report already stored (same observation time) are ignored, as are
// reports older than the newest one.
func (s *MemoryStore) Save(obs *buoy.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[obs.StationID]
	if !ok {
		history = &History{}
		s.data[obs.StationID] = history
	}

	if n := len(history.Observations); n > 0 {
		latest := history.Observations[n-1]
		if !obs.Time.UTC.After(latest.Time.UTC) {
			return
		}
	}

	history.Observations = append(history.Observations, obs)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Observations) > s.maxHistory {
		over := len(history.Observations) - s.maxHistory
		history.Observations = history.Observations[over:]
	}

	// Enforce retention by age. The newest observation is always kept.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Observations)-1; i++ {
			if !history.Observations[i].Time.UTC.Before(cutoff) {
				break
			}
		}
		history.Observations = history.Observations[i:]
	}
}

// Listener adapts Save to the coordinator listener signature.
func (s *MemoryStore) Listener(obs *buoy.Observation) error {
	s.Save(obs)
	return nil
}

// Delete drops the history of a station.
func (s *MemoryStore) Delete(stationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, stationID)
}

// GetLatest returns the most recent observation for a station.
func (s *MemoryStore) GetLatest(stationID string) (*buoy.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[stationID]
	if !ok || len(history.Observations) == 0 {
		return nil, ErrNotFound
	}
	return history.Observations[len(history.Observations)-1], nil
}

// GetRange returns all observations for a station between from and to (inclusive).
func (s *MemoryStore) GetRange(stationID string, from, to time.Time) ([]*buoy.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[stationID]
	if !ok || len(history.Observations) == 0 {
		return nil, ErrNotFound
	}

	var result []*buoy.Observation
	for _, obs := range history.Observations {
		ts := obs.Time.UTC
		if !ts.Before(from) && !ts.After(to) {
			result = append(result, obs)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}
