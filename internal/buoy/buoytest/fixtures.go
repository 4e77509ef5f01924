// Package buoytest provides observation fixtures and a scripted fetcher for
// tests of packages built on top of buoy.
package buoytest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
)

// ObservedAt is the report time used by Observation.
var ObservedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Observation returns a fully populated observation for stationID, modelled
// on the Monterey Bay buoy.
func Observation(stationID string) *buoy.Observation {
	return &buoy.Observation{
		StationID: stationID,
		Location: buoy.Location{
			Name:      "Monterey Bay",
			Latitude:  36.8,
			Longitude: -122.4,
		},
		Time: buoy.NewObservationTime(ObservedAt),
		Wind: buoy.Segment{
			"direction": {Value: Float(270), Unit: "degT", Compass: "W"},
			"speed":     {Value: Float(12.3), Unit: "kn"},
			"gusts":     {Value: Float(15.1), Unit: "kn"},
		},
		Waves: buoy.Segment{
			"height":         {Value: Float(1.8), Unit: "m"},
			"period":         {Value: Float(11), Unit: "sec"},
			"average_period": {Value: Float(7.4), Unit: "sec"},
			"direction":      {Value: Float(295), Unit: "degT", Compass: "WNW"},
		},
		Weather: buoy.Segment{
			"pressure":          {Value: Float(1017.2), Unit: "hPa"},
			"air_temperature":   {Value: Float(13.1), Unit: "degC"},
			"water_temperature": {Value: Float(13.8), Unit: "degC"},
			"dewpoint":          {Value: Float(9.4), Unit: "degC"},
			"visibility":        {Unit: "nmi"},
			"pressure_tendency": {Value: Float(-0.4), Unit: "hPa"},
			"tide":              {Unit: "ft"},
		},
	}
}

// Result is one scripted response of a Fetcher.
type Result struct {
	Observation *buoy.Observation
	Err         error
}

// Fetcher replays scripted results in order, repeating the last one once
// the script is exhausted. Gate, when set, blocks every call until it is
// closed so tests can hold a fetch in flight.
type Fetcher struct {
	Gate    chan struct{}
	Started chan struct{}

	mu      sync.Mutex
	results []Result
	calls   atomic.Int32
}

// NewFetcher returns a Fetcher that replays results.
func NewFetcher(results ...Result) *Fetcher {
	return &Fetcher{results: results, Started: make(chan struct{}, 16)}
}

// Push appends results to the script.
func (f *Fetcher) Push(results ...Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, results...)
}

// Calls reports how many fetches reached the fetcher.
func (f *Fetcher) Calls() int {
	return int(f.calls.Load())
}

// FetchObservation implements buoy.Fetcher.
func (f *Fetcher) FetchObservation(ctx context.Context, stationID string) (*buoy.Observation, error) {
	n := int(f.calls.Add(1))

	select {
	case f.Started <- struct{}{}:
	default:
	}

	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.results) == 0 {
		return Observation(stationID), nil
	}
	idx := n - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	r := f.results[idx]
	return r.Observation, r.Err
}
