package buoy

import (
	"context"
	"errors"
)

var (
	// ErrConnectivity marks a fetch failure that may succeed when retried:
	// network errors, timeouts, upstream 5xx, an open circuit or a garbled
	// payload.
	ErrConnectivity = errors.New("buoy data provider unreachable")

	// ErrInvalidStation marks a station identifier the provider does not
	// recognize or that is malformed. Retrying with the same id is pointless.
	ErrInvalidStation = errors.New("invalid station identifier")
)

// Fetcher abstracts the raw observation source.
type Fetcher interface {
	FetchObservation(ctx context.Context, stationID string) (*Observation, error)
}

// StationLister abstracts the station directory used at configuration time.
type StationLister interface {
	ListStations(ctx context.Context) (map[string]Station, error)
}
