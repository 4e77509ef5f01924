// Package ndbc fetches observations and the station directory from the
// National Data Buoy Center.
package ndbc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
)

const (
	DefaultBaseURL   = "https://www.ndbc.noaa.gov"
	DefaultCacheSize = 2048
	DefaultCacheTTL  = 24 * time.Hour

	// minReload bounds how often an unknown station id can force a fresh
	// directory download.
	minReload = time.Minute
)

var validate = validator.New()

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL   string
	CacheSize int
	CacheTTL  time.Duration
	Backoff   BackoffConfig
	Logger    logrus.FieldLogger
}

// Client implements buoy.Fetcher and buoy.StationLister.
type Client struct {
	baseURL string
	httpCfg HTTPClientConfig
	log     logrus.FieldLogger

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker

	// directory caches station metadata keyed by upper-case station id.
	directory *lru.Cache
	cacheTTL  time.Duration
	dirMu     sync.Mutex
	loadedAt  time.Time
	now       func() time.Time
}

// NewClient creates a Client using client for all requests.
func NewClient(client *http.Client, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Backoff == (BackoffConfig{}) {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("station cache: %w", err)
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		httpCfg:   HTTPClientConfig{Client: client, Backoff: opts.Backoff},
		log:       opts.Logger.WithField("component", "ndbc"),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		directory: cache,
		cacheTTL:  opts.CacheTTL,
		now:       time.Now,
	}, nil
}

// ValidStationID reports whether id has the shape of an NDBC station id.
func ValidStationID(id string) bool {
	return validate.Var(id, "required,alphanum,len=5") == nil
}

// FetchObservation implements buoy.Fetcher.
func (c *Client) FetchObservation(ctx context.Context, stationID string) (*buoy.Observation, error) {
	if !ValidStationID(stationID) {
		return nil, fmt.Errorf("%w: malformed station id %q", buoy.ErrInvalidStation, stationID)
	}
	id := normalizeID(stationID)

	st, err := c.lookupStation(ctx, id)
	if err != nil {
		return nil, err
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.breaker(id), c.get("/data/realtime2/"+id+".txt"))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: station %s has no realtime feed", buoy.ErrInvalidStation, id)
		}
		return nil, err
	}
	defer resp.Body.Close()

	rd, err := parseRealtime(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: station %s: %w", buoy.ErrConnectivity, id, err)
	}

	return &buoy.Observation{
		StationID: id,
		Location: buoy.Location{
			Name:      st.Name,
			Latitude:  st.Latitude,
			Longitude: st.Longitude,
			Elevation: st.Elevation,
		},
		Time:    buoy.NewObservationTime(rd.time),
		Wind:    rd.wind,
		Waves:   rd.waves,
		Weather: rd.weather,
	}, nil
}

// ListStations implements buoy.StationLister. It always downloads a fresh
// directory and refreshes the cache.
func (c *Client) ListStations(ctx context.Context) (map[string]buoy.Station, error) {
	c.dirMu.Lock()
	defer c.dirMu.Unlock()

	return c.loadDirectory(ctx)
}

func (c *Client) lookupStation(ctx context.Context, id string) (buoy.Station, error) {
	c.dirMu.Lock()
	defer c.dirMu.Unlock()

	age := c.now().Sub(c.loadedAt)
	if v, ok := c.directory.Get(id); ok && age < c.cacheTTL {
		return v.(buoy.Station), nil
	}

	if c.loadedAt.IsZero() || age >= minReload {
		if _, err := c.loadDirectory(ctx); err != nil {
			// A stale entry beats failing the poll.
			if v, ok := c.directory.Get(id); ok {
				c.log.WithError(err).Warn("station directory refresh failed, using cached entry")
				return v.(buoy.Station), nil
			}
			return buoy.Station{}, err
		}
	}

	if v, ok := c.directory.Get(id); ok {
		return v.(buoy.Station), nil
	}
	return buoy.Station{}, fmt.Errorf("%w: station %s is not in the active station directory", buoy.ErrInvalidStation, id)
}

// loadDirectory downloads the directory. Callers hold dirMu.
func (c *Client) loadDirectory(ctx context.Context) (map[string]buoy.Station, error) {
	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.breaker("directory"), c.get("/activestations.xml"))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: station directory not found", buoy.ErrConnectivity)
		}
		return nil, err
	}
	defer resp.Body.Close()

	stations, err := parseStations(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", buoy.ErrConnectivity, err)
	}

	for id, st := range stations {
		c.directory.Add(id, st)
	}
	c.loadedAt = c.now()
	c.log.WithField("stations", len(stations)).Debug("station directory loaded")

	return stations, nil
}

// breaker returns the circuit breaker for key, creating it on first use.
// Stations get their own breaker so one failing feed does not block others.
func (c *Client) breaker(key string) *gobreaker.CircuitBreaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	cb, ok := c.breakers[key]
	if !ok {
		cb = newBreaker("ndbc-" + key)
		c.breakers[key] = cb
	}
	return cb
}

func (c *Client) get(path string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	}
}
