// Package coordinator owns the polling lifecycle of one station: the
// interval timer, the single-flight fetch gate, success/failure tracking and
// the ordered fan-out of new snapshots to listeners.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
	"github.com/i474232898/ndbc-buoy-sensors/internal/scheduler"
)

const (
	// UpdateInterval is the fixed polling cadence of every coordinator.
	UpdateInterval = 900 * time.Second

	DefaultFetchTimeout    = 60 * time.Second
	DefaultRefreshCooldown = 10 * time.Second
)

var (
	// ErrNotReady is returned by Setup when the first fetch failed for a
	// reason that may go away; the host should retry later.
	ErrNotReady = errors.New("station not ready")

	// ErrConfigInvalid is returned by Setup when the station identifier was
	// rejected; retrying with the same configuration will not help.
	ErrConfigInvalid = errors.New("station configuration invalid")

	// ErrShutdown is returned for fetches that complete after Shutdown.
	ErrShutdown = errors.New("coordinator shut down")
)

// Listener is invoked with the freshly committed snapshot after every
// successful fetch. A returned error is logged and does not affect other
// listeners.
type Listener func(obs *buoy.Observation) error

type listenerEntry struct {
	id uuid.UUID
	fn Listener
}

// Options tunes a Coordinator. Zero values select the defaults.
type Options struct {
	// UpdateInterval overrides the polling cadence. Only tests set it.
	UpdateInterval  time.Duration
	FetchTimeout    time.Duration
	RefreshCooldown time.Duration
	Logger          logrus.FieldLogger
	Metrics         *Metrics
}

// Status is a point-in-time view of the coordinator for the host.
type Status struct {
	StationID         string        `json:"station_id"`
	LastUpdateSuccess bool          `json:"last_update_success"`
	LastUpdate        time.Time     `json:"last_update,omitempty"`
	LastError         string        `json:"last_error,omitempty"`
	ObservedAt        time.Time     `json:"observed_at,omitempty"`
	UpdateInterval    time.Duration `json:"update_interval"`
	Listeners         int           `json:"listeners"`
}

// Coordinator polls one station and shares the latest snapshot.
type Coordinator struct {
	stationID    string
	fetcher      buoy.Fetcher
	interval     time.Duration
	fetchTimeout time.Duration
	log          logrus.FieldLogger
	metrics      *Metrics

	group   singleflight.Group
	limiter *rate.Limiter
	pending atomic.Bool

	data atomic.Pointer[buoy.Observation]

	mu                sync.RWMutex
	lastUpdateSuccess bool
	lastUpdate        time.Time
	lastErr           error
	listeners         []listenerEntry
	sched             *scheduler.Scheduler
	closed            bool
}

// New creates a coordinator for stationID. It does not fetch; call Setup.
func New(stationID string, fetcher buoy.Fetcher, opts Options) *Coordinator {
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = UpdateInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.RefreshCooldown == 0 {
		opts.RefreshCooldown = DefaultRefreshCooldown
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	limit := rate.Inf
	if opts.RefreshCooldown > 0 {
		limit = rate.Every(opts.RefreshCooldown)
	}

	return &Coordinator{
		stationID:    stationID,
		fetcher:      fetcher,
		interval:     opts.UpdateInterval,
		fetchTimeout: opts.FetchTimeout,
		log:          opts.Logger.WithField("station_id", stationID),
		metrics:      opts.Metrics,
		limiter:      rate.NewLimiter(limit, 1),
	}
}

// StationID returns the station this coordinator polls.
func (c *Coordinator) StationID() string {
	return c.stationID
}

// Data returns the current snapshot, or nil before the first successful
// fetch. The returned observation must not be modified.
func (c *Coordinator) Data() *buoy.Observation {
	return c.data.Load()
}

// LastUpdateSuccess reports whether the most recent fetch succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdateSuccess
}

// Status returns a consistent view of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{
		StationID:         c.stationID,
		LastUpdateSuccess: c.lastUpdateSuccess,
		LastUpdate:        c.lastUpdate,
		UpdateInterval:    c.interval,
		Listeners:         len(c.listeners),
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	if obs := c.data.Load(); obs != nil {
		s.ObservedAt = obs.Time.UTC
	}
	return s
}

// Setup performs the initial fetch and classifies a failure as ErrNotReady
// or ErrConfigInvalid. It is the only call that surfaces the classification.
func (c *Coordinator) Setup(ctx context.Context) error {
	err := c.refresh(ctx)
	if err == nil {
		return nil
	}

	c.log.WithError(err).Debug("setup fetch failed")

	if errors.Is(err, buoy.ErrInvalidStation) {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	return fmt.Errorf("%w: %w", ErrNotReady, err)
}

// RefreshNow fetches immediately. Concurrent calls share one upstream
// request and all observe its result. The fetch keeps running if ctx ends
// first; only the wait is abandoned.
func (c *Coordinator) RefreshNow(ctx context.Context) error {
	return c.refresh(ctx)
}

// RequestRefresh asks for a fetch without waiting for it. Requests made
// while one is pending or in flight, or within the cooldown, are dropped.
func (c *Coordinator) RequestRefresh() {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	if !c.pending.CompareAndSwap(false, true) {
		return
	}
	if !c.limiter.Allow() {
		c.pending.Store(false)
		c.log.Debug("refresh request throttled")
		return
	}

	go func() {
		defer c.pending.Store(false)
		_ = c.refresh(context.Background())
	}()
}

// Start begins interval polling.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrShutdown
	}
	if c.sched != nil {
		return fmt.Errorf("coordinator for station %s already started", c.stationID)
	}

	sched := scheduler.New(c.interval, c.tick, c.log)
	if err := sched.Start(); err != nil {
		return err
	}
	c.sched = sched

	c.log.WithField("interval", c.interval).Info("polling started")
	return nil
}

// Shutdown stops polling. A fetch in flight completes but its result is
// discarded. Listeners should be removed before calling Shutdown.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sched := c.sched
	remaining := len(c.listeners)
	c.listeners = nil
	c.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	if remaining > 0 {
		c.log.WithField("listeners", remaining).Warn("shutdown with listeners still registered")
	}
	c.metrics.forget(c.stationID)
	c.log.Info("coordinator shut down")
}

// AddListener registers fn and returns a function that removes it.
// Listeners are notified in registration order.
func (c *Coordinator) AddListener(fn Listener) (remove func()) {
	id := uuid.New()

	c.mu.Lock()
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	n := len(c.listeners)
	c.mu.Unlock()

	c.metrics.setListeners(c.stationID, n)

	var once sync.Once
	return func() {
		once.Do(func() { c.removeListener(id) })
	}
}

// ListenerCount returns the number of registered listeners.
func (c *Coordinator) ListenerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

func (c *Coordinator) removeListener(id uuid.UUID) {
	c.mu.Lock()
	for i, l := range c.listeners {
		if l.id == id {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			break
		}
	}
	n := len(c.listeners)
	closed := c.closed
	c.mu.Unlock()

	if !closed {
		c.metrics.setListeners(c.stationID, n)
	}
}

func (c *Coordinator) tick() {
	if err := c.refresh(context.Background()); err != nil && !errors.Is(err, ErrShutdown) {
		c.log.WithError(err).Debug("scheduled refresh failed")
	}
}

func (c *Coordinator) refresh(ctx context.Context) error {
	ch := c.group.DoChan(c.stationID, func() (any, error) {
		return nil, c.fetchAndCommit()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchAndCommit runs inside the single-flight gate, so at most one is
// active per coordinator.
func (c *Coordinator) fetchAndCommit() error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrShutdown
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	start := time.Now()
	obs, err := c.fetch(ctx)
	c.metrics.observeFetch(c.stationID, time.Since(start), err)

	if err != nil {
		return c.recordFailure(err)
	}
	return c.commit(obs)
}

func (c *Coordinator) fetch(ctx context.Context) (*buoy.Observation, error) {
	obs, err := c.fetcher.FetchObservation(ctx, c.stationID)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, buoy.ErrConnectivity) {
			err = fmt.Errorf("%w: %w", buoy.ErrConnectivity, err)
		}
		return nil, err
	}
	if obs == nil {
		return nil, fmt.Errorf("%w: empty observation", buoy.ErrConnectivity)
	}
	if err := obs.Validate(buoy.Descriptors); err != nil {
		return nil, fmt.Errorf("%w: %w", buoy.ErrConnectivity, err)
	}
	return obs, nil
}

func (c *Coordinator) recordFailure(err error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrShutdown
	}
	c.lastUpdateSuccess = false
	c.lastErr = err
	c.mu.Unlock()

	c.metrics.setSuccess(c.stationID, false)
	c.log.WithError(err).Warn("fetching observation failed, keeping previous snapshot")
	return err
}

func (c *Coordinator) commit(obs *buoy.Observation) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.log.Debug("discarding observation fetched after shutdown")
		return ErrShutdown
	}
	c.data.Store(obs)
	c.lastUpdateSuccess = true
	c.lastUpdate = time.Now().UTC()
	c.lastErr = nil
	listeners := make([]listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	c.metrics.setSuccess(c.stationID, true)
	c.log.WithField("observed_at", obs.Time.UTC).Debug("observation updated")

	for _, l := range listeners {
		c.notify(l, obs)
	}
	return nil
}

func (c *Coordinator) notify(l listenerEntry, obs *buoy.Observation) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.listenerFailed(c.stationID)
			c.log.WithField("listener", l.id).Errorf("listener panicked: %v", r)
		}
	}()

	if err := l.fn(obs); err != nil {
		c.metrics.listenerFailed(c.stationID)
		c.log.WithField("listener", l.id).WithError(err).Error("listener failed")
	}
}
