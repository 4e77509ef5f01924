// Package integration is the host-side glue: it sets up one entry per
// configured station, owning the entry's coordinator and its sensor
// projections, and tears them down in the right order.
package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
	"github.com/i474232898/ndbc-buoy-sensors/internal/coordinator"
	"github.com/i474232898/ndbc-buoy-sensors/internal/sensor"
	"github.com/i474232898/ndbc-buoy-sensors/internal/store"
)

var (
	// ErrAlreadyConfigured is returned when the station already has an entry.
	ErrAlreadyConfigured = errors.New("station already configured")

	// ErrEntryNotFound is returned for unknown entry ids.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrSensorNotFound is returned for unknown sensor unique ids.
	ErrSensorNotFound = errors.New("sensor not found")
)

// Entry is one configured station.
type Entry struct {
	ID        string
	UniqueID  string
	StationID string
	Title     string
	CreatedAt time.Time

	Coordinator *coordinator.Coordinator
	Sensors     []*sensor.Projection

	removeHistory func()
}

// StationOption is one selectable station at configuration time.
type StationOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Options configures a Manager.
type Options struct {
	Coordinator coordinator.Options
	Logger      logrus.FieldLogger
}

// Manager owns every entry of the process.
type Manager struct {
	fetcher buoy.Fetcher
	lister  buoy.StationLister
	history *store.MemoryStore
	opts    coordinator.Options
	log     logrus.FieldLogger

	mu      sync.RWMutex
	entries map[string]*Entry
	// sensors indexes projections by unique id.
	sensors map[string]*sensor.Projection
}

// NewManager creates a Manager.
func NewManager(fetcher buoy.Fetcher, lister buoy.StationLister, history *store.MemoryStore, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	copts := opts.Coordinator
	copts.Logger = opts.Logger.WithField("component", "coordinator")

	return &Manager{
		fetcher: fetcher,
		lister:  lister,
		history: history,
		opts:    copts,
		log:     opts.Logger.WithField("component", "integration"),
		entries: make(map[string]*Entry),
		sensors: make(map[string]*sensor.Projection),
	}
}

// EntryUniqueID is the identity used to refuse duplicate entries.
func EntryUniqueID(stationID string) string {
	return sensor.Domain + strings.ToUpper(stationID)
}

// ListStations returns the selectable stations sorted by id.
func (m *Manager) ListStations(ctx context.Context) ([]StationOption, error) {
	stations, err := m.lister.ListStations(ctx)
	if err != nil {
		return nil, err
	}

	options := make([]StationOption, 0, len(stations))
	for id, st := range stations {
		options = append(options, StationOption{Label: id + " - " + st.Name, Value: id})
	}
	sort.Slice(options, func(i, j int) bool { return options[i].Value < options[j].Value })
	return options, nil
}

// SetupEntry configures stationID: it runs the first fetch, builds one
// projection per descriptor, subscribes them and the history store, then
// starts polling. Failures of the first fetch come back wrapping
// coordinator.ErrNotReady or coordinator.ErrConfigInvalid.
func (m *Manager) SetupEntry(ctx context.Context, stationID string) (*Entry, error) {
	// Station ids are case-insensitive; the directory keys them upper-case.
	stationID = strings.ToUpper(strings.TrimSpace(stationID))
	uniqueID := EntryUniqueID(stationID)

	m.mu.Lock()
	for _, e := range m.entries {
		if e.UniqueID == uniqueID {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrAlreadyConfigured, stationID)
		}
	}
	// Reserve the unique id while the first fetch runs.
	pending := &Entry{UniqueID: uniqueID, StationID: stationID}
	reservation := "pending-" + uuid.NewString()
	m.entries[reservation] = pending
	m.mu.Unlock()

	entry, err := m.setup(ctx, stationID, uniqueID)

	m.mu.Lock()
	delete(m.entries, reservation)
	if err == nil {
		m.entries[entry.ID] = entry
		for _, p := range entry.Sensors {
			m.sensors[p.UniqueID()] = p
		}
	}
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (m *Manager) setup(ctx context.Context, stationID, uniqueID string) (*Entry, error) {
	log := m.log.WithField("station_id", stationID)

	coord := coordinator.New(stationID, m.fetcher, m.opts)
	if err := coord.Setup(ctx); err != nil {
		coord.Shutdown()
		log.WithError(err).Info("entry setup failed")
		return nil, err
	}

	obs := coord.Data()
	entry := &Entry{
		ID:          uuid.NewString(),
		UniqueID:    uniqueID,
		StationID:   stationID,
		Title:       "NDBC - " + obs.Location.Name,
		CreatedAt:   time.Now().UTC(),
		Coordinator: coord,
	}

	for _, d := range buoy.Descriptors {
		p, err := sensor.New(coord, d)
		if err != nil {
			coord.Shutdown()
			return nil, fmt.Errorf("setting up sensor %s: %w", d.ID, err)
		}
		entry.Sensors = append(entry.Sensors, p)
	}

	if m.history != nil {
		m.history.Save(obs)
		entry.removeHistory = coord.AddListener(m.history.Listener)
	}
	for _, p := range entry.Sensors {
		p.Activate()
	}

	if err := coord.Start(); err != nil {
		m.teardown(entry)
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"entry_id": entry.ID,
		"sensors":  len(entry.Sensors),
	}).Info("entry set up")
	return entry, nil
}

// UnloadEntry deregisters the entry's projections and history listener and
// shuts its coordinator down.
func (m *Manager) UnloadEntry(id string) error {
	m.mu.Lock()
	entry, ok := m.entries[id]
	if !ok || entry.Coordinator == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	delete(m.entries, id)
	for _, p := range entry.Sensors {
		delete(m.sensors, p.UniqueID())
	}
	m.mu.Unlock()

	m.teardown(entry)
	if m.history != nil {
		m.history.Delete(entry.StationID)
	}

	m.log.WithFields(logrus.Fields{"entry_id": id, "station_id": entry.StationID}).Info("entry unloaded")
	return nil
}

func (m *Manager) teardown(entry *Entry) {
	for _, p := range entry.Sensors {
		p.Deactivate()
	}
	if entry.removeHistory != nil {
		entry.removeHistory()
	}
	entry.Coordinator.Shutdown()
}

// Shutdown unloads every entry.
func (m *Manager) Shutdown() {
	for _, e := range m.Entries() {
		if err := m.UnloadEntry(e.ID); err != nil {
			m.log.WithError(err).Warn("unloading entry during shutdown")
		}
	}
}

// Entries returns the configured entries ordered by creation time.
func (m *Manager) Entries() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Coordinator != nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Entry looks up an entry by id.
func (m *Manager) Entry(id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok || e.Coordinator == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return e, nil
}

// Sensor looks up a projection by unique id.
func (m *Manager) Sensor(uniqueID string) (*sensor.Projection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.sensors[uniqueID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, uniqueID)
	}
	return p, nil
}

// History returns stored observations of an entry's station.
func (m *Manager) History(entry *Entry, from, to time.Time) ([]*buoy.Observation, error) {
	if m.history == nil {
		return nil, store.ErrNotFound
	}
	return m.history.GetRange(entry.StationID, from, to)
}
