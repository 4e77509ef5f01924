// Package sensor projects one field of a station's current observation into
// a self-contained sensor the host can register, read and subscribe to.
package sensor

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
	"github.com/i474232898/ndbc-buoy-sensors/internal/coordinator"
)

const (
	// Domain namespaces device identifiers.
	Domain       = "ndbcrealtime"
	Manufacturer = "NDBC"

	AttrLastUpdateUTC       = "last_update_utc"
	AttrLastUpdateTimestamp = "last_update_timestamp"
)

// ErrNoSnapshot is returned when a projection is built for a coordinator
// that has not completed a successful fetch.
var ErrNoSnapshot = errors.New("coordinator has no observation yet")

// Source is the part of a coordinator a projection depends on.
type Source interface {
	StationID() string
	Data() *buoy.Observation
	LastUpdateSuccess() bool
	AddListener(fn coordinator.Listener) (remove func())
	RequestRefresh()
}

// Identifier is a (domain, id) pair grouping entities under a device.
type Identifier struct {
	Domain string `json:"domain"`
	ID     string `json:"id"`
}

// DeviceInfo groups every projection of one station under one device.
type DeviceInfo struct {
	Identifiers  []Identifier `json:"identifiers"`
	Name         string       `json:"name"`
	Manufacturer string       `json:"manufacturer"`
	Model        string       `json:"model"`
}

// State is everything the host renders for a projection, read from a single
// snapshot.
type State struct {
	UniqueID    string         `json:"unique_id"`
	Name        string         `json:"name"`
	Icon        string         `json:"icon,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	Value       *float64       `json:"value"`
	Unit        string         `json:"unit"`
	Attributes  map[string]any `json:"attributes"`
	Available   bool           `json:"available"`
	Device      DeviceInfo     `json:"device"`
}

// Projection exposes one descriptor of one station.
type Projection struct {
	source     Source
	descriptor buoy.Descriptor
	uniqueID   string
	onUpdate   func(*Projection)

	mu      sync.Mutex
	remove  func()
	updates atomic.Int64
}

// Option configures a Projection.
type Option func(*Projection)

// WithUpdateHook sets a function called after every coordinator update
// while the projection is active. This is where a host writes state.
func WithUpdateHook(fn func(*Projection)) Option {
	return func(p *Projection) {
		p.onUpdate = fn
	}
}

// New builds a projection of d over source. The source must already hold a
// snapshot.
func New(source Source, d buoy.Descriptor, opts ...Option) (*Projection, error) {
	obs := source.Data()
	if obs == nil {
		return nil, fmt.Errorf("sensor %s for station %s: %w", d.ID, source.StationID(), ErrNoSnapshot)
	}
	if _, ok := obs.Field(d.Segment, d.Key); !ok {
		return nil, fmt.Errorf("sensor %s: field %s.%s not in observation", d.ID, d.Segment, d.Key)
	}

	p := &Projection{
		source:     source,
		descriptor: d,
		uniqueID:   UniqueID(source.StationID(), d.ID),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// UniqueID derives the stable identifier of a station's sensor.
func UniqueID(stationID, descriptorID string) string {
	return fmt.Sprintf("ndbc_%s_%s", stationID, descriptorID)
}

// DeviceID derives the stable identifier of a station's device.
func DeviceID(stationID string) string {
	return "ndbc_" + stationID
}

func (p *Projection) UniqueID() string { return p.uniqueID }

func (p *Projection) Descriptor() buoy.Descriptor { return p.descriptor }

func (p *Projection) Icon() string { return p.descriptor.Icon }

func (p *Projection) DeviceClass() string { return p.descriptor.DeviceClass }

// Available mirrors the coordinator's last fetch result.
func (p *Projection) Available() bool { return p.source.LastUpdateSuccess() }

// Name is the descriptor name qualified by the station's location.
func (p *Projection) Name() string {
	return fmt.Sprintf("%s - %s", p.descriptor.Name, p.snapshot().Location.Name)
}

// Value returns the current measurement, nil when the station reported it
// missing.
func (p *Projection) Value() *float64 {
	return p.field(p.snapshot()).Value
}

// Unit returns the normalized display unit.
func (p *Projection) Unit() string {
	return buoy.NormalizeUnit(p.field(p.snapshot()).Unit)
}

// Attributes returns the extra state attributes.
func (p *Projection) Attributes() map[string]any {
	return p.attributes(p.snapshot())
}

// Device describes the station device this projection belongs to.
func (p *Projection) Device() DeviceInfo {
	return p.device(p.snapshot())
}

// State reads every rendered value from the same snapshot.
func (p *Projection) State() State {
	obs := p.snapshot()
	f := p.field(obs)

	return State{
		UniqueID:    p.uniqueID,
		Name:        fmt.Sprintf("%s - %s", p.descriptor.Name, obs.Location.Name),
		Icon:        p.descriptor.Icon,
		DeviceClass: p.descriptor.DeviceClass,
		Value:       f.Value,
		Unit:        buoy.NormalizeUnit(f.Unit),
		Attributes:  p.attributes(obs),
		Available:   p.source.LastUpdateSuccess(),
		Device:      p.device(obs),
	}
}

// Activate subscribes the projection to coordinator updates. It is a no-op
// when already active.
func (p *Projection) Activate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.remove != nil {
		return
	}
	p.remove = p.source.AddListener(p.handleUpdate)
}

// Deactivate removes the coordinator subscription.
func (p *Projection) Deactivate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.remove == nil {
		return
	}
	p.remove()
	p.remove = nil
}

// Active reports whether the projection is subscribed.
func (p *Projection) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remove != nil
}

// Updates counts the coordinator notifications received while active.
func (p *Projection) Updates() int64 {
	return p.updates.Load()
}

// Update asks the coordinator for a refresh without waiting for it.
func (p *Projection) Update() {
	p.source.RequestRefresh()
}

func (p *Projection) handleUpdate(*buoy.Observation) error {
	p.updates.Add(1)
	if p.onUpdate != nil {
		p.onUpdate(p)
	}
	return nil
}

// snapshot never returns nil: New refuses to build a projection before the
// first snapshot and coordinators never clear it.
func (p *Projection) snapshot() *buoy.Observation {
	obs := p.source.Data()
	if obs == nil {
		panic(fmt.Sprintf("sensor %s read before first observation", p.uniqueID))
	}
	return obs
}

func (p *Projection) field(obs *buoy.Observation) buoy.Field {
	f, _ := obs.Field(p.descriptor.Segment, p.descriptor.Key)
	return f
}

func (p *Projection) attributes(obs *buoy.Observation) map[string]any {
	attrs := map[string]any{
		AttrLastUpdateUTC:       obs.Time.UTC.Format(time.RFC3339),
		AttrLastUpdateTimestamp: obs.Time.Unix,
	}

	if key := p.descriptor.AttributeKey; key != "" {
		if v, ok := p.field(obs).Attribute(key); ok {
			attrs[key] = v
		}
	}
	return attrs
}

func (p *Projection) device(obs *buoy.Observation) DeviceInfo {
	loc := obs.Location

	model := fmt.Sprintf("Latitude: %s, Longitude: %s", formatCoord(loc.Latitude), formatCoord(loc.Longitude))
	if loc.Elevation != nil && *loc.Elevation != 0 {
		model += ", Elevation: " + formatCoord(*loc.Elevation)
	}

	return DeviceInfo{
		Identifiers:  []Identifier{{Domain: Domain, ID: DeviceID(p.source.StationID())}},
		Name:         "NDBC - " + loc.Name,
		Manufacturer: Manufacturer,
		Model:        model,
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
