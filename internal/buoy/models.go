package buoy

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Segment names used by the descriptor table.
const (
	SegmentWind    = "wind"
	SegmentWaves   = "waves"
	SegmentWeather = "weather"
)

var validate = validator.New()

// Location describes where a station is moored.
type Location struct {
	Name      string   `json:"name" validate:"required"`
	Latitude  float64  `json:"latitude" validate:"latitude"`
	Longitude float64  `json:"longitude" validate:"longitude"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// ObservationTime is the upstream report time in both representations the
// sensors expose.
type ObservationTime struct {
	UTC  time.Time `json:"utc_time" validate:"required"`
	Unix int64     `json:"unix_time"`
}

// NewObservationTime normalizes t to UTC and derives the unix timestamp.
func NewObservationTime(t time.Time) ObservationTime {
	t = t.UTC()
	return ObservationTime{UTC: t, Unix: t.Unix()}
}

// Field is one measurement. Value is nil when the station reported the
// measurement as missing.
type Field struct {
	Value   *float64 `json:"value"`
	Unit    string   `json:"unit"`
	Compass string   `json:"compass,omitempty"`
}

// Attribute returns the optional attribute stored alongside the value.
func (f Field) Attribute(key string) (string, bool) {
	switch key {
	case AttrDirectionCompass:
		return f.Compass, f.Compass != ""
	}
	return "", false
}

// Segment groups related fields by key.
type Segment map[string]Field

// Observation is the immutable result of one fetch for one station.
type Observation struct {
	StationID string          `json:"station_id" validate:"required"`
	Location  Location        `json:"location"`
	Time      ObservationTime `json:"time"`
	Wind      Segment         `json:"wind"`
	Waves     Segment         `json:"waves"`
	Weather   Segment         `json:"weather"`
}

// Segment looks up a segment by name.
func (o *Observation) Segment(name string) (Segment, bool) {
	switch name {
	case SegmentWind:
		return o.Wind, o.Wind != nil
	case SegmentWaves:
		return o.Waves, o.Waves != nil
	case SegmentWeather:
		return o.Weather, o.Weather != nil
	}
	return nil, false
}

// Field resolves a (segment, key) path.
func (o *Observation) Field(segment, key string) (Field, bool) {
	seg, ok := o.Segment(segment)
	if !ok {
		return Field{}, false
	}
	f, ok := seg[key]
	return f, ok
}

// Validate checks the observation once at the fetch boundary so projections
// never have to guess: the metadata must be well formed and every path in
// descriptors must resolve to a field with a unit token.
func (o *Observation) Validate(descriptors []Descriptor) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}

	for _, d := range descriptors {
		f, ok := o.Field(d.Segment, d.Key)
		if !ok {
			return fmt.Errorf("invalid observation: missing field %s.%s", d.Segment, d.Key)
		}
		if f.Unit == "" {
			return fmt.Errorf("invalid observation: missing unit for %s.%s", d.Segment, d.Key)
		}
	}

	return nil
}

// Station is one entry of the station directory.
type Station struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Elevation *float64 `json:"elevation,omitempty"`
	Type      string   `json:"type,omitempty"`
	Owner     string   `json:"owner,omitempty"`
}
