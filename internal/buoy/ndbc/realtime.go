package ndbc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
)

const missing = "MM"

type column struct {
	segment string
	key     string
}

// columns maps realtime2 standard meteorological headers to observation
// fields.
var columns = map[string]column{
	"WDIR": {buoy.SegmentWind, "direction"},
	"WSPD": {buoy.SegmentWind, "speed"},
	"GST":  {buoy.SegmentWind, "gusts"},
	"WVHT": {buoy.SegmentWaves, "height"},
	"DPD":  {buoy.SegmentWaves, "period"},
	"APD":  {buoy.SegmentWaves, "average_period"},
	"MWD":  {buoy.SegmentWaves, "direction"},
	"PRES": {buoy.SegmentWeather, "pressure"},
	"ATMP": {buoy.SegmentWeather, "air_temperature"},
	"WTMP": {buoy.SegmentWeather, "water_temperature"},
	"DEWP": {buoy.SegmentWeather, "dewpoint"},
	"VIS":  {buoy.SegmentWeather, "visibility"},
	"PTDY": {buoy.SegmentWeather, "pressure_tendency"},
	"TIDE": {buoy.SegmentWeather, "tide"},
}

var timeColumns = []string{"YY", "MM", "DD", "hh", "mm"}

var errMalformedFeed = errors.New("malformed realtime feed")

// reading is the latest row of a realtime feed.
type reading struct {
	time    time.Time
	wind    buoy.Segment
	waves   buoy.Segment
	weather buoy.Segment
}

// parseRealtime reads a realtime2 ".txt" feed: a header row of field names,
// a header row of unit tokens, then data rows newest first. Only the newest
// row is used.
func parseRealtime(r io.Reader) (*reading, error) {
	sc := bufio.NewScanner(r)

	var names, units, values []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch {
		case names == nil:
			names = strings.Fields(strings.TrimPrefix(line, "#"))
		case units == nil:
			units = strings.Fields(strings.TrimPrefix(line, "#"))
		default:
			values = strings.Fields(line)
		}
		if values != nil {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedFeed, err)
	}
	if values == nil {
		return nil, fmt.Errorf("%w: no data rows", errMalformedFeed)
	}
	if len(units) != len(names) || len(values) != len(names) {
		return nil, fmt.Errorf("%w: %d names, %d units, %d values", errMalformedFeed, len(names), len(units), len(values))
	}

	// The first header row is "#YY MM DD hh mm ..."; note MM is both the
	// month header and the missing marker, so time columns are positional.
	if len(names) < len(timeColumns) {
		return nil, fmt.Errorf("%w: missing time columns", errMalformedFeed)
	}
	for i, want := range timeColumns {
		if names[i] != want {
			return nil, fmt.Errorf("%w: expected time column %s, got %s", errMalformedFeed, want, names[i])
		}
	}

	ts, err := parseRowTime(values[:len(timeColumns)])
	if err != nil {
		return nil, err
	}

	rd := &reading{
		time:    ts,
		wind:    buoy.Segment{},
		waves:   buoy.Segment{},
		weather: buoy.Segment{},
	}

	for i := len(timeColumns); i < len(names); i++ {
		col, ok := columns[names[i]]
		if !ok {
			continue
		}

		f := buoy.Field{Unit: units[i]}
		if values[i] != missing {
			v, err := strconv.ParseFloat(values[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: column %s: %w", errMalformedFeed, names[i], err)
			}
			f.Value = &v
			if col.key == "direction" {
				f.Compass = buoy.Compass(v)
			}
		}

		rd.segment(col.segment)[col.key] = f
	}

	return rd, nil
}

func (r *reading) segment(name string) buoy.Segment {
	switch name {
	case buoy.SegmentWind:
		return r.wind
	case buoy.SegmentWaves:
		return r.waves
	default:
		return r.weather
	}
}

func parseRowTime(fields []string) (time.Time, error) {
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: time column %s: %w", errMalformedFeed, timeColumns[i], err)
		}
		parts[i] = n
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], 0, 0, time.UTC), nil
}
