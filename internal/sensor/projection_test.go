package sensor

import (
	"context"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy/buoytest"
	"github.com/i474232898/ndbc-buoy-sensors/internal/coordinator"
)

func readyCoordinator(t *testing.T, stationID string, f buoy.Fetcher) *coordinator.Coordinator {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	c := coordinator.New(stationID, f, coordinator.Options{Logger: logger, RefreshCooldown: -1})
	t.Cleanup(c.Shutdown)
	require.NoError(t, c.Setup(context.Background()))
	return c
}

func descriptor(t *testing.T, id string) buoy.Descriptor {
	t.Helper()
	d, ok := buoy.LookupDescriptor(id)
	require.True(t, ok, id)
	return d
}

func TestNewFailsBeforeFirstSnapshot(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	c := coordinator.New("46042", buoytest.NewFetcher(), coordinator.Options{Logger: logger})

	_, err := New(c, descriptor(t, "wind_speed"))
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestWindDirectionScenario(t *testing.T) {
	c := readyCoordinator(t, "46042", buoytest.NewFetcher())

	p, err := New(c, descriptor(t, "wind_direction"))
	require.NoError(t, err)

	require.NotNil(t, p.Value())
	assert.Equal(t, 270.0, *p.Value())
	assert.Equal(t, buoy.UnitDegree, p.Unit())
	assert.Equal(t, "Wind Direction - Monterey Bay", p.Name())
	assert.Equal(t, "mdi:compass", p.Icon())
	assert.Empty(t, p.DeviceClass())
	assert.Equal(t, "ndbc_46042_wind_direction", p.UniqueID())
	assert.True(t, p.Available())

	assert.Equal(t, map[string]any{
		AttrLastUpdateUTC:         "2024-01-01T00:00:00Z",
		AttrLastUpdateTimestamp:   int64(1704067200),
		buoy.AttrDirectionCompass: "W",
	}, p.Attributes())
}

func TestAttributesWithoutAttributeKey(t *testing.T) {
	c := readyCoordinator(t, "46042", buoytest.NewFetcher())
	obs := c.Data()

	for _, d := range buoy.Descriptors {
		p, err := New(c, d)
		require.NoError(t, err, d.ID)

		attrs := p.Attributes()
		assert.Equal(t, obs.Time.UTC.Format("2006-01-02T15:04:05Z07:00"), attrs[AttrLastUpdateUTC], d.ID)
		assert.Equal(t, obs.Time.Unix, attrs[AttrLastUpdateTimestamp], d.ID)

		if d.AttributeKey == "" {
			assert.Len(t, attrs, 2, d.ID)
		} else {
			assert.Contains(t, attrs, d.AttributeKey, d.ID)
		}
	}
}

func TestUnitsAreNormalized(t *testing.T) {
	c := readyCoordinator(t, "46042", buoytest.NewFetcher())

	cases := map[string]string{
		"wave_period":             buoy.UnitSeconds,
		"weather_air_temperature": buoy.UnitCelsius,
		"wave_direction":          buoy.UnitDegree,
		"weather_pressure":        "hPa",
		"wind_speed":              "kn",
	}
	for id, want := range cases {
		p, err := New(c, descriptor(t, id))
		require.NoError(t, err)
		assert.Equal(t, want, p.Unit(), id)
	}
}

func TestMissingMeasurementHasNilValue(t *testing.T) {
	c := readyCoordinator(t, "46042", buoytest.NewFetcher())

	p, err := New(c, descriptor(t, "weather_tide"))
	require.NoError(t, err)
	assert.Nil(t, p.Value())
	assert.Equal(t, "ft", p.Unit())
}

func TestDeviceIdentityIsSharedPerStation(t *testing.T) {
	c := readyCoordinator(t, "46042", buoytest.NewFetcher())

	speed, err := New(c, descriptor(t, "wind_speed"))
	require.NoError(t, err)
	height, err := New(c, descriptor(t, "wave_height"))
	require.NoError(t, err)

	assert.Equal(t, speed.Device(), height.Device())
	assert.Equal(t, DeviceInfo{
		Identifiers:  []Identifier{{Domain: Domain, ID: "ndbc_46042"}},
		Name:         "NDBC - Monterey Bay",
		Manufacturer: Manufacturer,
		Model:        "Latitude: 36.8, Longitude: -122.4",
	}, speed.Device())

	other := readyCoordinator(t, "46042", buoytest.NewFetcher())
	again, err := New(other, descriptor(t, "wind_gusts"))
	require.NoError(t, err)
	assert.Equal(t, speed.Device().Identifiers, again.Device().Identifiers)
}

func TestDeviceModelIncludesElevation(t *testing.T) {
	obs := buoytest.Observation("LJPC1")
	obs.Location.Elevation = buoytest.Float(12.5)
	c := readyCoordinator(t, "LJPC1", buoytest.NewFetcher(buoytest.Result{Observation: obs}))

	p, err := New(c, descriptor(t, "weather_pressure"))
	require.NoError(t, err)
	assert.Equal(t, "Latitude: 36.8, Longitude: -122.4, Elevation: 12.5", p.Device().Model)
}

func TestDeviceModelOmitsZeroElevation(t *testing.T) {
	obs := buoytest.Observation("46042")
	obs.Location.Elevation = buoytest.Float(0)
	c := readyCoordinator(t, "46042", buoytest.NewFetcher(buoytest.Result{Observation: obs}))

	p, err := New(c, descriptor(t, "weather_pressure"))
	require.NoError(t, err)
	assert.Equal(t, "Latitude: 36.8, Longitude: -122.4", p.Device().Model)
}

func TestActivateSubscribesUntilDeactivated(t *testing.T) {
	c := readyCoordinator(t, "46042", buoytest.NewFetcher())

	var hooked []string
	p, err := New(c, descriptor(t, "wind_speed"), WithUpdateHook(func(p *Projection) {
		hooked = append(hooked, p.UniqueID())
	}))
	require.NoError(t, err)

	p.Activate()
	p.Activate()
	assert.True(t, p.Active())
	assert.Equal(t, 1, c.ListenerCount())

	require.NoError(t, c.RefreshNow(context.Background()))
	assert.Equal(t, int64(1), p.Updates())
	assert.Equal(t, []string{"ndbc_46042_wind_speed"}, hooked)

	p.Deactivate()
	p.Deactivate()
	assert.False(t, p.Active())
	assert.Equal(t, 0, c.ListenerCount())

	require.NoError(t, c.RefreshNow(context.Background()))
	assert.Equal(t, int64(1), p.Updates())
}

func TestStateReadsOneSnapshot(t *testing.T) {
	second := buoytest.Observation("46042")
	second.Wind["speed"] = buoy.Field{Value: buoytest.Float(20), Unit: "kn"}
	second.Time = buoy.NewObservationTime(buoytest.ObservedAt.Add(time.Hour))

	f := buoytest.NewFetcher(
		buoytest.Result{Observation: buoytest.Observation("46042")},
		buoytest.Result{Observation: second},
	)
	c := readyCoordinator(t, "46042", f)

	p, err := New(c, descriptor(t, "wind_speed"))
	require.NoError(t, err)

	before := p.State()
	require.NoError(t, c.RefreshNow(context.Background()))
	after := p.State()

	assert.Equal(t, 12.3, *before.Value)
	assert.Equal(t, int64(1704067200), before.Attributes[AttrLastUpdateTimestamp])

	assert.Equal(t, 20.0, *after.Value)
	assert.Equal(t, int64(1704070800), after.Attributes[AttrLastUpdateTimestamp])
	assert.Equal(t, "Wind Speed - Monterey Bay", after.Name)
	assert.Equal(t, "kn", after.Unit)
	assert.True(t, after.Available)
}

func TestAvailabilityFollowsCoordinator(t *testing.T) {
	f := buoytest.NewFetcher(
		buoytest.Result{Observation: buoytest.Observation("46042")},
		buoytest.Result{Err: buoy.ErrConnectivity},
	)
	c := readyCoordinator(t, "46042", f)

	p, err := New(c, descriptor(t, "wind_speed"))
	require.NoError(t, err)
	assert.True(t, p.Available())

	assert.Error(t, c.RefreshNow(context.Background()))
	assert.False(t, p.Available())
	assert.Equal(t, 12.3, *p.Value(), "stale value is still served")
}

func TestUpdateRequestsRefresh(t *testing.T) {
	f := buoytest.NewFetcher()
	c := readyCoordinator(t, "46042", f)

	p, err := New(c, descriptor(t, "wind_speed"))
	require.NoError(t, err)

	p.Update()
	assert.Eventually(t, func() bool { return f.Calls() == 2 }, time.Second, 10*time.Millisecond)
}

func TestUniqueIDIsDeterministic(t *testing.T) {
	assert.Equal(t, "ndbc_46042_wave_height", UniqueID("46042", "wave_height"))
	assert.Equal(t, UniqueID("46042", "wave_height"), UniqueID("46042", "wave_height"))
	assert.NotEqual(t, UniqueID("46042", "wave_height"), UniqueID("46026", "wave_height"))
	assert.Equal(t, "ndbc_46042", DeviceID("46042"))
}
