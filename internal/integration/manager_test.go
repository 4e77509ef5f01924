package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy/buoytest"
	"github.com/i474232898/ndbc-buoy-sensors/internal/coordinator"
	"github.com/i474232898/ndbc-buoy-sensors/internal/sensor"
	"github.com/i474232898/ndbc-buoy-sensors/internal/store"
)

type stubLister map[string]buoy.Station

func (s stubLister) ListStations(context.Context) (map[string]buoy.Station, error) {
	return s, nil
}

func newTestManager(t *testing.T, f buoy.Fetcher) (*Manager, *store.MemoryStore) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	history := store.NewMemoryStore(10, 0)
	lister := stubLister{
		"46042": {ID: "46042", Name: "Monterey"},
		"41001": {ID: "41001", Name: "East Hatteras"},
	}
	m := NewManager(f, lister, history, Options{
		Coordinator: coordinator.Options{RefreshCooldown: -1},
		Logger:      logger,
	})
	t.Cleanup(m.Shutdown)
	return m, history
}

func TestSetupEntryEndToEnd(t *testing.T) {
	m, history := newTestManager(t, buoytest.NewFetcher())

	entry, err := m.SetupEntry(context.Background(), "46042")
	require.NoError(t, err)

	assert.Equal(t, "NDBC - Monterey Bay", entry.Title)
	assert.Equal(t, "46042", entry.StationID)
	require.Len(t, entry.Sensors, len(buoy.Descriptors))

	p, err := m.Sensor("ndbc_46042_wind_direction")
	require.NoError(t, err)
	st := p.State()
	assert.Equal(t, "Wind Direction - Monterey Bay", st.Name)
	require.NotNil(t, st.Value)
	assert.Equal(t, 270.0, *st.Value)
	assert.Equal(t, "°", st.Unit)
	assert.Equal(t, "W", st.Attributes[buoy.AttrDirectionCompass])
	assert.True(t, st.Available)
	assert.True(t, p.Active())

	// One listener per projection plus the history store.
	assert.Equal(t, len(buoy.Descriptors)+1, entry.Coordinator.ListenerCount())

	latest, err := history.GetLatest("46042")
	require.NoError(t, err)
	assert.Equal(t, buoytest.ObservedAt, latest.Time.UTC)
}

func TestSetupEntryRejectsDuplicate(t *testing.T) {
	m, _ := newTestManager(t, buoytest.NewFetcher())

	_, err := m.SetupEntry(context.Background(), "46042")
	require.NoError(t, err)

	_, err = m.SetupEntry(context.Background(), "46042")
	assert.ErrorIs(t, err, ErrAlreadyConfigured)
	assert.Len(t, m.Entries(), 1)
}

func TestSetupEntryConcurrentDuplicate(t *testing.T) {
	f := buoytest.NewFetcher()
	f.Gate = make(chan struct{})
	m, _ := newTestManager(t, f)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.SetupEntry(context.Background(), "46042")
		}(i)
	}

	<-f.Started
	time.Sleep(50 * time.Millisecond)
	close(f.Gate)
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrAlreadyConfigured)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Len(t, m.Entries(), 1)
}

func TestSetupEntryClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"transient", fmt.Errorf("timeout: %w", buoy.ErrConnectivity), coordinator.ErrNotReady},
		{"invalid station", fmt.Errorf("no such station: %w", buoy.ErrInvalidStation), coordinator.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, buoytest.NewFetcher(buoytest.Result{Err: tt.err}))

			_, err := m.SetupEntry(context.Background(), "46042")
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, m.Entries())

			_, err = m.Sensor(sensor.UniqueID("46042", "wind_direction"))
			assert.ErrorIs(t, err, ErrSensorNotFound)
		})
	}
}

func TestSetupEntryRetryAfterNotReady(t *testing.T) {
	f := buoytest.NewFetcher(
		buoytest.Result{Err: buoy.ErrConnectivity},
		buoytest.Result{Observation: buoytest.Observation("46042")},
	)
	m, _ := newTestManager(t, f)

	_, err := m.SetupEntry(context.Background(), "46042")
	require.ErrorIs(t, err, coordinator.ErrNotReady)

	_, err = m.SetupEntry(context.Background(), "46042")
	require.NoError(t, err)
}

func TestUnloadEntry(t *testing.T) {
	m, history := newTestManager(t, buoytest.NewFetcher())

	entry, err := m.SetupEntry(context.Background(), "46042")
	require.NoError(t, err)
	sensors := entry.Sensors

	require.NoError(t, m.UnloadEntry(entry.ID))

	assert.Empty(t, m.Entries())
	assert.Equal(t, 0, entry.Coordinator.ListenerCount())
	for _, p := range sensors {
		assert.False(t, p.Active())
	}
	_, err = history.GetLatest("46042")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = m.Entry(entry.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.ErrorIs(t, m.UnloadEntry(entry.ID), ErrEntryNotFound)

	// The station can be configured again.
	_, err = m.SetupEntry(context.Background(), "46042")
	assert.NoError(t, err)
}

func TestRefreshFlowsToHistory(t *testing.T) {
	next := buoytest.Observation("46042")
	next.Time = buoy.NewObservationTime(buoytest.ObservedAt.Add(10 * time.Minute))
	f := buoytest.NewFetcher(
		buoytest.Result{Observation: buoytest.Observation("46042")},
		buoytest.Result{Observation: next},
	)
	m, history := newTestManager(t, f)

	entry, err := m.SetupEntry(context.Background(), "46042")
	require.NoError(t, err)
	require.NoError(t, entry.Coordinator.RefreshNow(context.Background()))

	got, err := m.History(entry, buoytest.ObservedAt, buoytest.ObservedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	latest, err := history.GetLatest("46042")
	require.NoError(t, err)
	assert.Same(t, next, latest)

	p, err := m.Sensor("ndbc_46042_wave_height")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Updates())
}

func TestListStations(t *testing.T) {
	m, _ := newTestManager(t, buoytest.NewFetcher())

	options, err := m.ListStations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []StationOption{
		{Label: "41001 - East Hatteras", Value: "41001"},
		{Label: "46042 - Monterey", Value: "46042"},
	}, options)
}

func TestEntryUniqueIDIgnoresCase(t *testing.T) {
	assert.Equal(t, EntryUniqueID("lJpc1"), EntryUniqueID("LJPC1"))
}

func TestSetupEntryNormalizesStationID(t *testing.T) {
	m, history := newTestManager(t, buoytest.NewFetcher())

	entry, err := m.SetupEntry(context.Background(), " ljpc1")
	require.NoError(t, err)
	assert.Equal(t, "LJPC1", entry.StationID)

	_, err = m.Sensor("ndbc_LJPC1_wave_height")
	assert.NoError(t, err)

	_, err = m.SetupEntry(context.Background(), "LJPC1")
	assert.ErrorIs(t, err, ErrAlreadyConfigured)

	require.NoError(t, m.UnloadEntry(entry.ID))
	_, err = history.GetLatest("LJPC1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
