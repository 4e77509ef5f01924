package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy"
	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy/buoytest"
)

func observedAt(stationID string, t time.Time) *buoy.Observation {
	obs := buoytest.Observation(stationID)
	obs.Time = buoy.NewObservationTime(t)
	return obs
}

func TestGetLatestEmpty(t *testing.T) {
	s := NewMemoryStore(10, 0)

	_, err := s.GetLatest("46042")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSkipsRepeatedReport(t *testing.T) {
	s := NewMemoryStore(10, 0)
	base := buoytest.ObservedAt

	s.Save(observedAt("46042", base))
	s.Save(observedAt("46042", base))
	s.Save(observedAt("46042", base.Add(-time.Hour)))
	s.Save(observedAt("46042", base.Add(time.Hour)))

	all, err := s.GetRange("46042", base.Add(-24*time.Hour), base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	latest, err := s.GetLatest("46042")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), latest.Time.UTC)
}

func TestRetentionByCount(t *testing.T) {
	s := NewMemoryStore(3, 0)
	base := buoytest.ObservedAt

	for i := 0; i < 5; i++ {
		s.Save(observedAt("46042", base.Add(time.Duration(i)*time.Hour)))
	}

	all, err := s.GetRange("46042", base, base.Add(10*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, base.Add(2*time.Hour), all[0].Time.UTC)
}

func TestRetentionByAge(t *testing.T) {
	s := NewMemoryStore(0, 2*time.Hour)
	base := buoytest.ObservedAt
	s.now = func() time.Time { return base.Add(4 * time.Hour) }

	for i := 0; i < 5; i++ {
		s.Save(observedAt("46042", base.Add(time.Duration(i)*time.Hour)))
	}

	all, err := s.GetRange("46042", base, base.Add(10*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, base.Add(2*time.Hour), all[0].Time.UTC)
}

func TestRetentionKeepsNewestEvenWhenOld(t *testing.T) {
	s := NewMemoryStore(0, time.Hour)
	s.now = func() time.Time { return buoytest.ObservedAt.Add(48 * time.Hour) }

	s.Save(buoytest.Observation("46042"))

	_, err := s.GetLatest("46042")
	assert.NoError(t, err)
}

func TestGetRangeIsInclusiveAndPerStation(t *testing.T) {
	s := NewMemoryStore(0, 0)
	base := buoytest.ObservedAt

	s.Save(observedAt("46042", base))
	s.Save(observedAt("46042", base.Add(time.Hour)))
	s.Save(observedAt("46026", base))

	got, err := s.GetRange("46042", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = s.GetRange("46042", base.Add(2*time.Hour), base.Add(3*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	s.Delete("46042")
	_, err = s.GetLatest("46042")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetLatest("46026")
	assert.NoError(t, err)
}

func TestListenerSaves(t *testing.T) {
	s := NewMemoryStore(0, 0)

	require.NoError(t, s.Listener(buoytest.Observation("46042")))
	_, err := s.GetLatest("46042")
	assert.NoError(t, err)
}
