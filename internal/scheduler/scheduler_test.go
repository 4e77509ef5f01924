package scheduler

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestStartRejectsNonPositiveInterval(t *testing.T) {
	s := New(0, func() {}, quietLogger())
	assert.Error(t, s.Start())
}

func TestJobRunsOnInterval(t *testing.T) {
	var runs atomic.Int32
	s := New(50*time.Millisecond, func() { runs.Add(1) }, quietLogger())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, int32(0), runs.Load(), "first run waits for the schedule")
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(time.Hour, func() {}, quietLogger())
	require.NoError(t, s.Start())

	s.Stop()
	s.Stop()
}
