package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.RecordTick(3 * time.Millisecond)
	c.RecordTimerScheduled()
	c.RecordTimersFired(2, 5)
	c.RecordMessage("GIVE")
	c.RecordMessage("GIVE")
	c.RecordHandlerFailure("GIVE")
	c.RecordActionCompleted("gather")
	c.RecordDeath()
	c.SetPopulation(3, 1)
	c.RecordSave(nil)
	c.RecordSave(errors.New("disk full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Ticks))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.TimersFired))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.TimersPending))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.BusMessages.WithLabelValues("GIVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BusFailures.WithLabelValues("GIVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActionsCompleted.WithLabelValues("gather")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.PeopleAlive))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Saves.WithLabelValues("error")))
}

func TestNewTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	require.NoError(t, err)
	b, err := New(reg)
	require.NoError(t, err)

	a.RecordDeath()
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Deaths))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordTick(time.Millisecond)
	c.RecordMessage("CLICK")
	c.RecordWSConnection(1)
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)
	c.RecordTick(time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "colony_ticks_total 1")
}
