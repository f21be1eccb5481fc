// Package metrics provides observability for the colony server.
// Every recorder is safe on a nil *Collector so tests can skip metrics.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector gathers simulation and transport metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Ticks       prometheus.Counter
	TickLatency prometheus.Histogram

	TimersScheduled prometheus.Counter
	TimersFired     prometheus.Counter
	TimersPending   prometheus.Gauge

	BusMessages *prometheus.CounterVec
	BusFailures *prometheus.CounterVec

	ActionsCompleted *prometheus.CounterVec
	Deaths           prometheus.Counter
	PeopleAlive      prometheus.Gauge
	IncidentsActive  prometheus.Gauge

	Saves             *prometheus.CounterVec
	EventWrites       *prometheus.CounterVec
	EventWriteLatency prometheus.Histogram

	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
	WSErrors      prometheus.Counter
}

// New registers the colony metrics against reg, defaulting to the global
// registry when nil. Registering twice on the same registry reuses the
// existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Ticks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "colony_ticks_total", Help: "Simulation ticks processed.",
	})); err != nil {
		return nil, err
	}
	if c.TickLatency, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "colony_tick_duration_seconds",
		Help:    "Time spent processing one tick.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})); err != nil {
		return nil, err
	}
	if c.TimersScheduled, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "colony_timers_scheduled_total", Help: "Timers scheduled.",
	})); err != nil {
		return nil, err
	}
	if c.TimersFired, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "colony_timers_fired_total", Help: "Timers that reached their deadline.",
	})); err != nil {
		return nil, err
	}
	if c.TimersPending, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "colony_timers_pending", Help: "Timers currently registered.",
	})); err != nil {
		return nil, err
	}
	if c.BusMessages, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "colony_bus_messages_total", Help: "Messages published on the bus, by type.",
	}, []string{"type"})); err != nil {
		return nil, err
	}
	if c.BusFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "colony_bus_handler_failures_total", Help: "Bus handlers that panicked or failed, by message type.",
	}, []string{"type"})); err != nil {
		return nil, err
	}
	if c.ActionsCompleted, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "colony_actions_completed_total", Help: "Actions completed, by action id.",
	}, []string{"action"})); err != nil {
		return nil, err
	}
	if c.Deaths, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "colony_deaths_total", Help: "People who died.",
	})); err != nil {
		return nil, err
	}
	if c.PeopleAlive, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "colony_people_alive", Help: "People currently alive.",
	})); err != nil {
		return nil, err
	}
	if c.IncidentsActive, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "colony_incidents_active", Help: "Incidents and events currently running.",
	})); err != nil {
		return nil, err
	}
	if c.Saves, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "colony_saves_total", Help: "Save attempts, by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.EventWrites, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "colony_journal_writes_total", Help: "Journal entries persisted, by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.EventWriteLatency, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "colony_journal_write_duration_seconds",
		Help:    "Journal write latency.",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if c.WSConnections, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "colony_ws_connections", Help: "Active websocket connections.",
	})); err != nil {
		return nil, err
	}
	if c.WSMessages, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "colony_ws_messages_total", Help: "Websocket messages, by direction.",
	}, []string{"direction"})); err != nil {
		return nil, err
	}
	if c.WSErrors, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "colony_ws_errors_total", Help: "Websocket read or write failures.",
	})); err != nil {
		return nil, err
	}

	return c, nil
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickLatency.Observe(latency.Seconds())
}

// RecordTimerScheduled counts a newly scheduled timer.
func (c *Collector) RecordTimerScheduled() {
	if c == nil {
		return
	}
	c.TimersScheduled.Inc()
}

// RecordTimersFired counts fired timers and updates the pending gauge.
func (c *Collector) RecordTimersFired(fired, pending int) {
	if c == nil {
		return
	}
	c.TimersFired.Add(float64(fired))
	c.TimersPending.Set(float64(pending))
}

// RecordMessage counts a bus publication.
func (c *Collector) RecordMessage(msgType string) {
	if c == nil {
		return
	}
	c.BusMessages.WithLabelValues(msgType).Inc()
}

// RecordHandlerFailure counts a bus handler that failed.
func (c *Collector) RecordHandlerFailure(msgType string) {
	if c == nil {
		return
	}
	c.BusFailures.WithLabelValues(msgType).Inc()
}

// RecordActionCompleted counts one action completion.
func (c *Collector) RecordActionCompleted(actionID string) {
	if c == nil {
		return
	}
	c.ActionsCompleted.WithLabelValues(actionID).Inc()
}

// RecordDeath counts a death.
func (c *Collector) RecordDeath() {
	if c == nil {
		return
	}
	c.Deaths.Inc()
}

// SetPopulation updates the alive and incident gauges.
func (c *Collector) SetPopulation(alive, incidents int) {
	if c == nil {
		return
	}
	c.PeopleAlive.Set(float64(alive))
	c.IncidentsActive.Set(float64(incidents))
}

// RecordSave counts a save attempt.
func (c *Collector) RecordSave(err error) {
	if c == nil {
		return
	}
	c.Saves.WithLabelValues(result(err)).Inc()
}

// RecordEventWrite records a journal write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	if c == nil {
		return
	}
	c.EventWrites.WithLabelValues(result(err)).Inc()
	c.EventWriteLatency.Observe(latency.Seconds())
}

// RecordWSConnection records websocket connection changes.
func (c *Collector) RecordWSConnection(delta int) {
	if c == nil {
		return
	}
	c.WSConnections.Add(float64(delta))
}

// RecordWSMessage records websocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if c == nil {
		return
	}
	dir := "out"
	if incoming {
		dir = "in"
	}
	c.WSMessages.WithLabelValues(dir).Inc()
}

// RecordWSError records a websocket error.
func (c *Collector) RecordWSError() {
	if c == nil {
		return
	}
	c.WSErrors.Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %T already registered with incompatible type", are.NewCollector)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
