package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/teslamqtt/core/metrics"
)

// PromSink records bridge events in Prometheus metrics.
type PromSink struct {
	commands     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	wakes        *prometheus.CounterVec
	wakeDuration prometheus.Histogram
	refreshes    *prometheus.CounterVec
	connected    prometheus.Gauge
}

// NewPromSink registers bridge metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tesla_commands_total",
			Help: "Total number of handled vehicle commands",
		}, []string{"vehicle_id", "command", "success", "error_id"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tesla_command_duration_seconds",
			Help:    "Time between command receipt and response",
			Buckets: prometheus.DefBuckets,
		}, []string{"command", "success"}),
		wakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tesla_wake_sequences_total",
			Help: "Total number of wake-up sequences",
		}, []string{"vehicle_id", "success"}),
		wakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tesla_wake_duration_seconds",
			Help:    "Duration of wake-up sequences",
			Buckets: []float64{1, 3, 6, 10, 15, 20, 30, 45},
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tesla_token_refreshes_total",
			Help: "Total number of access token refreshes",
		}, []string{"success", "rotated"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tesla_mqtt_connected",
			Help: "Whether the bridge is connected to the broker",
		}),
	}

	var err error
	if s.commands, err = register(reg, s.commands); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.wakes, err = register(reg, s.wakes); err != nil {
		return nil, err
	}
	if s.wakeDuration, err = register(reg, s.wakeDuration); err != nil {
		return nil, err
	}
	if s.refreshes, err = register(reg, s.refreshes); err != nil {
		return nil, err
	}
	if s.connected, err = register(reg, s.connected); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordCommandResult increments the counter and observes the command duration.
func (s *PromSink) RecordCommandResult(r coremetrics.CommandResult) error {
	ok := strconv.FormatBool(r.Success)
	s.commands.WithLabelValues(r.VehicleID, r.Command, ok, r.ErrorID).Inc()
	s.latency.WithLabelValues(r.Command, ok).Observe(r.Duration.Seconds())
	return nil
}

// RecordWake counts wake-up sequences per vehicle.
func (s *PromSink) RecordWake(ev coremetrics.WakeResult) error {
	s.wakes.WithLabelValues(ev.VehicleID, strconv.FormatBool(ev.Success)).Inc()
	s.wakeDuration.Observe(ev.Duration.Seconds())
	return nil
}

// RecordTokenRefresh counts access token refreshes.
func (s *PromSink) RecordTokenRefresh(ev coremetrics.TokenRefreshEvent) error {
	s.refreshes.WithLabelValues(strconv.FormatBool(ev.Success), strconv.FormatBool(ev.Rotated)).Inc()
	return nil
}

// RecordConnection sets the connection gauge.
func (s *PromSink) RecordConnection(ev coremetrics.ConnectionEvent) error {
	if ev.Connected {
		s.connected.Set(1)
	} else {
		s.connected.Set(0)
	}
	return nil
}
