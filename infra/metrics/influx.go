package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/teslamqtt/core/metrics"
	"github.com/kilianp07/teslamqtt/infra/logger"
)

const defaultInfluxTimeout = 5 * time.Second

// InfluxConfig locates the bucket events are written to.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Timeout bounds each write and the startup health check.
	Timeout time.Duration `json:"timeout"`
}

// InfluxSink writes bridge events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	timeout  time.Duration
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultInfluxTimeout
	}
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		timeout:  cfg.Timeout,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), sink.timeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCommandResult writes one command_result point.
func (s *InfluxSink) RecordCommandResult(r coremetrics.CommandResult) error {
	p := write.NewPointWithMeasurement("command_result").
		AddTag("vehicle_id", r.VehicleID).
		AddTag("command", r.Command).
		AddTag("success", strconv.FormatBool(r.Success))
	if r.ErrorID != "" {
		p = p.AddTag("error_id", r.ErrorID)
	}
	p = p.AddField("duration_ms", r.Duration.Milliseconds()).
		SetTime(r.Time)
	return s.write(p)
}

// RecordWake writes one wake_result point.
func (s *InfluxSink) RecordWake(ev coremetrics.WakeResult) error {
	p := write.NewPointWithMeasurement("wake_result").
		AddTag("vehicle_id", ev.VehicleID).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("polls", ev.Polls).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordTokenRefresh writes one token_refresh point.
func (s *InfluxSink) RecordTokenRefresh(ev coremetrics.TokenRefreshEvent) error {
	p := write.NewPointWithMeasurement("token_refresh").
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("rotated", ev.Rotated).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordConnection writes one connection point.
func (s *InfluxSink) RecordConnection(ev coremetrics.ConnectionEvent) error {
	p := write.NewPointWithMeasurement("connection").
		AddField("connected", ev.Connected).
		AddField("session_present", ev.SessionPresent).
		SetTime(ev.Time)
	return s.write(p)
}
