package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kilianp07/teslamqtt/auth"
	"github.com/kilianp07/teslamqtt/config"
	"github.com/kilianp07/teslamqtt/core/bridge"
	"github.com/kilianp07/teslamqtt/core/command"
	"github.com/kilianp07/teslamqtt/core/events"
	coremetrics "github.com/kilianp07/teslamqtt/core/metrics"
	coremqtt "github.com/kilianp07/teslamqtt/core/mqtt"
	"github.com/kilianp07/teslamqtt/core/wake"
	"github.com/kilianp07/teslamqtt/infra/logger"
	"github.com/kilianp07/teslamqtt/infra/metrics"
	"github.com/kilianp07/teslamqtt/infra/mqtt"
	"github.com/kilianp07/teslamqtt/infra/tesla"
	"github.com/kilianp07/teslamqtt/internal/eventbus"
)

// newMQTTClient is replaced in tests.
var newMQTTClient = func(cfg mqtt.Config) (coremqtt.Client, error) {
	return mqtt.NewPahoClient(cfg)
}

// Service wires the owner API client, the wake coordinator and the MQTT
// bridge together.
type Service struct {
	Bridge   *bridge.Bridge
	API      *tesla.Client
	bus      *eventbus.TypedBus[events.BridgeEvent]
	sink     coremetrics.MetricsSink
	log      logger.Logger
	cfg      bridge.Config
	promAddr string
}

// NewAPI builds the authenticated owner API client.
func NewAPI(cfg config.TeslaConfig, sink coremetrics.MetricsSink) *tesla.Client {
	httpClient := &http.Client{Timeout: cfg.API.Timeout}
	tokens := auth.NewProvider(cfg.Auth, httpClient, recorder[coremetrics.TokenRefreshRecorder](sink), logger.New("auth"))
	return tesla.NewClient(cfg.API, tokens, httpClient, logger.New("tesla_client"))
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	api := NewAPI(cfg.Tesla, sink)
	waker := wake.NewCoordinator(api, cfg.Wake.Options(), recorder[coremetrics.WakeRecorder](sink), logger.New("wake"))

	client, err := newMQTTClient(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	bus := eventbus.NewTyped[events.BridgeEvent]()
	b, err := bridge.New(cfg.Bridge, client, command.DefaultRegistry(),
		command.Runtime{API: api, Waker: waker}, sink, bus, logger.New("bridge"))
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	cfg.Bridge.SetDefaults()
	return &Service{
		Bridge:   b,
		API:      api,
		bus:      bus,
		sink:     sink,
		log:      logg,
		cfg:      cfg.Bridge,
		promAddr: metrics.PromAddress(cfg.Metrics.Sinks),
	}, nil
}

// recorder returns sink as R when it implements it, nil otherwise.
func recorder[R any](sink coremetrics.MetricsSink) R {
	r, _ := any(sink).(R)
	return r
}

// Run starts the bridge and blocks until the context is cancelled, then
// stops it within the configured shutdown timeout.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if err := s.Bridge.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.log.Infof("shutting down")
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.Bridge.Stop(stopCtx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if n := s.bus.Dropped(); n > 0 {
		s.log.Warnf("event bus dropped %d events for slow subscribers", n)
	}
	s.bus.Close()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
