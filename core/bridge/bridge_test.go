package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/teslamqtt/core/command"
	"github.com/kilianp07/teslamqtt/core/events"
	"github.com/kilianp07/teslamqtt/core/jsonvalue"
	"github.com/kilianp07/teslamqtt/core/metrics"
	"github.com/kilianp07/teslamqtt/core/model"
	"github.com/kilianp07/teslamqtt/core/monitoring"
	coremqtt "github.com/kilianp07/teslamqtt/core/mqtt"
	"github.com/kilianp07/teslamqtt/core/tesla"
	"github.com/kilianp07/teslamqtt/infra/logger"
	"github.com/kilianp07/teslamqtt/infra/mqtt"
	"github.com/kilianp07/teslamqtt/internal/eventbus"
)

type stubAPI struct {
	mu    sync.Mutex
	calls []string
}

var _ tesla.API = (*stubAPI)(nil)

func (s *stubAPI) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *stubAPI) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubAPI) ListVehicles(context.Context) ([]model.Vehicle, error) { return nil, nil }
func (s *stubAPI) VehicleState(context.Context, model.VehicleID) (jsonvalue.Value, error) {
	return jsonvalue.Null(), nil
}
func (s *stubAPI) WakeUp(_ context.Context, id model.VehicleID) (model.Vehicle, error) {
	s.record("wake_up")
	return model.Vehicle{ID: id, State: model.StateOnline}, nil
}
func (s *stubAPI) SetSentryMode(context.Context, model.VehicleID, bool) error {
	s.record("sentry")
	return nil
}
func (s *stubAPI) SetChargeLimit(context.Context, model.VehicleID, int) error {
	s.record("charge_limit")
	return &tesla.APIError{StatusCode: 408, Body: "vehicle unavailable"}
}
func (s *stubAPI) SetPreconditioning(context.Context, model.VehicleID, bool) error {
	s.record("precondition")
	return nil
}
func (s *stubAPI) SetTemperatures(context.Context, model.VehicleID, float64, float64) error {
	return nil
}
func (s *stubAPI) SetSeatHeatingMode(context.Context, model.VehicleID, model.Seat, model.SeatHeatingMode) error {
	return nil
}

// gateWaker blocks every wake until release is closed or ctx is done.
type gateWaker struct {
	release   chan struct{}
	started   chan struct{}
	once      sync.Once
	cancelled chan struct{}
}

func newGateWaker() *gateWaker {
	return &gateWaker{release: make(chan struct{}), started: make(chan struct{}), cancelled: make(chan struct{})}
}

func (w *gateWaker) WakeUp(ctx context.Context, _ model.VehicleID) error {
	w.once.Do(func() { close(w.started) })
	select {
	case <-w.release:
		return nil
	case <-ctx.Done():
		close(w.cancelled)
		return ctx.Err()
	}
}

type instantWaker struct{}

func (instantWaker) WakeUp(context.Context, model.VehicleID) error { return nil }

type recordSink struct {
	mu      sync.Mutex
	results []metrics.CommandResult
}

func (r *recordSink) RecordCommandResult(res metrics.CommandResult) error {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
	return nil
}

func (r *recordSink) Results() []metrics.CommandResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]metrics.CommandResult(nil), r.results...)
}

type recordMonitor struct {
	mu     sync.Mutex
	errs   []error
	panics []any
}

func (m *recordMonitor) CaptureException(err error, _ map[string]string) {
	m.mu.Lock()
	m.errs = append(m.errs, err)
	m.mu.Unlock()
}

func (m *recordMonitor) CapturePanic(v any, _ map[string]string) {
	m.mu.Lock()
	m.panics = append(m.panics, v)
	m.mu.Unlock()
}

func (m *recordMonitor) Flush(time.Duration) {}

func (m *recordMonitor) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errs), len(m.panics)
}

type fixture struct {
	bridge *Bridge
	client *mqtt.MockClient
	api    *stubAPI
	sink   *recordSink
	bus    *eventbus.TypedBus[events.BridgeEvent]
}

func newFixture(t *testing.T, waker command.Waker, registry *command.Registry) *fixture {
	t.Helper()
	if waker == nil {
		waker = instantWaker{}
	}
	if registry == nil {
		registry = command.DefaultRegistry()
	}
	f := &fixture{
		client: mqtt.NewMockClient(),
		api:    &stubAPI{},
		sink:   &recordSink{},
		bus:    eventbus.NewTypedWithBuffer[events.BridgeEvent](32),
	}
	b, err := New(Config{}, f.client, registry, command.Runtime{API: f.api, Waker: waker}, f.sink, f.bus, logger.NopLogger{})
	require.NoError(t, err)
	f.bridge = b
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.bridge.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(f.client.Published("tesla-api/connected")) == 1
	}, time.Second, 5*time.Millisecond)
	t.Cleanup(func() { _ = f.bridge.Stop(context.Background()) })
}

func (f *fixture) send(topic, payload, responseTopic string) {
	f.client.Deliver(coremqtt.Message{
		Topic:           topic,
		Payload:         []byte(payload),
		ResponseTopic:   responseTopic,
		CorrelationData: []byte("corr-1"),
	})
}

func (f *fixture) awaitResponse(t *testing.T, topic string) (coremqtt.Message, Response) {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.client.Published(topic)) > 0 }, time.Second, 5*time.Millisecond)
	msg := f.client.Published(topic)[0]
	var res Response
	require.NoError(t, json.Unmarshal(msg.Payload, &res))
	return msg, res
}

func TestWakeUpRespondsWithCorrelation(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.start(t)

	f.send("tesla-api/42/command", `{"command":"wake-up"}`, "replies/1")
	msg, _ := f.awaitResponse(t, "replies/1")
	assert.JSONEq(t, `{"command":"wake-up","success":true}`, string(msg.Payload))
	assert.Equal(t, []byte("corr-1"), msg.CorrelationData)
	assert.Equal(t, ContentTypeJSON, msg.ContentType)
	assert.False(t, msg.Retain)
}

func TestUnknownCommandResponds(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.start(t)

	f.send("tesla-api/42/command", `{"command":"levitate"}`, "replies/1")
	_, res := f.awaitResponse(t, "replies/1")
	assert.Equal(t, "levitate", res.Command)
	assert.False(t, res.Success)
	assert.Equal(t, "unknownCommand", res.ErrorIdentifier)
	assert.NotEmpty(t, res.ErrorMessage)
}

func TestInvalidCommandJSONResponds(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.start(t)

	f.send("tesla-api/42/command", `{"command":"charge-limit"}`, "replies/1")
	_, res := f.awaitResponse(t, "replies/1")
	assert.Equal(t, "charge-limit", res.Command)
	assert.Equal(t, "invalidCommandJSON", res.ErrorIdentifier)
	assert.Empty(t, f.api.Calls())
}

func TestExecutionFailureIsReported(t *testing.T) {
	mon := &recordMonitor{}
	monitoring.Init(mon)
	defer monitoring.Init(nil)

	f := newFixture(t, nil, nil)
	f.start(t)

	f.send("tesla-api/7/command", `{"command":"charge-limit","limit":80}`, "replies/1")
	_, res := f.awaitResponse(t, "replies/1")
	assert.Equal(t, "apiError", res.ErrorIdentifier)
	assert.Contains(t, res.ErrorMessage, "408")

	require.Eventually(t, func() bool { return len(f.sink.Results()) == 1 }, time.Second, 5*time.Millisecond)
	got := f.sink.Results()[0]
	assert.Equal(t, "7", got.VehicleID)
	assert.Equal(t, "charge-limit", got.Command)
	assert.Equal(t, "apiError", got.ErrorID)
	errCount, _ := mon.counts()
	assert.Equal(t, 1, errCount)
}

func TestDroppedMessagesGetNoResponse(t *testing.T) {
	mon := &recordMonitor{}
	monitoring.Init(mon)
	defer monitoring.Init(nil)

	f := newFixture(t, nil, nil)
	f.start(t)

	f.send("tesla-api/not-a-number/command", `{"command":"wake-up"}`, "replies/1")
	f.send("tesla-api/42/command", `{"not":"a command"}`, "replies/1")
	f.send("tesla-api/42/command", `not json`, "replies/1")
	f.send("other/42/command", `{"command":"wake-up"}`, "replies/1")
	f.send("tesla-api/42/command", `{"command":"levitate"}`, "replies/2")

	f.awaitResponse(t, "replies/2")
	assert.Empty(t, f.client.Published("replies/1"))
	assert.Empty(t, f.api.Calls())
	errCount, _ := mon.counts()
	assert.Zero(t, errCount)
}

func TestNoResponseTopicStillRuns(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.start(t)

	f.send("tesla-api/42/command", `{"command":"sentry-mode","enabled":false}`, "")
	require.Eventually(t, func() bool { return len(f.api.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"sentry"}, f.api.Calls())
	require.Eventually(t, func() bool { return len(f.sink.Results()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, f.client.Published(""), 1, "only the status message")
}

func TestPublishFailureIsDropped(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.start(t)

	f.client.SetPublishErr(errors.New("broker gone"))
	f.send("tesla-api/42/command", `{"command":"wake-up"}`, "replies/1")
	require.Eventually(t, func() bool { return len(f.sink.Results()) == 1 }, time.Second, 5*time.Millisecond)

	f.client.SetPublishErr(nil)
	f.send("tesla-api/42/command", `{"command":"wake-up"}`, "replies/2")
	f.awaitResponse(t, "replies/2")
	assert.Empty(t, f.client.Published("replies/1"))
}

func TestCommandPanicIsRecovered(t *testing.T) {
	mon := &recordMonitor{}
	monitoring.Init(mon)
	defer monitoring.Init(nil)

	registry := command.NewRegistry(command.Definition{
		ID:    "explode",
		Parse: func([]byte) (command.Command, error) { return panicCommand{}, nil },
	})
	f := newFixture(t, nil, registry)
	f.start(t)

	f.send("tesla-api/42/command", `{"command":"explode"}`, "replies/1")
	_, res := f.awaitResponse(t, "replies/1")
	assert.Equal(t, "explode", res.Command)
	assert.False(t, res.Success)
	assert.Empty(t, res.ErrorIdentifier)
	assert.Contains(t, res.ErrorMessage, "panic")
	_, panics := mon.counts()
	assert.Equal(t, 1, panics)

	f.send("tesla-api/42/command", `{"command":"explode"}`, "replies/2")
	f.awaitResponse(t, "replies/2")
}

type panicCommand struct{}

func (panicCommand) ID() string { return "explode" }
func (panicCommand) Run(context.Context, model.VehicleID, command.Runtime) error {
	panic("boom")
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t, nil, nil)
	sub := f.bus.Subscribe()
	assert.Equal(t, StateIdle, f.bridge.State())

	require.NoError(t, f.bridge.Stop(context.Background()))
	require.NoError(t, f.bridge.Start(context.Background()))
	require.NoError(t, f.bridge.Start(context.Background()))
	assert.Equal(t, StateRunning, f.bridge.State())

	var states []string
	kinds := map[events.BridgeEventKind]int{}
	drain := func() {
		for {
			select {
			case ev := <-sub:
				kinds[ev.Kind]++
				if ev.Kind == events.StateChanged {
					states = append(states, ev.To)
				}
			default:
				return
			}
		}
	}
	require.Eventually(t, func() bool {
		drain()
		return kinds[events.Connected] == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"tesla-api/+/command"}, f.client.Subscribed())
	status := f.client.Published("tesla-api/connected")
	require.Len(t, status, 1)
	assert.Equal(t, "true", string(status[0].Payload))
	assert.True(t, status[0].Retain)

	require.NoError(t, f.bridge.Stop(context.Background()))
	require.NoError(t, f.bridge.Stop(context.Background()))
	assert.Equal(t, StateIdle, f.bridge.State())

	status = f.client.Published("tesla-api/connected")
	require.Len(t, status, 2)
	assert.Equal(t, "false", string(status[1].Payload))
	assert.True(t, status[1].Retain)
	assert.Len(t, f.client.Disconnects(), 1)

	drain()
	assert.Equal(t, []string{StateStarting, StateRunning, StateStopping, StateIdle}, states)
	assert.Equal(t, 1, kinds[events.Disconnected])
}

func TestResumedSessionSkipsSubscribe(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.client.SessionPresent = true
	f.start(t)
	assert.Empty(t, f.client.Subscribed())

	f.client.Reconnect(false)
	require.Eventually(t, func() bool { return len(f.client.Subscribed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, f.client.Published("tesla-api/connected"), 2)
}

func TestRestartAfterStopResubscribes(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.NoError(t, f.bridge.Start(context.Background()))
	require.Eventually(t, func() bool { return len(f.client.Subscribed()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.bridge.Stop(context.Background()))
	disconnects := f.client.Disconnects()
	require.Len(t, disconnects, 1)
	assert.True(t, disconnects[0].ExpireSession)
	require.NotNil(t, disconnects[0].Status)
	assert.Equal(t, "false", string(disconnects[0].Status.Payload))

	require.NoError(t, f.bridge.Start(context.Background()))
	t.Cleanup(func() { _ = f.bridge.Stop(context.Background()) })
	require.Eventually(t, func() bool { return len(f.client.Subscribed()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"tesla-api/+/command", "tesla-api/+/command"}, f.client.Subscribed())
}

func TestStartConnectFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.client.ConnectErr = errors.New("refused")
	assert.Error(t, f.bridge.Start(context.Background()))
	assert.Equal(t, StateIdle, f.bridge.State())
}

func TestStopAwaitsRunningCommands(t *testing.T) {
	waker := newGateWaker()
	f := newFixture(t, waker, nil)
	f.start(t)

	f.send("tesla-api/42/command", `{"command":"wake-up"}`, "replies/1")
	<-waker.started

	stopped := make(chan error, 1)
	go func() { stopped <- f.bridge.Stop(context.Background()) }()
	select {
	case <-stopped:
		t.Fatal("stop returned while a command was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(waker.release)
	require.NoError(t, <-stopped)

	_, res := f.awaitResponse(t, "replies/1")
	assert.True(t, res.Success)
}

func TestStopDeadlineCancelsCommands(t *testing.T) {
	waker := newGateWaker()
	f := newFixture(t, waker, nil)
	f.start(t)

	f.send("tesla-api/42/command", `{"command":"wake-up"}`, "replies/1")
	<-waker.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, f.bridge.Stop(ctx))
	select {
	case <-waker.cancelled:
	case <-time.After(time.Second):
		t.Fatal("running command was not cancelled")
	}
	assert.Equal(t, StateIdle, f.bridge.State())
}

func TestConfigTopics(t *testing.T) {
	c := Config{TopicPrefix: "/cars/"}
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, "cars/+/command", c.CommandFilter())
	assert.Equal(t, "cars/9/command", c.CommandTopic("9"))
	assert.Equal(t, "cars/connected", c.StatusTopic())
	assert.Equal(t, byte(1), c.CommandQoS)

	assert.Error(t, Config{TopicPrefix: "a/#", CommandQoS: 1}.Validate())
	assert.Error(t, Config{TopicPrefix: "a", CommandQoS: 3}.Validate())
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	_, err := New(Config{}, nil, command.DefaultRegistry(), command.Runtime{}, nil, nil, logger.NopLogger{})
	assert.Error(t, err)
}
