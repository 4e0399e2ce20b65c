// Package bridge consumes vehicle command messages from MQTT, runs them
// against the owner API and publishes correlated responses.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/kilianp07/teslamqtt/core/command"
	"github.com/kilianp07/teslamqtt/core/events"
	"github.com/kilianp07/teslamqtt/core/logger"
	"github.com/kilianp07/teslamqtt/core/metrics"
	"github.com/kilianp07/teslamqtt/core/mqtt"
	"github.com/kilianp07/teslamqtt/internal/eventbus"
)

// Lifecycle states.
const (
	StateIdle     = "idle"
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopping = "stopping"
)

const (
	eventStart   = "start"
	eventStarted = "started"
	eventFail    = "fail"
	eventStop    = "stop"
	eventStopped = "stopped"
)

const disconnectTimeout = 5 * time.Second

// Bridge is the command dispatch actor. Start and Stop are serialized; every
// received command runs in its own goroutine.
type Bridge struct {
	cfg      Config
	client   mqtt.Client
	registry *command.Registry
	rt       command.Runtime
	sink     metrics.MetricsSink
	bus      *eventbus.TypedBus[events.BridgeEvent]
	log      logger.Logger
	now      func() time.Time

	mu         sync.Mutex
	fsm        *fsm.FSM
	cancel     context.CancelFunc
	loopDone   chan struct{}
	taskCancel context.CancelFunc
	tasks      sync.WaitGroup
}

// New creates a bridge in the idle state. sink and bus are optional.
func New(cfg Config, client mqtt.Client, registry *command.Registry, rt command.Runtime, sink metrics.MetricsSink, bus *eventbus.TypedBus[events.BridgeEvent], log logger.Logger) (*Bridge, error) {
	if client == nil || registry == nil || rt.API == nil || rt.Waker == nil || log == nil {
		return nil, fmt.Errorf("bridge: nil parameter provided to New")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	b := &Bridge{
		cfg:      cfg,
		client:   client,
		registry: registry,
		rt:       rt,
		sink:     sink,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
	b.fsm = fsm.NewFSM(StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateStarting},
			{Name: eventStarted, Src: []string{StateStarting}, Dst: StateRunning},
			{Name: eventFail, Src: []string{StateStarting}, Dst: StateIdle},
			{Name: eventStop, Src: []string{StateRunning}, Dst: StateStopping},
			{Name: eventStopped, Src: []string{StateStopping}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				b.log.Debugw("bridge state changed", map[string]any{"from": e.Src, "to": e.Dst})
				b.emit(events.BridgeEvent{Kind: events.StateChanged, From: e.Src, To: e.Dst})
			},
		},
	)
	return b, nil
}

// State returns the current lifecycle state.
func (b *Bridge) State() string {
	return b.fsm.Current()
}

func (b *Bridge) emit(ev events.BridgeEvent) {
	if b.bus == nil {
		return
	}
	ev.Time = b.now()
	b.bus.Publish(ev)
}

// transition fires event. Lifecycle changes complete even when ctx is done.
func (b *Bridge) transition(ctx context.Context, event string) {
	if err := b.fsm.Event(context.WithoutCancel(ctx), event); err != nil {
		b.log.Errorf("bridge transition %s from %s: %v", event, b.fsm.Current(), err)
	}
}

// Start connects to the broker and starts consuming commands. It is a no-op
// unless the bridge is idle. The bridge keeps running after ctx is done;
// only Stop ends it.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.fsm.Is(StateIdle) {
		b.log.Debugf("start ignored in state %s", b.fsm.Current())
		return nil
	}
	b.transition(ctx, eventStart)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	taskCtx, taskCancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := b.client.Connect(runCtx, b.onConnect); err != nil {
		cancel()
		taskCancel()
		b.transition(ctx, eventFail)
		return fmt.Errorf("connect: %w", err)
	}
	b.cancel = cancel
	b.taskCancel = taskCancel
	b.loopDone = make(chan struct{})
	go b.consume(runCtx, taskCtx, b.loopDone)

	b.transition(ctx, eventStarted)
	b.log.Infof("bridge listening on %s", b.cfg.CommandFilter())
	return nil
}

// Stop stops consuming, waits for running commands until ctx is done,
// publishes the offline status and disconnects, ending the broker session. It is a no-op unless the
// bridge is running.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.fsm.Is(StateRunning) {
		b.log.Debugf("stop ignored in state %s", b.fsm.Current())
		return nil
	}
	b.transition(ctx, eventStop)

	b.cancel()
	<-b.loopDone

	idle := make(chan struct{})
	go func() {
		b.tasks.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		b.log.Warnf("stop deadline reached, cancelling running commands")
	}
	b.taskCancel()

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()
	status := b.statusMessage(StatusOffline)
	err := b.client.Disconnect(dctx, mqtt.DisconnectOptions{Status: &status, ExpireSession: true})
	if err != nil {
		b.log.Errorf("disconnect: %v", err)
	}
	b.emit(events.BridgeEvent{Kind: events.Disconnected})
	b.transition(ctx, eventStopped)
	b.log.Infof("bridge stopped")
	return err
}

func (b *Bridge) statusMessage(payload string) mqtt.Message {
	return mqtt.Message{
		Topic:   b.cfg.StatusTopic(),
		Payload: []byte(payload),
		QoS:     1,
		Retain:  true,
	}
}

// onConnect runs after every (re)connection. A resumed session keeps its
// subscription so only fresh sessions subscribe.
func (b *Bridge) onConnect(ctx context.Context, info mqtt.ConnectInfo) {
	if !info.SessionPresent {
		if err := b.client.Subscribe(ctx, b.cfg.CommandFilter(), b.cfg.CommandQoS); err != nil {
			b.log.Errorf("subscribe %s: %v", b.cfg.CommandFilter(), err)
		}
	}
	if err := b.client.Publish(ctx, b.statusMessage(StatusOnline)); err != nil {
		b.log.Errorf("publish status: %v", err)
	}
	b.log.Infof("connected to broker (session present: %t)", info.SessionPresent)
	b.emit(events.BridgeEvent{Kind: events.Connected, SessionPresent: info.SessionPresent})
}

// consume receives messages one at a time and hands each to its own task.
func (b *Bridge) consume(ctx, taskCtx context.Context, done chan<- struct{}) {
	defer close(done)
	msgs := b.client.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-msgs:
			if !mqtt.Match(b.cfg.CommandFilter(), msg.Topic) {
				b.log.Debugf("ignoring message on %s", msg.Topic)
				continue
			}
			b.tasks.Add(1)
			go func() {
				defer b.tasks.Done()
				b.handle(taskCtx, msg)
			}()
		}
	}
}
