// Package wake serialises wake-up sequences per vehicle.
package wake

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kilianp07/teslamqtt/core/errs"
	"github.com/kilianp07/teslamqtt/core/logger"
	"github.com/kilianp07/teslamqtt/core/metrics"
	"github.com/kilianp07/teslamqtt/core/model"
)

const (
	DefaultRetries  = 10
	DefaultInterval = 3 * time.Second
)

// ErrFailedToWakeUp is returned when the vehicle is still not online after
// the retry budget is spent.
var ErrFailedToWakeUp = errs.New(errs.KindOperation, "failedToWakeUpVehicle", "failed to wake up vehicle")

// API is the owner API call used to wake and poll a vehicle.
type API interface {
	WakeUp(ctx context.Context, id model.VehicleID) (model.Vehicle, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tune the polling loop.
type Options struct {
	Retries  int
	Interval time.Duration
	Sleep    SleepFunc
}

func (o *Options) setDefaults() {
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
}

// Coordinator runs at most one wake-up sequence per vehicle. Callers for a
// vehicle with a sequence in progress wait for that sequence's outcome.
type Coordinator struct {
	api  API
	opts Options
	rec  metrics.WakeRecorder
	log  logger.Logger

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[model.VehicleID]struct{}
}

// NewCoordinator creates a Coordinator. rec may be nil.
func NewCoordinator(api API, opts Options, rec metrics.WakeRecorder, log logger.Logger) *Coordinator {
	opts.setDefaults()
	if rec == nil {
		rec = metrics.NopSink{}
	}
	return &Coordinator{
		api:      api,
		opts:     opts,
		rec:      rec,
		log:      log,
		inflight: make(map[model.VehicleID]struct{}),
	}
}

// WakeUp returns once the vehicle reports online. The sequence outlives a
// cancelled caller so that other waiters still get its result.
func (c *Coordinator) WakeUp(ctx context.Context, id model.VehicleID) error {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id.String(), func() (any, error) {
		c.mu.Lock()
		c.inflight[id] = struct{}{}
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, id)
			c.mu.Unlock()
		}()
		return nil, c.run(detached, id)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports whether a sequence for id is running.
func (c *Coordinator) InFlight(id model.VehicleID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[id]
	return ok
}

func (c *Coordinator) run(ctx context.Context, id model.VehicleID) (err error) {
	start := time.Now()
	polls := 0
	defer func() {
		ev := metrics.WakeResult{VehicleID: id.String(), Success: err == nil, Polls: polls, Duration: time.Since(start), Time: start}
		if rerr := c.rec.RecordWake(ev); rerr != nil {
			c.log.Warnf("record wake: %v", rerr)
		}
	}()

	vehicle, err := c.api.WakeUp(ctx, id)
	if err != nil {
		return err
	}
	for retries := c.opts.Retries; !vehicle.Online(); {
		if err := c.opts.Sleep(ctx, c.opts.Interval); err != nil {
			return err
		}
		polls++
		if v, perr := c.api.WakeUp(ctx, id); perr == nil {
			vehicle = v
		} else {
			c.log.Debugw("wake poll failed", map[string]any{"vehicle_id": id.String(), "error": perr.Error()})
		}
		if vehicle.Online() {
			break
		}
		retries--
		if retries == 0 {
			return ErrFailedToWakeUp
		}
	}
	c.log.Debugw("vehicle online", map[string]any{"vehicle_id": id.String(), "polls": polls})
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
