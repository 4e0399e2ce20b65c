package metrics

import (
	"context"

	"github.com/kilianp07/teslamqtt/core/events"
	coremetrics "github.com/kilianp07/teslamqtt/core/metrics"
	"github.com/kilianp07/teslamqtt/internal/eventbus"
)

// StartEventCollector subscribes to the bridge event bus and records connection metrics.
// It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.BridgeEvent], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.ConnectionRecorder)
	if !ok {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch ev.Kind {
				case events.Connected:
					_ = rec.RecordConnection(coremetrics.ConnectionEvent{Connected: true, SessionPresent: ev.SessionPresent, Time: ev.Time})
				case events.Disconnected:
					_ = rec.RecordConnection(coremetrics.ConnectionEvent{Connected: false, Time: ev.Time})
				}
			}
		}
	}()
}
