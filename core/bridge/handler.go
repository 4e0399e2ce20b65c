package bridge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kilianp07/teslamqtt/core/command"
	"github.com/kilianp07/teslamqtt/core/errs"
	"github.com/kilianp07/teslamqtt/core/metrics"
	"github.com/kilianp07/teslamqtt/core/model"
	"github.com/kilianp07/teslamqtt/core/monitoring"
	"github.com/kilianp07/teslamqtt/core/mqtt"
)

// vehicleID extracts the id segment following the topic prefix.
func (b *Bridge) vehicleID(topic string) (model.VehicleID, error) {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/")
	if !ok {
		return 0, command.ErrInvalidVehicleID
	}
	seg, _, _ := strings.Cut(rest, "/")
	id, err := model.ParseVehicleID(seg)
	if err != nil {
		return 0, command.ErrInvalidVehicleID.Wrap(err)
	}
	return id, nil
}

// handle processes one command message. No error escapes it.
func (b *Bridge) handle(ctx context.Context, msg mqtt.Message) {
	start := b.now()
	fields := map[string]any{"topic": msg.Topic, "payload": string(msg.Payload)}

	id, err := b.vehicleID(msg.Topic)
	if err != nil {
		b.log.Errorw("dropping command: "+err.Error(), fields)
		return
	}
	fields["vehicle_id"] = id.String()

	cmdID, err := b.execute(ctx, id, msg.Payload)
	if errors.Is(err, command.ErrInvalidPayload) {
		b.log.Errorw("dropping command: "+err.Error(), fields)
		return
	}
	if cmdID != "" {
		fields["command"] = cmdID
	}
	if err != nil {
		b.log.Errorw("command failed: "+err.Error(), fields)
		if reportable(err) {
			monitoring.CaptureException(err, tags(fields))
		}
	} else {
		b.log.Debugw("command succeeded", fields)
	}

	res := NewResponse(cmdID, err)
	b.record(id, res, start)
	b.respond(ctx, msg, res)
}

// execute resolves and runs the command, converting panics into errors.
func (b *Bridge) execute(ctx context.Context, id model.VehicleID, payload []byte) (cmdID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.CapturePanic(r, map[string]string{"vehicle_id": id.String(), "command": cmdID})
			err = monitoring.PanicError(r)
		}
	}()
	cmdID, cmd, err := b.registry.Resolve(payload)
	if err != nil {
		return cmdID, err
	}
	return cmdID, cmd.Run(ctx, id, b.rt)
}

func (b *Bridge) record(id model.VehicleID, res Response, start time.Time) {
	err := b.sink.RecordCommandResult(metrics.CommandResult{
		VehicleID: id.String(),
		Command:   res.Command,
		Success:   res.Success,
		ErrorID:   res.ErrorIdentifier,
		Duration:  b.now().Sub(start),
		Time:      start,
	})
	if err != nil {
		b.log.Warnf("command metrics error: %v", err)
	}
}

// respond publishes res to the request's response topic, if it has one.
func (b *Bridge) respond(ctx context.Context, req mqtt.Message, res Response) {
	if req.ResponseTopic == "" {
		return
	}
	payload, err := res.Encode()
	if err != nil {
		b.log.Errorf("encode response: %v", err)
		return
	}
	out := mqtt.Message{
		Topic:           req.ResponseTopic,
		Payload:         payload,
		QoS:             b.cfg.ResponseQoS,
		ContentType:     ContentTypeJSON,
		CorrelationData: req.CorrelationData,
	}
	// The response still goes out when the command was cancelled by Stop.
	if err := b.client.Publish(context.WithoutCancel(ctx), out); err != nil {
		b.log.Errorf("publish response to %s: %v", req.ResponseTopic, err)
	}
}

// reportable reports whether err is an execution failure rather than a bad request.
func reportable(err error) bool {
	kind, ok := errs.KindOf(err)
	return !ok || kind == errs.KindTransport || kind == errs.KindOperation
}

func tags(fields map[string]any) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "payload" {
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
