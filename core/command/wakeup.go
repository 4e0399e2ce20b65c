package command

import (
	"context"

	"github.com/kilianp07/teslamqtt/core/model"
)

const (
	WakeUpID            = "wake-up"
	StopConditioningID  = "stop-conditioning"
	StartConditioningID = "start-conditioning"
	ChargeLimitID       = "charge-limit"
	SentryModeID        = "sentry-mode"
)

// WakeUp only wakes the vehicle.
type WakeUp struct{}

var WakeUpDefinition = Definition{
	ID:    WakeUpID,
	Parse: func([]byte) (Command, error) { return WakeUp{}, nil },
}

func (WakeUp) ID() string { return WakeUpID }

func (WakeUp) Run(ctx context.Context, id model.VehicleID, rt Runtime) error {
	return rt.Waker.WakeUp(ctx, id)
}
