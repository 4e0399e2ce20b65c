package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/teslamqtt/core/model"
	"github.com/kilianp07/teslamqtt/core/tesla"
)

// ChargeLimit sets the charge limit in percent.
type ChargeLimit struct {
	Limit int
}

var ChargeLimitDefinition = Definition{
	ID: ChargeLimitID,
	Parse: func(raw []byte) (Command, error) {
		var p struct {
			Limit *int `json:"limit"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if p.Limit == nil {
			return nil, fmt.Errorf("limit: %w", errMissingField)
		}
		return ChargeLimit{Limit: *p.Limit}, nil
	},
}

func (ChargeLimit) ID() string { return ChargeLimitID }

// Run rejects out of range limits before waking the vehicle.
func (c ChargeLimit) Run(ctx context.Context, id model.VehicleID, rt Runtime) error {
	if !tesla.ValidChargeLimit(c.Limit) {
		return tesla.ErrInvalidChargeLimit
	}
	if err := rt.Waker.WakeUp(ctx, id); err != nil {
		return err
	}
	return rt.API.SetChargeLimit(ctx, id, c.Limit)
}

// SentryMode toggles sentry mode. Disabling does not wake the vehicle.
type SentryMode struct {
	Enabled bool
}

var SentryModeDefinition = Definition{
	ID: SentryModeID,
	Parse: func(raw []byte) (Command, error) {
		var p struct {
			Enabled *bool `json:"enabled"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if p.Enabled == nil {
			return nil, fmt.Errorf("enabled: %w", errMissingField)
		}
		return SentryMode{Enabled: *p.Enabled}, nil
	},
}

func (SentryMode) ID() string { return SentryModeID }

func (c SentryMode) Run(ctx context.Context, id model.VehicleID, rt Runtime) error {
	if c.Enabled {
		if err := rt.Waker.WakeUp(ctx, id); err != nil {
			return err
		}
	}
	return rt.API.SetSentryMode(ctx, id, c.Enabled)
}
