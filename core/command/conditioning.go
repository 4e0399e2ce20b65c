package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/teslamqtt/core/model"
)

// SeatMode is the per-seat setting of a start-conditioning request.
type SeatMode string

const (
	SeatModeOff    SeatMode = "off"
	SeatModeAuto   SeatMode = "auto"
	SeatModeLevel1 SeatMode = "level1"
	SeatModeLevel2 SeatMode = "level2"
	SeatModeLevel3 SeatMode = "level3"
)

// HeatingModes returns the seat requests, in order, that apply the mode.
// Manual modes turn the automatic mode off first.
func (m SeatMode) HeatingModes() []model.SeatHeatingMode {
	switch m {
	case SeatModeAuto:
		return []model.SeatHeatingMode{model.SeatAuto(true)}
	case SeatModeLevel1:
		return []model.SeatHeatingMode{model.SeatAuto(false), model.SeatHeat(1)}
	case SeatModeLevel2:
		return []model.SeatHeatingMode{model.SeatAuto(false), model.SeatHeat(2)}
	case SeatModeLevel3:
		return []model.SeatHeatingMode{model.SeatAuto(false), model.SeatHeat(3)}
	default:
		return []model.SeatHeatingMode{model.SeatAuto(false), model.SeatHeat(0)}
	}
}

func (m *SeatMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch SeatMode(s) {
	case SeatModeOff, SeatModeAuto, SeatModeLevel1, SeatModeLevel2, SeatModeLevel3:
		*m = SeatMode(s)
		return nil
	default:
		return fmt.Errorf("invalid seat mode %q", s)
	}
}

// StartConditioning wakes the vehicle, starts climate and applies the
// temperatures and seat modes.
type StartConditioning struct {
	DriverTemperature    float64
	DriverSeatMode       SeatMode
	PassengerTemperature float64
	PassengerSeatMode    SeatMode
}

var StartConditioningDefinition = Definition{
	ID:    StartConditioningID,
	Parse: parseStartConditioning,
}

func parseStartConditioning(raw []byte) (Command, error) {
	var p struct {
		DriverTemperature    *float64  `json:"driverTemperature"`
		DriverSeatMode       *SeatMode `json:"driverSeatMode"`
		PassengerTemperature *float64  `json:"passengerTemperature"`
		PassengerSeatMode    *SeatMode `json:"passengerSeatMode"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	switch {
	case p.DriverTemperature == nil:
		return nil, fmt.Errorf("driverTemperature: %w", errMissingField)
	case p.DriverSeatMode == nil:
		return nil, fmt.Errorf("driverSeatMode: %w", errMissingField)
	case p.PassengerTemperature == nil:
		return nil, fmt.Errorf("passengerTemperature: %w", errMissingField)
	case p.PassengerSeatMode == nil:
		return nil, fmt.Errorf("passengerSeatMode: %w", errMissingField)
	}
	return StartConditioning{
		DriverTemperature:    *p.DriverTemperature,
		DriverSeatMode:       *p.DriverSeatMode,
		PassengerTemperature: *p.PassengerTemperature,
		PassengerSeatMode:    *p.PassengerSeatMode,
	}, nil
}

func (StartConditioning) ID() string { return StartConditioningID }

func (c StartConditioning) Run(ctx context.Context, id model.VehicleID, rt Runtime) error {
	if err := rt.Waker.WakeUp(ctx, id); err != nil {
		return err
	}
	if err := rt.API.SetPreconditioning(ctx, id, true); err != nil {
		return err
	}
	if err := rt.API.SetTemperatures(ctx, id, c.DriverTemperature, c.PassengerTemperature); err != nil {
		return err
	}
	for _, mode := range c.DriverSeatMode.HeatingModes() {
		if err := rt.API.SetSeatHeatingMode(ctx, id, model.SeatFrontLeft, mode); err != nil {
			return err
		}
	}
	for _, mode := range c.PassengerSeatMode.HeatingModes() {
		if err := rt.API.SetSeatHeatingMode(ctx, id, model.SeatFrontRight, mode); err != nil {
			return err
		}
	}
	return nil
}

// StopConditioning turns climate off without waking the vehicle.
type StopConditioning struct{}

var StopConditioningDefinition = Definition{
	ID:    StopConditioningID,
	Parse: func([]byte) (Command, error) { return StopConditioning{}, nil },
}

func (StopConditioning) ID() string { return StopConditioningID }

func (StopConditioning) Run(ctx context.Context, id model.VehicleID, rt Runtime) error {
	return rt.API.SetPreconditioning(ctx, id, false)
}
