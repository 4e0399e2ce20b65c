// Package tesla defines the owner API used by commands and the wake-up
// coordinator. The HTTP implementation lives in infra/tesla.
package tesla

import (
	"context"

	"github.com/kilianp07/teslamqtt/core/jsonvalue"
	"github.com/kilianp07/teslamqtt/core/model"
)

// API is the subset of the owner API the bridge drives.
type API interface {
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	// VehicleState returns the climate state document of the vehicle.
	VehicleState(ctx context.Context, id model.VehicleID) (jsonvalue.Value, error)
	WakeUp(ctx context.Context, id model.VehicleID) (model.Vehicle, error)
	SetSentryMode(ctx context.Context, id model.VehicleID, on bool) error
	SetChargeLimit(ctx context.Context, id model.VehicleID, percent int) error
	SetPreconditioning(ctx context.Context, id model.VehicleID, on bool) error
	SetTemperatures(ctx context.Context, id model.VehicleID, driver, passenger float64) error
	SetSeatHeatingMode(ctx context.Context, id model.VehicleID, seat model.Seat, mode model.SeatHeatingMode) error
}

// TokenProvider supplies bearer tokens to the REST client.
type TokenProvider interface {
	AccessToken(ctx context.Context) (model.AccessToken, error)
	InvalidateAccessToken()
}

// Limits enforced before any request is sent.
const (
	MinSeatLevel   = 0
	MaxSeatLevel   = 3
	MinChargeLimit = 1
	MaxChargeLimit = 100
)

// ValidChargeLimit reports whether percent is an accepted charge limit.
func ValidChargeLimit(percent int) bool {
	return percent >= MinChargeLimit && percent <= MaxChargeLimit
}

// ValidSeatLevel reports whether level is an accepted heater or cooler level.
func ValidSeatLevel(level int) bool {
	return level >= MinSeatLevel && level <= MaxSeatLevel
}
