package model

import (
	"fmt"
	"strconv"
)

// VehicleID is the opaque identifier the owner API uses in vehicle paths.
type VehicleID uint64

// ParseVehicleID parses the decimal representation used in MQTT topics.
func ParseVehicleID(s string) (VehicleID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse vehicle id %q: %w", s, err)
	}
	return VehicleID(id), nil
}

func (id VehicleID) String() string { return strconv.FormatUint(uint64(id), 10) }

// StateOnline is the vehicle state reported once the car is awake.
const StateOnline = "online"

// Vehicle is the summary returned by the vehicle listing and wake endpoints.
type Vehicle struct {
	ID          VehicleID `json:"id"`
	VehicleID   uint64    `json:"vehicle_id"`
	VIN         string    `json:"vin"`
	DisplayName string    `json:"display_name,omitempty"`
	State       string    `json:"state"`
}

// Online reports whether the vehicle accepts commands.
func (v Vehicle) Online() bool { return v.State == StateOnline }
