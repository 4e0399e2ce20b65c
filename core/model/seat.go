package model

import "fmt"

// Seat identifies a seat position for climate requests.
type Seat int

const (
	SeatFrontLeft Seat = iota
	SeatFrontRight
	SeatRearLeft
	SeatRearCenter
	SeatRearRight
)

func (s Seat) String() string {
	switch s {
	case SeatFrontLeft:
		return "front-left"
	case SeatFrontRight:
		return "front-right"
	case SeatRearLeft:
		return "rear-left"
	case SeatRearCenter:
		return "rear-center"
	case SeatRearRight:
		return "rear-right"
	default:
		return fmt.Sprintf("seat(%d)", int(s))
	}
}

// HeatCoolID is the position used by the heater and cooler endpoints.
func (s Seat) HeatCoolID() int {
	switch s {
	case SeatFrontLeft:
		return 0
	case SeatFrontRight:
		return 1
	case SeatRearLeft:
		return 2
	case SeatRearCenter:
		return 4
	case SeatRearRight:
		return 5
	default:
		return -1
	}
}

// AutoID is the position used by the auto seat climate endpoint. Rear seats
// have no automatic mode.
func (s Seat) AutoID() (int, bool) {
	switch s {
	case SeatFrontLeft:
		return 1, true
	case SeatFrontRight:
		return 2, true
	default:
		return 0, false
	}
}

// SeatModeKind selects the variant held by a SeatHeatingMode.
type SeatModeKind int

const (
	SeatModeHeat SeatModeKind = iota
	SeatModeCool
	SeatModeAuto
)

// SeatHeatingMode is one of heat(level), cool(level) or auto(enabled).
type SeatHeatingMode struct {
	Kind    SeatModeKind
	Level   int
	Enabled bool
}

func SeatHeat(level int) SeatHeatingMode { return SeatHeatingMode{Kind: SeatModeHeat, Level: level} }
func SeatCool(level int) SeatHeatingMode { return SeatHeatingMode{Kind: SeatModeCool, Level: level} }
func SeatAuto(enabled bool) SeatHeatingMode {
	return SeatHeatingMode{Kind: SeatModeAuto, Enabled: enabled}
}

func (m SeatHeatingMode) String() string {
	switch m.Kind {
	case SeatModeHeat:
		return fmt.Sprintf("heat(%d)", m.Level)
	case SeatModeCool:
		return fmt.Sprintf("cool(%d)", m.Level)
	default:
		return fmt.Sprintf("auto(%t)", m.Enabled)
	}
}
