package events

import "time"

// BridgeEventKind distinguishes bridge events.
type BridgeEventKind int

const (
	// StateChanged is emitted on every lifecycle transition.
	StateChanged BridgeEventKind = iota
	// Connected is emitted after each broker connection.
	Connected
	// Disconnected is emitted once the bridge closed its connection.
	Disconnected
)

func (k BridgeEventKind) String() string {
	switch k {
	case StateChanged:
		return "state_changed"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// BridgeEvent is published by the command bridge.
type BridgeEvent struct {
	Kind BridgeEventKind
	// From and To are set for StateChanged.
	From string
	To   string
	// SessionPresent is set for Connected.
	SessionPresent bool
	Time           time.Time
}
