package metrics

import "time"

// CommandResult describes the outcome of one command request.
type CommandResult struct {
	VehicleID string
	Command   string
	Success   bool
	// ErrorID is the identifier reported to the requester on failure.
	ErrorID  string
	Duration time.Duration
	Time     time.Time
}

// MetricsSink records command outcomes for observability purposes.
type MetricsSink interface {
	RecordCommandResult(res CommandResult) error
}

// WakeResult captures a completed wake-up sequence.
type WakeResult struct {
	VehicleID string
	Success   bool
	Polls     int
	Duration  time.Duration
	Time      time.Time
}

// WakeRecorder records wake-up sequences.
type WakeRecorder interface {
	RecordWake(ev WakeResult) error
}

// TokenRefreshEvent captures an access token refresh attempt.
type TokenRefreshEvent struct {
	Success  bool
	Rotated  bool
	Duration time.Duration
	Time     time.Time
}

// TokenRefreshRecorder records token refreshes.
type TokenRefreshRecorder interface {
	RecordTokenRefresh(ev TokenRefreshEvent) error
}

// ConnectionEvent records a broker connection state change.
type ConnectionEvent struct {
	Connected      bool
	SessionPresent bool
	Time           time.Time
}

// ConnectionRecorder records broker connection changes.
type ConnectionRecorder interface {
	RecordConnection(ev ConnectionEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordCommandResult(CommandResult) error { return nil }

func (NopSink) RecordWake(WakeResult) error                { return nil }
func (NopSink) RecordTokenRefresh(TokenRefreshEvent) error { return nil }
func (NopSink) RecordConnection(ConnectionEvent) error     { return nil }
