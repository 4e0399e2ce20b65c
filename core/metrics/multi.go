package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCommandResult forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordCommandResult(res CommandResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordCommandResult(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordWake forwards wake results when supported by the sink.
func (m *MultiSink) RecordWake(ev WakeResult) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(WakeRecorder); ok {
			if err := rec.RecordWake(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTokenRefresh forwards token refreshes when supported by the sink.
func (m *MultiSink) RecordTokenRefresh(ev TokenRefreshEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TokenRefreshRecorder); ok {
			if err := rec.RecordTokenRefresh(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordConnection forwards connection events when supported by the sink.
func (m *MultiSink) RecordConnection(ev ConnectionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ConnectionRecorder); ok {
			if err := rec.RecordConnection(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
