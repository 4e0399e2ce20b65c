// Package metrics defines the events emitted by the command bridge and the
// recorder interfaces sinks implement. A sink only needs RecordCommandResult;
// the other recorders are optional and detected with type assertions.
package metrics
