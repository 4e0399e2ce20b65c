// Package events defines the bridge events emitted on the event bus.
//
// Available event types:
//   - BridgeEvent: lifecycle state changes and broker connections
package events
