// Package infra contains the technical adapters of the bridge: the MQTT v5
// client, the owner API REST client, logging, metrics exporters and error
// monitoring. These packages implement interfaces defined in core.
package infra
