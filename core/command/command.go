// Package command defines the vehicle commands accepted over MQTT and the
// registry resolving a request payload into a runnable command.
package command

import (
	"context"
	"encoding/json"

	"github.com/kilianp07/teslamqtt/core/model"
	"github.com/kilianp07/teslamqtt/core/tesla"
)

// Waker brings a vehicle online before a command that needs it.
type Waker interface {
	WakeUp(ctx context.Context, id model.VehicleID) error
}

// Runtime carries the collaborators a command runs against.
type Runtime struct {
	API   tesla.API
	Waker Waker
}

// Command is a parsed request ready to run against one vehicle.
type Command interface {
	ID() string
	Run(ctx context.Context, id model.VehicleID, rt Runtime) error
}

// Definition binds a command id to its payload parser.
type Definition struct {
	ID    string
	Parse func(raw []byte) (Command, error)
}

// Request is the envelope every command payload shares.
type Request struct {
	Command string `json:"command"`
}

// DecodeRequest extracts the command id of a payload.
func DecodeRequest(raw []byte) (Request, error) {
	var req struct {
		Command *string `json:"command"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, ErrInvalidPayload.Wrap(err)
	}
	if req.Command == nil {
		return Request{}, ErrInvalidPayload
	}
	return Request{Command: *req.Command}, nil
}
