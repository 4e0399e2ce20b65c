package command

import (
	"errors"

	"github.com/kilianp07/teslamqtt/core/errs"
)

var (
	ErrUnknownCommand     = errs.New(errs.KindParsing, "unknownCommand", "unknown command")
	ErrInvalidVehicleID   = errs.New(errs.KindParsing, "invalidVehicleId", "invalid vehicle id")
	ErrInvalidPayload     = errs.New(errs.KindParsing, "invalidPayload", "invalid payload")
	ErrInvalidCommandJSON = errs.New(errs.KindParsing, "invalidCommandJSON", "invalid command json")
)

var errMissingField = errors.New("missing required field")
