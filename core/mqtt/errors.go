package mqtt

import "errors"

// ErrNotConnected is returned when an operation needs a started client.
var ErrNotConnected = errors.New("mqtt client not connected")
