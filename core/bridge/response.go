package bridge

import (
	"encoding/json"

	"github.com/kilianp07/teslamqtt/core/errs"
)

// ContentTypeJSON is set on every response.
const ContentTypeJSON = "application/json"

// Response is the payload published to a request's response topic.
type Response struct {
	Command         string `json:"command,omitempty"`
	Success         bool   `json:"success"`
	ErrorIdentifier string `json:"errorIdentifier,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
}

// NewResponse builds the response for a command outcome. Untyped errors
// carry their message only.
func NewResponse(commandID string, err error) Response {
	res := Response{Command: commandID, Success: err == nil}
	if err != nil {
		res.ErrorIdentifier, _ = errs.Identifier(err)
		res.ErrorMessage = err.Error()
	}
	return res
}

// Encode marshals the response.
func (r Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}
