package tesla

import (
	"fmt"
	"net/http"

	"github.com/kilianp07/teslamqtt/core/errs"
)

var (
	ErrInvalidSeatLevel           = errs.New(errs.KindValidation, "invalidSeatLevel", "seat level must be between 0 and 3")
	ErrInvalidChargeLimit         = errs.New(errs.KindValidation, "invalidChargeLimit", "charge limit must be between 1 and 100")
	ErrSeatDoesNotSupportAutoMode = errs.New(errs.KindValidation, "seatDoesNotSupportAutoMode", "seat does not support auto mode")

	ErrConnection      = errs.New(errs.KindTransport, "connectionError", "connection error")
	ErrEncoding        = errs.New(errs.KindTransport, "encodingError", "encoding error")
	ErrInvalidResponse = errs.New(errs.KindTransport, "invalidResponse", "invalid response")
)

// APIError is returned for every non-2xx response of the owner API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Identifier() string   { return "apiError" }
func (e *APIError) ErrorKind() errs.Kind { return errs.KindTransport }

// Unauthorized reports whether the server rejected the bearer token.
func (e *APIError) Unauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
