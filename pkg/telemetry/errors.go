package telemetry

import "errors"

// ErrMissingField is returned when a request omits a required field.
// Handlers map it to HTTP 400.
var ErrMissingField = errors.New("missing required field")
