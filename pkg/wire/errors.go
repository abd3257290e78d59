package wire

import "fmt"

// ErrorCode is the stable string code carried by failure results.
//
// The core defines the codes below. Handler groups may define additional
// codes for their own failure modes; the core treats those as opaque strings
// and puts them on the wire unchanged.
type ErrorCode string

const (
	// ErrorCodeUnknownCommand indicates the command's group has no
	// registered handler, or the group rejected the action name.
	ErrorCodeUnknownCommand ErrorCode = "unknownCommand"

	// ErrorCodeUnknownError is the catch-all for failures that were not
	// classified by the time they reached the session boundary.
	ErrorCodeUnknownError ErrorCode = "unknownError"

	// ErrorCodeZWaveError indicates a failure raised by the Z-Wave driver
	// itself. The result additionally carries the driver's numeric code
	// and message.
	ErrorCodeZWaveError ErrorCode = "zwaveError"

	// ErrorCodeSchemaIncompatible indicates a set_api_schema request for a
	// schema version outside the supported range.
	ErrorCodeSchemaIncompatible ErrorCode = "schemaIncompatible"
)

// ProtocolError is a classified failure carrying a wire-level error code.
// Handler groups return it (with core or group-specific codes) to control
// the errorCode of the failure result.
type ProtocolError struct {
	Code    ErrorCode
	Message string
}

// NewProtocolError creates a classified failure.
func NewProtocolError(code ErrorCode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
