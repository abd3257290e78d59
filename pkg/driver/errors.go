package driver

import "fmt"

// Driver error codes, matching the numeric codes the Z-Wave driver reports.
// Only the codes the simulator and tests need are named here; handlers may
// construct a ZWaveError with any code the driver produced.
const (
	CodeTimeout           = 6
	CodeNodeNotFound      = 27
	CodeUnsupportedOp     = 50
	CodeInclusionBusy     = 201
	CodeNotSupported      = 202
	CodeValueNotFound     = 305
)

// ZWaveError is a failure raised inside the driver subsystem. It carries the
// driver's own numeric code and human-readable message, which the gateway
// passes through to the client untranslated.
type ZWaveError struct {
	Code    int
	Message string
}

// NewZWaveError creates a driver-originated failure.
func NewZWaveError(code int, format string, args ...any) *ZWaveError {
	return &ZWaveError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ZWaveError) Error() string {
	return fmt.Sprintf("zwave error %d: %s", e.Code, e.Message)
}
