// Package driver defines the boundary to the Z-Wave driver subsystem.
//
// The gateway core never talks to Z-Wave hardware. It consumes the driver
// through the narrow interfaces in this package:
//
//   - Driver: identity fields for the version envelope, the network state
//     snapshot used by the start_listening handshake, and the event
//     subscription the gateway's forwarder attaches to.
//   - Handler: command execution for one handler group (driver, controller
//     or node scoped operations).
//
// Failures a handler raises come back either as a *wire.ProtocolError (a
// classified wire-level failure), a *ZWaveError (a failure from the driver
// itself, passed through to the client with its own code and message), or
// any other error, which the session coerces to unknownError.
package driver
