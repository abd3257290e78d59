// Package wire defines the JSON wire format for the gateway protocol.
//
// Every frame exchanged over the websocket carries exactly one JSON object
// (an "envelope"). There is one inbound shape and four outbound shapes:
//
//   - Command: client to server. {messageId, command, ...command fields}
//   - Result: server to client, correlated by messageId. Success carries a
//     command-specific payload; failure carries an error code.
//   - Event: server to client, uncorrelated. Wraps one upstream driver event.
//   - Version: server to client, sent once immediately after connect.
//
// # Commands
//
// The command string is either one of the reserved session-level commands
// ("start_listening", "set_api_schema") or a dot-qualified
// "<group>.<action>" name, where <group> selects a handler group
// (driver, controller, node).
//
// # Error codes
//
// Failure results carry a stable string code from a closed set. Failures
// raised by the Z-Wave driver itself additionally carry the driver's own
// numeric code and message, passed through untranslated.
package wire
