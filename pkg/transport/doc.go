// Package transport wraps a websocket connection into the message-oriented
// primitive the gateway core builds on.
//
// The transport layer handles:
//   - One JSON envelope per websocket text frame
//   - Serialized writes from concurrent senders
//   - Ping probes and pong delivery for liveness tracking
//   - Asynchronous delivery of inbound frames and the close notification
//
// A Conn is exclusively owned by one session. Sends on a closed connection
// return ErrConnClosed; callers that fire-and-forget may ignore it.
package transport
