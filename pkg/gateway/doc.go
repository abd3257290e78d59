// Package gateway implements the session and dispatch core of the server.
//
// One Session owns each client connection: it decodes inbound command
// envelopes, routes them to a handler group, tracks liveness, and serializes
// outbound frames. The SessionTracker owns the set of live sessions for one
// driver: it runs the periodic liveness sweep, owns the single
// EventForwarder, and fans every upstream driver event out to all sessions
// that completed the start_listening handshake.
//
// # Guarantees
//
//   - Every decodable command envelope yields exactly one result envelope
//     with the same messageId. Undecodable frames close the connection
//     instead (there is nothing to correlate a reply to).
//   - Handler invocation is asynchronous: a slow command never stalls other
//     commands on the same or other sessions. Responses may therefore
//     complete out of order; clients correlate by messageId.
//   - Events reach a session only while it is listening and live, in the
//     order the forwarder observed them. Order across sessions is
//     unspecified.
//   - Liveness is fail-fast: a session that has not acknowledged the
//     previous probe by the time the next sweep runs is disconnected.
//
// The Gateway type composes the tracker with the websocket listener and the
// health/metrics endpoints.
package gateway
