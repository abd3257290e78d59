// Package log provides wire-level protocol tracing for the gateway.
//
// This is not application logging (the gateway uses zerolog for that); it is
// a structured trace of every envelope and liveness probe on every session,
// written compactly enough to stay enabled in production.
//
// Events are encoded as CBOR records with integer keys and appended to a
// trace file. Reader streams them back, optionally filtered by session,
// direction, or kind.
package log
