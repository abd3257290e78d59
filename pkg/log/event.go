package log

import "time"

// Event is one protocol trace record. CBOR encoding uses integer keys for
// compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the session's connection (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Kind classifies the record.
	Kind Kind `cbor:"4,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// MessageID correlates command and result records.
	MessageID string `cbor:"6,keyasint,omitempty"`

	// Command is the full command string of a command record, or of the
	// result record answering it.
	Command string `cbor:"7,keyasint,omitempty"`

	// ErrorCode is set on failure-result and error records.
	ErrorCode string `cbor:"8,keyasint,omitempty"`

	// EventName and EventSource describe forwarded driver events.
	EventName   string `cbor:"9,keyasint,omitempty"`
	EventSource string `cbor:"10,keyasint,omitempty"`

	// State is the new session state of a state-change record.
	State string `cbor:"11,keyasint,omitempty"`

	// Detail carries free-form context (close reasons, decode errors).
	Detail string `cbor:"12,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an inbound frame.
	DirectionIn Direction = 0
	// DirectionOut indicates an outbound frame.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Kind classifies a trace record.
type Kind uint8

const (
	// KindCommand is an inbound command envelope.
	KindCommand Kind = 0
	// KindResult is an outbound result envelope.
	KindResult Kind = 1
	// KindEvent is an outbound event envelope.
	KindEvent Kind = 2
	// KindVersion is the outbound post-connect version envelope.
	KindVersion Kind = 3
	// KindControl is a liveness probe or acknowledgment.
	KindControl Kind = 4
	// KindState is a session state change.
	KindState Kind = 5
	// KindError is a protocol error (decode failure, send failure).
	KindError Kind = 6
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "COMMAND"
	case KindResult:
		return "RESULT"
	case KindEvent:
		return "EVENT"
	case KindVersion:
		return "VERSION"
	case KindControl:
		return "CONTROL"
	case KindState:
		return "STATE"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
