package wire

import (
	"encoding/json"
	"strings"
)

// Outbound envelope type discriminators.
const (
	TypeVersion = "version"
	TypeResult  = "result"
	TypeEvent   = "event"
)

// Reserved session-level commands. All other commands are dot-qualified
// "<group>.<action>" names routed to a handler group.
const (
	CommandStartListening = "start_listening"
	CommandSetAPISchema   = "set_api_schema"
)

// EventSource identifies which part of the driver subsystem an event
// originated from.
type EventSource string

const (
	SourceDriver     EventSource = "driver"
	SourceController EventSource = "controller"
	SourceNode       EventSource = "node"
)

// IsValid returns true for one of the known event sources.
func (s EventSource) IsValid() bool {
	switch s {
	case SourceDriver, SourceController, SourceNode:
		return true
	}
	return false
}

// CommandEnvelope is the single inbound message shape.
//
// JSON encoding:
//
//	{
//	  "messageId": "...",   // caller-chosen, opaque, echoed verbatim
//	  "command":   "...",   // reserved name or "<group>.<action>"
//	  ...                   // command-specific fields
//	}
type CommandEnvelope struct {
	MessageID string
	Command   string

	// Fields holds every command-specific property of the envelope,
	// undecoded. Handler groups interpret these per action.
	Fields map[string]json.RawMessage
}

// Group returns the handler-group prefix of a dot-qualified command and the
// remaining action name. ok is false for reserved (unqualified) commands.
func (c *CommandEnvelope) Group() (group, action string, ok bool) {
	group, action, ok = strings.Cut(c.Command, ".")
	if !ok || group == "" || action == "" {
		return "", "", false
	}
	return group, action, true
}

// Field decodes one command-specific field into out. Returns false if the
// field is absent.
func (c *CommandEnvelope) Field(name string, out any) (bool, error) {
	raw, present := c.Fields[name]
	if !present {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, err
	}
	return true, nil
}

// ResultEnvelope is the response to exactly one CommandEnvelope, success or
// failure, correlated by MessageID.
type ResultEnvelope struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	Success   bool   `json:"success"`

	// Success payload (group-specific shape).
	Result any `json:"result,omitempty"`

	// Failure fields.
	ErrorCode ErrorCode `json:"errorCode,omitempty"`
	Message   string    `json:"message,omitempty"`

	// Set only when the failure originated inside the Z-Wave driver.
	ZWaveErrorCode    *int   `json:"zwaveErrorCode,omitempty"`
	ZWaveErrorMessage string `json:"zwaveErrorMessage,omitempty"`
}

// SuccessResult builds a success envelope for the given request.
func SuccessResult(messageID string, payload any) *ResultEnvelope {
	return &ResultEnvelope{
		Type:      TypeResult,
		MessageID: messageID,
		Success:   true,
		Result:    payload,
	}
}

// ErrorResult builds a failure envelope with a taxonomy code. The optional
// message carries diagnostics, e.g. the rejected command name for
// unknownCommand failures.
func ErrorResult(messageID string, code ErrorCode, message string) *ResultEnvelope {
	return &ResultEnvelope{
		Type:      TypeResult,
		MessageID: messageID,
		ErrorCode: code,
		Message:   message,
	}
}

// DriverErrorResult builds a failure envelope that passes the driver's own
// error code and message through to the client.
func DriverErrorResult(messageID string, zwaveCode int, zwaveMessage string) *ResultEnvelope {
	code := zwaveCode
	return &ResultEnvelope{
		Type:              TypeResult,
		MessageID:         messageID,
		ErrorCode:         ErrorCodeZWaveError,
		ZWaveErrorCode:    &code,
		ZWaveErrorMessage: zwaveMessage,
	}
}

// Event is one upstream driver event as placed on the wire. Payload fields
// are flattened next to "source" and "event".
type Event struct {
	Source EventSource
	Name   string
	Fields map[string]any
}

// MarshalJSON flattens the payload fields into the event object.
func (e Event) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		obj[k] = v
	}
	obj["source"] = e.Source
	obj["event"] = e.Name
	return json.Marshal(obj)
}

// UnmarshalJSON is the inverse of MarshalJSON; used by client-side tooling
// and the protocol log reader.
func (e *Event) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if s, ok := obj["source"].(string); ok {
		e.Source = EventSource(s)
	}
	if n, ok := obj["event"].(string); ok {
		e.Name = n
	}
	delete(obj, "source")
	delete(obj, "event")
	if len(obj) > 0 {
		e.Fields = obj
	}
	return nil
}

// EventEnvelope wraps one Event for delivery to a listening session.
type EventEnvelope struct {
	Type  string `json:"type"`
	Event Event  `json:"event"`
}

// NewEventEnvelope builds an event envelope.
func NewEventEnvelope(ev Event) *EventEnvelope {
	return &EventEnvelope{Type: TypeEvent, Event: ev}
}

// VersionEnvelope is sent once, immediately after a client connects, before
// any command is processed. It is not correlated to a request.
type VersionEnvelope struct {
	Type             string `json:"type"`
	DriverVersion    string `json:"driverVersion"`
	ServerVersion    string `json:"serverVersion"`
	HomeID           uint32 `json:"homeId"`
	MinSchemaVersion int    `json:"minSchemaVersion"`
	MaxSchemaVersion int    `json:"maxSchemaVersion"`
}
