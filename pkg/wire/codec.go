package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed indicates an inbound frame that is not a well-formed command
// envelope. There is no messageId to correlate an error result to, so the
// session closes the connection instead of replying.
var ErrMalformed = errors.New("malformed command envelope")

// DecodeCommand parses an inbound frame into a CommandEnvelope.
//
// A frame is malformed if it is not a JSON object, or if "messageId" or
// "command" is missing or not a string. All remaining properties are kept
// raw in Fields for the handler groups to interpret.
func DecodeCommand(data []byte) (*CommandEnvelope, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	env := &CommandEnvelope{}

	raw, ok := obj["messageId"]
	if !ok {
		return nil, fmt.Errorf("%w: missing messageId", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &env.MessageID); err != nil {
		return nil, fmt.Errorf("%w: messageId is not a string", ErrMalformed)
	}

	raw, ok = obj["command"]
	if !ok {
		return nil, fmt.Errorf("%w: missing command", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &env.Command); err != nil {
		return nil, fmt.Errorf("%w: command is not a string", ErrMalformed)
	}
	if env.Command == "" {
		return nil, fmt.Errorf("%w: empty command", ErrMalformed)
	}

	delete(obj, "messageId")
	delete(obj, "command")
	if len(obj) > 0 {
		env.Fields = obj
	}
	return env, nil
}

// EncodeResult serializes a result envelope. Encoding only fails when a
// handler returned a payload that is not JSON-marshalable; envelopes built
// from taxonomy codes alone cannot fail.
func EncodeResult(res *ResultEnvelope) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding result %q: %w", res.MessageID, err)
	}
	return data, nil
}

// EncodeEvent serializes an event envelope.
func EncodeEvent(env *EventEnvelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding event %q: %w", env.Event.Name, err)
	}
	return data, nil
}

// EncodeVersion serializes the post-connect version envelope.
func EncodeVersion(env *VersionEnvelope) ([]byte, error) {
	env.Type = TypeVersion
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding version envelope: %w", err)
	}
	return data, nil
}
