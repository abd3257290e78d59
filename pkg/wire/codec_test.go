package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeCommand(t *testing.T) {
	env, err := DecodeCommand([]byte(`{"messageId":"m1","command":"node.set_value","nodeId":5,"value":true}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.MessageID != "m1" {
		t.Errorf("messageId = %q, want m1", env.MessageID)
	}
	if env.Command != "node.set_value" {
		t.Errorf("command = %q, want node.set_value", env.Command)
	}

	group, action, ok := env.Group()
	if !ok || group != "node" || action != "set_value" {
		t.Errorf("Group() = %q %q %v", group, action, ok)
	}

	var nodeID int
	present, err := env.Field("nodeId", &nodeID)
	if !present || err != nil || nodeID != 5 {
		t.Errorf("Field(nodeId) = %v %v %d", present, err, nodeID)
	}
	present, _ = env.Field("missing", &nodeID)
	if present {
		t.Error("Field(missing) reported present")
	}
}

func TestDecodeCommandMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"messageId":`},
		{"not an object", `[1,2,3]`},
		{"missing messageId", `{"command":"driver.x"}`},
		{"missing command", `{"messageId":"m1"}`},
		{"numeric messageId", `{"messageId":7,"command":"driver.x"}`},
		{"numeric command", `{"messageId":"m1","command":12}`},
		{"empty command", `{"messageId":"m1","command":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(tt.data))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestGroupReservedCommands(t *testing.T) {
	for _, cmd := range []string{CommandStartListening, CommandSetAPISchema, "trailingdot.", ".leading"} {
		env := &CommandEnvelope{Command: cmd}
		if _, _, ok := env.Group(); ok {
			t.Errorf("Group(%q) unexpectedly ok", cmd)
		}
	}
}

func TestEncodeResultShapes(t *testing.T) {
	data, err := EncodeResult(SuccessResult("m1", map[string]any{"state": "ok"}))
	if err != nil {
		t.Fatalf("encode success: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj["type"] != "result" || obj["messageId"] != "m1" || obj["success"] != true {
		t.Errorf("unexpected success shape: %v", obj)
	}
	if _, has := obj["errorCode"]; has {
		t.Error("success result carries errorCode")
	}

	data, err = EncodeResult(ErrorResult("m2", ErrorCodeUnknownCommand, "bogus.command"))
	if err != nil {
		t.Fatalf("encode failure: %v", err)
	}
	obj = nil
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj["success"] != false || obj["errorCode"] != "unknownCommand" {
		t.Errorf("unexpected failure shape: %v", obj)
	}
	if obj["message"] != "bogus.command" {
		t.Errorf("message = %v", obj["message"])
	}
	if _, has := obj["zwaveErrorCode"]; has {
		t.Error("non-driver failure carries zwaveErrorCode")
	}
}

func TestEncodeResultDriverError(t *testing.T) {
	data, err := EncodeResult(DriverErrorResult("m3", 27, "node not found"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj["errorCode"] != "zwaveError" {
		t.Errorf("errorCode = %v", obj["errorCode"])
	}
	if obj["zwaveErrorCode"] != float64(27) || obj["zwaveErrorMessage"] != "node not found" {
		t.Errorf("driver fields not passed through: %v", obj)
	}
}

func TestEncodeResultUnmarshalablePayload(t *testing.T) {
	_, err := EncodeResult(SuccessResult("m1", make(chan int)))
	if err == nil {
		t.Fatal("expected error for unmarshalable payload")
	}
}

func TestEventEnvelopeFlattening(t *testing.T) {
	env := NewEventEnvelope(Event{
		Source: SourceNode,
		Name:   "value updated",
		Fields: map[string]any{"nodeId": float64(3), "newValue": float64(21)},
	})

	data, err := EncodeEvent(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var obj struct {
		Type  string         `json:"type"`
		Event map[string]any `json:"event"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj.Type != "event" {
		t.Errorf("type = %q", obj.Type)
	}
	if obj.Event["source"] != "node" || obj.Event["event"] != "value updated" {
		t.Errorf("event header wrong: %v", obj.Event)
	}
	if obj.Event["nodeId"] != float64(3) {
		t.Errorf("payload fields not flattened: %v", obj.Event)
	}

	// Round-trip through the client-side decoder.
	var back EventEnvelope
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("roundtrip: %v", err)
	}
	if back.Event.Source != SourceNode || back.Event.Name != "value updated" {
		t.Errorf("roundtrip event = %+v", back.Event)
	}
	if back.Event.Fields["newValue"] != float64(21) {
		t.Errorf("roundtrip fields = %v", back.Event.Fields)
	}
}

func TestEncodeVersion(t *testing.T) {
	data, err := EncodeVersion(&VersionEnvelope{
		DriverVersion:    "7.32.1",
		ServerVersion:    "1.0.0",
		HomeID:           0xDEADBEEF,
		MaxSchemaVersion: 4,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj["type"] != "version" {
		t.Errorf("type = %v", obj["type"])
	}
	if obj["homeId"] != float64(0xDEADBEEF) {
		t.Errorf("homeId = %v", obj["homeId"])
	}
	if obj["minSchemaVersion"] != float64(0) {
		t.Errorf("minSchemaVersion = %v", obj["minSchemaVersion"])
	}
}

func TestEventSourceIsValid(t *testing.T) {
	for _, s := range []EventSource{SourceDriver, SourceController, SourceNode} {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if EventSource("gateway").IsValid() {
		t.Error("unknown source reported valid")
	}
}

func TestProtocolError(t *testing.T) {
	err := NewProtocolError(ErrorCodeSchemaIncompatible, "schema %d out of range", 9)
	if err.Error() != "schemaIncompatible: schema 9 out of range" {
		t.Errorf("Error() = %q", err.Error())
	}
	bare := &ProtocolError{Code: ErrorCodeUnknownError}
	if bare.Error() != "unknownError" {
		t.Errorf("Error() = %q", bare.Error())
	}
}
