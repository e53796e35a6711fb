package protocol

import (
	"testing"
)

func TestDecodeJoinRoom(t *testing.T) {
	raw := []byte(`{"event":"join_room","data":{"roomId":"abc","username":"alice"}}`)

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Event != EventJoinRoom {
		t.Errorf("Expected event %q, got %q", EventJoinRoom, msg.Event)
	}

	var payload JoinRoomPayload
	if err := DecodePayload(msg, &payload); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.RoomID != "abc" || payload.Username != "alice" {
		t.Errorf("Unexpected payload: %+v", payload)
	}
}

func TestDecodeCodeChangeWithoutChanges(t *testing.T) {
	// The changes field is advisory; its absence must not fail decoding
	raw := []byte(`{"event":"code_change","data":{"roomId":"abc","code":{"python":"x=1"},"username":"bob"}}`)

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	var payload CodeChangePayload
	if err := DecodePayload(msg, &payload); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.Code["python"] != "x=1" {
		t.Errorf("Unexpected code map: %v", payload.Code)
	}
	if len(payload.Changes) != 0 {
		t.Errorf("Expected no changes, got %v", payload.Changes)
	}
}

func TestDecodeCodeChangeWithChanges(t *testing.T) {
	raw := []byte(`{"event":"code_change","data":{"code":{"cpp":"int x;"},"username":"bob","changes":[{"startLine":3,"endLine":5}]}}`)

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	var payload CodeChangePayload
	if err := DecodePayload(msg, &payload); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if len(payload.Changes) != 1 || payload.Changes[0].StartLine != 3 || payload.Changes[0].EndLine != 5 {
		t.Errorf("Unexpected changes: %v", payload.Changes)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("not json"),
		[]byte(`{"data":{}}`),
	}
	for _, raw := range cases {
		if _, err := Decode(raw); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	frame, err := Encode(EventLoadCode, LoadCodePayload{
		Code: map[string]string{"java": "class A {}"},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Event != EventLoadCode {
		t.Errorf("Expected event %q, got %q", EventLoadCode, msg.Event)
	}

	var payload LoadCodePayload
	if err := DecodePayload(msg, &payload); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.Code["java"] != "class A {}" {
		t.Errorf("Unexpected payload: %+v", payload)
	}
}
