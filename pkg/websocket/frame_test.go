package websocket

import (
	"bytes"
	"testing"
)

func TestWriteFrameReadFrameRoundTripUnmasked(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello websocket")
	if err := WriteFrame(&buf, true, OpText, payload, false); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(&buf, false)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !frame.Fin || frame.Opcode != OpText || !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("got %+v", frame)
	}
}

func TestWriteFrameReadFrameRoundTripMasked(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("client says hi")
	if err := WriteFrame(&buf, true, OpBinary, payload, true); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(&buf, true)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Opcode != OpBinary || !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("got %+v", frame)
	}
}

func TestWriteFrameExtendedLength16(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte("x"), 200)
	if err := WriteFrame(&buf, true, OpBinary, payload, false); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf, false)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(frame.Payload) != 200 {
		t.Fatalf("len: got %d, want 200", len(frame.Payload))
	}
}

func TestWriteFrameExtendedLength64(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte("y"), 70000)
	if err := WriteFrame(&buf, true, OpBinary, payload, false); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf, false)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(frame.Payload) != 70000 {
		t.Fatalf("len: got %d, want 70000", len(frame.Payload))
	}
}

func TestReadFrameRejectsOversizedControlFrame(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte("z"), 200)
	if err := WriteFrame(&buf, true, OpBinary, payload, false); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	// Patch the opcode byte to a control opcode (OpClose) after the fact,
	// since WriteFrame itself doesn't enforce the control-frame size limit.
	raw := buf.Bytes()
	raw[0] = 0x80 | byte(OpClose)

	_, err := ReadFrame(bytes.NewReader(raw), false)
	if err == nil {
		t.Fatalf("expected an error for an oversized control frame")
	}
}

func TestReadFrameRejectsUnmaskedWhenMaskRequired(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, true, OpText, []byte("hi"), false); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	// A server reading from a client requires every frame to be masked.
	if _, err := ReadFrame(&buf, true); err == nil {
		t.Fatalf("expected a protocol error for an unmasked frame when masking is required")
	}
}

func TestReadFrameRejectsMaskedWhenMaskForbidden(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, true, OpText, []byte("hi"), true); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	// A client reading from a server must reject a masked frame.
	if _, err := ReadFrame(&buf, false); err == nil {
		t.Fatalf("expected a protocol error for a masked frame when masking is forbidden")
	}
}

func TestEncodeDecodeCloseBody(t *testing.T) {
	body := EncodeCloseBody(CloseProtocolError, "bad frame")
	code, reason := DecodeCloseBody(body)
	if code != CloseProtocolError || reason != "bad frame" {
		t.Fatalf("got (%d, %q)", code, reason)
	}
}

func TestDecodeCloseBodyEmptyDefaultsToNormal(t *testing.T) {
	code, reason := DecodeCloseBody(nil)
	if code != CloseNormal || reason != "" {
		t.Fatalf("got (%d, %q)", code, reason)
	}
}

func TestOpcodeIsControl(t *testing.T) {
	if OpText.IsControl() || OpBinary.IsControl() || OpContinuation.IsControl() {
		t.Fatalf("data opcodes must not report as control")
	}
	if !OpClose.IsControl() || !OpPing.IsControl() || !OpPong.IsControl() {
		t.Fatalf("close/ping/pong must report as control")
	}
}
