// Package websocket implements the RFC 6455 frame codec, handshake, and
// connection state machine described in spec §4.F, grounded on
// pepnova-9-go-websocket-server/server.go (frame layout, buildFrame/
// parseFrames shape) and jason-cq-nats-server/server/websocket.go (close
// codes, Sec-WebSocket-Accept derivation, control-frame policy).
package websocket

import (
	"encoding/binary"
	"io"
	"math/rand"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
)

// Opcode identifies a WebSocket frame's payload interpretation (spec §4.F
// "Opcodes: 0=continuation, 1=text, 2=binary, 8=close, 9=ping, 10=pong").
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsControl reports whether opcode is a control frame (spec §4.F "Control
// frames (opcode>=8) are <=125 bytes and not fragmented").
func (o Opcode) IsControl() bool { return o >= OpClose }

// Close status codes recognized by the control frame policy (spec §4.F).
const (
	CloseNormal         = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseUnsupportedData = 1003
	CloseInvalidPayload  = 1007
	ClosePolicyViolation = 1008
	CloseTooBig          = 1009
	CloseInternalError   = 1011
)

// MaxControlPayload is the RFC 6455 control frame payload cap.
const MaxControlPayload = 125

// Frame is one decoded WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

// ReadFrame decodes exactly one frame from r, unmasking the payload if the
// mask bit is set. requireMasked enforces which side sent the frame per spec
// §4.F: true for a server reading client frames ("Client frames MUST be
// masked"), false for a client reading server frames ("server frames MUST
// NOT be masked"). A frame with the wrong mask bit is a protocol error.
func ReadFrame(r io.Reader, requireMasked bool) (*Frame, error) {
	head := make([]byte, 2)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	fin := head[0]&0x80 != 0
	opcode := Opcode(head[0] & 0x0F)
	masked := head[1]&0x80 != 0
	length := int64(head[1] & 0x7F)

	if masked != requireMasked {
		return nil, errors.NewProtocolError("frame mask bit violates peer role", nil)
	}

	switch length {
	case 126:
		ext := make([]byte, 2)
		if _, err := io.ReadFull(r, ext); err != nil {
			return nil, err
		}
		length = int64(binary.BigEndian.Uint16(ext))
	case 127:
		ext := make([]byte, 8)
		if _, err := io.ReadFull(r, ext); err != nil {
			return nil, err
		}
		length = int64(binary.BigEndian.Uint64(ext))
		if length < 0 {
			return nil, errors.NewProtocolError("frame length overflow", nil)
		}
	}

	if opcode.IsControl() && length > MaxControlPayload {
		return nil, errors.NewProtocolError("control frame payload too large", nil)
	}

	var maskKey [4]byte
	if masked {
		if _, err := io.ReadFull(r, maskKey[:]); err != nil {
			return nil, err
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}

	return &Frame{Fin: fin, Opcode: opcode, Payload: payload}, nil
}

// WriteFrame encodes and writes one frame. masked must be true for
// client->server frames and false for server->client frames (spec §4.F
// "server frames MUST NOT be masked").
func WriteFrame(w io.Writer, fin bool, opcode Opcode, payload []byte, masked bool) error {
	var first byte
	if fin {
		first = 0x80
	}
	first |= byte(opcode) & 0x0F

	length := len(payload)
	var head []byte
	switch {
	case length < 126:
		head = []byte{first, byte(length)}
	case length <= 0xFFFF:
		head = make([]byte, 4)
		head[0] = first
		head[1] = 126
		binary.BigEndian.PutUint16(head[2:], uint16(length))
	default:
		head = make([]byte, 10)
		head[0] = first
		head[1] = 127
		binary.BigEndian.PutUint64(head[2:], uint64(length))
	}

	if masked {
		head[1] |= 0x80
		var maskKey [4]byte
		rand.Read(maskKey[:])
		head = append(head, maskKey[:]...)
		maskedPayload := make([]byte, length)
		for i, b := range payload {
			maskedPayload[i] = b ^ maskKey[i%4]
		}
		payload = maskedPayload
	}

	if _, err := w.Write(head); err != nil {
		return errors.NewIOError("writing frame header", err)
	}
	if length == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return errors.NewIOError("writing frame payload", err)
	}
	return nil
}

// EncodeCloseBody builds the 2-byte-code + reason payload for a close frame.
func EncodeCloseBody(code int, reason string) []byte {
	body := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(body, uint16(code))
	copy(body[2:], reason)
	return body
}

// DecodeCloseBody parses a close frame payload into (code, reason),
// defaulting to CloseNormal when the payload is empty.
func DecodeCloseBody(payload []byte) (int, string) {
	if len(payload) < 2 {
		return CloseNormal, ""
	}
	return int(binary.BigEndian.Uint16(payload)), string(payload[2:])
}
