package websocket

import (
	"bufio"
	"io"
	"net"
	"sync"
	"unicode/utf8"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/constants"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
)

// Conn is a live WebSocket connection, implementing the router.WSConn
// capability surface (Send/OnMessage/OnClose/OnError/Close) so pkg/server
// can hand it to a route's WebSocketHandler without router depending on
// this package.
type Conn struct {
	conn       net.Conn
	r          *bufio.Reader
	maskWrites bool // true on the client side (spec §4.F "Client frames MUST be masked")
	maxMessage int64

	writeMu sync.Mutex
	queue   [][]byte // frames buffered before Start (spec §4.F "queued and flushed after the 101 is sent")
	started bool

	onMessage func(opcode int, data []byte)
	onClose   func(code int, reason string)
	onError   func(err error)

	closeOnce sync.Once
	closeSent bool
	closeMu   sync.Mutex
}

// NewConn wraps an already-upgraded connection. maskWrites selects the
// client-side masking requirement.
func NewConn(conn net.Conn, r *bufio.Reader, maskWrites bool) *Conn {
	return &Conn{
		conn:       conn,
		r:          r,
		maskWrites: maskWrites,
		maxMessage: constants.DefaultMaxWebSocketMessageSize,
	}
}

// SetMaxMessageSize overrides the reassembly cap (spec §4.F "Message
// reassembly", default 16 MiB).
func (c *Conn) SetMaxMessageSize(n int64) { c.maxMessage = n }

func (c *Conn) OnMessage(fn func(opcode int, data []byte)) { c.onMessage = fn }
func (c *Conn) OnClose(fn func(code int, reason string))   { c.onClose = fn }
func (c *Conn) OnError(fn func(err error))                 { c.onError = fn }

// Send queues or writes one complete (FIN=true) frame of the given opcode.
// Frames written before Start are queued and flushed in order once Start
// runs (spec §4.F "Any frames written before start() are queued").
func (c *Conn) Send(opcode int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.started {
		encoded, err := c.encode(opcode, data)
		if err != nil {
			return err
		}
		c.queue = append(c.queue, encoded)
		return nil
	}
	return c.writeFrame(Opcode(opcode), data)
}

func (c *Conn) encode(opcode int, data []byte) ([]byte, error) {
	var buf writeBuffer
	if err := WriteFrame(&buf, true, Opcode(opcode), data, c.maskWrites); err != nil {
		return nil, err
	}
	return buf.b, nil
}

func (c *Conn) writeFrame(opcode Opcode, data []byte) error {
	return WriteFrame(c.conn, true, opcode, data, c.maskWrites)
}

// Start flushes any queued frames and begins the read loop. Blocks until
// the connection closes; run it in its own goroutine.
func (c *Conn) Start() {
	c.writeMu.Lock()
	c.started = true
	queued := c.queue
	c.queue = nil
	for _, f := range queued {
		c.conn.Write(f)
	}
	c.writeMu.Unlock()

	c.readLoop()
}

func (c *Conn) readLoop() {
	var msgType Opcode
	var msgBuf []byte
	var msgSize int64
	var fragmenting bool
	var utf8State utf8ValidationState

	requireMasked := !c.maskWrites
	for {
		frame, err := ReadFrame(c.r, requireMasked)
		if err != nil {
			c.fail(err)
			return
		}

		switch {
		case frame.Opcode == OpPing:
			c.writeFrame(OpPong, frame.Payload)
			continue
		case frame.Opcode == OpPong:
			continue
		case frame.Opcode == OpClose:
			code, reason := DecodeCloseBody(frame.Payload)
			c.handleClose(code, reason)
			return
		}

		if !fragmenting {
			if frame.Opcode == OpContinuation {
				c.protocolError("continuation without a started message")
				return
			}
			msgType = frame.Opcode
			msgBuf = nil
			msgSize = 0
			utf8State = utf8ValidationState{}
			fragmenting = true
		} else if frame.Opcode != OpContinuation {
			c.protocolError("expected continuation frame")
			return
		}

		msgSize += int64(len(frame.Payload))
		if msgSize > c.maxMessage {
			c.closeWith(CloseTooBig, "message too large")
			return
		}

		if msgType == OpText {
			if !utf8State.feed(frame.Payload, frame.Fin) {
				c.closeWith(CloseInvalidPayload, "invalid UTF-8")
				return
			}
		}
		msgBuf = append(msgBuf, frame.Payload...)

		if frame.Fin {
			fragmenting = false
			if c.onMessage != nil {
				c.onMessage(int(msgType), msgBuf)
			}
		}
	}
}

func (c *Conn) protocolError(reason string) {
	c.closeWith(CloseProtocolError, reason)
}

func (c *Conn) closeWith(code int, reason string) {
	c.closeMu.Lock()
	alreadySent := c.closeSent
	c.closeSent = true
	c.closeMu.Unlock()
	if !alreadySent {
		c.writeFrame(OpClose, EncodeCloseBody(code, reason))
	}
	c.finish(code, reason)
}

func (c *Conn) handleClose(code int, reason string) {
	c.closeMu.Lock()
	alreadySent := c.closeSent
	c.closeSent = true
	c.closeMu.Unlock()
	if !alreadySent {
		c.writeFrame(OpClose, EncodeCloseBody(code, reason))
	}
	c.finish(code, reason)
}

func (c *Conn) fail(err error) {
	if err == io.EOF {
		c.finish(CloseNormal, "")
		return
	}
	if c.onError != nil {
		c.onError(errors.NewPeerClosedError("websocket read"))
	}
	c.finish(CloseProtocolError, "read error")
}

// finish runs on_close exactly once (spec §4.F "the application on_close
// runs exactly once") and tears down the socket.
func (c *Conn) finish(code int, reason string) {
	c.closeOnce.Do(func() {
		c.conn.Close()
		if c.onClose != nil {
			c.onClose(code, reason)
		}
	})
}

// Close sends a close frame (if not already sent) and tears down the
// connection (spec §4.F "Control frame policy").
func (c *Conn) Close(code int, reason string) error {
	c.closeWith(code, reason)
	return nil
}

type writeBuffer struct{ b []byte }

func (w *writeBuffer) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// utf8ValidationState validates UTF-8 incrementally across fragmented text
// frames (spec §4.F "validated incrementally across fragments"), tolerating
// a multi-byte rune split across a frame boundary.
type utf8ValidationState struct {
	pending []byte
}

func (s *utf8ValidationState) feed(chunk []byte, fin bool) bool {
	data := append(s.pending, chunk...)
	s.pending = nil

	for len(data) > 0 {
		if utf8.FullRune(data) {
			r, size := utf8.DecodeRune(data)
			if r == utf8.RuneError && size <= 1 {
				return false
			}
			data = data[size:]
			continue
		}
		// incomplete rune at the tail: only acceptable if more fragments follow.
		if fin {
			return false
		}
		s.pending = append(s.pending, data...)
		return true
	}
	return true
}
