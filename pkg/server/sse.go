package server

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
)

// SSEConn is the server-sent-events connection handle passed to a
// start_sse handler (spec §4.C rule 3, §6 "start_sse(handler)"). It rides
// on the same chunked StreamWriter as a regular streaming response, framed
// per WHATWG EventSource ("data: ...\n\n", optional "event:"/"id:"/
// "retry:" lines, spec §6 "Wire protocol").
type SSEConn struct {
	mu     sync.Mutex
	stream *StreamWriter
	closed bool
	done   chan struct{}
}

func newSSEConn(stream *StreamWriter) *SSEConn {
	return &SSEConn{stream: stream, done: make(chan struct{})}
}

// SendEvent writes one named event with an optional id and retry hint.
// event, id may be empty to omit their lines.
func (c *SSEConn) SendEvent(event, data, id string, retryMillis int) error {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	if id != "" {
		fmt.Fprintf(&b, "id: %s\n", id)
	}
	if retryMillis > 0 {
		fmt.Fprintf(&b, "retry: %s\n", strconv.Itoa(retryMillis))
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.NewPeerClosedError("sse send")
	}
	_, err := c.stream.Write([]byte(b.String()))
	return err
}

// SendData is the plain-data shorthand for SendEvent with no event name.
func (c *SSEConn) SendData(data string) error {
	return c.SendEvent("", data, "", 0)
}

// Close ends the SSE stream (spec §4.C rule 3: "remains until the caller
// closes the SSE connection or the peer disconnects").
func (c *SSEConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	return c.stream.End()
}

// Done returns a channel closed once the SSE connection has ended, so a
// handler's background goroutine can stop sending.
func (c *SSEConn) Done() <-chan struct{} {
	return c.done
}
