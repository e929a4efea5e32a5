package server

import (
	"bufio"
	"fmt"
	"strconv"
	"sync"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// StreamWriter is the server-side streaming response handle described in
// spec §4.E "Streaming response (server)": one write() call per chunk,
// end() emits the terminal zero chunk. Writes on one connection are
// serialized by mu, matching "ordering within one connection ... responses
// emitted in request order".
type StreamWriter struct {
	mu      sync.Mutex
	w       *bufio.Writer
	started bool
	ended   bool
}

func newStreamWriter(w *bufio.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// writeHead emits the status line and headers with Transfer-Encoding:
// chunked, once, before the first chunk.
func (s *StreamWriter) writeHead(status httpcodec.StatusCode, headers *httpcodec.Headers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true

	headers.Set("Transfer-Encoding", "chunked")
	headers.Del("Content-Length")
	if _, err := fmt.Fprintf(s.w, "HTTP/1.1 %s\r\n", status.StatusLine()); err != nil {
		return errors.NewIOError("writing stream status line", err)
	}
	headers.Each(func(name, value string) {
		fmt.Fprintf(s.w, "%s: %s\r\n", name, value)
	})
	if _, err := s.w.WriteString("\r\n"); err != nil {
		return errors.NewIOError("writing stream header terminator", err)
	}
	return s.w.Flush()
}

// Write emits one chunk (spec §4.E "each write(bytes) call emits one
// chunk").
func (s *StreamWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return 0, errors.NewProtocolError("write after stream end", nil)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(s.w, "%s\r\n", strconv.FormatInt(int64(len(p)), 16)); err != nil {
		return 0, errors.NewIOError("writing chunk size", err)
	}
	if _, err := s.w.Write(p); err != nil {
		return 0, errors.NewIOError("writing chunk data", err)
	}
	if _, err := s.w.WriteString("\r\n"); err != nil {
		return 0, errors.NewIOError("writing chunk terminator", err)
	}
	return len(p), s.w.Flush()
}

// End emits the terminal zero chunk (spec §4.E "end() emits the terminal
// zero chunk").
func (s *StreamWriter) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	if _, err := s.w.WriteString("0\r\n\r\n"); err != nil {
		return errors.NewIOError("writing terminal chunk", err)
	}
	return s.w.Flush()
}
