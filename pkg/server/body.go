package server

import (
	"bufio"
	"bytes"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// deferredBodyReader implements router.BodyReader over the connection's
// bufio.Reader (spec §4.E "Deferred body read"). Each handler Read is one
// Read on that reader, so the socket is read ahead of the handler by at
// most the reader's buffer (defaultConnReadBuf); nothing beyond that is
// consumed until the handler reads.
type deferredBodyReader struct {
	r       *bufio.Reader
	framing httpcodec.BodyFraming
	headers *httpcodec.Headers

	remaining      int64 // FramingContentLength
	chunkRemaining int64 // FramingChunked: bytes left in the current chunk
	chunkStarted   bool
	done           bool
}

func newDeferredBodyReader(r *bufio.Reader, framing httpcodec.BodyFraming, contentLength int64, headers *httpcodec.Headers) *deferredBodyReader {
	return &deferredBodyReader{r: r, framing: framing, remaining: contentLength, headers: headers}
}

// Read pulls at most len(buf) bytes from the underlying connection,
// respecting whichever framing mode selected the body. Returning (0, nil)
// signals "no more body" per spec §4.E.
func (d *deferredBodyReader) Read(buf []byte) (int, error) {
	if d.done || len(buf) == 0 {
		return 0, nil
	}

	switch d.framing {
	case httpcodec.FramingNone:
		d.done = true
		return 0, nil

	case httpcodec.FramingContentLength:
		if d.remaining <= 0 {
			d.done = true
			return 0, nil
		}
		n := len(buf)
		if int64(n) > d.remaining {
			n = int(d.remaining)
		}
		read, err := d.r.Read(buf[:n])
		d.remaining -= int64(read)
		if err != nil && err != io.EOF {
			return read, errors.NewIOError("deferred body read", err)
		}
		if d.remaining <= 0 {
			d.done = true
		}
		return read, nil

	case httpcodec.FramingChunked:
		return d.readChunked(buf)

	case httpcodec.FramingUntilClose:
		n, err := d.r.Read(buf)
		if err == io.EOF {
			d.done = true
			return n, nil
		}
		if err != nil {
			return n, errors.NewIOError("deferred body read", err)
		}
		return n, nil

	default:
		d.done = true
		return 0, nil
	}
}

func (d *deferredBodyReader) readChunked(buf []byte) (int, error) {
	if d.chunkRemaining == 0 {
		tp := textproto.NewReader(d.r)
		if d.chunkStarted {
			// consume the CRLF that terminated the previous chunk's data.
			if _, err := tp.ReadLine(); err != nil {
				return 0, errors.NewIOError("reading chunk terminator", err)
			}
		}
		d.chunkStarted = true

		line, err := tp.ReadLine()
		if err != nil {
			return 0, errors.NewIOError("reading chunk size", err)
		}
		sizeStr := strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
		size, err := strconv.ParseInt(sizeStr, 16, 64)
		if err != nil || size < 0 {
			return 0, errors.NewProtocolError("invalid chunk size", err)
		}
		if size == 0 {
			for {
				trailer, terr := tp.ReadLine()
				if terr != nil {
					return 0, errors.NewIOError("reading trailer", terr)
				}
				if trailer == "" {
					break
				}
				if idx := strings.IndexByte(trailer, ':'); idx >= 0 {
					d.headers.Add(strings.TrimSpace(trailer[:idx]), strings.TrimSpace(trailer[idx+1:]))
				}
			}
			d.done = true
			return 0, nil
		}
		d.chunkRemaining = size
	}

	n := len(buf)
	if int64(n) > d.chunkRemaining {
		n = int(d.chunkRemaining)
	}
	read, err := d.r.Read(buf[:n])
	d.chunkRemaining -= int64(read)
	if err != nil {
		return read, errors.NewIOError("reading chunk body", err)
	}
	return read, nil
}

// readFullBody reads the entire body for a non-deferred route, bounded by
// maxBody; exceeding it yields a limit-exceeded error that the pipeline
// maps to 413 (spec §4.C rule 1, §5 "Upload body size ... capped by
// set_max_body_size").
func readFullBody(r *bufio.Reader, framing httpcodec.BodyFraming, contentLength int64, headers *httpcodec.Headers, maxBody int64) ([]byte, error) {
	var buf bytes.Buffer
	limited := &limitedWriter{w: &buf, limit: maxBody}

	var err error
	switch framing {
	case httpcodec.FramingNone:
		return nil, nil
	case httpcodec.FramingContentLength:
		if contentLength > maxBody {
			return nil, errors.NewLimitExceededError("body", "request body exceeds configured maximum")
		}
		err = httpcodec.ReadFixedBody(r, limited, contentLength)
	case httpcodec.FramingChunked:
		err = httpcodec.ReadChunkedBody(r, limited, headers)
	case httpcodec.FramingUntilClose:
		err = httpcodec.ReadUntilClose(r, limited)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.written+int64(len(p)) > l.limit {
		return 0, errors.NewLimitExceededError("body", "request body exceeds configured maximum")
	}
	n, err := l.w.Write(p)
	l.written += int64(n)
	return n, err
}
