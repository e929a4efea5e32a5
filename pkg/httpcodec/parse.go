package httpcodec

import (
	"bufio"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
)

// Limits bounds what ParseRequest/ParseResponse will accept before failing
// with a limit-exceeded error (spec §4.B, §7 "limit-exceeded").
type Limits struct {
	MaxHeaderBytes int // 0 uses a sane default (1MiB)
}

func (l Limits) maxHeaderBytes() int {
	if l.MaxHeaderBytes > 0 {
		return l.MaxHeaderBytes
	}
	return 1024 * 1024
}

func isCTL(b byte) bool {
	return b < 0x20 && b != '\t' || b == 0x7f
}

// readCRLFLine reads one line, stripping the trailing CRLF (tolerating a
// bare LF). Rejects embedded non-ASCII control bytes in the request/status
// line per spec §4.B ("rejects non-ASCII control in the request line").
func readCRLFLine(r *bufio.Reader, rejectCTL bool) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if rejectCTL {
		for i := 0; i < len(line); i++ {
			if isCTL(line[i]) {
				return "", errors.NewProtocolError("control character in start line", nil)
			}
		}
	}
	return line, nil
}

// parsedHeaders is the intermediate header-parse result, shared by request
// and response parsing.
type parsedHeaders struct {
	headers          *Headers
	contentLength    int64
	hasContentLength bool
	chunked          bool
}

// readHeaderBlock reads header lines up to the terminating blank line,
// tolerating deprecated line folding, and applies the rules in spec §4.B:
// duplicate Content-Length with differing values is rejected; Content-Length
// and Transfer-Encoding together is resolved in favor of
// Transfer-Encoding (the Content-Length is discarded), per RFC 7230 §3.3.3
// rule 3.
func readHeaderBlock(r *bufio.Reader, limits Limits) (*parsedHeaders, error) {
	h := NewHeaders()
	total := 0
	max := limits.maxHeaderBytes()

	var lastName string
	haveCL := false
	var clValue int64
	clConflict := false

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, errors.NewProtocolError("reading headers", err)
		}
		total += len(line)
		if total > max {
			return nil, errors.NewLimitExceededError("headers", "header block exceeds configured limit")
		}

		trimmed := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if trimmed == "" {
			break
		}

		// RFC 7230 §3.2.4 line folding: deprecated but tolerated.
		if (strings.HasPrefix(trimmed, " ") || strings.HasPrefix(trimmed, "\t")) && lastName != "" {
			vals := h.Values(lastName)
			if len(vals) > 0 {
				h.setLast(lastName, vals[len(vals)-1]+" "+strings.TrimSpace(trimmed))
			}
			continue
		}

		idx := strings.IndexByte(trimmed, ':')
		if idx < 0 {
			continue
		}
		name := textproto.TrimString(trimmed[:idx])
		value := strings.TrimSpace(trimmed[idx+1:])

		// Sharpen rejection beyond the naive trim above using the same
		// token/field-value validation net/http itself relies on (spec
		// §4.B "rejects ... invalid header tokens").
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, errors.NewProtocolError("invalid header field name: "+name, nil)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, errors.NewProtocolError("invalid header field value for "+name, nil)
		}

		canonName := canon(name)

		if canonName == "Content-Length" {
			n, perr := strconv.ParseInt(value, 10, 64)
			if perr != nil || n < 0 {
				return nil, errors.NewProtocolError("invalid Content-Length", perr)
			}
			if haveCL && clValue != n {
				clConflict = true
			}
			haveCL = true
			clValue = n
		}

		h.Add(name, value)
		lastName = canonName
	}

	if clConflict {
		return nil, errors.NewProtocolError("duplicate Content-Length with differing values", nil)
	}

	chunked := containsToken(h.Get("Transfer-Encoding"), "chunked")
	if chunked && haveCL {
		// RFC 7230 §3.3.3 rule 3: Transfer-Encoding wins, Content-Length is removed.
		h.Del("Content-Length")
		haveCL = false
		clValue = 0
	}

	return &parsedHeaders{headers: h, contentLength: clValue, hasContentLength: haveCL, chunked: chunked}, nil
}

// setLast mutates the most recently added value for name in place, used
// only for line-folding continuation.
func (h *Headers) setLast(name, value string) {
	n := canon(name)
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].name == n {
			h.entries[i].value = value
			return
		}
	}
}

// ParseRequestLine parses "METHOD SP target SP HTTP/1.1".
func ParseRequestLine(r *bufio.Reader) (method Method, target string, err error) {
	line, err := readCRLFLine(r, true)
	if err != nil {
		return MethodUnknown, "", err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return MethodUnknown, "", errors.NewProtocolError("malformed request line", nil)
	}
	return ParseMethod(parts[0]), parts[1], nil
}

// ParseRequestHead parses the request line and headers (but not the body)
// from r, resolving scheme/host/port/path/query from the request target
// and Host header. The caller is responsible for framing the body via
// BodyFraming + one of the Read*Body helpers.
func ParseRequestHead(r *bufio.Reader, limits Limits) (*Request, *parsedHeaders, error) {
	method, target, err := ParseRequestLine(r)
	if err != nil {
		return nil, nil, err
	}
	ph, err := readHeaderBlock(r, limits)
	if err != nil {
		return nil, nil, err
	}

	req := NewRequest(method, target)
	req.Headers = ph.headers

	path := target
	var rawQuery string
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		path = target[:idx]
		rawQuery = target[idx+1:]
	}
	if path == "" {
		path = "/"
	}
	req.Path = path
	req.Query = ParseFormEncoded(rawQuery)

	host := ph.headers.Get("Host")
	req.Host, req.Port = splitHostPort(host)

	return req, ph, nil
}

func splitHostPort(hostHeader string) (host string, port int) {
	if hostHeader == "" {
		return "", 0
	}
	if idx := strings.LastIndexByte(hostHeader, ':'); idx >= 0 && !strings.Contains(hostHeader[idx:], "]") {
		if p, err := strconv.Atoi(hostHeader[idx+1:]); err == nil {
			return hostHeader[:idx], p
		}
	}
	return hostHeader, 0
}

// ContentLength returns the parsed Content-Length header value, or 0 if
// absent (e.g. chunked or unframed).
func (ph *parsedHeaders) ContentLength() int64 { return ph.contentLength }

// BodyFraming selects the body-read strategy per spec §4.B body framing.
type BodyFraming int

const (
	FramingNone BodyFraming = iota
	FramingContentLength
	FramingChunked
	FramingUntilClose
)

// SelectFraming decides how to read the body following headers that were
// parsed into ph, given whether the message is a request (requests never
// use "until close" framing: spec §3 "no framing -- request has no body").
func SelectFraming(ph *parsedHeaders, isRequest bool) BodyFraming {
	switch {
	case ph.chunked:
		return FramingChunked
	case ph.hasContentLength:
		return FramingContentLength
	case isRequest:
		return FramingNone
	default:
		return FramingUntilClose
	}
}

// ReadFixedBody reads exactly length bytes from r into dst.
func ReadFixedBody(r io.Reader, dst io.Writer, length int64) error {
	if length <= 0 {
		return nil
	}
	_, err := io.CopyN(dst, r, length)
	if err != nil {
		return errors.NewIOError("reading fixed body", err)
	}
	return nil
}

// ReadChunkedBody reads "hex CRLF data CRLF" chunks until a zero-size
// chunk, then reads trailers into headers (spec §4.B body framing (ii)).
func ReadChunkedBody(r *bufio.Reader, dst io.Writer, headers *Headers) error {
	tp := textproto.NewReader(r)
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return errors.NewProtocolError("reading chunk size", err)
		}
		sizeStr := strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
		size, err := strconv.ParseInt(sizeStr, 16, 64)
		if err != nil || size < 0 {
			return errors.NewProtocolError("invalid chunk size", err)
		}
		if size == 0 {
			break
		}
		if _, err := io.CopyN(dst, tp.R, size); err != nil {
			return errors.NewIOError("reading chunk body", err)
		}
		crlf := make([]byte, 2)
		if _, err := io.ReadFull(tp.R, crlf); err != nil {
			return errors.NewIOError("reading chunk CRLF", err)
		}
	}
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return errors.NewProtocolError("reading trailer", err)
		}
		if line == "" {
			break
		}
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			headers.Add(strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]))
		}
	}
	return nil
}

// ReadUntilClose reads r to EOF, used for framing-less responses (spec
// §4.B body framing (iii)).
func ReadUntilClose(r io.Reader, dst io.Writer) error {
	_, err := io.Copy(dst, r)
	if err != nil && err != io.EOF {
		return errors.NewIOError("reading until close", err)
	}
	return nil
}

// ParseResponseHead parses the status line and headers of a response.
func ParseResponseHead(r *bufio.Reader, limits Limits) (*Response, *parsedHeaders, error) {
	line, err := readCRLFLine(r, false)
	if err != nil {
		return nil, nil, errors.NewProtocolError("reading status line", err)
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, nil, errors.NewProtocolError("malformed status line", nil)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, nil, errors.NewProtocolError("invalid status code", err)
	}

	ph, err := readHeaderBlock(r, limits)
	if err != nil {
		return nil, nil, err
	}

	resp := NewResponse(StatusCode(code))
	resp.Headers = ph.headers
	return resp, ph, nil
}
