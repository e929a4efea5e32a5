package httpcodec

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestParseRequestHeadResolvesTargetAndHost(t *testing.T) {
	raw := "GET /search?q=go+rawhttp HTTP/1.1\r\n" +
		"Host: example.com:8443\r\n" +
		"Accept: */*\r\n" +
		"\r\n"

	req, ph, err := ParseRequestHead(bufio.NewReader(strings.NewReader(raw)), Limits{})
	if err != nil {
		t.Fatalf("ParseRequestHead: %v", err)
	}

	if req.Method != MethodGet {
		t.Fatalf("Method: got %v, want GET", req.Method)
	}
	if req.GetPath() != "/search" {
		t.Fatalf("GetPath: got %q", req.GetPath())
	}
	if req.Host != "example.com" || req.Port != 8443 {
		t.Fatalf("Host/Port: got %q:%d", req.Host, req.Port)
	}
	if got := req.QueryValue("q"); got != "go rawhttp" {
		t.Fatalf("QueryValue(q): got %q", got)
	}
	if ph.ContentLength() != 0 {
		t.Fatalf("ContentLength: got %d, want 0", ph.ContentLength())
	}
	if SelectFraming(ph, true) != FramingNone {
		t.Fatalf("SelectFraming: want FramingNone for a bodyless GET")
	}
}

func TestParseRequestHeadDefaultPathAndContentLength(t *testing.T) {
	raw := "POST / HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Content-Length: 11\r\n" +
		"\r\n" +
		"hello world"

	r := bufio.NewReader(strings.NewReader(raw))
	req, ph, err := ParseRequestHead(r, Limits{})
	if err != nil {
		t.Fatalf("ParseRequestHead: %v", err)
	}
	if req.Path != "/" {
		t.Fatalf("Path: got %q, want /", req.Path)
	}
	if req.Port != 0 {
		t.Fatalf("Port: got %d, want 0 (no explicit port)", req.Port)
	}
	if ph.ContentLength() != 11 {
		t.Fatalf("ContentLength: got %d, want 11", ph.ContentLength())
	}
	if SelectFraming(ph, true) != FramingContentLength {
		t.Fatalf("SelectFraming: want FramingContentLength")
	}

	var body bytes.Buffer
	if err := ReadFixedBody(r, &body, ph.ContentLength()); err != nil {
		t.Fatalf("ReadFixedBody: %v", err)
	}
	if body.String() != "hello world" {
		t.Fatalf("body: got %q", body.String())
	}
}

func TestSelectFramingChunkedWinsOverContentLength(t *testing.T) {
	raw := "POST / HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Content-Length: 999\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n"

	_, ph, err := ParseRequestHead(bufio.NewReader(strings.NewReader(raw)), Limits{})
	if err != nil {
		t.Fatalf("ParseRequestHead: %v", err)
	}
	if ph.ContentLength() != 0 {
		t.Fatalf("ContentLength: chunked framing should have discarded it, got %d", ph.ContentLength())
	}
	if SelectFraming(ph, true) != FramingChunked {
		t.Fatalf("SelectFraming: want FramingChunked")
	}
}

func TestSelectFramingUntilCloseForResponseOnly(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nConnection: close\r\n\r\n"
	_, ph, err := ParseResponseHead(bufio.NewReader(strings.NewReader(raw)), Limits{})
	if err != nil {
		t.Fatalf("ParseResponseHead: %v", err)
	}
	if SelectFraming(ph, false) != FramingUntilClose {
		t.Fatalf("SelectFraming(response): want FramingUntilClose")
	}
	if SelectFraming(ph, true) != FramingNone {
		t.Fatalf("SelectFraming(request): want FramingNone, a request never uses until-close")
	}
}

func TestReadChunkedBodyAndTrailers(t *testing.T) {
	raw := "5\r\nhello\r\n6\r\n world\r\n0\r\nX-Trailer: done\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))

	var body bytes.Buffer
	headers := NewHeaders()
	if err := ReadChunkedBody(r, &body, headers); err != nil {
		t.Fatalf("ReadChunkedBody: %v", err)
	}
	if body.String() != "hello world" {
		t.Fatalf("body: got %q", body.String())
	}
	if got := headers.Get("X-Trailer"); got != "done" {
		t.Fatalf("trailer: got %q, want done", got)
	}
}

func TestWriteRequestThenParseRoundTrips(t *testing.T) {
	req := NewRequest(MethodPost, "/items")
	req.Headers.Set("Host", "api.example.com")
	req.SetContentWithType([]byte(`{"ok":true}`), "application/json")

	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	parsed, ph, err := ParseRequestHead(bufio.NewReader(&buf), Limits{})
	if err != nil {
		t.Fatalf("ParseRequestHead: %v", err)
	}
	if parsed.GetPath() != "/items" {
		t.Fatalf("GetPath: got %q", parsed.GetPath())
	}
	if parsed.Host != "api.example.com" {
		t.Fatalf("Host: got %q", parsed.Host)
	}
	if got := parsed.Headers.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type: got %q", got)
	}
	if ph.ContentLength() != int64(len(`{"ok":true}`)) {
		t.Fatalf("ContentLength: got %d", ph.ContentLength())
	}

	var body bytes.Buffer
	if err := ReadFixedBody(bufio.NewReader(&buf), &body, ph.ContentLength()); err != nil {
		t.Fatalf("ReadFixedBody: %v", err)
	}
	if body.String() != `{"ok":true}` {
		t.Fatalf("body: got %q", body.String())
	}
}

func TestWriteResponseNoContentHasNoContentLength(t *testing.T) {
	resp := NewResponse(StatusNoContent)
	resp.SetContent([]byte("ignored"))

	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "HTTP/1.1 204 No Content\r\n") {
		t.Fatalf("status line: got %q", out)
	}
	if strings.Contains(out, "Content-Length") {
		t.Fatalf("204 must not carry Content-Length: %q", out)
	}
}

func TestWriteResponseStreamingForcesChunked(t *testing.T) {
	resp := NewResponse(StatusOK)
	resp.Headers.Set("Content-Length", "100")
	resp.Streaming = true
	resp.Body = BufferBody([]byte("partial"))

	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "Content-Length") {
		t.Fatalf("streaming response must drop Content-Length: %q", out)
	}
	if !strings.Contains(out, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("streaming response must set chunked framing: %q", out)
	}
	if !strings.HasSuffix(out, "7\r\npartial\r\n0\r\n\r\n") {
		t.Fatalf("chunked body: got %q", out)
	}
}

func TestWriteChunkAndFinalChunk(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteChunk(&buf, []byte("abc")); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := WriteFinalChunk(&buf); err != nil {
		t.Fatalf("WriteFinalChunk: %v", err)
	}
	if got := buf.String(); got != "3\r\nabc\r\n0\r\n\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestParseRequestHeadRejectsConflictingContentLength(t *testing.T) {
	raw := "POST / HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Content-Length: 5\r\n" +
		"Content-Length: 6\r\n" +
		"\r\n"

	_, _, err := ParseRequestHead(bufio.NewReader(strings.NewReader(raw)), Limits{})
	if err == nil {
		t.Fatalf("expected an error for conflicting Content-Length values")
	}
}

func TestParseRequestHeadEnforcesHeaderLimit(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: localhost\r\nX-Big: " + strings.Repeat("a", 100) + "\r\n\r\n"
	_, _, err := ParseRequestHead(bufio.NewReader(strings.NewReader(raw)), Limits{MaxHeaderBytes: 32})
	if err == nil {
		t.Fatalf("expected a limit-exceeded error")
	}
}

func TestParseRequestHeadRejectsInvalidHeaderFieldName(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: localhost\r\nX-Bad Name: 1\r\n\r\n"
	_, _, err := ParseRequestHead(bufio.NewReader(strings.NewReader(raw)), Limits{})
	if err == nil {
		t.Fatalf("expected an error for a header name containing a space")
	}
}

func TestParseRequestHeadRejectsInvalidHeaderFieldValue(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: localhost\r\nX-Bad: bad\x01value\r\n\r\n"
	_, _, err := ParseRequestHead(bufio.NewReader(strings.NewReader(raw)), Limits{})
	if err == nil {
		t.Fatalf("expected an error for a header value containing a control byte")
	}
}
