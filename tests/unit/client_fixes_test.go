package unit

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/WhileEndless/go-rawhttp/v2"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// TestPartialWriteHandling sends a large request body over a loopback
// connection to exercise the write path's handling of partial writes.
func TestPartialWriteHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	largeBody := strings.Repeat("x", 200000)
	request := []byte("POST /test HTTP/1.1\r\nHost: " + host + "\r\nContent-Length: " +
		strconv.Itoa(len(largeBody)) + "\r\nConnection: close\r\n\r\n" + largeBody)

	sender := rawhttp.NewSender()
	opts := rawhttp.Options{
		Scheme:       "http",
		Host:         host,
		Port:         port,
		ConnTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		ReadTimeout:  2 * time.Second,
	}

	resp, err := sender.Do(context.Background(), request, opts)
	if err != nil {
		t.Fatalf("Do failed for a 200KB body: %v", err)
	}
	defer resp.Body.Close()
	defer resp.Raw.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

// TestDNSTimeoutSeparation verifies that a short DNSTimeout bounds resolution
// independently of the longer ConnTimeout.
func TestDNSTimeoutSeparation(t *testing.T) {
	sender := rawhttp.NewSender()
	request := []byte("GET / HTTP/1.1\r\nHost: does-not-resolve.invalid\r\nConnection: close\r\n\r\n")

	opts := rawhttp.Options{
		Scheme:      "http",
		Host:        "does-not-resolve.invalid",
		Port:        80,
		ConnTimeout: 10 * time.Second,
		DNSTimeout:  200 * time.Millisecond,
	}

	start := time.Now()
	_, err := sender.Do(context.Background(), request, opts)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected a DNS resolution error for an invalid TLD")
	}
	if elapsed > 5*time.Second {
		t.Errorf("DNSTimeout does not appear to bound resolution: took %v", elapsed)
	}
}

// TestContentLengthOverflowProtection exercises the codec's Content-Length
// validation directly against crafted response heads.
func TestContentLengthOverflowProtection(t *testing.T) {
	testCases := []struct {
		name          string
		contentLength string
		expectError   bool
	}{
		{name: "negative", contentLength: "-1", expectError: true},
		{name: "overflows int64", contentLength: "999999999999999999999", expectError: true},
		{name: "valid", contentLength: "1000", expectError: false},
		{name: "zero", contentLength: "0", expectError: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := "HTTP/1.1 200 OK\r\nContent-Length: " + tc.contentLength + "\r\n\r\n"
			r := bufio.NewReader(strings.NewReader(raw))
			_, _, err := httpcodec.ParseResponseHead(r, httpcodec.Limits{})
			if tc.expectError && err == nil {
				t.Fatalf("expected an error for Content-Length %q", tc.contentLength)
			}
			if !tc.expectError && err != nil {
				t.Fatalf("unexpected error for Content-Length %q: %v", tc.contentLength, err)
			}
		})
	}
}

// TestHeaderFoldingBehavior verifies that a deprecated RFC 7230 §3.2.4
// obs-fold continuation line is joined onto the previous header's value.
func TestHeaderFoldingBehavior(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nX-Folded: first\r\n second\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	resp, _, err := httpcodec.ParseResponseHead(r, httpcodec.Limits{})
	if err != nil {
		t.Fatalf("ParseResponseHead: %v", err)
	}
	got := resp.Headers.Get("X-Folded")
	if got != "first second" {
		t.Fatalf("folded header = %q, want %q", got, "first second")
	}
}

// TestTrailerHeaderParsing verifies that trailer headers following a
// chunked body's terminating chunk are read into the response headers.
func TestTrailerHeaderParsing(t *testing.T) {
	raw := "3\r\nabc\r\n0\r\nX-Trailer: value\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	headers := httpcodec.NewHeaders()
	var body strings.Builder
	if err := httpcodec.ReadChunkedBody(r, &body, headers); err != nil {
		t.Fatalf("ReadChunkedBody: %v", err)
	}
	if body.String() != "abc" {
		t.Fatalf("body = %q, want %q", body.String(), "abc")
	}
	if got := headers.Get("X-Trailer"); got != "value" {
		t.Fatalf("trailer X-Trailer = %q, want %q", got, "value")
	}
}

// TestRawBufferLargerThanBodyBuffer verifies that Response.Raw retains the
// full wire bytes (status line + headers + body) while Response.BodyBytes
// counts only the decoded body, so Raw is always >= Body in size.
func TestRawBufferLargerThanBodyBuffer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	sender := rawhttp.NewSender()
	request := []byte("GET / HTTP/1.1\r\nHost: " + host + "\r\nConnection: close\r\n\r\n")
	opts := rawhttp.Options{
		Scheme:      "http",
		Host:        host,
		Port:        port,
		ConnTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	}

	resp, err := sender.Do(context.Background(), request, opts)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	defer resp.Raw.Close()

	if resp.RawBytes <= resp.BodyBytes {
		t.Errorf("RawBytes (%d) should exceed BodyBytes (%d): Raw includes the status line and headers", resp.RawBytes, resp.BodyBytes)
	}
}
