package httpcodec

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Response is a parsed or authored HTTP response.
//
// Invariants (spec §3): status 204 must never carry Content-Length on the
// wire; 101 switches protocol and hands the connection to the WebSocket
// layer (the codec only encodes/decodes the status line and headers for
// 101 — the caller owns the handoff).
type Response struct {
	Status  StatusCode
	Headers *Headers
	Body    Body

	// Streaming marks a response that must be emitted with
	// Transfer-Encoding: chunked rather than Content-Length, even when the
	// full body happens to be buffered already (spec §4.B "Emission").
	Streaming bool
}

// NewResponse returns a Response with empty headers and no body.
func NewResponse(status StatusCode) *Response {
	return &Response{Status: status, Headers: NewHeaders(), Body: EmptyBody()}
}

// SetContent replaces the body with b and updates Content-Length (unless
// the status forbids a body, e.g. 204/304/1xx).
func (r *Response) SetContent(b []byte) {
	r.Body = BufferBody(b)
	if r.Status.ForbidsBody() {
		r.Headers.Del("Content-Length")
		return
	}
	r.Headers.Set("Content-Length", strconv.Itoa(len(b)))
}

// SetContentWithType replaces the body with b, sets Content-Type, and
// updates Content-Length.
func (r *Response) SetContentWithType(b []byte, contentType string) {
	r.SetContent(b)
	r.Headers.Set("Content-Type", contentType)
}

// HasFraming reports whether the response carries either Content-Length
// or chunked Transfer-Encoding, or is a status that forbids a body outright
// (spec §8 invariant: "either Content-Length or chunked Transfer-Encoding
// is set (unless status forbids body)").
func (r *Response) HasFraming() bool {
	if r.Status.ForbidsBody() {
		return true
	}
	if r.Headers.Has("Content-Length") {
		return true
	}
	te := r.Headers.Get("Transfer-Encoding")
	return te != "" && containsToken(te, "chunked")
}

// JSON marshals v and sets it as the body with status and
// application/json (spec §6 "json(value[, code])").
func (r *Response) JSON(status StatusCode, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Status = status
	r.SetContentWithType(b, "application/json")
	return nil
}

// HTML sets s as the body with text/html (spec §6 "html(s)").
func (r *Response) HTML(s string) {
	r.SetContentWithType([]byte(s), "text/html; charset=utf-8")
}

// Send sets s as the body with the given content type, or text/plain if
// ctype is empty (spec §6 "send(s[, ctype])").
func (r *Response) Send(s string, ctype string) {
	if ctype == "" {
		ctype = "text/plain; charset=utf-8"
	}
	r.SetContentWithType([]byte(s), ctype)
}

// Error sets status and a plain-text message body (spec §6
// "error(code, msg)").
func (r *Response) Error(status StatusCode, msg string) {
	r.Status = status
	r.SetContentWithType([]byte(msg), "text/plain; charset=utf-8")
}

func containsToken(csv, token string) bool {
	for _, part := range strings.Split(csv, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
