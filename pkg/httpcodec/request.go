package httpcodec

import (
	"strconv"
	"strings"
)

// Request is a parsed or authored HTTP request.
//
// Invariants (spec §3): Path starts with "/"; GetPath returns the portion
// before any "?"; GetURI returns path plus "?" and raw query if any;
// IsDefaultPort is true for (http,80) or (https,443); SetContent updates
// Content-Length; SetContentWithType additionally updates Content-Type.
type Request struct {
	Method  Method
	Scheme  string
	Host    string
	Port    int
	Path    string
	Query   []KV // decoded key/value pairs parsed from "?a=b&c=d"
	Headers *Headers
	Body    Body

	// Params holds path captures populated by the router (spec §3 "Route").
	Params map[string]string

	// Principal holds the authenticated identity attached by a successful
	// basic-auth guard (spec §4.D "Authentication").
	Principal string
}

// NewRequest returns a Request with empty headers and no body.
func NewRequest(method Method, path string) *Request {
	return &Request{
		Method:  method,
		Scheme:  "http",
		Path:    path,
		Headers: NewHeaders(),
		Body:    EmptyBody(),
		Params:  map[string]string{},
	}
}

// GetPath returns the path portion of the request target (never includes
// a query string, even if Path was authored with one).
func (r *Request) GetPath() string {
	if idx := strings.IndexByte(r.Path, '?'); idx >= 0 {
		return r.Path[:idx]
	}
	return r.Path
}

// RawQuery renders the Query multimap back into a "k=v&k2=v2" string.
func (r *Request) RawQuery() string {
	return EncodeFormEncoded(r.Query)
}

// GetURI returns the path plus "?" and the raw query, if any is present.
func (r *Request) GetURI() string {
	p := r.GetPath()
	if len(r.Query) == 0 {
		return p
	}
	return p + "?" + r.RawQuery()
}

// IsDefaultPort reports whether Port is the scheme's implicit default
// (80 for http, 443 for https).
func (r *Request) IsDefaultPort() bool {
	switch strings.ToLower(r.Scheme) {
	case "http":
		return r.Port == 80
	case "https":
		return r.Port == 443
	}
	return false
}

// SetContent replaces the body with b and updates Content-Length.
func (r *Request) SetContent(b []byte) {
	r.Body = BufferBody(b)
	r.Headers.Set("Content-Length", strconv.Itoa(len(b)))
}

// SetContentWithType replaces the body with b, sets Content-Type, and
// updates Content-Length.
func (r *Request) SetContentWithType(b []byte, contentType string) {
	r.SetContent(b)
	r.Headers.Set("Content-Type", contentType)
}

// Param returns a path capture by name, or "" if absent.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// QueryValue returns the first decoded value for a query key, or "".
func (r *Request) QueryValue(key string) string {
	for _, kv := range r.Query {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}
