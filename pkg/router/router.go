package router

import (
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// AuthLevel marks the authentication requirement a route carries (spec
// §4.D "Authentication").
type AuthLevel int

const (
	AuthNone AuthLevel = iota
	AuthBasic
	AuthAdmin
)

// HandlerKind tags which of the four handler shapes (spec §3 "Route",
// §9 "Dynamic handler shapes") a registered route uses. Encoded as a
// tagged variant — a builder per method, as recommended by spec §9 —
// rather than one interface{} signature.
type HandlerKind int

const (
	// KindResponse: func(*Response)
	KindResponse HandlerKind = iota
	// KindBody: func(body []byte, *Response)
	KindBody
	// KindRequest: func(*Request, *Response)
	KindRequest
	// KindRequestBody: func(*Request, body []byte, *Response)
	KindRequestBody
	// KindWebSocket: the handler takes over the connection via upgrade_websocket (spec §4.C rule 2).
	KindWebSocket
	// KindSSE: the handler takes over the connection via start_sse (spec §4.C rule 3).
	KindSSE
)

// ResponseHandler is the (response) handler shape.
type ResponseHandler func(res *httpcodec.Response)

// BodyHandler is the (body, response) handler shape.
type BodyHandler func(body []byte, res *httpcodec.Response)

// RequestHandler is the (request, response) handler shape.
type RequestHandler func(req *httpcodec.Request, res *httpcodec.Response)

// RequestBodyHandler is the (request, body, response) handler shape.
type RequestBodyHandler func(req *httpcodec.Request, body []byte, res *httpcodec.Response)

// DeferredHandler runs before the body is read; it pulls the body itself
// via req's deferred Read capability (spec §4.C, §4.E). The BodyReader
// type lives in pkg/server, which owns the connection; router only needs
// to know the handler's generic shape, expressed as func(*Request, BodyReader, *Response).
type DeferredHandler func(req *httpcodec.Request, body BodyReader, res *httpcodec.Response)

// BodyReader is the deferred-read capability described in spec §4.E.
// Returning (0, nil) means "no more body".
type BodyReader interface {
	Read(buf []byte) (int, error)
}

// WSConn is the WebSocket connection capability handed to a route's
// WebSocketHandler after the server has completed the upgrade handshake
// (spec §4.F "hand it to a WebSocket state machine seeded with the user's
// on_message/on_close/on_error callbacks").
type WSConn interface {
	Send(opcode int, data []byte) error
	OnMessage(func(opcode int, data []byte))
	OnClose(func(code int, reason string))
	OnError(func(err error))
	Close(code int, reason string) error
}

// WebSocketHandler runs once the 101 handshake has completed; conn is
// already live and queues writes until Start is implicitly called by the
// pipeline after the 101 response is flushed.
type WebSocketHandler func(conn WSConn, req *httpcodec.Request)

// SSESender is the server-sent-events capability handed to a route's
// SSEHandler (spec §4.C rule 3, §6 "start_sse(handler)").
type SSESender interface {
	SendEvent(event, data, id string, retryMillis int) error
	SendData(data string) error
	Close() error
	Done() <-chan struct{}
}

// SSEHandler runs once the chunked SSE stream is open.
type SSEHandler func(conn SSESender, req *httpcodec.Request)

// Route holds one compiled route's handler and metadata.
type Route struct {
	Pattern     *Pattern
	Kind        HandlerKind
	Deferred    bool
	Response    ResponseHandler
	Body        BodyHandler
	Request     RequestHandler
	RequestBody RequestBodyHandler
	DeferredFn  DeferredHandler
	WebSocket   WebSocketHandler
	SSE         SSEHandler

	Auth        AuthLevel
	Description string
}

// methodGroup stores compiled routes for one HTTP method, in the two
// buckets spec §4.D requires: exact-literal keyed by full path, and
// parameterized routes in insertion order.
type methodGroup struct {
	exact         map[string]*Route
	parameterized []*Route
}

func newMethodGroup() *methodGroup {
	return &methodGroup{exact: map[string]*Route{}}
}

func (g *methodGroup) add(r *Route) {
	if r.Pattern.isExact {
		g.exact[r.Pattern.raw] = r
		return
	}
	g.parameterized = append(g.parameterized, r)
}

// Router compiles and dispatches routes. Once a server starts, its
// compiled routes and CORS/auth configuration are read-only (spec §5
// "Shared state").
type Router struct {
	groups      map[httpcodec.Method]*methodGroup
	fallback    ResponseHandler
	corsEnabled bool
	cors        CORSConfig
	authChecker AuthChecker
	isAdmin     func(principal string) bool
}

// New returns an empty Router with the default 404 fallback.
func New() *Router {
	r := &Router{groups: map[httpcodec.Method]*methodGroup{}}
	r.fallback = func(res *httpcodec.Response) {
		res.Status = httpcodec.StatusNotFound
		res.SetContentWithType([]byte("404 Not Found"), "text/plain")
	}
	return r
}

func (r *Router) group(m httpcodec.Method) *methodGroup {
	g, ok := r.groups[m]
	if !ok {
		g = newMethodGroup()
		r.groups[m] = g
	}
	return g
}

// Register compiles pattern and adds route to method m's group. Panics on
// an invalid pattern — compilation happens at registration time, which in
// this library means server-setup time, not request time (spec §9 "Regex
// in routes": "Compiled once at registration").
func (r *Router) Register(m httpcodec.Method, pattern string, route *Route) {
	compiled, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	route.Pattern = compiled
	r.group(m).add(route)
}

// SetNotFoundHandler overrides the default 404 fallback (spec §6
// "set_not_found_handler").
func (r *Router) SetNotFoundHandler(h ResponseHandler) {
	r.fallback = h
}

// EnableCORS turns on the CORS guard described in spec §4.D with cfg.
func (r *Router) EnableCORS(cfg CORSConfig) {
	r.corsEnabled = true
	r.cors = cfg.withDefaults()
}

// SetAuthChecker installs the predicate used to verify Basic-Auth
// credentials (spec §4.D "Authentication").
func (r *Router) SetAuthChecker(checker AuthChecker) {
	r.authChecker = checker
}

// SetAdminChecker installs the predicate that further restricts
// AuthAdmin routes to a subset of successfully authenticated principals.
func (r *Router) SetAdminChecker(isAdmin func(principal string) bool) {
	r.isAdmin = isAdmin
}

// normalizePath collapses duplicate slashes and rejects '.'/'..' segments
// (spec §4.D "Dispatch").
func normalizePath(path string) (string, bool) {
	if path == "" {
		return "/", true
	}
	parts := strings.Split(path, "/")
	var out []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if p == "." || p == ".." {
			return "", false
		}
		out = append(out, p)
	}
	return "/" + strings.Join(out, "/"), true
}

// DispatchResult is what Dispatch hands back to the connection pipeline.
type DispatchResult struct {
	Route     *Route
	NotFound  bool
	Forbidden bool // CORS preflight or auth short-circuit already answered via Response
}

// Dispatch matches req against the compiled routes for req.Method,
// handling CORS preflight and auth guards, and returns the matched route
// (if any). res is pre-populated with CORS headers and, if the request is
// short-circuited (preflight OPTIONS, auth failure), a final status/body —
// in which case Route is nil and the caller must not run any handler.
func (r *Router) Dispatch(req *httpcodec.Request, res *httpcodec.Response) *DispatchResult {
	if r.corsEnabled {
		applyCORSHeaders(res, r.cors)
	}

	path, ok := normalizePath(req.GetPath())
	if !ok {
		res.Status = httpcodec.StatusBadRequest
		res.SetContentWithType([]byte("invalid path"), "text/plain")
		return &DispatchResult{Forbidden: true}
	}

	route, params := r.match(req.Method, path)
	if route == nil {
		if r.corsEnabled && req.Method == httpcodec.MethodOptions {
			res.Status = httpcodec.StatusNoContent
			return &DispatchResult{Forbidden: true}
		}
		r.fallback(res)
		return &DispatchResult{NotFound: true}
	}

	for k, v := range params {
		req.Params[k] = v
	}

	if route.Auth != AuthNone {
		if !r.checkAuth(route.Auth, req, res) {
			return &DispatchResult{Forbidden: true}
		}
	}

	return &DispatchResult{Route: route}
}

func (r *Router) match(m httpcodec.Method, path string) (*Route, map[string]string) {
	g, ok := r.groups[m]
	if !ok {
		return nil, nil
	}
	if route, ok := g.exact[path]; ok {
		return route, nil
	}
	for _, route := range g.parameterized {
		if params, ok := route.Pattern.Match(path); ok {
			return route, params
		}
	}
	return nil, nil
}
