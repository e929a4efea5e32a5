package router

import "github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"

// RouteOpts carries the optional per-route metadata (spec §4.D "a route
// may carry an auth requirement", "description").
type RouteOpts struct {
	Auth        AuthLevel
	Description string
}

func (r *Router) register(m httpcodec.Method, pattern string, route *Route, opts ...RouteOpts) {
	if len(opts) > 0 {
		route.Auth = opts[0].Auth
		route.Description = opts[0].Description
	}
	r.Register(m, pattern, route)
}

// Handle registers a (response) handler — the simplest of the four shapes.
func (r *Router) Handle(m httpcodec.Method, pattern string, h ResponseHandler, opts ...RouteOpts) {
	r.register(m, pattern, &Route{Kind: KindResponse, Response: h}, opts...)
}

// HandleBody registers a (body, response) handler.
func (r *Router) HandleBody(m httpcodec.Method, pattern string, h BodyHandler, opts ...RouteOpts) {
	r.register(m, pattern, &Route{Kind: KindBody, Body: h}, opts...)
}

// HandleRequest registers a (request, response) handler.
func (r *Router) HandleRequest(m httpcodec.Method, pattern string, h RequestHandler, opts ...RouteOpts) {
	r.register(m, pattern, &Route{Kind: KindRequest, Request: h}, opts...)
}

// HandleRequestBody registers a (request, body, response) handler.
func (r *Router) HandleRequestBody(m httpcodec.Method, pattern string, h RequestBodyHandler, opts ...RouteOpts) {
	r.register(m, pattern, &Route{Kind: KindRequestBody, RequestBody: h}, opts...)
}

// HandleDeferred registers a deferred-body handler: it runs with headers
// available and pulls the body itself via BodyReader (spec §4.C rule 1).
func (r *Router) HandleDeferred(m httpcodec.Method, pattern string, h DeferredHandler, opts ...RouteOpts) {
	r.register(m, pattern, &Route{Deferred: true, DeferredFn: h}, opts...)
}

// HandleWebSocket registers a route that upgrades to WebSocket on match
// (spec §6 "upgrade_websocket(handler)"). Always GET per RFC 6455.
func (r *Router) HandleWebSocket(pattern string, h WebSocketHandler, opts ...RouteOpts) {
	r.register(httpcodec.MethodGet, pattern, &Route{Kind: KindWebSocket, WebSocket: h}, opts...)
}

// HandleSSE registers a route that opens a server-sent-events stream on
// match (spec §6 "start_sse(handler)").
func (r *Router) HandleSSE(m httpcodec.Method, pattern string, h SSEHandler, opts ...RouteOpts) {
	r.register(m, pattern, &Route{Kind: KindSSE, SSE: h}, opts...)
}

// The per-method shorthands below mirror the abstracted server surface in
// spec §6 ("get/post/put/patch/del/options(path, handler)").

func (r *Router) Get(pattern string, h ResponseHandler, opts ...RouteOpts) {
	r.Handle(httpcodec.MethodGet, pattern, h, opts...)
}
func (r *Router) Post(pattern string, h ResponseHandler, opts ...RouteOpts) {
	r.Handle(httpcodec.MethodPost, pattern, h, opts...)
}
func (r *Router) Put(pattern string, h ResponseHandler, opts ...RouteOpts) {
	r.Handle(httpcodec.MethodPut, pattern, h, opts...)
}
func (r *Router) Patch(pattern string, h ResponseHandler, opts ...RouteOpts) {
	r.Handle(httpcodec.MethodPatch, pattern, h, opts...)
}
func (r *Router) Delete(pattern string, h ResponseHandler, opts ...RouteOpts) {
	r.Handle(httpcodec.MethodDelete, pattern, h, opts...)
}
func (r *Router) Options(pattern string, h ResponseHandler, opts ...RouteOpts) {
	r.Handle(httpcodec.MethodOptions, pattern, h, opts...)
}

func (r *Router) GetJSON(pattern string, h BodyHandler, opts ...RouteOpts) {
	r.HandleBody(httpcodec.MethodGet, pattern, h, opts...)
}
func (r *Router) PostJSON(pattern string, h BodyHandler, opts ...RouteOpts) {
	r.HandleBody(httpcodec.MethodPost, pattern, h, opts...)
}
func (r *Router) PutJSON(pattern string, h BodyHandler, opts ...RouteOpts) {
	r.HandleBody(httpcodec.MethodPut, pattern, h, opts...)
}
func (r *Router) PatchJSON(pattern string, h BodyHandler, opts ...RouteOpts) {
	r.HandleBody(httpcodec.MethodPatch, pattern, h, opts...)
}

func (r *Router) GetRequest(pattern string, h RequestHandler, opts ...RouteOpts) {
	r.HandleRequest(httpcodec.MethodGet, pattern, h, opts...)
}
func (r *Router) PostRequest(pattern string, h RequestHandler, opts ...RouteOpts) {
	r.HandleRequest(httpcodec.MethodPost, pattern, h, opts...)
}
func (r *Router) PutRequest(pattern string, h RequestHandler, opts ...RouteOpts) {
	r.HandleRequest(httpcodec.MethodPut, pattern, h, opts...)
}
func (r *Router) PatchRequest(pattern string, h RequestHandler, opts ...RouteOpts) {
	r.HandleRequest(httpcodec.MethodPatch, pattern, h, opts...)
}
func (r *Router) DeleteRequest(pattern string, h RequestHandler, opts ...RouteOpts) {
	r.HandleRequest(httpcodec.MethodDelete, pattern, h, opts...)
}

func (r *Router) PutRequestJSON(pattern string, h RequestBodyHandler, opts ...RouteOpts) {
	r.HandleRequestBody(httpcodec.MethodPut, pattern, h, opts...)
}
func (r *Router) PostRequestJSON(pattern string, h RequestBodyHandler, opts ...RouteOpts) {
	r.HandleRequestBody(httpcodec.MethodPost, pattern, h, opts...)
}
func (r *Router) PatchRequestJSON(pattern string, h RequestBodyHandler, opts ...RouteOpts) {
	r.HandleRequestBody(httpcodec.MethodPatch, pattern, h, opts...)
}

func (r *Router) GetDeferred(pattern string, h DeferredHandler, opts ...RouteOpts) {
	r.HandleDeferred(httpcodec.MethodGet, pattern, h, opts...)
}
func (r *Router) PutDeferred(pattern string, h DeferredHandler, opts ...RouteOpts) {
	r.HandleDeferred(httpcodec.MethodPut, pattern, h, opts...)
}
func (r *Router) PostDeferred(pattern string, h DeferredHandler, opts ...RouteOpts) {
	r.HandleDeferred(httpcodec.MethodPost, pattern, h, opts...)
}
