package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/router"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/websocket"
)

const defaultConnReadBuf = 64 * 1024

// pipelineConn runs the per-connection state machine from spec §4.C:
// IDLE -> READ_HEADERS -> DECIDE -> RUN_HANDLER -> WRITE_RESPONSE -> IDLE|CLOSE,
// with DEFERRED_BODY / UPGRADE_WEBSOCKET / START_SSE branches off DECIDE.
type pipelineConn struct {
	srv  *Server
	conn net.Conn
	id   string

	ctx        context.Context
	cancelFunc context.CancelFunc

	r *bufio.Reader
	w *bufio.Writer

	closeOnce sync.Once
}

func newPipelineConn(srv *Server, conn net.Conn, id string) *pipelineConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &pipelineConn{
		srv:        srv,
		conn:       conn,
		id:         id,
		ctx:        ctx,
		cancelFunc: cancel,
		r:          bufio.NewReaderSize(conn, defaultConnReadBuf),
		w:          bufio.NewWriter(conn),
	}
}

// cancel satisfies Server's canceler interface so Stop() can abort a
// pipeline mid-flight (spec §4.C "Graceful shutdown").
func (p *pipelineConn) cancel() {
	p.cancelFunc()
	p.conn.Close()
}

func (p *pipelineConn) run() {
	defer p.close()

	for {
		if p.ctx.Err() != nil {
			return
		}

		limits := httpcodec.Limits{MaxHeaderBytes: p.srv.cfg.MaxHeaderBytes}
		req, ph, err := httpcodec.ParseRequestHead(p.r, limits)
		if err != nil {
			if isPeerClosed(err) {
				return
			}
			p.writeError(httpcodec.StatusBadRequest, "malformed request")
			return
		}

		framing := httpcodec.SelectFraming(ph, true)
		contentLength := ph.ContentLength()

		keepAlive, closeConn := p.handleRequest(req, framing, contentLength)
		if closeConn || !keepAlive {
			return
		}
	}
}

// handleRequest runs DECIDE through WRITE_RESPONSE for one request.
// Returns (keepAlive, mustClose): mustClose means the pipeline has already
// taken the connection over (WebSocket/SSE) or hit a fatal error.
func (p *pipelineConn) handleRequest(req *httpcodec.Request, framing httpcodec.BodyFraming, contentLength int64) (keepAlive bool, mustClose bool) {
	res := httpcodec.NewResponse(httpcodec.StatusOK)
	result := p.srv.router.Dispatch(req, res)

	if result.Route == nil {
		p.writeResponse(req, res)
		return p.decideKeepAlive(req, res), false
	}
	route := result.Route

	switch route.Kind {
	case router.KindWebSocket:
		return false, p.handleWebSocketUpgrade(req, route)
	case router.KindSSE:
		return false, p.handleSSE(req, res, route)
	}

	if route.Deferred {
		bodyReader := newDeferredBodyReader(p.r, framing, contentLength, req.Headers)
		route.DeferredFn(req, bodyReader, res)
		p.writeResponse(req, res)
		return p.decideKeepAlive(req, res), false
	}

	body, err := readFullBody(p.r, framing, contentLength, req.Headers, p.srv.cfg.MaxBodySize)
	if err != nil {
		if isLimitExceeded(err) {
			p.writeError(httpcodec.StatusRequestEntityTooLarge, "request body too large")
		} else {
			p.writeError(httpcodec.StatusBadRequest, "malformed body")
		}
		return false, true
	}
	body, err = decompressIfNeeded(req, body, p.srv.cfg.MaxBodySize)
	if err != nil {
		p.writeError(httpcodec.StatusUnsupportedMediaType, "unsupported content-encoding")
		return false, true
	}

	p.runHandler(route, req, body, res)
	p.writeResponse(req, res)
	return p.decideKeepAlive(req, res), false
}

func (p *pipelineConn) runHandler(route *router.Route, req *httpcodec.Request, body []byte, res *httpcodec.Response) {
	adapter := func(req *httpcodec.Request, res *httpcodec.Response) {
		switch route.Kind {
		case router.KindResponse:
			route.Response(res)
		case router.KindBody:
			route.Body(body, res)
		case router.KindRequest:
			route.Request(req, res)
		case router.KindRequestBody:
			route.RequestBody(req, body, res)
		}
	}
	for i := len(p.srv.middlewares) - 1; i >= 0; i-- {
		adapter = p.srv.middlewares[i](adapter)
	}

	defer func() {
		if r := recover(); r != nil {
			res.Status = httpcodec.StatusInternalServerError
			res.SetContentWithType([]byte("internal server error"), "text/plain")
			p.srv.log.Errorf("handler panic on connection %s: %v", p.id, r)
		}
	}()
	adapter(req, res)
}

func (p *pipelineConn) writeResponse(req *httpcodec.Request, res *httpcodec.Response) {
	compressIfEligible(req, res)
	if err := httpcodec.WriteResponse(p.w, res); err != nil {
		p.srv.log.Warnf("writing response on connection %s: %v", p.id, err)
		return
	}
	p.w.Flush()
}

func (p *pipelineConn) writeError(status httpcodec.StatusCode, msg string) {
	res := httpcodec.NewResponse(status)
	res.SetContentWithType([]byte(msg), "text/plain")
	httpcodec.WriteResponse(p.w, res)
	p.w.Flush()
}

// decideKeepAlive implements spec §4.C rule 4: keep-alive is implicit in
// HTTP/1.1 unless either side sent "Connection: close".
func (p *pipelineConn) decideKeepAlive(req *httpcodec.Request, res *httpcodec.Response) bool {
	if headerSaysClose(req.Headers.Get("Connection")) {
		return false
	}
	if headerSaysClose(res.Headers.Get("Connection")) {
		return false
	}
	return true
}

func headerSaysClose(v string) bool {
	for _, part := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(part), "close") {
			return true
		}
	}
	return false
}

func (p *pipelineConn) handleWebSocketUpgrade(req *httpcodec.Request, route *router.Route) bool {
	clientKey, err := websocket.ValidateUpgradeRequest(req)
	if err != nil {
		p.writeError(httpcodec.StatusBadRequest, "invalid websocket upgrade")
		return true
	}
	res := websocket.BuildUpgradeResponse(clientKey)
	if err := httpcodec.WriteResponse(p.w, res); err != nil {
		return true
	}
	if err := p.w.Flush(); err != nil {
		return true
	}

	wsConn := websocket.NewConn(p.conn, p.r, false)
	route.WebSocket(wsConn, req)
	wsConn.Start()
	return true
}

func (p *pipelineConn) handleSSE(req *httpcodec.Request, res *httpcodec.Response, route *router.Route) bool {
	res.Status = httpcodec.StatusOK
	res.Headers.Set("Content-Type", "text/event-stream")
	res.Headers.Set("Cache-Control", "no-cache")
	res.Headers.Set("Connection", "keep-alive")

	stream := newStreamWriter(p.w)
	if err := stream.writeHead(res.Status, res.Headers); err != nil {
		return true
	}
	sse := newSSEConn(stream)
	route.SSE(sse, req)
	<-sse.Done()
	return true
}

func (p *pipelineConn) close() {
	p.closeOnce.Do(func() {
		p.cancelFunc()
		p.conn.Close()
	})
}

func isPeerClosed(err error) bool {
	rherr, ok := err.(*errors.Error)
	if !ok {
		return false
	}
	return rherr.Cause == io.EOF || rherr.Cause == io.ErrUnexpectedEOF
}

func isLimitExceeded(err error) bool {
	rherr, ok := err.(*errors.Error)
	if !ok {
		return false
	}
	return rherr.Type == errors.ErrorTypeLimitExceeded
}
