// Package server implements the connection pipeline, router wiring, and
// listening surface from spec §4.C and §6, grounded on the teacher's
// pkg/client request/response handling for wire-level conventions (logging
// via internal/wlog, errors via pkg/errors) generalized from client-side to
// server-side framing.
package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/WhileEndless/go-rawhttp/v2/internal/wlog"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/constants"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/router"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/transport"
)

// Middleware wraps a (request, response) handler with cross-cutting logic
// run before every non-deferred, non-upgrade route (spec §6 "use(middleware)").
type Middleware func(next func(req *httpcodec.Request, res *httpcodec.Response)) func(req *httpcodec.Request, res *httpcodec.Response)

// Config controls a Server's limits and logging (ambient stack: logging
// and config are plain Go structs + internal/wlog, matching the teacher's
// transport.Config shape).
type Config struct {
	MaxBodySize          int64
	MaxHeaderBytes        int
	MaxListeningAttempts int
	ShutdownDrainTimeout time.Duration
	TLSConfig            *tls.Config
	Logger               *wlog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = constants.DefaultMaxBodySize
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = constants.DefaultMaxHeaderBytes
	}
	if c.MaxListeningAttempts <= 0 {
		c.MaxListeningAttempts = constants.DefaultMaxListeningAttempts
	}
	if c.ShutdownDrainTimeout <= 0 {
		c.ShutdownDrainTimeout = constants.DefaultShutdownDrainTimeout
	}
	if c.Logger == nil {
		c.Logger = wlog.Default()
	}
	return c
}

// Server is the connection-pipeline owner: it accepts connections, parses
// requests, dispatches through its Router, and writes responses (spec
// §4.C).
type Server struct {
	cfg    Config
	router *router.Router
	log    *wlog.Logger

	middlewares []Middleware

	ln        *transport.Listener
	listening atomic.Bool
	localAddr string

	connsMu sync.Mutex
	conns   map[string]canceler

	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

type canceler interface {
	cancel()
}

// New returns a Server with an empty router and the given config.
func New(cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:    cfg,
		router: router.New(),
		log:    cfg.Logger,
		conns:  map[string]canceler{},
	}
}

// Router exposes the underlying router for advanced configuration.
func (s *Server) Router() *router.Router { return s.router }

// Use appends a middleware, run in registration order before the matched
// route's handler for non-deferred, non-upgrade requests.
func (s *Server) Use(mw Middleware) { s.middlewares = append(s.middlewares, mw) }

// EnableCORS turns on the CORS guard (spec §6 "enable_cors(bool)").
func (s *Server) EnableCORS(cfg router.CORSConfig) { s.router.EnableCORS(cfg) }

// SetBasicAuth installs a single-credential Basic-Auth checker (spec §6
// "set_basic_auth(path_prefix, realm, ...)"); path_prefix scoping is left
// to the caller via per-route router.RouteOpts{Auth: router.AuthBasic}.
func (s *Server) SetBasicAuth(user, pass, realm string) {
	router.BasicAuthRealm = realm
	s.router.SetAuthChecker(router.SingleCredentialChecker(user, pass))
}

// SetAuthChecker installs an arbitrary credential checker.
func (s *Server) SetAuthChecker(checker router.AuthChecker) { s.router.SetAuthChecker(checker) }

// SetAdminChecker restricts AuthAdmin routes to a subset of principals.
func (s *Server) SetAdminChecker(isAdmin func(principal string) bool) {
	s.router.SetAdminChecker(isAdmin)
}

// SetNotFoundHandler overrides the default 404 fallback.
func (s *Server) SetNotFoundHandler(h router.ResponseHandler) { s.router.SetNotFoundHandler(h) }

// SetMaxBodySize overrides the non-deferred body read cap (spec §6
// "set_max_body_size(n)").
func (s *Server) SetMaxBodySize(n int64) { s.cfg.MaxBodySize = n }

// SetMaxListeningAttempts overrides the bind-retry count (spec §6
// "set_max_listening_attempts(n)").
func (s *Server) SetMaxListeningAttempts(n int) { s.cfg.MaxListeningAttempts = n }

// The per-method registration shorthands mirror spec §6's abstracted
// surface by delegating straight to the router.

func (s *Server) Get(pattern string, h router.ResponseHandler, opts ...router.RouteOpts) {
	s.router.Get(pattern, h, opts...)
}
func (s *Server) Post(pattern string, h router.ResponseHandler, opts ...router.RouteOpts) {
	s.router.Post(pattern, h, opts...)
}
func (s *Server) Put(pattern string, h router.ResponseHandler, opts ...router.RouteOpts) {
	s.router.Put(pattern, h, opts...)
}
func (s *Server) Patch(pattern string, h router.ResponseHandler, opts ...router.RouteOpts) {
	s.router.Patch(pattern, h, opts...)
}
func (s *Server) Delete(pattern string, h router.ResponseHandler, opts ...router.RouteOpts) {
	s.router.Delete(pattern, h, opts...)
}
func (s *Server) Options(pattern string, h router.ResponseHandler, opts ...router.RouteOpts) {
	s.router.Options(pattern, h, opts...)
}

func (s *Server) GetJSON(pattern string, h router.BodyHandler, opts ...router.RouteOpts) {
	s.router.GetJSON(pattern, h, opts...)
}
func (s *Server) PostJSON(pattern string, h router.BodyHandler, opts ...router.RouteOpts) {
	s.router.PostJSON(pattern, h, opts...)
}
func (s *Server) PutJSON(pattern string, h router.BodyHandler, opts ...router.RouteOpts) {
	s.router.PutJSON(pattern, h, opts...)
}
func (s *Server) PatchJSON(pattern string, h router.BodyHandler, opts ...router.RouteOpts) {
	s.router.PatchJSON(pattern, h, opts...)
}

func (s *Server) GetRequest(pattern string, h router.RequestHandler, opts ...router.RouteOpts) {
	s.router.GetRequest(pattern, h, opts...)
}
func (s *Server) PostRequest(pattern string, h router.RequestHandler, opts ...router.RouteOpts) {
	s.router.PostRequest(pattern, h, opts...)
}
func (s *Server) PutRequest(pattern string, h router.RequestHandler, opts ...router.RouteOpts) {
	s.router.PutRequest(pattern, h, opts...)
}
func (s *Server) PatchRequest(pattern string, h router.RequestHandler, opts ...router.RouteOpts) {
	s.router.PatchRequest(pattern, h, opts...)
}
func (s *Server) DeleteRequest(pattern string, h router.RequestHandler, opts ...router.RouteOpts) {
	s.router.DeleteRequest(pattern, h, opts...)
}

func (s *Server) PostRequestJSON(pattern string, h router.RequestBodyHandler, opts ...router.RouteOpts) {
	s.router.PostRequestJSON(pattern, h, opts...)
}
func (s *Server) PutRequestJSON(pattern string, h router.RequestBodyHandler, opts ...router.RouteOpts) {
	s.router.PutRequestJSON(pattern, h, opts...)
}
func (s *Server) PatchRequestJSON(pattern string, h router.RequestBodyHandler, opts ...router.RouteOpts) {
	s.router.PatchRequestJSON(pattern, h, opts...)
}

func (s *Server) GetDeferred(pattern string, h router.DeferredHandler, opts ...router.RouteOpts) {
	s.router.GetDeferred(pattern, h, opts...)
}
func (s *Server) PostDeferred(pattern string, h router.DeferredHandler, opts ...router.RouteOpts) {
	s.router.PostDeferred(pattern, h, opts...)
}
func (s *Server) PutDeferred(pattern string, h router.DeferredHandler, opts ...router.RouteOpts) {
	s.router.PutDeferred(pattern, h, opts...)
}

// UpgradeWebSocket registers a WebSocket route (spec §6
// "upgrade_websocket(handler)").
func (s *Server) UpgradeWebSocket(pattern string, h router.WebSocketHandler, opts ...router.RouteOpts) {
	s.router.HandleWebSocket(pattern, h, opts...)
}

// StartSSE registers a server-sent-events route (spec §6
// "start_sse(handler)").
func (s *Server) StartSSE(pattern string, h router.SSEHandler, opts ...router.RouteOpts) {
	s.router.HandleSSE(httpcodec.MethodGet, pattern, h, opts...)
}

// Listen binds host:port and starts accepting connections in the
// background (spec §6 "listen(host, port) -> bool").
func (s *Server) Listen(host string, port int) error {
	return s.listen(transport.ListenerConfig{
		Addr:      fmt.Sprintf("%s:%d", host, port),
		TLSConfig: s.cfg.TLSConfig,
	})
}

// ListenUnix binds a Unix-domain socket at path (spec §6 "listen_unix(path) -> bool").
func (s *Server) ListenUnix(path string) error {
	return s.listen(transport.ListenerConfig{Network: "unix", Addr: path})
}

func (s *Server) listen(cfg transport.ListenerConfig) error {
	var lastErr error
	attempts := s.cfg.MaxListeningAttempts
	for i := 0; i < attempts; i++ {
		ln, err := transport.Listen(cfg)
		if err == nil {
			s.ln = ln
			s.localAddr = ln.Addr().String()
			s.listening.Store(true)
			s.wg.Add(1)
			go s.acceptLoop()
			return nil
		}
		lastErr = err
	}
	return errors.NewBindError(cfg.Addr, lastErr)
}

// LocalPort returns the bound TCP port, or 0 if not listening on TCP.
func (s *Server) LocalPort() int {
	if s.ln == nil {
		return 0
	}
	if tcpAddr, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

// IsListening reports whether the server currently owns a live listener.
func (s *Server) IsListening() bool { return s.listening.Load() }

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				return
			}
			s.log.Warnf("accept: %v", err)
			continue
		}
		id := uuid.NewString()
		pc := newPipelineConn(s, conn, id)
		s.connsMu.Lock()
		s.conns[id] = pc
		s.connsMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			pc.run()
			s.connsMu.Lock()
			delete(s.conns, id)
			s.connsMu.Unlock()
		}()
	}
}

// Stop signals every live connection's cancel token and refuses new
// accepts (spec §4.C "Graceful shutdown"). It returns once pipelines have
// drained or the drain timeout elapses.
func (s *Server) Stop() error {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	s.listening.Store(false)
	if s.ln != nil {
		s.ln.Close()
	}

	s.connsMu.Lock()
	for _, c := range s.conns {
		c.cancel()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.ShutdownDrainTimeout):
		var merr *multierror.Error
		merr = multierror.Append(merr, errors.NewTimeoutError("shutdown drain", s.cfg.ShutdownDrainTimeout))
		return merr.ErrorOrNil()
	}
}

// Wait blocks until every connection goroutine has exited.
func (s *Server) Wait() { s.wg.Wait() }
