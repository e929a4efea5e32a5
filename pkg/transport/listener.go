package transport

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
)

// ListenerConfig describes how to bind a server-side listening socket
// (spec §4.A "Socket Abstraction"). The transport package only ever dialed
// out until now (see Connect below); a server needs to accept.
type ListenerConfig struct {
	Network string // "tcp" (default) or "unix"
	Addr    string // host:port for tcp, path for unix

	// TLSConfig, when non-nil, wraps every accepted connection in a TLS
	// server handshake before handing it back from Accept.
	TLSConfig *tls.Config

	// AcceptTimeout bounds how long a single Accept call may block before
	// returning a timeout error; zero means no deadline.
	AcceptTimeout time.Duration
}

// Listener wraps a net.Listener, optionally TLS-terminating each accepted
// connection, and normalizes bind/accept failures into *errors.Error.
type Listener struct {
	cfg ListenerConfig
	net net.Listener
}

// Listen binds cfg and returns a ready-to-Accept Listener. Binding is
// attempted up to constants.DefaultMaxListeningAttempts times with a short
// backoff, mirroring the retry-on-EADDRINUSE pattern the teacher already
// applies to outbound dials in Connect.
func Listen(cfg ListenerConfig) (*Listener, error) {
	network := cfg.Network
	if network == "" {
		network = "tcp"
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		ln, err := net.Listen(network, cfg.Addr)
		if err == nil {
			return &Listener{cfg: cfg, net: ln}, nil
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return nil, errors.NewBindError(cfg.Addr, lastErr)
}

// Accept blocks for the next connection, TLS-wrapping it if cfg.TLSConfig
// is set. The TLS handshake itself is performed lazily by net/tls on first
// read/write, matching net/http's server behavior.
func (l *Listener) Accept() (net.Conn, error) {
	if l.cfg.AcceptTimeout > 0 {
		if tl, ok := l.net.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(l.cfg.AcceptTimeout))
		}
	}
	conn, err := l.net.Accept()
	if err != nil {
		return nil, errors.NewBindError(l.cfg.Addr, err)
	}
	if l.cfg.TLSConfig != nil {
		conn = tls.Server(conn, l.cfg.TLSConfig)
	}
	return conn, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr {
	return l.net.Addr()
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.net.Close()
}
