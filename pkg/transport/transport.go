// Package transport implements the socket abstraction described in spec
// §4.A: dialing out (Connect, this file), accepting in (Listen/Accept,
// listener.go), pooling reusable outbound connections (pool.go), routing a
// dial through an upstream proxy (proxy.go), and forwarding bytes between
// two already-established sockets (pipe.go, used by the CONNECT-proxy
// server path).
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/timing"
)

// ProxyConfig describes an upstream proxy a Connect call should route
// through. Kept alongside Config rather than imported from pkg/client to
// avoid a client->transport->client import cycle.
type ProxyConfig struct {
	Type               string
	Host               string
	Port               int
	Username           string
	Password           string
	ConnTimeout        time.Duration
	ProxyHeaders       map[string]string
	TLSConfig          *tls.Config
	ResolveDNSViaProxy bool
}

// Config holds everything Connect needs to dial (and, for https, TLS
// upgrade) a target.
type Config struct {
	Scheme    string
	Host      string
	Port      int
	ConnectIP string // bypasses DNS resolution and dials this IP directly

	// SNI overrides the TLS ServerName sent during the handshake. Priority:
	// TLSConfig.ServerName > SNI > Host (unless DisableSNI is set).
	SNI string

	// DisableSNI omits the SNI extension entirely. Mutually exclusive with
	// SNI (validateConfig rejects setting both).
	DisableSNI bool

	// InsecureTLS skips certificate verification. It always overrides
	// TLSConfig.InsecureSkipVerify, even when a custom TLSConfig is also
	// supplied, so a caller can force insecure mode without having to
	// thread the flag through its own TLSConfig construction.
	InsecureTLS bool

	ConnTimeout  time.Duration
	DNSTimeout   time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ReuseConnection opts this Connect call into the per-host pool
	// (pool.go) instead of always dialing fresh.
	ReuseConnection bool

	// Proxy routes the connection through an upstream proxy instead of
	// dialing the target directly (see proxy.go).
	Proxy *ProxyConfig

	CustomCACerts [][]byte

	// Client certificate for mutual TLS.
	ClientCertPEM  []byte
	ClientKeyPEM   []byte
	ClientCertFile string
	ClientKeyFile  string

	// TLSConfig, if set, is cloned and used as the base TLS configuration
	// instead of the package default. InsecureTLS still overrides
	// InsecureSkipVerify on the clone.
	TLSConfig *tls.Config

	MinTLSVersion    uint16
	MaxTLSVersion    uint16
	TLSRenegotiation tls.RenegotiationSupport
	CipherSuites     []uint16
}

// ConnectionMetadata describes the connection Connect just established:
// where it landed, whether TLS was negotiated and with what parameters,
// whether a proxy was involved, and which pool key it was filed under.
type ConnectionMetadata struct {
	ConnectedIP        string
	ConnectedPort      int
	NegotiatedProtocol string
	ConnectionReused   bool

	LocalAddr    string
	RemoteAddr   string
	ConnectionID uint64

	TLSVersion     string
	TLSCipherSuite string
	TLSServerName  string

	// TLSSessionID is a best-effort channel-binding value (RFC 5929's
	// tls-unique), not a real session identifier -- TLS 1.3 doesn't expose
	// one at all. Useful for debug logging, not for tracking sessions.
	TLSSessionID string
	TLSResumed   bool

	ProxyUsed bool
	ProxyType string
	ProxyAddr string

	PoolKey string
}

// Transport dials (and optionally pools and proxies) outbound connections
// for the client engine.
type Transport struct {
	resolver            *net.Resolver
	hostPools           sync.Map // map[string]*hostPool, keyed by target or proxy route
	poolConfig          PoolConfig
	connectionIDCounter uint64

	statsConnectionsReused  uint64
	statsConnectionsCreated uint64
	statsWaitTimeouts       uint64

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a Transport with the default pool configuration.
func New() *Transport {
	return NewWithConfig(DefaultPoolConfig())
}

// NewWithConfig creates a Transport with a custom pool configuration.
func NewWithConfig(config PoolConfig) *Transport {
	t := &Transport{
		resolver:   net.DefaultResolver,
		poolConfig: applyPoolDefaults(config),
		stopChan:   make(chan struct{}),
	}
	go t.cleanupIdleConnections()
	return t
}

// NewWithResolver creates a Transport with a custom resolver and the
// default pool configuration.
func NewWithResolver(resolver *net.Resolver) *Transport {
	return NewWithResolverAndConfig(resolver, DefaultPoolConfig())
}

// NewWithResolverAndConfig creates a Transport with both a custom resolver
// and a custom pool configuration.
func NewWithResolverAndConfig(resolver *net.Resolver, config PoolConfig) *Transport {
	t := &Transport{
		resolver:   resolver,
		poolConfig: applyPoolDefaults(config),
		stopChan:   make(chan struct{}),
	}
	go t.cleanupIdleConnections()
	return t
}

// GetPoolConfig returns the pool configuration this Transport was built with.
func (t *Transport) GetPoolConfig() PoolConfig {
	return t.poolConfig
}

// Connect establishes (or, with ReuseConnection, reuses) a connection to
// config's target, routing through config.Proxy when set and upgrading to
// TLS when config.Scheme is https. timer records phase timings for the
// caller's timing breakdown.
func (t *Transport) Connect(ctx context.Context, config Config, timer *timing.Timer) (net.Conn, *ConnectionMetadata, error) {
	if err := t.validateConfig(config); err != nil {
		return nil, nil, err
	}

	metadata := &ConnectionMetadata{}
	poolKey := poolKeyFor(config)

	if config.ReuseConnection {
		conn, meta, canProceed := t.getFromPool(poolKey)
		if conn != nil && meta != nil {
			meta.ConnectionReused = true
			meta.PoolKey = poolKey
			return conn, meta, nil
		}
		if !canProceed {
			return nil, nil, errors.NewConnectionError(config.Host, config.Port,
				fmt.Errorf("connection pool exhausted for %s (max: %d, timeout: %v)",
					poolKey, t.poolConfig.MaxConnsPerHost, t.poolConfig.WaitTimeout))
		}
		// canProceed but no conn: a slot was reserved, fall through to dial.
	}

	connTimeout := config.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = 10 * time.Second
	}

	var dialAddr string
	var err error
	if config.Proxy != nil && config.Proxy.Type == "socks5" && config.Proxy.ResolveDNSViaProxy && config.ConnectIP == "" {
		// Leave the hostname unresolved so the SOCKS5 proxy resolves it.
		dialAddr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	} else {
		dialAddr, _, err = t.resolveAddress(ctx, config, timer)
		if err != nil {
			return nil, nil, err
		}
	}

	host, portStr, _ := net.SplitHostPort(dialAddr)
	metadata.ConnectedIP = host
	if port, err := strconv.Atoi(portStr); err == nil {
		metadata.ConnectedPort = port
	}

	var conn net.Conn
	if config.Proxy != nil {
		conn, metadata, err = t.connectViaProxy(ctx, config, dialAddr, connTimeout, timer, metadata)
		if err != nil {
			return nil, nil, err // already wrapped by connectViaProxy
		}
	} else {
		conn, err = t.connectTCP(ctx, dialAddr, connTimeout, timer)
		if err != nil {
			return nil, nil, errors.NewConnectionError(config.Host, config.Port, err)
		}
	}

	if conn.LocalAddr() != nil {
		metadata.LocalAddr = conn.LocalAddr().String()
	}
	if conn.RemoteAddr() != nil {
		metadata.RemoteAddr = conn.RemoteAddr().String()
	}
	metadata.ConnectionID = atomic.AddUint64(&t.connectionIDCounter, 1)

	if strings.EqualFold(config.Scheme, "https") {
		conn, err = t.upgradeTLS(ctx, conn, config, timer, metadata)
		if err != nil {
			if conn != nil {
				conn.Close()
			}
			return nil, nil, errors.NewTLSError(config.Host, config.Port, err)
		}
	} else {
		metadata.NegotiatedProtocol = "HTTP/1.1"
	}

	metadata.PoolKey = poolKey
	if config.ReuseConnection {
		atomic.AddUint64(&t.statsConnectionsCreated, 1)
	}

	return conn, metadata, nil
}

// poolKeyFor builds the hostPools key for config, folding in proxy route
// details so a direct connection and a proxied one to the same target
// never share a pool.
func poolKeyFor(config Config) string {
	if config.Proxy == nil {
		return fmt.Sprintf("%s:%d", config.Host, config.Port)
	}
	proxyPort := config.Proxy.Port
	if proxyPort == 0 {
		proxyPort = defaultProxyPort(config.Proxy.Type)
	}
	return fmt.Sprintf("%s:%s:%d->%s:%d", config.Proxy.Type, config.Proxy.Host, proxyPort, config.Host, config.Port)
}

func defaultProxyPort(proxyType string) int {
	switch proxyType {
	case "http":
		return 8080
	case "https":
		return 443
	case "socks4", "socks5":
		return 1080
	default:
		return 0
	}
}

func (t *Transport) validateConfig(config Config) error {
	if config.Host == "" {
		return errors.NewValidationError("host cannot be empty")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535")
	}
	if config.Scheme != "http" && config.Scheme != "https" {
		return errors.NewValidationError("scheme must be http or https")
	}
	if config.DisableSNI && config.SNI != "" {
		return errors.NewValidationError("cannot set both DisableSNI=true and SNI (conflicting options)")
	}
	return nil
}

func (t *Transport) resolveAddress(ctx context.Context, config Config, timer *timing.Timer) (dialAddr string, resolvedIP string, err error) {
	if config.ConnectIP != "" {
		dialAddr = net.JoinHostPort(config.ConnectIP, strconv.Itoa(config.Port))
		return dialAddr, config.ConnectIP, nil
	}

	timer.StartDNS()
	defer timer.EndDNS()

	dnsTimeout := config.DNSTimeout
	if dnsTimeout <= 0 {
		dnsTimeout = config.ConnTimeout
	}
	if dnsTimeout <= 0 {
		dnsTimeout = 5 * time.Second
	}

	ctxLookup, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := t.resolver.LookupIPAddr(ctxLookup, config.Host)
	if err != nil {
		return "", "", errors.NewDNSError(config.Host, err)
	}
	if len(addrs) == 0 {
		return "", "", errors.NewDNSError(config.Host, errors.NewValidationError("no IP addresses found"))
	}

	ip := addrs[0].IP.String()
	dialAddr = net.JoinHostPort(ip, strconv.Itoa(config.Port))
	return dialAddr, ip, nil
}

func (t *Transport) connectTCP(ctx context.Context, dialAddr string, timeout time.Duration, timer *timing.Timer) (net.Conn, error) {
	timer.StartTCP()
	defer timer.EndTCP()

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", dialAddr)
	if err != nil {
		return nil, err
	}

	if t.poolConfig.TCPKeepAlive {
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(t.poolConfig.TCPKeepAlivePeriod)
		}
	}

	return conn, nil
}

func (t *Transport) upgradeTLS(ctx context.Context, conn net.Conn, config Config, timer *timing.Timer, metadata *ConnectionMetadata) (net.Conn, error) {
	timer.StartTLS()
	defer timer.EndTLS()

	handshakeTimeout := config.ConnTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}

	tlsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
		if config.InsecureTLS {
			tlsConfig.InsecureSkipVerify = true
		}
		// This transport only ever speaks HTTP/1.1; never let ALPN drift
		// to h2 even if the caller's TLSConfig requested it.
		tlsConfig.NextProtos = []string{"http/1.1"}
	} else {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: config.InsecureTLS,
			NextProtos:         []string{"http/1.1"},
		}
		if config.MinTLSVersion > 0 {
			tlsConfig.MinVersion = config.MinTLSVersion
		}

		if len(config.CustomCACerts) > 0 {
			rootCAs := x509.NewCertPool()
			for i, caCert := range config.CustomCACerts {
				if ok := rootCAs.AppendCertsFromPEM(caCert); !ok {
					return nil, errors.NewTLSError(config.Host, config.Port,
						errors.NewValidationError(fmt.Sprintf("failed to parse CA certificate at index %d", i)))
				}
			}
			tlsConfig.RootCAs = rootCAs
		}
	}

	ConfigureSNI(tlsConfig, config.SNI, config.DisableSNI, config.Host)

	if config.MinTLSVersion > 0 && tlsConfig.MinVersion == 0 {
		tlsConfig.MinVersion = config.MinTLSVersion
	}
	if config.MaxTLSVersion > 0 && tlsConfig.MaxVersion == 0 {
		tlsConfig.MaxVersion = config.MaxTLSVersion
	}
	if len(config.CipherSuites) > 0 && len(tlsConfig.CipherSuites) == 0 {
		tlsConfig.CipherSuites = config.CipherSuites
	}
	if config.TLSRenegotiation != 0 {
		tlsConfig.Renegotiation = config.TLSRenegotiation
	}

	clientCert, err := t.loadClientCertificate(config)
	if err != nil {
		return nil, errors.NewTLSError(config.Host, config.Port, err)
	}
	if clientCert != nil {
		tlsConfig.Certificates = append(tlsConfig.Certificates, *clientCert)
	}

	if tlsConfig.ServerName != "" {
		metadata.TLSServerName = tlsConfig.ServerName
	} else if !config.DisableSNI {
		metadata.TLSServerName = config.Host
	}

	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(tlsCtx); err != nil {
		conn.Close()
		return nil, err
	}

	state := tlsConn.ConnectionState()
	metadata.TLSVersion = t.tlsVersionString(state.Version)
	metadata.TLSCipherSuite = tls.CipherSuiteName(state.CipherSuite)
	metadata.NegotiatedProtocol = state.NegotiatedProtocol
	if metadata.NegotiatedProtocol == "" {
		metadata.NegotiatedProtocol = "HTTP/1.1"
	}
	metadata.TLSResumed = state.DidResume
	if len(state.TLSUnique) > 0 {
		metadata.TLSSessionID = hex.EncodeToString(state.TLSUnique)
	} else {
		metadata.TLSSessionID = ""
	}

	return tlsConn, nil
}

func (t *Transport) tlsVersionString(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown TLS version: 0x%04X", version)
	}
}

// Close stops the pool's idle-cleanup goroutine and closes every pooled
// connection. Call once the Transport is no longer needed.
func (t *Transport) Close() error {
	close(t.stopChan)
	t.wg.Wait()

	t.hostPools.Range(func(key, value interface{}) bool {
		hp := value.(*hostPool)
		hp.mu.Lock()
		for _, pc := range hp.idle {
			pc.conn.Close()
		}
		hp.idle = nil
		hp.numActive = 0
		hp.mu.Unlock()
		t.hostPools.Delete(key)
		return true
	})

	return nil
}

// loadClientCertificate loads a client certificate for mutual TLS from
// config, preferring inline PEM bytes over file paths. Returns (nil, nil)
// when no client certificate is configured.
func (t *Transport) loadClientCertificate(config Config) (*tls.Certificate, error) {
	hasPEM := len(config.ClientCertPEM) > 0 && len(config.ClientKeyPEM) > 0
	hasFile := config.ClientCertFile != "" && config.ClientKeyFile != ""

	if !hasPEM && !hasFile {
		return nil, nil
	}

	var certPEM, keyPEM []byte
	var err error

	if hasPEM {
		certPEM = config.ClientCertPEM
		keyPEM = config.ClientKeyPEM
	} else {
		certPEM, err = os.ReadFile(config.ClientCertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client certificate file %s: %w", config.ClientCertFile, err)
		}
		keyPEM, err = os.ReadFile(config.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client key file %s: %w", config.ClientKeyFile, err)
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client certificate/key: %w", err)
	}
	return &cert, nil
}

// ConfigureSNI sets tlsConfig.ServerName following this priority: an
// already-set ServerName wins outright; disableSNI leaves it empty;
// otherwise customSNI is used if non-empty, falling back to fallbackHost.
func ConfigureSNI(tlsConfig *tls.Config, customSNI string, disableSNI bool, fallbackHost string) {
	if tlsConfig == nil || tlsConfig.ServerName != "" {
		return
	}
	if disableSNI {
		return
	}
	if customSNI != "" {
		tlsConfig.ServerName = customSNI
	} else {
		tlsConfig.ServerName = fallbackHost
	}
}
