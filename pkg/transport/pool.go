package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// PoolConfig tunes the per-host idle-connection pool Connect consults when
// Config.ReuseConnection is set.
type PoolConfig struct {
	// MaxIdleConnsPerHost caps idle connections kept per host. Default 2.
	MaxIdleConnsPerHost int

	// MaxConnsPerHost caps idle+active connections per host; 0 is unlimited.
	MaxConnsPerHost int

	// MaxIdleTime is how long an idle connection may sit before cleanup
	// closes it. Default 90s.
	MaxIdleTime time.Duration

	// WaitTimeout is how long Connect blocks for a free slot once
	// MaxConnsPerHost is hit; 0 fails immediately instead of waiting.
	WaitTimeout time.Duration

	// TCPKeepAlive enables OS-level keep-alive probes on dialed sockets,
	// which helps getFromPool's liveness check catch dead peers sooner.
	TCPKeepAlive       bool
	TCPKeepAlivePeriod time.Duration

	// StaleCheckThreshold: connections used more recently than this are
	// assumed alive and skip the liveness probe in getFromPool.
	StaleCheckThreshold time.Duration
}

// DefaultPoolConfig returns the pool configuration Connect uses when none
// is supplied explicitly.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConnsPerHost: 2,
		MaxConnsPerHost:     0,
		MaxIdleTime:         90 * time.Second,
		WaitTimeout:         0,
		TCPKeepAlive:        true,
		TCPKeepAlivePeriod:  30 * time.Second,
		StaleCheckThreshold: 1 * time.Second,
	}
}

func applyPoolDefaults(config PoolConfig) PoolConfig {
	if config.MaxIdleConnsPerHost <= 0 {
		config.MaxIdleConnsPerHost = 2
	}
	if config.MaxIdleTime <= 0 {
		config.MaxIdleTime = 90 * time.Second
	}
	if config.TCPKeepAlivePeriod <= 0 {
		config.TCPKeepAlivePeriod = 30 * time.Second
	}
	if config.StaleCheckThreshold <= 0 {
		config.StaleCheckThreshold = 1 * time.Second
	}
	return config
}

// pooledConnection wraps an idle connection with the metadata it was
// established under, so a reused connection can hand back an accurate
// ConnectionMetadata rather than a blank one.
type pooledConnection struct {
	conn      net.Conn
	metadata  ConnectionMetadata
	lastUsed  time.Time
	keepAlive bool
	createdAt time.Time
}

// hostPool holds every pooled connection for one target (or proxy route).
type hostPool struct {
	mu        sync.Mutex
	idle      []*pooledConnection // LIFO: most recently released first
	numActive int
	cond      *sync.Cond
}

func newHostPool() *hostPool {
	hp := &hostPool{idle: make([]*pooledConnection, 0, 4)}
	hp.cond = sync.NewCond(&hp.mu)
	return hp
}

// PoolStats is a read-only snapshot of pool occupancy and lifetime counters.
type PoolStats struct {
	ActiveConns  int
	IdleConns    int
	TotalReused  int
	TotalCreated int
	WaitTimeouts int
	HostStats    map[string]HostPoolStats
}

// HostPoolStats is PoolStats broken out for a single host pool key.
type HostPoolStats struct {
	ActiveConns int
	IdleConns   int
}

func (t *Transport) getOrCreateHostPool(key string) *hostPool {
	val, _ := t.hostPools.LoadOrStore(key, newHostPool())
	return val.(*hostPool)
}

// getFromPool looks for a reusable idle connection under key.
//
// Returns (conn, metadata, true) on a hit, (nil, nil, true) when none is
// idle but a slot was reserved for the caller to dial a new one, or
// (nil, nil, false) when the pool is at MaxConnsPerHost and WaitTimeout
// elapsed before a slot freed up.
func (t *Transport) getFromPool(key string) (net.Conn, *ConnectionMetadata, bool) {
	hp := t.getOrCreateHostPool(key)

	hp.mu.Lock()
	defer hp.mu.Unlock()

	for len(hp.idle) > 0 {
		n := len(hp.idle)
		pc := hp.idle[n-1]
		hp.idle = hp.idle[:n-1]

		if time.Since(pc.lastUsed) > t.poolConfig.MaxIdleTime {
			pc.conn.Close()
			continue
		}

		recentlyUsed := time.Since(pc.lastUsed) < t.poolConfig.StaleCheckThreshold
		if !recentlyUsed && !t.isConnectionAlive(pc.conn) {
			pc.conn.Close()
			continue
		}

		hp.numActive++
		atomic.AddUint64(&t.statsConnectionsReused, 1)
		metaCopy := pc.metadata
		return pc.conn, &metaCopy, true
	}

	maxConns := t.poolConfig.MaxConnsPerHost
	if maxConns > 0 && hp.numActive >= maxConns {
		if t.poolConfig.WaitTimeout <= 0 {
			return nil, nil, false
		}
		deadline := time.Now().Add(t.poolConfig.WaitTimeout)
		for hp.numActive >= maxConns {
			waitTime := time.Until(deadline)
			if waitTime <= 0 {
				atomic.AddUint64(&t.statsWaitTimeouts, 1)
				return nil, nil, false
			}

			done := make(chan struct{})
			go func() {
				hp.cond.Wait()
				close(done)
			}()

			hp.mu.Unlock()
			select {
			case <-done:
				hp.mu.Lock()
				if len(hp.idle) > 0 {
					n := len(hp.idle)
					pc := hp.idle[n-1]
					hp.idle = hp.idle[:n-1]
					hp.numActive++
					atomic.AddUint64(&t.statsConnectionsReused, 1)
					metaCopy := pc.metadata
					return pc.conn, &metaCopy, true
				}
			case <-time.After(waitTime):
				hp.mu.Lock()
				atomic.AddUint64(&t.statsWaitTimeouts, 1)
				return nil, nil, false
			}
		}
	}

	hp.numActive++
	return nil, nil, true
}

// ReleaseConnection returns conn to the idle pool for host:port, or closes
// it if there's no room.
func (t *Transport) ReleaseConnection(host string, port int, conn net.Conn) {
	t.ReleaseConnectionWithMetadata(host, port, conn, nil)
}

// ReleaseConnectionWithMetadata is ReleaseConnection using metadata's
// PoolKey (when set) instead of reconstructing a plain host:port key --
// needed so a proxied connection goes back to its proxy-route pool.
func (t *Transport) ReleaseConnectionWithMetadata(host string, port int, conn net.Conn, metadata *ConnectionMetadata) {
	key := poolLookupKey(host, port, metadata)

	val, ok := t.hostPools.Load(key)
	if !ok {
		conn.Close()
		return
	}

	hp := val.(*hostPool)
	hp.mu.Lock()
	defer hp.mu.Unlock()

	hp.numActive--

	if len(hp.idle) >= t.poolConfig.MaxIdleConnsPerHost {
		conn.Close()
		hp.cond.Signal()
		return
	}

	pc := &pooledConnection{
		conn:      conn,
		lastUsed:  time.Now(),
		keepAlive: true,
		createdAt: time.Now(),
	}
	if metadata != nil {
		pc.metadata = *metadata
	}
	hp.idle = append(hp.idle, pc)
	hp.cond.Signal()
}

// CloseConnection removes conn from the pool (if present) and closes it.
func (t *Transport) CloseConnection(host string, port int, conn net.Conn) {
	t.CloseConnectionWithMetadata(host, port, conn, nil)
}

// CloseConnectionWithMetadata is CloseConnection using metadata's PoolKey
// when set.
func (t *Transport) CloseConnectionWithMetadata(host string, port int, conn net.Conn, metadata *ConnectionMetadata) {
	key := poolLookupKey(host, port, metadata)

	val, ok := t.hostPools.Load(key)
	if !ok {
		conn.Close()
		return
	}

	hp := val.(*hostPool)
	hp.mu.Lock()
	defer hp.mu.Unlock()

	for i, pc := range hp.idle {
		if pc.conn == conn {
			hp.idle = append(hp.idle[:i], hp.idle[i+1:]...)
			pc.conn.Close()
			hp.cond.Signal()
			return
		}
	}

	hp.numActive--
	conn.Close()
	hp.cond.Signal()
}

// poolLookupKey mirrors poolKeyFor's plain "host:port" format for the
// no-proxy case, so Release/Close find the same key Connect stored under.
func poolLookupKey(host string, port int, metadata *ConnectionMetadata) string {
	if metadata != nil && metadata.PoolKey != "" {
		return metadata.PoolKey
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// isConnectionAlive best-effort-probes conn with a near-zero read deadline.
// A timeout means idle-but-alive; any other outcome (data arriving
// unexpectedly, or an error/EOF) is conservatively treated as dead, which
// only costs an extra dial and never serves a broken connection.
func (t *Transport) isConnectionAlive(conn net.Conn) bool {
	conn.SetReadDeadline(time.Now().Add(1 * time.Millisecond))
	defer conn.SetReadDeadline(time.Time{})

	one := make([]byte, 1)
	_, err := conn.Read(one)

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	return false
}

// PoolStats returns a snapshot of current pool occupancy and lifetime
// counters across every host pool.
func (t *Transport) PoolStats() PoolStats {
	stats := PoolStats{HostStats: make(map[string]HostPoolStats)}

	t.hostPools.Range(func(key, value interface{}) bool {
		hp := value.(*hostPool)
		hp.mu.Lock()

		idleCount := len(hp.idle)
		activeCount := hp.numActive
		stats.HostStats[key.(string)] = HostPoolStats{ActiveConns: activeCount, IdleConns: idleCount}
		stats.ActiveConns += activeCount
		stats.IdleConns += idleCount

		hp.mu.Unlock()
		return true
	})

	stats.TotalReused = int(atomic.LoadUint64(&t.statsConnectionsReused))
	stats.TotalCreated = int(atomic.LoadUint64(&t.statsConnectionsCreated))
	stats.WaitTimeouts = int(atomic.LoadUint64(&t.statsWaitTimeouts))

	return stats
}

// cleanupIdleConnections periodically evicts idle connections past
// MaxIdleTime. Runs for the Transport's lifetime until Close.
func (t *Transport) cleanupIdleConnections() {
	t.wg.Add(1)
	defer t.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.hostPools.Range(func(key, value interface{}) bool {
				hp := value.(*hostPool)
				hp.mu.Lock()

				now := time.Now()
				newIdle := make([]*pooledConnection, 0, len(hp.idle))
				for _, pc := range hp.idle {
					if now.Sub(pc.lastUsed) > t.poolConfig.MaxIdleTime {
						pc.conn.Close()
					} else {
						newIdle = append(newIdle, pc)
					}
				}
				hp.idle = newIdle

				hp.mu.Unlock()
				return true
			})
		case <-t.stopChan:
			return
		}
	}
}
