// Package constants defines magic numbers and default values used throughout go-rawhttp
package constants

import "time"

// Connection timeouts and limits
const (
	DefaultIdleTimeout     = 90 * time.Second
	DefaultConnTimeout     = 10 * time.Second
	DefaultReadTimeout     = 30 * time.Second
	DefaultPingInterval    = 15 * time.Second
	MaxConnectionIdleTime  = 5 * time.Minute
	HealthCheckInterval    = 30 * time.Second
	CleanupInterval        = 30 * time.Second
)

// HTTP limits
const (
	MaxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB
)

// Buffer limits
const (
	DefaultBodyMemLimit = 4 * 1024 * 1024 // 4MB
	MaxRawBufferSize    = 100 * 1024 * 1024 // 100MB cap for raw buffer
)

// Server-side request body and header limits
const (
	// DefaultMaxBodySize bounds the request body read by the pipeline for
	// non-deferred routes. Exceeding it yields 413.
	DefaultMaxBodySize = 1 * 1024 * 1024 // 1MiB

	// DefaultMaxHeaderBytes bounds the combined size of the request line and headers.
	DefaultMaxHeaderBytes = 1 * 1024 * 1024 // 1MiB

	// DefaultReadBufferStep is the growth step used by the server's read buffer.
	DefaultReadBufferStep = 64 * 1024 // 64KiB

	// DefaultMaxListeningAttempts bounds how many times Listen retries a bind failure.
	DefaultMaxListeningAttempts = 3

	// DefaultShutdownDrainTimeout bounds how long Stop() waits for in-flight handlers.
	DefaultShutdownDrainTimeout = 10 * time.Second
)

// WebSocket limits
const (
	// DefaultMaxWebSocketMessageSize is the default cap on a reassembled message.
	DefaultMaxWebSocketMessageSize = 16 * 1024 * 1024 // 16MiB

	// MaxControlFramePayload is the RFC 6455 control frame payload cap.
	MaxControlFramePayload = 125
)

// Compression policy
const (
	// CompressionThreshold is the minimum response body size eligible for compression.
	CompressionThreshold = 200 // bytes
)

// Connection pool (client-side) resource defaults
const (
	DefaultPerHostIdleCap   = 8
	DefaultIdleConnLifetime = 60 * time.Second
)
