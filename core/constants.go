package core

import (
	"errors"
	"time"
)

// Defaults for Options
const (
	DefaultPort            = 11000
	DefaultBacklog         = 100
	DefaultReadChunkSize   = 1024
	DefaultMaxRequestSize  = 2 * 1024 * 1024 // 2MB
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Error definitions
var (
	ErrPeerClosed      = errors.New("peer closed connection before request completed")
	ErrRequestTooLarge = errors.New("request exceeds maximum size")
	ErrNoIPv4Address   = errors.New("no IPv4 address for host")
	ErrServerClosed    = errors.New("server closed")
	ErrNotListening    = errors.New("engine is not listening")
	ErrAlreadyServing  = errors.New("engine is already serving")
)
