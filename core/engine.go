package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/tcp-http/core/http"
	"github.com/searchktools/tcp-http/core/observability"
	"github.com/searchktools/tcp-http/core/pools"
	"github.com/searchktools/tcp-http/logger"
)

// Handler turns a complete request into the full bytes of a response.
type Handler interface {
	Handle(req *http.Request) []byte
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(req *http.Request) []byte

// Handle calls f(req)
func (f HandlerFunc) Handle(req *http.Request) []byte {
	return f(req)
}

// Options configures an Engine.
type Options struct {
	Host        string // resolved to its first IPv4 address; empty means this machine's hostname
	Port        int
	Backlog     int
	MaxSessions int // 0 admits without limit
	Session     SessionOptions
}

// Engine owns the listening socket. A single loop accepts one connection at
// a time and hands each to its own Session goroutine, so admission is
// sequential while accepted sessions run concurrently.
type Engine struct {
	opts    Options
	handler Handler
	logger  zerolog.Logger
	base    zerolog.Logger // sessions derive their own component logger from it

	ln         net.Listener
	acceptDone chan struct{}
	serving    atomic.Bool
	closed     atomic.Bool

	sessions    sync.WaitGroup
	connections map[*Session]struct{}
	connMu      sync.Mutex

	monitor    *observability.Monitor
	bytePool   *pools.BytePool
	bufferPool *pools.BufferPool
}

// NewEngine creates an engine; call Listen then Serve, or Run.
func NewEngine(opts Options, handler Handler, log zerolog.Logger) *Engine {
	if opts.Backlog <= 0 {
		opts.Backlog = DefaultBacklog
	}
	opts.Session = opts.Session.withDefaults()

	return &Engine{
		opts:        opts,
		handler:     handler,
		logger:      logger.Component(log, "engine"),
		base:        log,
		connections: make(map[*Session]struct{}),
		monitor:     observability.NewMonitor(),
		bytePool:    pools.NewBytePool(),
		bufferPool:  pools.NewBufferPool(),
	}
}

// Listen resolves the host's IPv4 address and binds the listening socket.
func (e *Engine) Listen(ctx context.Context) error {
	ip, err := ResolveIPv4(ctx, e.opts.Host)
	if err != nil {
		return err
	}

	ln, err := listenTCP4(ip, e.opts.Port, e.opts.Backlog)
	if err != nil {
		return err
	}

	if e.opts.MaxSessions > 0 {
		ln = newLimitListener(ln, e.opts.MaxSessions)
	}

	e.ln = ln
	e.acceptDone = make(chan struct{})

	e.logger.Info().
		Str("addr", ln.Addr().String()).
		Int("backlog", e.opts.Backlog).
		Int("max_sessions", e.opts.MaxSessions).
		Msg("🚀 listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (e *Engine) Addr() net.Addr {
	if e.ln == nil {
		return nil
	}
	return e.ln.Addr()
}

// Run binds and serves until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Listen(ctx); err != nil {
		return err
	}
	return e.Serve(ctx)
}

// Serve runs the admission loop until ctx is cancelled or Shutdown is
// called, in which case it returns nil.
func (e *Engine) Serve(ctx context.Context) error {
	if e.ln == nil {
		return ErrNotListening
	}
	if e.closed.Load() {
		return ErrServerClosed
	}
	if !e.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	defer close(e.acceptDone)

	stop := context.AfterFunc(ctx, func() { e.closeListener() })
	defer stop()

	var tempDelay time.Duration
	for {
		e.logger.Debug().Msg("waiting for a connection")

		conn, err := e.ln.Accept()
		if err != nil {
			if e.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			e.logger.Error().Err(err).Dur("retry_in", tempDelay).Msg("accept error")
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		e.admit(conn)
	}
}

// admit starts a session for conn without waiting for it
func (e *Engine) admit(conn net.Conn) {
	e.logger.Info().
		Str("local", conn.LocalAddr().String()).
		Str("remote", conn.RemoteAddr().String()).
		Msg("connection accepted")

	s := NewSession(conn, e.handler, e.opts.Session, e.base, e.monitor, e.bytePool, e.bufferPool)
	e.monitor.SessionStarted()

	e.connMu.Lock()
	e.connections[s] = struct{}{}
	e.connMu.Unlock()

	e.sessions.Add(1)
	go func() {
		defer e.sessions.Done()
		defer func() {
			e.connMu.Lock()
			delete(e.connections, s)
			e.connMu.Unlock()
		}()

		s.Serve()
	}()
}

func (e *Engine) closeListener() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.ln.Close()
}

// Shutdown stops accepting, then waits for in-flight sessions until ctx is
// done, after which remaining connections are closed.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.ln == nil {
		return ErrNotListening
	}

	e.closeListener()
	if e.serving.Load() {
		<-e.acceptDone
	}

	done := make(chan struct{})
	go func() {
		e.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	e.connMu.Lock()
	for s := range e.connections {
		s.conn.Close()
	}
	e.connMu.Unlock()

	<-done
	return ctx.Err()
}

// Stats returns a snapshot of connection and handler metrics.
func (e *Engine) Stats() observability.Snapshot {
	return e.monitor.Snapshot()
}

// BufferStats reports how the receive buffer pool has been used.
func (e *Engine) BufferStats() pools.BufferStats {
	return e.bufferPool.Stats()
}
