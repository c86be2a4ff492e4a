package core

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/tcp-http/core/http"
	"github.com/searchktools/tcp-http/core/observability"
	"github.com/searchktools/tcp-http/core/pools"
	"github.com/searchktools/tcp-http/logger"
)

// Session states
const (
	StateReceiving = iota
	StateDispatching
	StateSending
	StateClosed
)

var stateNames = [...]string{"receiving", "dispatching", "sending", "closed"}

// SessionOptions bounds how a session reads and writes.
type SessionOptions struct {
	ReadChunkSize   int
	MaxRequestSize  int
	ReadTimeout     time.Duration // per read; 0 waits forever
	WriteTimeout    time.Duration // for the whole response; 0 waits forever
	RejectMalformed bool          // reply 400/413 instead of closing silently
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.ReadChunkSize <= 0 {
		o.ReadChunkSize = DefaultReadChunkSize
	}
	if o.MaxRequestSize <= 0 {
		o.MaxRequestSize = DefaultMaxRequestSize
	}
	return o
}

// Session drives one accepted connection from its first read to close. It
// owns the connection and the receive buffer exclusively.
type Session struct {
	conn    net.Conn
	opts    SessionOptions
	handler Handler
	logger  zerolog.Logger
	monitor *observability.Monitor

	bytePool   *pools.BytePool
	bufferPool *pools.BufferPool
	received   *[]byte

	state    atomic.Int32
	bytesIn  int
	bytesOut int
}

// NewSession prepares a session for conn. Pools and monitor may be nil.
func NewSession(conn net.Conn, handler Handler, opts SessionOptions, log zerolog.Logger,
	monitor *observability.Monitor, bytePool *pools.BytePool, bufferPool *pools.BufferPool) *Session {
	if monitor == nil {
		monitor = observability.NewMonitor()
		monitor.SetEnabled(false)
	}
	if bytePool == nil {
		bytePool = pools.NewBytePool()
	}
	if bufferPool == nil {
		bufferPool = pools.NewBufferPool()
	}
	s := &Session{
		conn:       conn,
		opts:       opts.withDefaults(),
		handler:    handler,
		logger:     logger.Component(log, "session").With().Str("remote", conn.RemoteAddr().String()).Logger(),
		monitor:    monitor,
		bytePool:   bytePool,
		bufferPool: bufferPool,
	}
	s.state.Store(StateReceiving)
	return s
}

// State returns the session's current state name. It may be called from
// any goroutine.
func (s *Session) State() string {
	return stateNames[s.state.Load()]
}

// Serve runs the session to completion: receive a full request, hand it to
// the handler, send the handler's bytes and close. Exactly one response is
// sent at most; any failure only affects this connection.
func (s *Session) Serve() {
	outcome := observability.OutcomeServed
	defer func() {
		s.close()
		s.monitor.SessionFinished(outcome, s.bytesIn, s.bytesOut)
	}()

	req, err := s.receive()
	if err != nil {
		outcome = s.abandon(err)
		return
	}

	s.state.Store(StateDispatching)
	response, err := s.dispatch(req)
	if err != nil {
		s.logger.Error().Err(err).Str("path", req.Path).Msg("handler failed")
		outcome = observability.OutcomeHandlerPanic
		return
	}

	s.state.Store(StateSending)
	if err := s.send(response); err != nil {
		s.logger.Error().Err(err).Int("bytes", s.bytesOut).Msg("send failed")
		outcome = observability.OutcomeSendFailed
	}
}

// receive reads chunks until the accumulated bytes parse as a request
func (s *Session) receive() (*http.Request, error) {
	chunk := s.bytePool.Get(s.opts.ReadChunkSize)
	defer s.bytePool.Put(chunk)

	s.received = s.bufferPool.Get(s.opts.ReadChunkSize)

	for {
		if s.opts.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}

		n, err := s.conn.Read(chunk)
		if n > 0 {
			s.bytesIn += n
			*s.received = append(*s.received, chunk[:n]...)

			req, consumed, perr := http.ParseRequest(*s.received)
			switch {
			case perr == nil:
				s.logReceived(consumed)
				return req, nil
			case !errors.Is(perr, http.ErrIncomplete):
				return nil, perr
			}

			if len(*s.received) > s.opts.MaxRequestSize {
				return nil, fmt.Errorf("%w: %d bytes buffered", ErrRequestTooLarge, len(*s.received))
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrPeerClosed
			}
			return nil, err
		}
	}
}

func (s *Session) logReceived(consumed int) {
	data := *s.received
	s.logger.Info().Int("bytes", len(data)).Msg("request received")
	s.logger.Debug().Str("data", string(data[:consumed])).Msg("request text")
	if extra := len(data) - consumed; extra > 0 {
		s.logger.Debug().Int("bytes", extra).Msg("discarding bytes after request")
	}
}

// abandon ends a session that never produced a request
func (s *Session) abandon(err error) observability.Outcome {
	var outcome observability.Outcome
	status := 0

	switch {
	case errors.Is(err, http.ErrInvalidRequest):
		outcome, status = observability.OutcomeMalformed, 400
	case errors.Is(err, ErrRequestTooLarge):
		outcome, status = observability.OutcomeTooLarge, 413
	case errors.Is(err, ErrPeerClosed):
		outcome = observability.OutcomePeerClosed
	case errors.Is(err, os.ErrDeadlineExceeded):
		outcome = observability.OutcomeTimeout
	default:
		outcome = observability.OutcomeReadError
	}

	s.logger.Warn().Err(err).Str("reason", outcome.String()).Int("buffered", s.bytesIn).Msg("session abandoned")

	if status != 0 && s.opts.RejectMalformed {
		s.state.Store(StateSending)
		resp := http.NewResponse(status).Header(http.HeaderConnection, "close").Body("", nil)
		if err := s.send(resp.Bytes()); err != nil {
			s.logger.Debug().Err(err).Msg("error reply not delivered")
		}
	}
	return outcome
}

// dispatch calls the handler, turning a panic into an error
func (s *Session) dispatch(req *http.Request) (response []byte, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		s.monitor.RecordHandler(req.Path, time.Since(start))
	}()

	return s.handler.Handle(req), nil
}

// send writes the whole response
func (s *Session) send(response []byte) error {
	s.logger.Info().Int("bytes", len(response)).Msg("sending response")

	if s.opts.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}

	n, err := s.conn.Write(response)
	s.bytesOut += n
	if err != nil {
		return err
	}

	s.logger.Debug().Int("bytes", n).Msg("response sent")
	return nil
}

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// close shuts down both directions, closes the socket and recycles buffers
func (s *Session) close() {
	if s.state.Swap(StateClosed) == StateClosed {
		return
	}

	if hc, ok := s.conn.(halfCloser); ok {
		hc.CloseWrite()
		hc.CloseRead()
	}
	s.conn.Close()

	if s.received != nil {
		s.bufferPool.Put(s.received)
		s.received = nil
	}
}
