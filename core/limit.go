package core

import (
	"net"

	"golang.org/x/net/netutil"
)

// limitListener caps concurrently open connections with netutil's limiter
// while keeping CloseRead/CloseWrite of the accepted TCP conns reachable.
// Accept must only be called from one goroutine.
type limitListener struct {
	net.Listener // the limiter
	raw          *lastConnListener
}

func newLimitListener(ln net.Listener, n int) net.Listener {
	raw := &lastConnListener{Listener: ln}
	return &limitListener{Listener: netutil.LimitListener(raw, n), raw: raw}
}

func (l *limitListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	raw := l.raw.last
	l.raw.last = nil
	if err != nil {
		return nil, err
	}

	if hc, ok := raw.(halfCloser); ok {
		return &limitedConn{Conn: conn, half: hc}, nil
	}
	return conn, nil
}

// lastConnListener remembers the conn returned by its latest Accept. The
// limiter calls it synchronously from limitListener.Accept.
type lastConnListener struct {
	net.Listener
	last net.Conn
}

func (l *lastConnListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	l.last = conn
	return conn, err
}

// limitedConn is the limiter's conn (Close releases the slot) with the
// half-close methods of the underlying socket.
type limitedConn struct {
	net.Conn
	half halfCloser
}

func (c *limitedConn) CloseRead() error  { return c.half.CloseRead() }
func (c *limitedConn) CloseWrite() error { return c.half.CloseWrite() }
