package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/tcp-http/core/http"
)

func startEngine(t *testing.T, opts Options, handler Handler) (*Engine, context.CancelFunc, <-chan error) {
	t.Helper()

	opts.Host = "127.0.0.1"
	e := NewEngine(opts, handler, zerolog.Nop())
	if err := e.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		e.Shutdown(shutdownCtx)
	})
	return e, cancel, errc
}

func roundTrip(t *testing.T, addr net.Addr, request string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(resp)
}

func TestEngineServesRequest(t *testing.T) {
	e, _, _ := startEngine(t, Options{}, echoPath)

	resp := roundTrip(t, e.Addr(), "GET /users/1 HTTP/1.1\r\nA: 1\r\nB: 2\r\n\r\n")
	if !strings.HasSuffix(resp, "\r\n\r\n/users/1") {
		t.Errorf("response = %q", resp)
	}

	stats := e.Stats()
	if stats.Accepted != 1 {
		t.Errorf("Accepted = %d", stats.Accepted)
	}
	if gets := e.BufferStats().TotalGets; gets != 1 {
		t.Errorf("buffer pool gets = %d", gets)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEngineLogComponents(t *testing.T) {
	out := &lockedBuffer{}
	e := NewEngine(Options{Host: "127.0.0.1"}, echoPath, zerolog.New(out))
	if err := e.Listen(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go e.Serve(ctx)

	roundTrip(t, e.Addr(), "GET /x HTTP/1.1\r\n\r\n")
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	e.Shutdown(shutdownCtx)

	want := map[string]string{
		"connection accepted": `"component":"engine"`,
		"request received":    `"component":"session"`,
		"sending response":    `"component":"session"`,
	}
	for _, line := range strings.Split(out.String(), "\n") {
		for msg, component := range want {
			if !strings.Contains(line, `"message":"`+msg+`"`) {
				continue
			}
			if !strings.Contains(line, component) || strings.Count(line, `"component"`) != 1 {
				t.Errorf("%s logged with wrong component: %s", msg, line)
			}
			delete(want, msg)
		}
	}
	if len(want) != 0 {
		t.Errorf("messages not logged: %v", want)
	}
}

func TestEngineStalledSessionDoesNotBlockOthers(t *testing.T) {
	e, _, _ := startEngine(t, Options{}, echoPath)

	stalled, err := net.Dial("tcp", e.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer stalled.Close()
	if _, err := stalled.Write([]byte("GET /slow HTTP/1.1\r\n")); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		resp := roundTrip(t, e.Addr(), "GET /fast HTTP/1.1\r\n\r\n")
		if !strings.HasSuffix(resp, "/fast") {
			t.Fatalf("request %d: response = %q", i, resp)
		}
	}
}

func TestEngineMaxSessions(t *testing.T) {
	e, _, _ := startEngine(t, Options{MaxSessions: 1}, echoPath)

	first, err := net.Dial("tcp", e.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	first.Write([]byte("GET /first HTTP/1.1\r\n"))

	second, err := net.Dial("tcp", e.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	second.Write([]byte("GET /second HTTP/1.1\r\n\r\n"))

	// Not admitted while the first session holds the only slot
	second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 64)
	if _, err := second.Read(buf); err == nil {
		t.Fatal("second connection served while first was in flight")
	} else if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("unexpected read error %v", err)
	}

	first.Close()

	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := io.ReadAll(second)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(resp), "/second") {
		t.Errorf("response = %q", resp)
	}
}

func TestEngineCancelStopsServe(t *testing.T) {
	e, cancel, errc := startEngine(t, Options{}, echoPath)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if _, err := net.DialTimeout("tcp", e.Addr().String(), time.Second); err == nil {
		t.Error("listener still accepting after cancel")
	}
	if err := e.Serve(context.Background()); !errors.Is(err, ErrServerClosed) {
		t.Errorf("second Serve = %v, want ErrServerClosed", err)
	}
}

func TestEngineShutdownClosesStalledSessions(t *testing.T) {
	e, _, errc := startEngine(t, Options{}, echoPath)

	stalled, err := net.Dial("tcp", e.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer stalled.Close()
	stalled.Write([]byte("GET / HTTP/1.1\r\n"))

	// let the accept loop admit it
	deadline := time.Now().Add(5 * time.Second)
	for e.Stats().Accepted == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := e.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown = %v, want deadline exceeded", err)
	}
	if err := <-errc; err != nil {
		t.Errorf("Serve returned %v", err)
	}

	stalled.SetReadDeadline(time.Now().Add(5 * time.Second))
	if n, _ := stalled.Read(make([]byte, 1)); n != 0 {
		t.Error("stalled connection received data")
	}
}

func TestEngineServeRequiresListen(t *testing.T) {
	e := NewEngine(Options{}, echoPath, zerolog.Nop())
	if err := e.Serve(context.Background()); !errors.Is(err, ErrNotListening) {
		t.Errorf("Serve = %v", err)
	}
	if e.Addr() != nil {
		t.Error("Addr before Listen")
	}
}

func TestResolveIPv4(t *testing.T) {
	ip, err := ResolveIPv4(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if !ip.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Errorf("ip = %v", ip)
	}

	if _, err := ResolveIPv4(context.Background(), "::1"); !errors.Is(err, ErrNoIPv4Address) {
		t.Errorf("ResolveIPv4(::1) error = %v", err)
	}
}

func TestFirstIPv4KeepsResolverOrder(t *testing.T) {
	ips := []net.IP{
		net.ParseIP("2001:db8::1"),
		net.ParseIP("10.0.0.2"),
		net.ParseIP("9.0.0.1"),
	}
	if got := firstIPv4(ips); !got.Equal(net.IPv4(10, 0, 0, 2)) {
		t.Errorf("firstIPv4 = %v, want 10.0.0.2", got)
	}
	if got := firstIPv4(ips[:1]); got != nil {
		t.Errorf("firstIPv4 of IPv6-only list = %v", got)
	}
}

func TestListenBindFailure(t *testing.T) {
	e, _, _ := startEngine(t, Options{}, echoPath)
	port := e.Addr().(*net.TCPAddr).Port

	other := NewEngine(Options{Host: "127.0.0.1", Port: port}, HandlerFunc(func(*http.Request) []byte { return nil }), zerolog.Nop())
	if err := other.Listen(context.Background()); err == nil {
		t.Error("second bind on the same port succeeded")
	}
}
