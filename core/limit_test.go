package core

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestLimitListenerKeepsHalfClose(t *testing.T) {
	inner, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ln := newLimitListener(inner, 1)
	defer ln.Close()

	client, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	hc, ok := conn.(halfCloser)
	if !ok {
		t.Fatalf("accepted %T does not expose CloseRead/CloseWrite", conn)
	}

	conn.Write([]byte("hi"))
	if err := hc.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(got) != "hi" {
		t.Errorf("client read %q", got)
	}
	conn.Close()
}

func TestLimitListenerReleasesSlotOnClose(t *testing.T) {
	inner, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ln := newLimitListener(inner, 1)
	defer ln.Close()

	accepted := make(chan net.Conn)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				close(accepted)
				return
			}
			accepted <- c
		}
	}()

	first, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	c1 := <-accepted

	second, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	select {
	case <-accepted:
		t.Fatal("second connection accepted while the only slot was held")
	case <-time.After(100 * time.Millisecond):
	}

	c1.Close()
	select {
	case c2 := <-accepted:
		if _, ok := c2.(halfCloser); !ok {
			t.Errorf("second conn %T lost half-close", c2)
		}
		c2.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("slot not released by Close")
	}
}
