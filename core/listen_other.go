//go:build !unix

package core

import (
	"context"
	"net"
	"strconv"
)

// listenTCP4 falls back to the net package; backlog is left to the OS.
func listenTCP4(ip net.IP, port, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp4", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
}
