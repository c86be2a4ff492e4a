package core

import (
	"context"
	"fmt"
	"net"
	"os"
)

// ResolveIPv4 returns the IPv4 address the listener binds to: the first IPv4
// address in the order the resolver returns them. An empty host means the
// machine's own hostname.
func ResolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if host == "" {
		name, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("hostname: %w", err)
		}
		host = name
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrNoIPv4Address, host, err)
	}

	if ip := firstIPv4(ips); ip != nil {
		return ip, nil
	}
	return nil, fmt.Errorf("%w %q", ErrNoIPv4Address, host)
}

func firstIPv4(ips []net.IP) net.IP {
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4
		}
	}
	return nil
}
