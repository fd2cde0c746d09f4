//go:build linux

package capture

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// localEndpoint returns the local port fd is bound to and the name of the
// network interface that owns its local address, so Start can scope the
// pcap BPF filter and live handle to exactly this flow's traffic.
func localEndpoint(fd int) (port int, iface string, err error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, "", fmt.Errorf("getsockname: %w", err)
	}

	var ip net.IP
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		port = v.Port
		ip = net.IP(v.Addr[:])
	case *unix.SockaddrInet6:
		port = v.Port
		ip = net.IP(v.Addr[:])
	default:
		return 0, "", fmt.Errorf("unsupported sockaddr type %T", sa)
	}

	name, err := interfaceForAddr(ip)
	if err != nil {
		return port, "any", nil
	}
	return port, name, nil
}

func interfaceForAddr(ip net.IP) (string, error) {
	if ip.IsUnspecified() {
		return "", fmt.Errorf("unspecified address")
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && ipNet.IP.Equal(ip) {
				return ifi.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no interface owns %s", ip)
}
