package daemon

import (
	"errors"
	"net"
)

var errUnsupportedPlatform = errors.New("daemon: not supported on this platform")
var errTooManyFlows = errors.New("daemon: flow list is full")

// splitHostPort extracts the host from a net.Addr, which is always a
// *net.TCPAddr in this daemon.
func splitHostPort(addr net.Addr) (string, string, error) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return net.SplitHostPort(addr.String())
	}
	return tcpAddr.IP.String(), "", nil
}
