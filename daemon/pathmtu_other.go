//go:build !linux

package daemon

import "net"

func pathMTU(conn *net.TCPConn) (int, error) {
	return 0, errUnsupportedPlatform
}
