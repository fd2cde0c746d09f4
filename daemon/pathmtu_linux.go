//go:build linux

package daemon

import (
	"net"

	"golang.org/x/sys/unix"
)

// pathMTU reads the kernel's current estimate of the path MTU for conn via
// IP_MTU, populated once Path MTU Discovery has observed at least one ICMP
// fragmentation-needed message (or immediately, if the kernel already knew
// the local interface's MTU).
func pathMTU(conn *net.TCPConn) (int, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var mtu int
	var getErr error
	ctlErr := rawConn.Control(func(fd uintptr) {
		mtu, getErr = unix.GetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU)
	})
	if ctlErr != nil {
		return 0, ctlErr
	}
	return mtu, getErr
}
