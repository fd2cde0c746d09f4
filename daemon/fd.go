package daemon

import (
	"fmt"
	"net"
)

// rawFD extracts the underlying file descriptor from a net.Conn, so it can
// be registered with unix.Poll. Flows cache the result at admission/accept
// time rather than re-deriving it every scheduler iteration.
func rawFD(conn net.Conn) (int, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return 0, fmt.Errorf("daemon: not a TCP connection: %T", conn)
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctlErr := rawConn.Control(func(v uintptr) {
		fd = int(v)
	})
	if ctlErr != nil {
		return 0, ctlErr
	}
	return fd, nil
}

// rawListenerFD extracts the underlying file descriptor from a
// net.Listener.
func rawListenerFD(l net.Listener) (int, error) {
	tcpListener, ok := l.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("daemon: not a TCP listener: %T", l)
	}
	rawConn, err := tcpListener.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctlErr := rawConn.Control(func(v uintptr) {
		fd = int(v)
	})
	if ctlErr != nil {
		return 0, ctlErr
	}
	return fd, nil
}
