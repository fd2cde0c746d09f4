package daemon

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// dialNonblocking creates a TCP socket, binds it to laddr if non-empty,
// and issues a non-blocking connect toward raddr:port. It returns
// immediately after the connect syscall, before the connection completes:
// EINPROGRESS is not an error here, matching source.c's name2socket. The
// caller registers the returned conn's fd for write/error readiness and
// later calls connectError to learn whether the connect actually
// succeeded.
func dialNonblocking(laddr string, raddr *net.TCPAddr) (*net.TCPConn, error) {
	family := unix.AF_INET
	if raddr.IP.To4() == nil {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("daemon: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("daemon: set nonblocking: %w", err)
	}

	if laddr != "" {
		host, err := net.ResolveTCPAddr("tcp", laddr)
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("daemon: resolve bind address: %w", err)
		}
		if err := unix.Bind(fd, tcpAddrToSockaddr(host)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("daemon: bind: %w", err)
		}
	}

	err = unix.Connect(fd, tcpAddrToSockaddr(raddr))
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("daemon: connect: %w", err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("flowgrind-source-%s", raddr))
	conn, cerr := net.FileConn(f)
	f.Close()
	if cerr != nil {
		return nil, fmt.Errorf("daemon: wrap socket: %w", cerr)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("daemon: wrapped connection is not TCP")
	}
	return tcpConn, nil
}

func tcpAddrToSockaddr(addr *net.TCPAddr) unix.Sockaddr {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return sa
}

// connectError checks whether a non-blocking connect issued by
// dialNonblocking has completed successfully, once the scheduler's poll
// reports the fd writable or in error.
func connectError(conn *net.TCPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var soErr int
	ctlErr := rawConn.Control(func(fd uintptr) {
		soErr, _ = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
	})
	if ctlErr != nil {
		return ctlErr
	}
	if soErr != 0 {
		return unix.Errno(soErr)
	}
	return nil
}
