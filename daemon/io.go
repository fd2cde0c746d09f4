package daemon

import (
	"net"

	"golang.org/x/sys/unix"
)

// rawWrite issues exactly one non-blocking write syscall on conn's fd,
// mirroring write_data's write() call in daemon.c: it never blocks and
// never retries internally. A nil error with n==0 and no data requested is
// impossible; callers distinguish "would block" by checking errIsAgain.
func rawWrite(conn *net.TCPConn, buf []byte) (int, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var werr error
	ctlErr := rawConn.Control(func(fd uintptr) {
		n, werr = unix.Write(int(fd), buf)
	})
	if ctlErr != nil {
		return 0, ctlErr
	}
	return n, werr
}

// rawRead issues exactly one non-blocking read syscall on conn's fd,
// mirroring try_read_n_bytes's recv() call in daemon.c.
func rawRead(conn *net.TCPConn, buf []byte) (int, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var rerr error
	ctlErr := rawConn.Control(func(fd uintptr) {
		n, rerr = unix.Read(int(fd), buf)
	})
	if ctlErr != nil {
		return 0, ctlErr
	}
	return n, rerr
}

// errIsAgain reports whether err is the "would block, try again later"
// signal from a non-blocking syscall.
func errIsAgain(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// errIsInProgress reports whether err is EINPROGRESS, the expected result
// of a non-blocking connect that has not completed yet.
func errIsInProgress(err error) bool {
	return err == unix.EINPROGRESS
}
