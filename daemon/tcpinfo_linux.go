//go:build linux

package daemon

import (
	"net"

	"golang.org/x/sys/unix"
)

// sampleTCPInfo reads the kernel's tcp_info for conn via getsockopt, the
// same mechanism runZeroInc-sockstats and the doubleZero BGP collector use
// to reach raw socket options from a net.Conn's SyscallConn.
func sampleTCPInfo(conn net.Conn) KernelSnapshot {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return KernelSnapshot{}
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return KernelSnapshot{}
	}

	var snap KernelSnapshot
	ctlErr := rawConn.Control(func(fd uintptr) {
		info, err := unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
		if err != nil {
			return
		}
		snap = KernelSnapshot{
			HasInfo:      true,
			State:        info.State,
			CAState:      info.Ca_state,
			RTTMicros:    info.Rtt,
			RTTVarMicros: info.Rttvar,
			SndCwnd:      info.Snd_cwnd,
			Retransmits:  uint32(info.Retransmits),
			TotalRetrans: info.Total_retrans,
		}
	})
	if ctlErr != nil {
		return KernelSnapshot{}
	}
	return snap
}
