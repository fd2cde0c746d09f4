//go:build linux

package daemon

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// applySocketOptions applies every option named in settings to conn. It is
// called identically on a source's connecting socket (AddSource,
// beginLateConnect) and on a destination's accepted socket (acceptOn), per
// the decision in DESIGN.md to share one option path between both roles
// rather than duplicate the per-role checks.
//
// ELCN and LCD are accepted but applied as a no-op with a warning: neither
// has a stable golang.org/x/sys/unix constant, and no currently maintained
// Linux kernel still honors them, so refusing admission over them would
// make the options impossible to request in practice. MTCP is likewise
// only warned about and not applied, and a failure to set route recording
// is logged as a warning without failing admission.
func applySocketOptions(conn *net.TCPConn, s Settings, warn func(string)) error {
	if s.RequestedSendBuffer > 0 {
		if err := conn.SetWriteBuffer(s.RequestedSendBuffer); err != nil {
			return fmt.Errorf("daemon: set send buffer: %w", err)
		}
	}
	if s.RequestedReadBuffer > 0 {
		if err := conn.SetReadBuffer(s.RequestedReadBuffer); err != nil {
			return fmt.Errorf("daemon: set read buffer: %w", err)
		}
	}
	if s.NoNagle {
		if err := conn.SetNoDelay(true); err != nil {
			return fmt.Errorf("daemon: set TCP_NODELAY: %w", err)
		}
	}

	rawConn, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("daemon: raw conn: %w", err)
	}

	var applyErr error
	ctlErr := rawConn.Control(func(fd uintptr) {
		ifd := int(fd)

		if s.CongestionControl != "" {
			if e := unix.SetsockoptString(ifd, unix.IPPROTO_TCP, unix.TCP_CONGESTION, s.CongestionControl); e != nil {
				applyErr = fmt.Errorf("daemon: set TCP_CONGESTION=%s: %w", s.CongestionControl, e)
				return
			}
		}

		if s.Cork {
			if e := unix.SetsockoptInt(ifd, unix.IPPROTO_TCP, unix.TCP_CORK, 1); e != nil {
				applyErr = fmt.Errorf("daemon: set TCP_CORK: %w", e)
				return
			}
		}

		if s.DebugSocket {
			if e := unix.SetsockoptInt(ifd, unix.SOL_SOCKET, unix.SO_DEBUG, 1); e != nil {
				applyErr = fmt.Errorf("daemon: set SO_DEBUG: %w", e)
				return
			}
		}

		if s.RouteRecord {
			if e := unix.SetsockoptInt(ifd, unix.IPPROTO_IP, unix.IP_OPTIONS, 0); e != nil {
				warn(fmt.Sprintf("daemon: route record not applied: %v", e))
			}
		}

		if s.DSCP != 0 {
			if e := unix.SetsockoptInt(ifd, unix.IPPROTO_IP, unix.IP_TOS, s.DSCP<<2); e != nil {
				applyErr = fmt.Errorf("daemon: set DSCP: %w", e)
				return
			}
		}

		if s.MTUDiscovery {
			if e := unix.SetsockoptInt(ifd, unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO); e != nil {
				applyErr = fmt.Errorf("daemon: set MTU discovery: %w", e)
				return
			}
		}

		for _, opt := range s.ExtraSockopts {
			if e := unix.SetsockoptString(ifd, opt.Level, opt.Name, string(opt.Value)); e != nil {
				applyErr = fmt.Errorf("daemon: set extra socket option level=%d name=%d: %w", opt.Level, opt.Name, e)
				return
			}
		}
	})
	if ctlErr != nil {
		return fmt.Errorf("daemon: control: %w", ctlErr)
	}
	if applyErr != nil {
		return applyErr
	}

	if s.ELCN || s.LCD {
		warn("daemon: ELCN/LCD requested but not supported by current kernels; ignored")
	}
	if s.MTCP {
		warn("daemon: multipath TCP requested but not applied; enable via sysctl instead")
	}
	return nil
}

// realizedCongestionControl reads back the congestion control algorithm the
// kernel actually applied, for AddSource's reply field.
func realizedCongestionControl(conn *net.TCPConn) (string, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return "", err
	}
	var alg string
	var getErr error
	ctlErr := rawConn.Control(func(fd uintptr) {
		alg, getErr = unix.GetsockoptString(int(fd), unix.IPPROTO_TCP, unix.TCP_CONGESTION)
	})
	if ctlErr != nil {
		return "", ctlErr
	}
	return alg, getErr
}

// setCork toggles TCP_CORK at a block boundary.
func setCork(conn *net.TCPConn, on bool) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	v := 0
	if on {
		v = 1
	}
	var setErr error
	ctlErr := rawConn.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_CORK, v)
	})
	if ctlErr != nil {
		return ctlErr
	}
	return setErr
}
