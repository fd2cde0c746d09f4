//go:build !linux

package daemon

import (
	"fmt"
	"net"
)

// applySocketOptions on non-Linux platforms only has portable options
// (buffer sizes, Nagle) available through the standard library; the rest
// of the Linux-specific option set is accepted but logged as unsupported
// rather than failing admission outright, since a cross-platform build of
// this daemon is still useful for source-only load generation.
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
	if s.CongestionControl != "" || s.Cork || s.DebugSocket || s.RouteRecord ||
		s.DSCP != 0 || s.MTUDiscovery || s.ELCN || s.LCD || s.MTCP || len(s.ExtraSockopts) > 0 {
		warn("daemon: platform-specific socket options are not supported on this OS; ignored")
	}
	return nil
}

func realizedCongestionControl(conn *net.TCPConn) (string, error) {
	return "", errUnsupportedPlatform
}

func setCork(conn *net.TCPConn, on bool) error {
	return nil
}
