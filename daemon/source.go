package daemon

import (
	"fmt"
	"net"
)

// AddSource admits a flow in StateWaitConnect. Unless settings.LateConnect
// is set, it issues the non-blocking connect immediately (admission-time
// eager connect); a late-connecting flow instead performs the connect at
// its scheduled first write, handled by the scheduler.
func AddSource(settings Settings, warn func(string)) (*Flow, string, error) {
	if err := settings.Validate(); err != nil {
		return nil, "", err
	}
	if settings.DestinationHost == "" || settings.DestinationPort == 0 {
		return nil, "", fmt.Errorf("daemon: source flow requires a destination host and port")
	}

	raddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", settings.DestinationHost, settings.DestinationPort))
	if err != nil {
		return nil, "", fmt.Errorf("daemon: resolve destination: %w", err)
	}

	flow := NewFlow(0, RoleSource, StateWaitConnect, settings)

	if settings.LateConnect {
		return flow, "", nil
	}

	conn, err := dialNonblocking(settings.BindAddress, raddr)
	if err != nil {
		return nil, "", fmt.Errorf("daemon: connect: %w", err)
	}
	if err := applySocketOptions(conn, settings, warn); err != nil {
		conn.Close()
		return nil, "", err
	}
	flow.Conn = conn
	flow.connecting = true
	if fd, err := rawFD(conn); err == nil {
		flow.ConnFD = fd
	}

	cc, _ := realizedCongestionControl(conn)
	return flow, cc, nil
}

// beginLateConnect performs the connect for a late-connecting source flow
// at its scheduled first write, called by the scheduler rather than at
// admission time.
func beginLateConnect(flow *Flow, warn func(string)) error {
	raddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", flow.Settings.DestinationHost, flow.Settings.DestinationPort))
	if err != nil {
		return err
	}
	conn, err := dialNonblocking(flow.Settings.BindAddress, raddr)
	if err != nil {
		return err
	}
	if err := applySocketOptions(conn, flow.Settings, warn); err != nil {
		conn.Close()
		return err
	}
	flow.Conn = conn
	flow.connecting = true
	if fd, err := rawFD(conn); err == nil {
		flow.ConnFD = fd
	}
	return nil
}
