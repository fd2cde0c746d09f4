package daemon

import (
	"fmt"
	"net"
)

// AddDestination admits a flow in StateWaitAccept: it resolves the bind
// address, creates a listening socket with an ephemeral port unless one
// was specified in settings.BindAddress, and returns the realized listen
// port. The flow does not become Grind until a peer is accepted by the
// scheduler.
func AddDestination(settings Settings, warn func(string)) (*Flow, int, error) {
	if err := settings.Validate(); err != nil {
		return nil, 0, err
	}

	addr, err := net.ResolveTCPAddr("tcp", settings.BindAddress)
	if err != nil {
		return nil, 0, fmt.Errorf("daemon: resolve bind address %q: %w", settings.BindAddress, err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, 0, fmt.Errorf("daemon: listen: %w", err)
	}

	flow := NewFlow(0, RoleDestination, StateWaitAccept, settings)
	flow.Listener = listener
	if fd, err := rawListenerFD(listener); err == nil {
		flow.ListenFD = fd
	}

	port := listener.Addr().(*net.TCPAddr).Port
	return flow, port, nil
}

// acceptOn completes admission of a destination flow once the scheduler
// observes its listener readable: it accepts the pending connection,
// applies the flow's socket options, and transitions the flow to
// StateGrind. The accepted socket's realized buffer sizes are not compared
// with the listener's.
func acceptOn(flow *Flow, warn func(string)) error {
	listener := flow.Listener.(*net.TCPListener)
	conn, err := listener.Accept()
	if err != nil {
		return fmt.Errorf("daemon: accept: %w", err)
	}
	tcpConn := conn.(*net.TCPConn)

	if err := applySocketOptions(tcpConn, flow.Settings, warn); err != nil {
		tcpConn.Close()
		return err
	}

	flow.Conn = tcpConn
	if fd, err := rawFD(tcpConn); err == nil {
		flow.ConnFD = fd
	}
	flow.State = StateGrind
	listener.Close()
	flow.Listener = nil
	flow.ListenFD = -1
	return nil
}
