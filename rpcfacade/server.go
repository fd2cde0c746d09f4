// Package rpcfacade is the concrete, replaceable RPC façade the daemon
// exposes over the command table in spec.md §6. It is a net/rpc server
// registering one Go method per command, each translating directly into a
// daemon.Command submitted to the scheduler's CommandQueue and blocking on
// that command's completion channel — exactly the handoff daemon/queue.go
// documents. The wire representation (net/rpc's gob codec) is one concrete
// choice among the Non-goal's "replaceable façades"; nothing in
// daemon/scheduler.go depends on it.
package rpcfacade

import (
	"fmt"
	"net"
	"net/rpc"

	"go.uber.org/zap"

	"github.com/flowgrind/flowgrind/daemon"
)

// GetReportsReply is the GetReports response shape from spec.md §6:
// up to 50 reports plus a has_more flag.
type GetReportsReply struct {
	Reports []daemon.Report
	HasMore bool
}

// FlowgrindService is the net/rpc receiver exposing the command table.
// Every method does the same three things: build a daemon.Command, submit
// it, and translate the reply/err. GetReports is the one method that talks
// to the ReportQueue directly instead, since reports are not part of the
// Command/Done protocol.
type FlowgrindService struct {
	cmds    *daemon.CommandQueue
	reports *daemon.ReportQueue
	log     *zap.SugaredLogger
}

// Server wraps a net/rpc server bound to one FlowgrindService.
type Server struct {
	rpcServer *rpc.Server
	service   *FlowgrindService
	listener  net.Listener
}

// NewServer creates a Server around the scheduler's command/report queues.
// Call Serve to accept connections; Close stops accepting and releases the
// listener.
func NewServer(cmds *daemon.CommandQueue, reports *daemon.ReportQueue, log *zap.SugaredLogger) (*Server, error) {
	svc := &FlowgrindService{cmds: cmds, reports: reports, log: log}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Flowgrind", svc); err != nil {
		return nil, fmt.Errorf("rpcfacade: register: %w", err)
	}
	return &Server{rpcServer: rpcServer, service: svc}, nil
}

// Serve listens on bindAddr and accepts RPC connections until the listener
// is closed. It returns the bound address (useful when bindAddr's port is
// 0) and runs the accept loop in a background goroutine.
func (s *Server) Serve(bindAddr string) (string, error) {
	l, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return "", fmt.Errorf("rpcfacade: listen: %w", err)
	}
	s.listener = l
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go s.rpcServer.ServeConn(conn)
		}
	}()
	return l.Addr().String(), nil
}

// Close stops accepting new RPC connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *FlowgrindService) submit(tag daemon.CommandTag, payload any) (any, error) {
	cmd := &daemon.Command{Tag: tag, Payload: payload}
	s.cmds.Submit(cmd)
	return cmd.Reply, cmd.Err
}

// AddDestination admits a flow in WaitAccept.
func (s *FlowgrindService) AddDestination(req daemon.AddDestinationRequest, reply *daemon.AddDestinationReply) error {
	r, err := s.submit(daemon.CmdAddDestination, req)
	if err != nil {
		return err
	}
	*reply = r.(daemon.AddDestinationReply)
	return nil
}

// AddSource admits a flow in WaitConnect.
func (s *FlowgrindService) AddSource(req daemon.AddSourceRequest, reply *daemon.AddSourceReply) error {
	r, err := s.submit(daemon.CmdAddSource, req)
	if err != nil {
		return err
	}
	*reply = r.(daemon.AddSourceReply)
	return nil
}

// StartFlows schedules both directions of every admitted flow to start.
func (s *FlowgrindService) StartFlows(req daemon.StartFlowsRequest, reply *struct{}) error {
	_, err := s.submit(daemon.CmdStartFlows, req)
	return err
}

// StopFlow stops one flow (or all, if req.FlowID < 0), emitting Final
// report(s) first.
func (s *FlowgrindService) StopFlow(req daemon.StopFlowRequest, reply *struct{}) error {
	_, err := s.submit(daemon.CmdStopFlow, req)
	return err
}

// GetStatus is a cheap poll of whether the daemon has started flows and
// how many it currently holds.
func (s *FlowgrindService) GetStatus(_ struct{}, reply *daemon.GetStatusReply) error {
	r, err := s.submit(daemon.CmdGetStatus, nil)
	if err != nil {
		return err
	}
	*reply = r.(daemon.GetStatusReply)
	return nil
}

// GetVersion identifies the daemon build.
func (s *FlowgrindService) GetVersion(_ struct{}, reply *daemon.GetVersionReply) error {
	r, err := s.submit(daemon.CmdGetVersion, nil)
	if err != nil {
		return err
	}
	*reply = r.(daemon.GetVersionReply)
	return nil
}

// GetReports drains up to 50 pending reports from the scheduler's report
// queue. It bypasses the command queue entirely: reports are produced
// continuously by the event loop and consumed by polling, with no
// request/reply coupling to a specific loop iteration.
func (s *FlowgrindService) GetReports(_ struct{}, reply *GetReportsReply) error {
	reports, hasMore := s.reports.Take()
	reply.Reports = reports
	reply.HasMore = hasMore
	return nil
}
