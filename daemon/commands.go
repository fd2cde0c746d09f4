package daemon

import (
	"fmt"
	"time"

	"github.com/flowgrind/flowgrind/internal/fgtime"
	"github.com/flowgrind/flowgrind/internal/version"
)

// DaemonVersion and DaemonAPILevel identify this build in GetVersion
// replies; cmd/flowgrindd overwrites DaemonVersion at startup with
// internal/version.Version.
var (
	DaemonVersion  = "dev"
	DaemonAPILevel = 1
)

// AddDestinationRequest/Reply, AddSourceRequest/Reply, etc. are the command
// queue payload and reply shapes; rpcfacade translates its own RPC method
// arguments into these.

type AddDestinationRequest struct {
	Settings Settings
}

type AddDestinationReply struct {
	FlowID            int
	ListenPort        int
	RealSendBuffer    int
	RealReadBuffer    int
}

type AddSourceRequest struct {
	Settings Settings
}

type AddSourceReply struct {
	FlowID                   int
	CongestionControlApplied string
	RealSendBuffer           int
	RealReadBuffer           int
}

type StartFlowsRequest struct {
	StartAt time.Time // zero means "start as soon as possible"
}

type StopFlowRequest struct {
	FlowID int // -1 means all flows
}

type GetStatusReply struct {
	Started  bool
	NumFlows int
}

type GetVersionReply struct {
	Version   string
	APILevel  int
	OSName    string
	OSRelease string
}

func (s *Scheduler) handleCommand(cmd *Command) {
	switch cmd.Tag {
	case CmdAddDestination:
		s.cmdAddDestination(cmd)
	case CmdAddSource:
		s.cmdAddSource(cmd)
	case CmdStartFlows:
		s.cmdStartFlows(cmd)
	case CmdStopFlow:
		s.cmdStopFlow(cmd)
	case CmdGetStatus:
		s.cmdGetStatus(cmd)
	case CmdGetVersion:
		s.cmdGetVersion(cmd)
	default:
		Complete(cmd, nil, fmt.Errorf("daemon: unknown command tag %d", cmd.Tag))
	}
}

func (s *Scheduler) cmdAddDestination(cmd *Command) {
	req, ok := cmd.Payload.(AddDestinationRequest)
	if !ok {
		Complete(cmd, nil, fmt.Errorf("daemon: malformed AddDestination payload"))
		return
	}
	flow, port, err := AddDestination(req.Settings, s.warn)
	if err != nil {
		Complete(cmd, nil, err)
		return
	}
	id, err := s.flows.Add(flow)
	if err != nil {
		flow.Listener.Close()
		Complete(cmd, nil, err)
		return
	}
	Complete(cmd, AddDestinationReply{
		FlowID:         id,
		ListenPort:     port,
		RealSendBuffer: req.Settings.RequestedSendBuffer,
		RealReadBuffer: req.Settings.RequestedReadBuffer,
	}, nil)
}

func (s *Scheduler) cmdAddSource(cmd *Command) {
	req, ok := cmd.Payload.(AddSourceRequest)
	if !ok {
		Complete(cmd, nil, fmt.Errorf("daemon: malformed AddSource payload"))
		return
	}
	flow, cc, err := AddSource(req.Settings, s.warn)
	if err != nil {
		Complete(cmd, nil, err)
		return
	}
	id, err := s.flows.Add(flow)
	if err != nil {
		if flow.Conn != nil {
			flow.Conn.Close()
		}
		Complete(cmd, nil, err)
		return
	}
	Complete(cmd, AddSourceReply{
		FlowID:                   id,
		CongestionControlApplied: cc,
		RealSendBuffer:           req.Settings.RequestedSendBuffer,
		RealReadBuffer:           req.Settings.RequestedReadBuffer,
	}, nil)
}

func (s *Scheduler) cmdStartFlows(cmd *Command) {
	req, _ := cmd.Payload.(StartFlowsRequest)
	now := fgtime.Now()
	admitStartFlows(s.flows, req.StartAt, now)
	s.started = true
	s.globalStart = now
	Complete(cmd, nil, nil)
}

func (s *Scheduler) cmdStopFlow(cmd *Command) {
	req, ok := cmd.Payload.(StopFlowRequest)
	if !ok {
		Complete(cmd, nil, fmt.Errorf("daemon: malformed StopFlow payload"))
		return
	}
	now := fgtime.Now()
	if req.FlowID < 0 {
		s.flows.ForEach(func(f *Flow) {
			s.emitReport(f, ReportFinal, now)
			s.destroyFlow(f)
		})
		Complete(cmd, nil, nil)
		return
	}
	f := s.flows.Get(req.FlowID)
	if f == nil {
		// Already stopped (or never existed): StopFlow is idempotent, so
		// replaying it produces no Final report and no error.
		Complete(cmd, nil, nil)
		return
	}
	s.emitReport(f, ReportFinal, now)
	s.destroyFlow(f)
	Complete(cmd, nil, nil)
}

func (s *Scheduler) cmdGetStatus(cmd *Command) {
	Complete(cmd, GetStatusReply{Started: s.started, NumFlows: s.flows.Len()}, nil)
}

func (s *Scheduler) cmdGetVersion(cmd *Command) {
	osName, osRelease := version.OSInfo()
	Complete(cmd, GetVersionReply{
		Version:   DaemonVersion,
		APILevel:  DaemonAPILevel,
		OSName:    osName,
		OSRelease: osRelease,
	}, nil)
}
