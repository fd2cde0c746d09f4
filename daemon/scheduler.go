// Package daemon implements the flowgrind daemon's single-threaded
// cooperative event loop: readiness-based multiplexing of many concurrent
// TCP flows, the request/response block protocol, the stochastic traffic
// generator, and interval/final statistics reporting. It is the direct
// analogue of the original daemon's select()-based scheduler in daemon.c,
// rebuilt around golang.org/x/sys/unix.Poll.
package daemon

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/flowgrind/flowgrind/internal/fgtime"
)

// congestionLimit is the number of consecutive late write blocks a flow may
// accumulate before it is terminated when FlowControl is enabled, matching
// CONGESTION_LIMIT in daemon.c.
const congestionLimit = 10000

// defaultPollTimeout bounds how long one event loop iteration waits for
// readiness when nothing is pending, so pacing and reporting deadlines are
// still honored without any I/O occurring.
const defaultPollTimeout = 10 * time.Millisecond

// Scheduler is the daemon's event loop. One Scheduler runs on one goroutine
// for the lifetime of the daemon process; it is the sole mutator of every
// Flow it owns.
type Scheduler struct {
	flows   *FlowList
	cmds    *CommandQueue
	reports *ReportQueue
	log     *zap.SugaredLogger

	pollTimeout time.Duration
	started     bool
	globalStart time.Time

	metrics SchedulerMetrics
	capture CaptureManager
}

// SchedulerMetrics receives operational counters as the event loop runs.
// A nil SchedulerMetrics is simply skipped, so tests may pass none at all.
type SchedulerMetrics interface {
	FlowAdmitted()
	FlowDestroyed()
	CommandProcessed(tag CommandTag)
	ReportEmitted(kind ReportKind)
	ReportDropped()
}

// CaptureManager is the capability trait for optional per-flow packet
// capture (daemon/capture). A nil CaptureManager disables capture
// entirely regardless of per-flow DumpTraffic settings.
type CaptureManager interface {
	Start(flowID int, conn interface{ FD() (int, error) }, dumpDir string) error
	Stop(flowID int)
}

// NewScheduler creates a Scheduler. cmds and reports are normally shared
// with an rpcfacade.Server; metrics and capture may be nil.
func NewScheduler(cmds *CommandQueue, reports *ReportQueue, log *zap.SugaredLogger, metrics SchedulerMetrics, capture CaptureManager) *Scheduler {
	return &Scheduler{
		flows:       NewFlowList(),
		cmds:        cmds,
		reports:     reports,
		log:         log,
		pollTimeout: defaultPollTimeout,
		metrics:     metrics,
		capture:     capture,
	}
}

// SetPollTimeout overrides the default readiness-wait timeout; used by
// tests to drive the loop faster.
func (s *Scheduler) SetPollTimeout(d time.Duration) {
	s.pollTimeout = d
}

func (s *Scheduler) warn(msg string) {
	if s.log != nil {
		s.log.Warn(msg)
	}
}

// pollReg is one entry registered with unix.Poll for a single iteration.
type pollReg struct {
	flow    *Flow
	isWake  bool
	isListen bool
}

// Run drives the event loop until ctx is canceled. It returns nil on
// graceful shutdown (ctx canceled) or a non-nil error only if the readiness
// primitive itself fails, matching the "fatal daemon error aborts the
// daemon" rule in the error handling design.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return nil
		default:
		}

		if err := s.iterate(); err != nil {
			return err
		}
	}
}

func (s *Scheduler) teardown() {
	s.flows.ForEach(func(f *Flow) {
		s.emitReport(f, ReportFinal, fgtime.Now())
		s.destroyFlow(f)
	})
}

func (s *Scheduler) iterate() error {
	regs := []pollReg{{isWake: true}}
	fds := []unix.PollFd{{Fd: int32(fdOf(s.cmds.WakeupFD())), Events: unix.POLLIN}}

	now := fgtime.Now()
	s.driveLateConnects(now)

	s.flows.ForEach(func(f *Flow) {
		switch f.State {
		case StateWaitAccept:
			if f.ListenFD >= 0 {
				regs = append(regs, pollReg{flow: f, isListen: true})
				fds = append(fds, unix.PollFd{Fd: int32(f.ListenFD), Events: unix.POLLIN})
			}
		case StateWaitConnect, StateGrind:
			if f.ConnFD < 0 {
				return
			}
			var events int16
			if f.connecting {
				events |= unix.POLLOUT
			} else {
				if s.writeWantsData(f, now) {
					events |= unix.POLLOUT
				}
				if f.Read.Started && !f.Read.Finished {
					events |= unix.POLLIN
				}
			}
			if events == 0 {
				return
			}
			regs = append(regs, pollReg{flow: f})
			fds = append(fds, unix.PollFd{Fd: int32(f.ConnFD), Events: events})
		}
	})

	_, err := unix.Poll(fds, int(s.pollTimeout.Milliseconds()))
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("daemon: poll: %w", err)
	}

	now = fgtime.Now()

	if fds[0].Revents&unix.POLLIN != 0 {
		s.serviceCommands()
	}

	for i := 1; i < len(fds); i++ {
		reg := regs[i]
		revents := fds[i].Revents
		if revents == 0 {
			continue
		}
		switch {
		case reg.isListen:
			s.handleAcceptReady(reg.flow, revents, now)
		default:
			s.handleDataReady(reg.flow, revents, now)
		}
	}

	s.checkTimers(now)
	s.reapFinished(now)
	return nil
}

func fdOf(f interface{ Fd() uintptr }) int {
	return int(f.Fd())
}

func (s *Scheduler) serviceCommands() {
	for _, cmd := range s.cmds.Drain() {
		s.handleCommand(cmd)
		if s.metrics != nil {
			s.metrics.CommandProcessed(cmd.Tag)
		}
	}
}

func (s *Scheduler) handleAcceptReady(flow *Flow, revents int16, now time.Time) {
	if revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		s.terminateFlow(flow, now, fmt.Errorf("daemon: listener error before accept"))
		return
	}
	if err := acceptOn(flow, s.warn); err != nil {
		s.warn(fmt.Sprintf("flow %d: accept failed: %v", flow.ID, err))
		return
	}
	if s.metrics != nil {
		s.metrics.FlowAdmitted()
	}
	if s.capture != nil && flow.Settings.DumpTraffic {
		_ = s.capture.Start(flow.ID, fdHolder{flow.ConnFD}, "")
	}
}

func (s *Scheduler) handleDataReady(flow *Flow, revents int16, now time.Time) {
	if flow.connecting {
		if revents&(unix.POLLOUT|unix.POLLERR) != 0 {
			s.finishConnect(flow, now)
		}
		return
	}
	if revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		if err := connectError(flow.Conn.(*net.TCPConn)); err != nil {
			s.terminateFlow(flow, now, fmt.Errorf("daemon: socket error: %w", err))
			return
		}
	}
	if revents&unix.POLLIN != 0 {
		s.readData(flow, now)
	}
	if revents&unix.POLLOUT != 0 {
		s.writeData(flow, now)
	}
}

func (s *Scheduler) finishConnect(flow *Flow, now time.Time) {
	if err := connectError(flow.Conn.(*net.TCPConn)); err != nil {
		s.terminateFlow(flow, now, fmt.Errorf("daemon: connect failed: %w", err))
		return
	}
	flow.connecting = false
	flow.State = StateGrind
	if s.metrics != nil {
		s.metrics.FlowAdmitted()
	}
	if s.capture != nil && flow.Settings.DumpTraffic {
		_ = s.capture.Start(flow.ID, fdHolder{flow.ConnFD}, "")
	}
}

// fdHolder adapts a cached int fd to the tiny FD() interface
// CaptureManager expects, without exposing *net.TCPConn to daemon/capture.
type fdHolder struct{ fd int }

func (h fdHolder) FD() (int, error) { return h.fd, nil }

func (s *Scheduler) writeWantsData(f *Flow, now time.Time) bool {
	if len(f.pendingResponse) > f.pendingResponseSent {
		return true
	}
	if !f.Write.Started || f.Write.Finished {
		return false
	}
	if now.Before(f.Write.StartAt) {
		return false
	}
	if f.Write.hasStop() && !now.Before(f.Write.StopAt) {
		return false
	}
	return !now.Before(f.Write.NextAt)
}

// driveLateConnects issues the deferred connect for source flows whose
// LateConnect setting asked to delay connection until their scheduled
// first write, once that moment has arrived.
func (s *Scheduler) driveLateConnects(now time.Time) {
	s.flows.ForEach(func(f *Flow) {
		if f.Role != RoleSource || f.Conn != nil || !f.Settings.LateConnect {
			return
		}
		if !f.Write.Started || now.Before(f.Write.StartAt) {
			return
		}
		if err := beginLateConnect(f, s.warn); err != nil {
			s.terminateFlow(f, now, fmt.Errorf("daemon: late connect: %w", err))
		}
	})
}

func (s *Scheduler) checkTimers(now time.Time) {
	s.flows.ForEach(func(f *Flow) {
		if f.Settings.ReportingInterval <= 0 || f.NextReportAt.IsZero() {
			return
		}
		if now.Before(f.NextReportAt) {
			return
		}
		s.emitReport(f, ReportInterval, now)
		for !f.NextReportAt.After(now) {
			f.NextReportAt = fgtime.Add(f.NextReportAt, f.Settings.ReportingInterval)
		}
	})
}

func (s *Scheduler) reapFinished(now time.Time) {
	var toRemove []int
	s.flows.ForEach(func(f *Flow) {
		if f.FlowControlStop || f.TerminalError != nil {
			s.emitReport(f, ReportFinal, now)
			toRemove = append(toRemove, f.ID)
			return
		}
		if f.State == StateGrind && f.bothDirectionsDone(now) {
			s.emitReport(f, ReportFinal, now)
			toRemove = append(toRemove, f.ID)
		}
	})
	for _, id := range toRemove {
		if f := s.flows.Get(id); f != nil {
			s.destroyFlow(f)
		}
	}
}

func (s *Scheduler) terminateFlow(flow *Flow, now time.Time, err error) {
	flow.TerminalError = err
	s.warn(fmt.Sprintf("flow %d: %v", flow.ID, err))
}

func (s *Scheduler) destroyFlow(f *Flow) {
	if s.capture != nil {
		s.capture.Stop(f.ID)
	}
	if f.Conn != nil {
		f.Conn.Close()
	}
	if f.Listener != nil {
		f.Listener.Close()
	}
	s.flows.Remove(f.ID)
	if s.metrics != nil {
		s.metrics.FlowDestroyed()
	}
}

// admitStartFlows schedules both directions of every admitted flow to start
// at the given start time (a flow itself enters Grind when its connect or
// accept completes), clamped to at least "now" plus a small grace window so the
// daemon never blocks waiting for a controller-supplied timestamp that has
// already passed or that assumed tighter cross-node clock sync than this
// daemon provides.
func admitStartFlows(flows *FlowList, startAt time.Time, now time.Time) {
	const grace = 50 * time.Millisecond
	effective := startAt
	if effective.Before(now.Add(grace)) {
		effective = now.Add(grace)
	}
	flows.ForEach(func(f *Flow) {
		writeStart := fgtime.Add(effective, f.Settings.WriteDelay)
		f.Write.StartAt = writeStart
		if f.Settings.WriteDuration > 0 {
			f.Write.StopAt = fgtime.Add(writeStart, f.Settings.WriteDuration)
		}
		f.Write.Started = true
		f.Write.NextAt = writeStart

		// duration[WRITE] == 0 with duration[READ] > 0 means this flow
		// writes nothing at all; the write side starts finished instead of
		// open-ended, so a pure receiver never spins generating zero-gap
		// zero-size request blocks of its own. A destination still answers
		// request/response traffic regardless, since that goes through the
		// pending-response path rather than this direction's own generator.
		if f.Settings.WriteDuration == 0 && f.Settings.ReadDuration > 0 {
			f.Write.Finished = true
		}

		readStart := fgtime.Add(effective, f.Settings.ReadDelay)
		f.Read.StartAt = readStart
		if f.Settings.ReadDuration > 0 {
			f.Read.StopAt = fgtime.Add(readStart, f.Settings.ReadDuration)
		}
		f.Read.Started = true

		f.FirstReportAt = effective
		f.LastReportAt = effective
		if f.Settings.ReportingInterval > 0 {
			f.NextReportAt = fgtime.Add(effective, f.Settings.ReportingInterval)
		}

	})
}
