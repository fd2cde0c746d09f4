package daemon

import (
	"net"
	"time"
)

// Status bit layout (see DESIGN.md "interval report status bits"): we do
// not reconstruct the undocumented ASCII-letter packing of the original
// daemon's debug status string. Instead Report.Status is an opaque bitset
// with a layout documented here, reusable by any report consumer that
// wants finer-grained detail than the Kind field.
const (
	statusWriteFinished uint16 = 1 << iota
	statusReadFinished
	statusConnecting
	statusFlowControlStop
	statusHasTerminalError
	statusCorked
)

func flowStatus(f *Flow) uint16 {
	var st uint16
	if f.Write.Finished {
		st |= statusWriteFinished
	}
	if f.Read.Finished {
		st |= statusReadFinished
	}
	if f.connecting {
		st |= statusConnecting
	}
	if f.FlowControlStop {
		st |= statusFlowControlStop
	}
	if f.TerminalError != nil {
		st |= statusHasTerminalError
	}
	if f.CorkEngaged {
		st |= statusCorked
	}
	return st
}

// emitReport builds a Report for kind from flow's current accumulator and
// pushes it onto the scheduler's report queue. Interval reports whose
// window is suspiciously short (less than 20% of the configured interval)
// are suppressed, guarding against spurious wake-ups right after the
// previous interval fired.
func (s *Scheduler) emitReport(flow *Flow, kind ReportKind, now time.Time) {
	var acc Accumulator
	switch kind {
	case ReportInterval:
		acc = flow.Stats.Interval
		acc.Begin = flow.LastReportAt
		acc.End = now

		if flow.Settings.ReportingInterval > 0 {
			elapsed := now.Sub(flow.LastReportAt).Seconds()
			if elapsed < 0.2*flow.Settings.ReportingInterval {
				return
			}
		}
		flow.LastReportAt = now
		flow.Stats.Interval.reset()
	case ReportFinal:
		acc = flow.Stats.Final
		acc.Begin = flow.FirstReportAt
		acc.End = now
	}

	report := Report{
		FlowID:      flow.ID,
		Kind:        kind,
		Accumulator: acc,
		Status:      flowStatus(flow),
	}

	if flow.Conn != nil {
		if tcpConn, ok := flow.Conn.(*net.TCPConn); ok {
			report.KernelSnapshot = sampleTCPInfo(tcpConn)
			if mtu, err := pathMTU(tcpConn); err == nil {
				report.PathMTU = mtu
			}
			if kind == ReportFinal {
				if laddr, ok := tcpConn.LocalAddr().(*net.TCPAddr); ok {
					if mtu, err := interfaceMTU(laddr); err == nil {
						report.InterfaceMTU = mtu
					}
				}
			}
		}
	}

	dropped := s.reports.Push(report)
	if dropped && s.metrics != nil {
		s.metrics.ReportDropped()
	} else if s.metrics != nil {
		s.metrics.ReportEmitted(kind)
	}
}
