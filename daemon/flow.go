package daemon

import (
	"net"
	"time"

	"github.com/flowgrind/flowgrind/internal/fgmath"
	"github.com/flowgrind/flowgrind/internal/trafgen"
)

// State is the coarse admission state of a Flow.
type State int

const (
	// StateWaitConnect is a source flow that has not yet completed (or, for
	// late connectors, started) its connect.
	StateWaitConnect State = iota
	// StateWaitAccept is a destination flow waiting for its listener to
	// accept a peer.
	StateWaitAccept
	// StateGrind is an admitted, connected flow actively being scheduled.
	StateGrind
)

// Direction tracks the scheduling state of one data direction (read or
// write) of a flow.
type Direction struct {
	StartAt time.Time
	StopAt  time.Time // zero means open-ended
	Started bool
	Finished bool

	// NextAt is the earliest time the next operation in this direction may
	// run. For the write direction this is advanced by the inter-packet
	// gap; for read it is unused.
	NextAt time.Time
}

// hasStop reports whether d has a configured stop time.
func (d Direction) hasStop() bool {
	return !d.StopAt.IsZero()
}

// Flow is the complete state of one admitted test flow. After admission it
// is owned exclusively by the scheduler's event loop goroutine; nothing
// else may read or write its fields.
type Flow struct {
	ID   int
	Role Role
	State State

	Settings Settings

	Conn     net.Conn
	Listener net.Listener
	ConnFD   int // -1 until Conn is set
	ListenFD int // -1 until Listener is set
	connecting bool // true between dialNonblocking and a confirmed connect

	Write Direction
	Read  Direction

	// Traffic generation, one Generator per flow (request/response sizes
	// and inter-packet gap all draw from the same per-flow source).
	rngSource *fgmath.Source
	Traffic   *trafgen.Generator

	// Write-side block progress.
	CurrentWriteBlockSize   int
	CurrentResponseSize     int
	InBlockBytesWritten     int
	LastBlockWrittenAt      time.Time
	CongestionCount         int
	CorkEngaged             bool

	// Read-side block progress.
	headerBuf             [24]byte
	headerBytesRead        int
	haveHeader             bool
	CurrentReadBlockSize   int
	CurrentReadRequestSize int
	InBlockBytesRead       int
	LastBlockReadAt        time.Time

	// Pending response awaiting a free write opportunity (request/response
	// mode on the destination/read side).
	pendingResponse       []byte
	pendingResponseSent   int
	pendingAttempts       int
	pendingHeaderSentSec  int64
	pendingHeaderSentNsec int64

	writeBuf []byte
	readBuf  []byte

	// Reporting.
	FirstReportAt time.Time
	LastReportAt  time.Time
	NextReportAt  time.Time

	Stats FlowStats

	// FlowControlStop is set when the congestion counter crossed the
	// limit and FlowControl was requested; the scheduler destroys the flow
	// on the next iteration.
	FlowControlStop bool

	// TerminalError is set once the flow has encountered an error that
	// ends it; a Final report is still emitted before destruction.
	TerminalError error
}

// NewFlow constructs a Flow in the given role and initial admission state.
// Traffic generation is wired from settings immediately so the scheduler
// can call NextRequestSize etc. without further setup.
func NewFlow(id int, role Role, initial State, settings Settings) *Flow {
	src := fgmath.NewSource(settings.RandomSeed)
	gen := trafgen.NewGenerator(src, 24, settings.MaxBlockSize)
	gen.RequestSize = settings.RequestSize
	gen.ResponseSize = settings.ResponseSize
	gen.InterGap = settings.InterGap
	gen.WriteRate = settings.WriteRate

	f := &Flow{
		ID:        id,
		Role:      role,
		State:     initial,
		Settings:  settings,
		rngSource: src,
		Traffic:   gen,
		ConnFD:    -1,
		ListenFD:  -1,
	}
	f.Stats.Interval.reset()
	f.Stats.Final.reset()
	return f
}

// bothDirectionsDone reports whether the flow has nothing left to do: both
// directions finished, or past their stop time with no data pending. A
// queued-but-unflushed response holds the flow open past its read stop
// time, so the last reply is never truncated by a reap racing the final
// write.
func (f *Flow) bothDirectionsDone(now time.Time) bool {
	if len(f.pendingResponse) > f.pendingResponseSent {
		return false
	}
	writeDone := f.Write.Finished || (f.Write.hasStop() && !now.Before(f.Write.StopAt))
	readDone := f.Read.Finished || (f.Read.hasStop() && !now.Before(f.Read.StopAt))
	return writeDone && readDone
}
