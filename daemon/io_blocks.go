package daemon

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/flowgrind/flowgrind/internal/fgtime"
	"github.com/flowgrind/flowgrind/internal/wire"
)

var errPrematureEnd = errors.New("daemon: connection ended before block completed")

// maxResponseAttempts bounds how many consecutive EAGAIN results
// send_response tolerates before giving up on a response block, matching
// the original daemon's retry budget for an otherwise-ready peer.
const maxResponseAttempts = 10000

// writeData drains as much of the flow's write side as the socket will
// currently accept: it first flushes any response block queued by
// readData, then generates and sends request blocks per the traffic
// generator, exactly mirroring write_data in daemon.c.
func (s *Scheduler) writeData(flow *Flow, now time.Time) {
	conn, ok := flow.Conn.(*net.TCPConn)
	if !ok {
		return
	}

	if len(flow.pendingResponse) > flow.pendingResponseSent {
		if !s.flushPendingResponse(flow, conn) {
			return
		}
	}

	if flow.Write.Finished || now.Before(flow.Write.StartAt) {
		return
	}
	if flow.Write.hasStop() && !now.Before(flow.Write.StopAt) {
		flow.Write.Finished = true
		if flow.Settings.Shutdown {
			conn.CloseWrite()
		}
		return
	}
	if now.Before(flow.Write.NextAt) {
		return
	}

	for {
		if flow.InBlockBytesWritten == 0 {
			flow.CurrentWriteBlockSize = flow.Traffic.NextRequestSize()
			flow.CurrentResponseSize = flow.Traffic.NextResponseSize()

			buf := make([]byte, flow.CurrentWriteBlockSize)
			hdr := wire.Request(int32(flow.CurrentWriteBlockSize), int32(flow.CurrentResponseSize), now)
			hdr.Marshal(buf)
			if flow.Settings.ByteCounting {
				fillByteCountingPattern(buf[wire.HeaderSize:])
			}
			flow.writeBuf = buf

			if flow.Settings.Cork && !flow.CorkEngaged {
				if err := setCork(conn, true); err == nil {
					flow.CorkEngaged = true
				}
			}
		}

		n, err := rawWrite(conn, flow.writeBuf[flow.InBlockBytesWritten:])
		if n > 0 {
			flow.InBlockBytesWritten += n
		}
		if err != nil {
			if errIsAgain(err) {
				return
			}
			s.terminateFlow(flow, now, fmt.Errorf("daemon: write: %w", err))
			return
		}
		if n == 0 {
			s.terminateFlow(flow, now, errPrematureEnd)
			return
		}
		if flow.InBlockBytesWritten < len(flow.writeBuf) {
			continue
		}

		s.completeWriteBlock(flow, now)

		if flow.Settings.Cork && flow.CorkEngaged {
			setCork(conn, false)
			flow.CorkEngaged = false
		}

		if !flow.Settings.Pushy || flow.FlowControlStop {
			return
		}
		now = fgtime.Now()
		if flow.Write.hasStop() && !now.Before(flow.Write.StopAt) {
			flow.Write.Finished = true
			return
		}
	}
}

func (s *Scheduler) completeWriteBlock(flow *Flow, now time.Time) {
	flow.Stats.recordWrite(len(flow.writeBuf), true)
	scheduledNext := flow.Write.NextAt
	flow.LastBlockWrittenAt = now

	gap := flow.Traffic.NextInterpacketGap()
	if gap > 0 {
		flow.Write.NextAt = fgtime.Add(flow.Write.NextAt, gap)
	} else {
		flow.Write.NextAt = now
	}

	if now.After(scheduledNext) {
		flow.CongestionCount++
		if flow.CongestionCount > congestionLimit && flow.Settings.FlowControl {
			flow.FlowControlStop = true
		}
	} else {
		flow.CongestionCount = 0
	}

	flow.InBlockBytesWritten = 0
	flow.writeBuf = nil
}

// flushPendingResponse attempts to finish writing a queued response block.
// It reports whether the caller may continue on to normal write
// processing in the same writeData call (true only when there is no
// pending response left, i.e. it just completed or was dropped).
func (s *Scheduler) flushPendingResponse(flow *Flow, conn *net.TCPConn) bool {
	n, err := rawWrite(conn, flow.pendingResponse[flow.pendingResponseSent:])
	if n > 0 {
		flow.pendingResponseSent += n
		flow.pendingAttempts = 0
	}
	if err != nil {
		if errIsAgain(err) {
			flow.pendingAttempts++
			if flow.pendingAttempts >= maxResponseAttempts && flow.pendingResponseSent == 0 {
				s.warn(fmt.Sprintf("flow %d: dropping response block after %d attempts", flow.ID, flow.pendingAttempts))
				flow.pendingResponse = nil
				flow.pendingResponseSent = 0
				flow.pendingAttempts = 0
				return true
			}
			return false
		}
		flow.Read.Finished = true
		flow.pendingResponse = nil
		flow.pendingResponseSent = 0
		return true
	}
	if flow.pendingResponseSent >= len(flow.pendingResponse) {
		flow.Stats.recordWrite(len(flow.pendingResponse), false)
		flow.pendingResponse = nil
		flow.pendingResponseSent = 0
		flow.pendingAttempts = 0
		return true
	}
	return false
}

// readData drains as much of the flow's read side as the socket currently
// offers: parse the header, accumulate the block body, then account for
// RTT (response blocks) or IAT/delay (request blocks) and queue a response
// if the peer asked for one. Mirrors try_read_n_bytes in daemon.c.
func (s *Scheduler) readData(flow *Flow, now time.Time) {
	conn, ok := flow.Conn.(*net.TCPConn)
	if !ok {
		return
	}

	for {
		if !flow.haveHeader {
			n, err := rawRead(conn, flow.headerBuf[flow.headerBytesRead:])
			if n > 0 {
				flow.headerBytesRead += n
			}
			if err != nil {
				if errIsAgain(err) {
					return
				}
				s.terminateFlow(flow, now, fmt.Errorf("daemon: read: %w", err))
				return
			}
			if n == 0 {
				flow.Read.Finished = true
				return
			}
			if flow.headerBytesRead < wire.HeaderSize {
				continue
			}

			hdr, _ := wire.Parse(flow.headerBuf[:])
			maxSize := int32(flow.Settings.MaxBlockSize)
			if wire.ValidThisBlockSize(hdr.ThisBlockSize, maxSize) {
				flow.CurrentReadBlockSize = int(hdr.ThisBlockSize)
			} else if flow.CurrentReadBlockSize < wire.HeaderSize {
				// No prior valid block size to fall back on: this is the
				// first header on the connection and it is malformed, so
				// there is no safe framing to recover from a zero-length
				// (or otherwise bogus) read buffer.
				s.terminateFlow(flow, now, fmt.Errorf("daemon: out-of-range this_block_size %d on first block", hdr.ThisBlockSize))
				return
			} else {
				s.warn(fmt.Sprintf("flow %d: out-of-range this_block_size %d, keeping previous value", flow.ID, hdr.ThisBlockSize))
			}
			if wire.ValidRequestBlockSize(hdr.RequestBlockSize, maxSize) {
				flow.CurrentReadRequestSize = int(hdr.RequestBlockSize)
			} else {
				s.warn(fmt.Sprintf("flow %d: out-of-range request_block_size %d, keeping previous value", flow.ID, hdr.RequestBlockSize))
			}

			flow.pendingHeaderSentSec = hdr.SentSec
			flow.pendingHeaderSentNsec = hdr.SentNsec
			flow.readBuf = make([]byte, flow.CurrentReadBlockSize)
			copy(flow.readBuf, flow.headerBuf[:])
			flow.InBlockBytesRead = wire.HeaderSize
			flow.haveHeader = true

			if flow.InBlockBytesRead >= len(flow.readBuf) {
				s.completeReadBlock(flow, now)
				if !flow.Settings.Pushy {
					return
				}
				continue
			}
		}

		n, err := rawRead(conn, flow.readBuf[flow.InBlockBytesRead:])
		if n > 0 {
			flow.InBlockBytesRead += n
		}
		if err != nil {
			if errIsAgain(err) {
				return
			}
			s.terminateFlow(flow, now, fmt.Errorf("daemon: read: %w", err))
			return
		}
		if n == 0 {
			flow.Read.Finished = true
			return
		}
		if flow.InBlockBytesRead < len(flow.readBuf) {
			continue
		}

		s.completeReadBlock(flow, now)
		if !flow.Settings.Pushy {
			return
		}
	}
}

func (s *Scheduler) completeReadBlock(flow *Flow, now time.Time) {
	sentSec, sentNsec := flow.pendingHeaderSentSec, flow.pendingHeaderSentNsec
	sent := time.Unix(sentSec, sentNsec).UTC()
	isResponse := flow.CurrentReadRequestSize == int(wire.ResponseMarker)

	if isResponse {
		rtt := fgtime.Diff(sent, now)
		flow.Stats.recordRTT(rtt)
		flow.Stats.recordRead(len(flow.readBuf), false)
	} else {
		if !flow.LastBlockReadAt.IsZero() {
			flow.Stats.recordIAT(fgtime.Diff(flow.LastBlockReadAt, now))
		}
		flow.Stats.recordDelay(fgtime.Diff(sent, now))
		flow.Stats.recordRead(len(flow.readBuf), true)

		if flow.CurrentReadRequestSize >= wire.MinBlockSize && !flow.Read.Finished {
			s.queueResponse(flow, sentSec, sentNsec, flow.CurrentReadRequestSize)
		}
	}

	flow.LastBlockReadAt = now
	flow.haveHeader = false
	flow.headerBytesRead = 0
	flow.InBlockBytesRead = 0
	flow.readBuf = nil
}

// queueResponse builds a response block and stores it as the flow's pending
// response; if a response is already pending, the new one is dropped. The
// scheduler flushes the pending response opportunistically the next time
// the flow's socket is writable, in flushPendingResponse. The
// request's raw timestamp bytes are echoed unchanged rather than routed
// through a normalized time.Time.
func (s *Scheduler) queueResponse(flow *Flow, echoSentSec, echoSentNsec int64, size int) {
	buf := make([]byte, size)
	hdr := wire.Response(wire.Header{SentSec: echoSentSec, SentNsec: echoSentNsec}, int32(size))
	hdr.Marshal(buf)
	if flow.pendingResponse == nil {
		flow.pendingResponse = buf
		flow.pendingResponseSent = 0
		flow.pendingAttempts = 0
		return
	}
	// A response already pending (peer sent a new request before the
	// previous response drained) is not expected in request/response mode
	// since the peer waits for the reply; a stray extra request is logged
	// and its response dropped rather than queued unbounded.
	s.warn(fmt.Sprintf("flow %d: response already pending, dropping response to extra request", flow.ID))
}

// fillByteCountingPattern fills buf with an incrementing byte sequence, a
// simple diagnostic payload pattern used when ByteCounting is enabled so a
// capture or a naive peer can sanity-check block contents.
func fillByteCountingPattern(buf []byte) {
	for i := range buf {
		buf[i] = byte(i)
	}
}
