// Package capture implements the optional per-flow packet-capture worker
// named in spec.md §9's design notes: "a per-flow worker behind a
// capability trait with a documented cancellation contract (cancel request
// + join)". It is grounded on the gchux-pcap-sidecar and mel2oo-go-pcap
// examples' use of github.com/google/gopacket(/pcap) for live capture, cut
// down to the single concern Flowgrind needs: dump one flow's packets to a
// pcap file on request, and stop cleanly when told to.
//
// Packet-capture file layout is an explicit Non-goal of spec.md; this
// package picks the gopacket/pcapgo writer's native on-disk format as one
// concrete, replaceable choice.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/zap"
)

// fdSource is an alias of the tiny interface daemon.Scheduler uses so this
// package never needs to see a *net.TCPConn directly.
type fdSource = interface {
	FD() (int, error)
}

// worker is one flow's running capture: a goroutine reading packets off a
// live pcap handle and writing them to disk, cancellable and joinable.
type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the set of active per-flow capture workers. It implements
// daemon.CaptureManager.
type Manager struct {
	log     *zap.SugaredLogger
	snaplen int32

	mu      sync.Mutex
	workers map[int]*worker
}

// NewManager creates a capture Manager. snaplen bounds how many bytes of
// each packet are retained, mirroring pcap.OpenLive's own parameter.
func NewManager(log *zap.SugaredLogger, snaplen int32) *Manager {
	if snaplen <= 0 {
		snaplen = 262144
	}
	return &Manager{log: log, snaplen: snaplen, workers: make(map[int]*worker)}
}

// Start begins capturing traffic for flowID on the loopback/default
// interface implied by conn's local address, filtered to just that
// connection's port, writing packets to <dumpDir>/flow-<id>.pcap. It is a
// no-op (not an error) if dumpDir is empty, since packet-dump is an opt-in
// per-flow setting and most flows never request it.
func (m *Manager) Start(flowID int, conn fdSource, dumpDir string) error {
	if dumpDir == "" {
		return nil
	}
	fd, err := conn.FD()
	if err != nil {
		return fmt.Errorf("capture: flow %d: no fd: %w", flowID, err)
	}

	port, iface, err := localEndpoint(fd)
	if err != nil {
		return fmt.Errorf("capture: flow %d: %w", flowID, err)
	}

	handle, err := pcap.OpenLive(iface, m.snaplen, false, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("capture: flow %d: open %s: %w", flowID, iface, err)
	}
	if err := handle.SetBPFFilter(fmt.Sprintf("tcp port %d", port)); err != nil {
		handle.Close()
		return fmt.Errorf("capture: flow %d: bpf filter: %w", flowID, err)
	}

	if err := os.MkdirAll(dumpDir, 0o755); err != nil {
		handle.Close()
		return fmt.Errorf("capture: flow %d: dump dir: %w", flowID, err)
	}
	out, err := os.Create(filepath.Join(dumpDir, fmt.Sprintf("flow-%d.pcap", flowID)))
	if err != nil {
		handle.Close()
		return fmt.Errorf("capture: flow %d: create dump file: %w", flowID, err)
	}
	writer := pcapgo.NewWriter(out)
	if err := writer.WriteFileHeader(uint32(m.snaplen), layers.LinkTypeEthernet); err != nil {
		handle.Close()
		out.Close()
		return fmt.Errorf("capture: flow %d: write header: %w", flowID, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := &worker{cancel: cancel, done: done}

	m.mu.Lock()
	m.workers[flowID] = w
	m.mu.Unlock()

	go m.run(ctx, flowID, handle, writer, out, done)
	return nil
}

func (m *Manager) run(ctx context.Context, flowID int, handle *pcap.Handle, writer *pcapgo.Writer, out *os.File, done chan struct{}) {
	defer close(done)
	defer out.Close()
	defer handle.Close()

	src := gopacket.NewPacketSource(handle, handle.LinkType())
	packets := src.Packets()
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			ci := pkt.Metadata().CaptureInfo
			if ci.Timestamp.IsZero() {
				ci.Timestamp = time.Now()
			}
			if err := writer.WritePacket(ci, pkt.Data()); err != nil && m.log != nil {
				m.log.Warnf("capture: flow %d: write packet: %v", flowID, err)
				return
			}
		}
	}
}

// Stop cancels flowID's capture worker, if any, and blocks until its
// goroutine has exited and its files are closed: the "cancel request +
// join" contract named in spec.md §9.
func (m *Manager) Stop(flowID int) {
	m.mu.Lock()
	w, ok := m.workers[flowID]
	if ok {
		delete(m.workers, flowID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	w.cancel()
	<-w.done
}
