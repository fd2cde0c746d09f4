package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgrind/flowgrind/internal/fgmath"
)

// harness runs one Scheduler on loopback sockets, driving its event loop
// fast enough for sub-second test scenarios.
type harness struct {
	t       *testing.T
	cmds    *CommandQueue
	reports *ReportQueue
	sched   *Scheduler
	cancel  context.CancelFunc
	done    chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cmds, err := NewCommandQueue()
	require.NoError(t, err)
	reports := NewReportQueue()
	sched := NewScheduler(cmds, reports, nil, nil, nil)
	sched.SetPollTimeout(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, cmds: cmds, reports: reports, sched: sched, cancel: cancel, done: make(chan struct{})}
	go func() {
		_ = sched.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
		_ = cmds.Close()
	})
	return h
}

func (h *harness) submit(tag CommandTag, payload any) (any, error) {
	cmd := &Command{Tag: tag, Payload: payload}
	h.cmds.Submit(cmd)
	return cmd.Reply, cmd.Err
}

func (h *harness) addDestination(settings Settings) AddDestinationReply {
	h.t.Helper()
	reply, err := h.submit(CmdAddDestination, AddDestinationRequest{Settings: settings})
	require.NoError(h.t, err)
	return reply.(AddDestinationReply)
}

func (h *harness) addSource(settings Settings) (AddSourceReply, error) {
	h.t.Helper()
	reply, err := h.submit(CmdAddSource, AddSourceRequest{Settings: settings})
	if err != nil {
		return AddSourceReply{}, err
	}
	return reply.(AddSourceReply), nil
}

func (h *harness) startFlows() {
	h.t.Helper()
	_, err := h.submit(CmdStartFlows, StartFlowsRequest{})
	require.NoError(h.t, err)
}

func (h *harness) stopFlow(id int) {
	h.t.Helper()
	_, err := h.submit(CmdStopFlow, StopFlowRequest{FlowID: id})
	require.NoError(h.t, err)
}

func (h *harness) status() GetStatusReply {
	h.t.Helper()
	reply, err := h.submit(CmdGetStatus, nil)
	require.NoError(h.t, err)
	return reply.(GetStatusReply)
}

// collectReports polls reports.Take() until the timeout elapses and returns
// every report collected in that window.
func (h *harness) collectReports(timeout time.Duration) []Report {
	h.t.Helper()
	var all []Report
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		page, more := h.reports.Take()
		all = append(all, page...)
		if !more {
			time.Sleep(5 * time.Millisecond)
		}
	}
	return all
}

func baseSettings() Settings {
	return Settings{
		BindAddress:       "127.0.0.1:0",
		MaxBlockSize:      8192,
		ReportingInterval: 0,
	}
}

// Scenario 1: bulk transfer. Source writes constant 1460-byte requests, no
// response payload, for 2s; destination reads and never writes.
func TestScenarioBulkTransfer(t *testing.T) {
	h := newHarness(t)

	destSettings := baseSettings()
	destSettings.ReadDuration = 2
	dest := h.addDestination(destSettings)

	srcSettings := baseSettings()
	srcSettings.WriteDuration = 2
	srcSettings.RequestSize = fgmath.Spec{Param1: 1460}
	srcSettings.ResponseSize = fgmath.Spec{Param1: 0}
	srcSettings.DestinationHost = "127.0.0.1"
	srcSettings.DestinationPort = dest.ListenPort
	src, err := h.addSource(srcSettings)
	require.NoError(t, err)

	h.startFlows()
	reports := h.collectReports(2500 * time.Millisecond)
	h.stopFlow(-1)
	reports = append(reports, h.collectReports(200*time.Millisecond)...)

	var srcFinal, dstFinal *Report
	for i := range reports {
		r := &reports[i]
		if r.Kind != ReportFinal {
			continue
		}
		if r.FlowID == src.FlowID {
			srcFinal = r
		}
		if r.FlowID == dest.FlowID {
			dstFinal = r
		}
	}
	require.NotNil(t, srcFinal)
	require.NotNil(t, dstFinal)
	assert.GreaterOrEqual(t, srcFinal.BytesWritten, int64(1460))
	assert.Equal(t, int64(0), srcFinal.ResponseBlocksRead)
	assert.InDelta(t, float64(srcFinal.BytesWritten), float64(dstFinal.BytesRead), 1460)
}

// Scenario 2: request/response. Source sends 200-byte requests every 10ms
// for 1s, destination answers with 800 bytes each; source should accumulate
// RTT samples and roughly 100 request blocks.
func TestScenarioRequestResponse(t *testing.T) {
	h := newHarness(t)

	destSettings := baseSettings()
	destSettings.ReadDuration = 1
	dest := h.addDestination(destSettings)

	srcSettings := baseSettings()
	srcSettings.WriteDuration = 1
	srcSettings.ReadDuration = 1
	srcSettings.RequestSize = fgmath.Spec{Param1: 200}
	srcSettings.ResponseSize = fgmath.Spec{Param1: 800}
	srcSettings.InterGap = fgmath.Spec{Param1: 0.01}
	srcSettings.DestinationHost = "127.0.0.1"
	srcSettings.DestinationPort = dest.ListenPort
	src, err := h.addSource(srcSettings)
	require.NoError(t, err)

	h.startFlows()
	reports := h.collectReports(1500 * time.Millisecond)
	h.stopFlow(-1)
	reports = append(reports, h.collectReports(200*time.Millisecond)...)

	var srcFinal, dstFinal *Report
	for i := range reports {
		r := &reports[i]
		if r.Kind != ReportFinal {
			continue
		}
		if r.FlowID == src.FlowID {
			srcFinal = r
		}
		if r.FlowID == dest.FlowID {
			dstFinal = r
		}
	}
	require.NotNil(t, srcFinal)
	require.NotNil(t, dstFinal)
	assert.InDelta(t, 100, srcFinal.RequestBlocksWritten, 30)
	assert.Equal(t, dstFinal.RequestBlocksRead, srcFinal.RequestBlocksWritten)
	assert.Equal(t, srcFinal.ResponseBlocksRead, dstFinal.ResponseBlocksWritten)
	assert.True(t, srcFinal.RTT.hasSamples())
}

// Scenario 3: late connect. The destination must not see any bytes until
// roughly delay[WRITE] after StartFlows, since the source defers its
// connect until its scheduled first write.
func TestScenarioLateConnectWithDelay(t *testing.T) {
	h := newHarness(t)

	destSettings := baseSettings()
	destSettings.ReadDuration = 1
	destSettings.ReportingInterval = 0.05
	dest := h.addDestination(destSettings)

	srcSettings := baseSettings()
	srcSettings.WriteDuration = 1
	srcSettings.WriteDelay = 0.5
	srcSettings.LateConnect = true
	srcSettings.RequestSize = fgmath.Spec{Param1: 256}
	srcSettings.DestinationHost = "127.0.0.1"
	srcSettings.DestinationPort = dest.ListenPort
	_, err := h.addSource(srcSettings)
	require.NoError(t, err)

	start := time.Now()
	h.startFlows()

	var firstDataAt time.Time
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		page, _ := h.reports.Take()
		for _, r := range page {
			if r.FlowID == dest.FlowID && r.BytesRead > 0 && firstDataAt.IsZero() {
				firstDataAt = time.Now()
			}
		}
		if !firstDataAt.IsZero() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.False(t, firstDataAt.IsZero(), "destination never saw any bytes")
	elapsed := firstDataAt.Sub(start)
	assert.GreaterOrEqual(t, elapsed, 450*time.Millisecond)

	h.stopFlow(-1)
}

// Scenario 4: stop all. Two flows running for 10s; StopFlow(-1) after ~200ms
// must produce Final reports for both within a bounded window.
func TestScenarioStopAll(t *testing.T) {
	h := newHarness(t)

	destSettings := baseSettings()
	destSettings.ReadDuration = 10
	dest := h.addDestination(destSettings)

	srcSettings := baseSettings()
	srcSettings.WriteDuration = 10
	srcSettings.RequestSize = fgmath.Spec{Param1: 256}
	srcSettings.DestinationHost = "127.0.0.1"
	srcSettings.DestinationPort = dest.ListenPort
	src, err := h.addSource(srcSettings)
	require.NoError(t, err)

	h.startFlows()
	time.Sleep(200 * time.Millisecond)

	stopTime := time.Now()
	h.stopFlow(-1)

	deadline := time.Now().Add(500 * time.Millisecond)
	seen := map[int]bool{}
	for time.Now().Before(deadline) && len(seen) < 2 {
		page, _ := h.reports.Take()
		for _, r := range page {
			if r.Kind == ReportFinal {
				seen[r.FlowID] = true
			}
		}
		time.Sleep(time.Millisecond)
	}
	elapsed := time.Since(stopTime)

	assert.True(t, seen[src.FlowID])
	assert.True(t, seen[dest.FlowID])
	assert.Less(t, elapsed, 500*time.Millisecond)
}

// Scenario 6: invalid admission. AddSource with a below-minimum block size
// must be rejected and must not change the flow count.
func TestScenarioInvalidAdmission(t *testing.T) {
	h := newHarness(t)

	before := h.status().NumFlows

	bad := baseSettings()
	bad.MaxBlockSize = 4 // below the 24-byte header
	bad.DestinationHost = "127.0.0.1"
	bad.DestinationPort = 1

	_, err := h.addSource(bad)
	require.Error(t, err)

	after := h.status().NumFlows
	assert.Equal(t, before, after)
}
