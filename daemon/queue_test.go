package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandQueueSubmitWakesAndCompletes(t *testing.T) {
	q, err := NewCommandQueue()
	require.NoError(t, err)
	defer q.Close()

	done := make(chan struct{})
	go func() {
		cmd := &Command{Tag: CmdGetStatus}
		q.Submit(cmd)
		assert.Equal(t, "ok", cmd.Reply)
		close(done)
	}()

	var cmds []*Command
	require.Eventually(t, func() bool {
		cmds = q.Drain()
		return len(cmds) == 1
	}, time.Second, time.Millisecond)

	Complete(cmds[0], "ok", nil)
	<-done
}

func TestCommandQueueDrainIsFIFO(t *testing.T) {
	q, err := NewCommandQueue()
	require.NoError(t, err)
	defer q.Close()

	var want []*Command
	for i := 0; i < 5; i++ {
		cmd := &Command{Tag: CmdGetStatus}
		cmd.Done = make(chan struct{})
		want = append(want, cmd)
		go func(c *Command) {
			q.mu.Lock()
			q.pending = append(q.pending, c)
			q.mu.Unlock()
		}(cmd)
		n := i + 1
		require.Eventually(t, func() bool {
			q.mu.Lock()
			defer q.mu.Unlock()
			return len(q.pending) == n
		}, time.Second, time.Millisecond)
	}

	cmds := q.Drain()
	assert.Len(t, cmds, 5)
	assert.Equal(t, want, cmds)
}

func TestReportQueueDropsIntervalPastBacklogLimit(t *testing.T) {
	q := NewReportQueue()
	for i := 0; i < reportBacklogLimit; i++ {
		assert.False(t, q.Push(Report{Kind: ReportInterval}))
	}
	assert.True(t, q.Push(Report{Kind: ReportInterval}))
	assert.Equal(t, 1, q.Dropped())
}

func TestReportQueueNeverDropsFinal(t *testing.T) {
	q := NewReportQueue()
	for i := 0; i < reportBacklogLimit+10; i++ {
		assert.False(t, q.Push(Report{Kind: ReportFinal}))
	}
	assert.Equal(t, 0, q.Dropped())
}

func TestReportQueueTakePagesAndReportsHasMore(t *testing.T) {
	q := NewReportQueue()
	for i := 0; i < 120; i++ {
		q.Push(Report{FlowID: i, Kind: ReportInterval})
	}

	page1, more1 := q.Take()
	assert.Len(t, page1, reportPageSize)
	assert.True(t, more1)
	assert.Equal(t, 0, page1[0].FlowID)

	page2, more2 := q.Take()
	assert.Len(t, page2, reportPageSize)
	assert.True(t, more2)

	page3, more3 := q.Take()
	assert.Len(t, page3, 20)
	assert.False(t, more3)
}
