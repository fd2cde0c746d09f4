package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/flowgrind/flowgrind/daemon"
)

func TestDaemonMetricsFlowLifecycle(t *testing.T) {
	m := New()

	m.FlowAdmitted()
	m.FlowAdmitted()
	m.FlowDestroyed()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.flowsAdmitted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.flowsActive))
}

func TestDaemonMetricsCommandsByName(t *testing.T) {
	m := New()

	m.CommandProcessed(daemon.CmdAddSource)
	m.CommandProcessed(daemon.CmdAddSource)
	m.CommandProcessed(daemon.CmdStopFlow)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.commands.WithLabelValues("add_source")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commands.WithLabelValues("stop_flow")))
}

func TestDaemonMetricsReports(t *testing.T) {
	m := New()

	m.ReportEmitted(daemon.ReportInterval)
	m.ReportEmitted(daemon.ReportFinal)
	m.ReportDropped()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.reportsEmitted.WithLabelValues("interval")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reportsEmitted.WithLabelValues("final")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reportsDropped))
}
