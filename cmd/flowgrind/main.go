// Command flowgrind is the measurement controller: it reads a set of
// flowgrindd endpoints and per-flow specs from configuration, drives each
// daemon's RPC façade (rpcfacade.Client) through AddDestination/AddSource,
// StartFlows and StopFlow, polls for reports while the test runs, and
// renders them all as one table at the end, in the teacher's tabular
// console-output style.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"

	"github.com/flowgrind/flowgrind/daemon"
	"github.com/flowgrind/flowgrind/internal/config"
	"github.com/flowgrind/flowgrind/internal/logging"
	"github.com/flowgrind/flowgrind/internal/tracing"
	"github.com/flowgrind/flowgrind/rpcfacade"
)

// session ties one configured flow to the two daemon clients and flow IDs
// it was admitted under.
type session struct {
	spec       config.FlowSpec
	source     *rpcfacade.Client
	sourceFlow int
	dest       *rpcfacade.Client
	destFlow   int
}

func settingsFromSpec(spec config.FlowSpec) daemon.Settings {
	return daemon.Settings{
		BindAddress:         spec.BindAddress,
		WriteDelay:          spec.WriteDelay,
		WriteDuration:       spec.WriteDuration,
		ReadDelay:           spec.ReadDelay,
		ReadDuration:        spec.ReadDuration,
		ReportingInterval:   spec.ReportingInterval,
		RequestedSendBuffer: spec.RequestedSendBuffer,
		RequestedReadBuffer: spec.RequestedReadBuffer,
		MaxBlockSize:        spec.MaxBlockSize,
		DumpTraffic:         spec.DumpTraffic,
		DebugSocket:         spec.DebugSocket,
		RouteRecord:         spec.RouteRecord,
		Pushy:               spec.Pushy,
		Shutdown:            spec.Shutdown,
		FlowControl:         spec.FlowControl,
		ByteCounting:        spec.ByteCounting,
		WriteRate:           spec.WriteRate,
		RandomSeed:          spec.RandomSeed,
		RequestSize:         spec.RequestSize,
		ResponseSize:        spec.ResponseSize,
		InterGap:            spec.InterGap,
		Cork:                spec.Cork,
		NoNagle:             spec.NoNagle,
		CongestionControl:   spec.CongestionControl,
		DSCP:                spec.DSCP,
		MTUDiscovery:        spec.MTUDiscovery,
		ELCN:                spec.ELCN,
		LCD:                 spec.LCD,
		MTCP:                spec.MTCP,
		LateConnect:         spec.LateConnect,
	}
}

func main() {
	pflag.String("log_level", "", "Log level: debug, info, warn, error")
	pflag.String("log_format", "", "Log format: human or json")
	pflag.String("metrics_port", "", "Port for the metrics server")
	pflag.Bool("tracing_enabled", false, "Enable tracing")
	pflag.String("jaeger_endpoint", "", "Jaeger endpoint")

	pflag.Parse()

	cfg, err := config.LoadControllerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowgrind: configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "flowgrind: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.InitLogger(cfg.LogFormat, cfg.LogLevel)
	defer func() {
		if err := logging.SyncLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()
	log := logging.Named("flowgrind")

	if cfg.TracingEnabled {
		tracing.InitTracer("flowgrind", cfg.JaegerEndpoint)
	}

	clients := make(map[string]*rpcfacade.Client)
	for _, ep := range cfg.Endpoints {
		addr := fmt.Sprintf("%s:%d", ep.Host, ep.RPCPort)
		c, err := rpcfacade.Dial(addr)
		if err != nil {
			log.Fatalf("failed to dial daemon %s: %v", addr, err)
		}
		defer func() { _ = c.Close() }()
		clients[addr] = c

		if v, err := c.GetVersion(); err == nil {
			log.Infof("connected to flowgrindd %s (api level %d) at %s", v.Version, v.APILevel, addr)
		}
	}

	sessions := make([]*session, 0, len(cfg.Flows))
	for _, spec := range cfg.Flows {
		srcAddr := fmt.Sprintf("%s:%d", spec.SourceEndpoint.Host, spec.SourceEndpoint.RPCPort)
		dstAddr := fmt.Sprintf("%s:%d", spec.DestinationEndpoint.Host, spec.DestinationEndpoint.RPCPort)
		srcClient, dstClient := clients[srcAddr], clients[dstAddr]
		if srcClient == nil || dstClient == nil {
			log.Fatalf("flow references an endpoint not listed in the configured endpoints")
		}

		settings := settingsFromSpec(spec)

		destReply, err := dstClient.AddDestination(daemon.AddDestinationRequest{Settings: settings})
		if err != nil {
			log.Fatalf("AddDestination on %s failed: %v", dstAddr, err)
		}

		settings.DestinationHost = spec.DestinationEndpoint.Host
		settings.DestinationPort = destReply.ListenPort
		srcReply, err := srcClient.AddSource(daemon.AddSourceRequest{Settings: settings})
		if err != nil {
			log.Fatalf("AddSource on %s failed: %v", srcAddr, err)
		}

		sessions = append(sessions, &session{
			spec:       spec,
			source:     srcClient,
			sourceFlow: srcReply.FlowID,
			dest:       dstClient,
			destFlow:   destReply.FlowID,
		})
	}

	for _, c := range clients {
		if err := c.StartFlows(daemon.StartFlowsRequest{}); err != nil {
			log.Fatalf("StartFlows on %s failed: %v", c.Addr(), err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var allReports []daemon.Report
poll:
	for {
		select {
		case <-sigChan:
			log.Info("flowgrind interrupted, stopping all flows")
			break poll
		case <-ticker.C:
			for _, c := range clients {
				reports, err := c.GetAllReports()
				if err != nil {
					log.Warnf("GetAllReports on %s failed: %v", c.Addr(), err)
					continue
				}
				allReports = append(allReports, reports...)
			}

			allFinished := true
			for _, c := range clients {
				status, err := c.GetStatus()
				if err != nil || status.NumFlows > 0 {
					allFinished = false
				}
			}
			if allFinished {
				break poll
			}
		}
	}

	for _, c := range clients {
		_ = c.StopFlow(-1)
		if reports, err := c.GetAllReports(); err == nil {
			allReports = append(allReports, reports...)
		}
	}

	renderReports(allReports)
}

// renderReports prints one table row per collected report, interval and
// final alike, with the report kind in its own column.
func renderReports(reports []daemon.Report) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Flow", "Kind", "Bytes Written", "Bytes Read", "Req Blocks", "Resp Blocks")
	for _, r := range reports {
		kind := "interval"
		if r.Kind == daemon.ReportFinal {
			kind = "final"
		}
		_ = table.Append(
			fmt.Sprintf("%d", r.FlowID),
			kind,
			fmt.Sprintf("%d", r.BytesWritten),
			fmt.Sprintf("%d", r.BytesRead),
			fmt.Sprintf("%d", r.RequestBlocksWritten),
			fmt.Sprintf("%d", r.ResponseBlocksWritten),
		)
	}
	fmt.Println("Flow reports:")
	_ = table.Render()
}
