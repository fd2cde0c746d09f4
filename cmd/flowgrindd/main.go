// Command flowgrindd is the per-host measurement daemon: it runs the
// event-loop scheduler (daemon.Scheduler) behind an RPC façade
// (rpcfacade.Server) that a flowgrind controller drives remotely.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/pflag"

	"github.com/flowgrind/flowgrind/daemon"
	"github.com/flowgrind/flowgrind/daemon/affinity"
	"github.com/flowgrind/flowgrind/daemon/capture"
	"github.com/flowgrind/flowgrind/internal/config"
	"github.com/flowgrind/flowgrind/internal/health"
	"github.com/flowgrind/flowgrind/internal/logging"
	"github.com/flowgrind/flowgrind/internal/metrics"
	"github.com/flowgrind/flowgrind/internal/tracing"
	"github.com/flowgrind/flowgrind/internal/version"
	"github.com/flowgrind/flowgrind/rpcfacade"
)

func main() {
	pflag.String("log_level", "", "Log level: debug, info, warn, error")
	pflag.String("log_format", "", "Log format: human or json")
	pflag.String("metrics_port", "", "Port for the metrics server")
	pflag.Bool("tracing_enabled", false, "Enable tracing")
	pflag.String("jaeger_endpoint", "", "Jaeger endpoint")
	pflag.String("rpc_bind_address", "", "Address the RPC façade listens on")
	pflag.Int("rpc_port", 0, "Port the RPC façade listens on")
	pflag.IntSlice("cpu_cores", nil, "CPU cores to pin the event loop to")
	pflag.Bool("debug", false, "Skip the pidfile lock (the daemon runs in the foreground either way)")
	pflag.String("dump_dir", "", "Directory to write per-flow packet captures to (empty disables capture)")
	pflag.String("pid_file", "", "Pidfile path locked at startup unless --debug is set")
	pflag.String("health_port", "", "Port for the health check server")

	pflag.Parse()

	cfg, err := config.LoadDaemonConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowgrindd: configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.InitLogger(cfg.LogFormat, cfg.LogLevel)
	defer func() {
		if err := logging.SyncLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()
	log := logging.Named("flowgrindd")

	if !cfg.Debug {
		if err := acquirePidfile(cfg.PidFile); err != nil {
			log.Fatalf("failed to acquire pidfile %s: %v", cfg.PidFile, err)
		}
	}

	daemon.DaemonVersion = version.Version

	if cfg.TracingEnabled {
		tracing.InitTracer("flowgrindd", cfg.JaegerEndpoint)
	}

	if len(cfg.CPUCores) > 0 {
		if err := affinity.Set(cfg.CPUCores); err != nil {
			log.Warnf("failed to set cpu affinity to %v: %v", cfg.CPUCores, err)
		}
	}

	daemonMetrics := metrics.New()
	daemonMetrics.Serve(":"+cfg.MetricsPort, log)

	healthChecker := health.NewChecker()
	if err := healthChecker.Start(cfg.HealthPort); err != nil {
		log.Warnf("failed to start health check server: %v", err)
	}

	var captureManager daemon.CaptureManager
	if cfg.DumpDir != "" {
		captureManager = capture.NewManager(log, 262144)
	}

	cmds, err := daemon.NewCommandQueue()
	if err != nil {
		log.Fatalf("failed to create command queue: %v", err)
	}
	reports := daemon.NewReportQueue()

	scheduler := daemon.NewScheduler(cmds, reports, log, daemonMetrics, captureManager)

	rpcServer, err := rpcfacade.NewServer(cmds, reports, log)
	if err != nil {
		log.Fatalf("failed to create rpc façade: %v", err)
	}

	bindAddr := fmt.Sprintf("%s:%d", cfg.RPCBindAddress, cfg.RPCPort)
	actualAddr, err := rpcServer.Serve(bindAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", bindAddr, err)
	}
	log.Infof("flowgrindd %s listening for RPC on %s", version.Short(), actualAddr)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("flowgrindd shutting down")
		healthChecker.SetReady(false)
		cancel()
	}()

	healthChecker.SetReady(true)
	if err := scheduler.Run(ctx); err != nil {
		log.Errorf("scheduler exited with error: %v", err)
	}

	_ = rpcServer.Close()
	_ = healthChecker.Stop()
}

// pidLock keeps the pidfile lock reachable for the life of the process.
var pidLock *flock.Flock

// acquirePidfile takes an exclusive, process-lifetime lock on path so a
// second flowgrindd instance refuses to start against the same pidfile.
// The lock is intentionally never released explicitly; it is dropped when
// the process exits (a cleanly stopped daemon releases its own pidfile
// lock for free).
func acquirePidfile(path string) error {
	if path == "" {
		return nil
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("another flowgrindd instance already holds %s", path)
	}
	pidLock = lock
	return nil
}
