// Package config loads CLI configuration the way the teacher does: pflag
// for flags, viper for env+file layering, one struct per binary embedding
// a shared CommonConfig. The shapes are flowgrind's own (E1) instead of the
// teacher's echo-server client/server split.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/flowgrind/flowgrind/internal/fgmath"
)

const (
	// EnvPrefix is the prefix for all environment variables.
	EnvPrefix = "FLOWGRIND"
)

// CommonConfig holds configuration fields shared between the daemon and
// controller CLIs.
type CommonConfig struct {
	LogLevel       string
	LogFormat      string
	MetricsPort    string
	TracingEnabled bool
	JaegerEndpoint string
}

// DaemonConfig holds flowgrindd-specific configuration, embedding CommonConfig.
type DaemonConfig struct {
	CommonConfig

	RPCBindAddress string
	RPCPort        int

	// CPUCores pins the event loop to these cores via daemon/affinity; empty
	// means "no affinity set".
	CPUCores []int

	// Debug skips the pidfile lock. The daemon never detaches into the
	// background; it stays attached to its controlling terminal, logging to
	// stderr, whether or not Debug is set.
	Debug bool

	DumpDir    string
	PidFile    string
	HealthPort string
}

// EndpointSpec identifies one flowgrindd instance a controller talks to.
type EndpointSpec struct {
	Host    string
	RPCPort int
}

// FlowSpec is one test flow's configuration from the controller's point of
// view: which endpoints play source and destination, plus the Settings
// mirrored onto the daemon's own daemon.Settings shape so the controller
// and daemon never drift apart on field names.
type FlowSpec struct {
	SourceEndpoint      EndpointSpec
	DestinationEndpoint EndpointSpec

	BindAddress string

	WriteDelay    float64
	WriteDuration float64
	ReadDelay     float64
	ReadDuration  float64

	ReportingInterval float64

	RequestedSendBuffer int
	RequestedReadBuffer int
	MaxBlockSize        int

	DumpTraffic  bool
	DebugSocket  bool
	RouteRecord  bool
	Pushy        bool
	Shutdown     bool
	FlowControl  bool
	ByteCounting bool

	WriteRate float64

	RandomSeed uint64

	RequestSize  fgmath.Spec
	ResponseSize fgmath.Spec
	InterGap     fgmath.Spec

	Cork              bool
	NoNagle           bool
	CongestionControl string
	DSCP              int
	MTUDiscovery      bool
	ELCN              bool
	LCD               bool
	MTCP              bool

	LateConnect bool
}

// ControllerConfig holds flowgrind-specific configuration, embedding CommonConfig.
type ControllerConfig struct {
	CommonConfig

	Endpoints []EndpointSpec
	Flows     []FlowSpec
}

// Validate validates the common configuration.
func (c *CommonConfig) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s, must be one of: %v", c.LogLevel, validLogLevels)
	}

	validLogFormats := []string{"human", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("invalid log format: %s, must be one of: %v", c.LogFormat, validLogFormats)
	}

	return nil
}

// Validate validates the daemon configuration.
func (c *DaemonConfig) Validate() error {
	if err := c.CommonConfig.Validate(); err != nil {
		return err
	}

	if c.RPCBindAddress == "" {
		return fmt.Errorf("rpc bind address cannot be empty")
	}

	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("invalid rpc port: %d", c.RPCPort)
	}

	return nil
}

// Validate validates the controller configuration.
func (c *ControllerConfig) Validate() error {
	if err := c.CommonConfig.Validate(); err != nil {
		return err
	}

	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one daemon endpoint must be specified")
	}

	for i, e := range c.Endpoints {
		if e.Host == "" {
			return fmt.Errorf("endpoint %d: host cannot be empty", i)
		}
		if e.RPCPort <= 0 || e.RPCPort > 65535 {
			return fmt.Errorf("endpoint %d: invalid rpc port %d", i, e.RPCPort)
		}
	}

	if len(c.Flows) == 0 {
		return fmt.Errorf("at least one flow must be specified")
	}

	return nil
}

// LoadDaemonConfig loads and returns the flowgrindd configuration.
func LoadDaemonConfig() (*DaemonConfig, error) {
	initViper()
	setCommonDefaults()
	setDaemonDefaults()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("failed to bind command-line flags: %w", err)
	}

	cfg := &DaemonConfig{
		CommonConfig: CommonConfig{
			LogLevel:       viper.GetString("log_level"),
			LogFormat:      viper.GetString("log_format"),
			MetricsPort:    viper.GetString("metrics_port"),
			TracingEnabled: viper.GetBool("tracing_enabled"),
			JaegerEndpoint: viper.GetString("jaeger_endpoint"),
		},
		RPCBindAddress: viper.GetString("rpc_bind_address"),
		RPCPort:        viper.GetInt("rpc_port"),
		CPUCores:       viper.GetIntSlice("cpu_cores"),
		Debug:          viper.GetBool("debug"),
		DumpDir:        viper.GetString("dump_dir"),
		PidFile:        viper.GetString("pid_file"),
		HealthPort:     viper.GetString("health_port"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadControllerConfig loads and returns the flowgrind configuration.
// Endpoints and per-flow specs are not pflag-bound (they're multi-valued
// structured data); callers load them from a config file via viper's
// UnmarshalKey, or build a ControllerConfig directly for tests.
func LoadControllerConfig() (*ControllerConfig, error) {
	initViper()
	setCommonDefaults()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("failed to bind command-line flags: %w", err)
	}

	cfg := &ControllerConfig{
		CommonConfig: CommonConfig{
			LogLevel:       viper.GetString("log_level"),
			LogFormat:      viper.GetString("log_format"),
			MetricsPort:    viper.GetString("metrics_port"),
			TracingEnabled: viper.GetBool("tracing_enabled"),
			JaegerEndpoint: viper.GetString("jaeger_endpoint"),
		},
	}

	if err := viper.UnmarshalKey("endpoints", &cfg.Endpoints); err != nil {
		return nil, fmt.Errorf("failed to parse endpoints: %w", err)
	}
	if err := viper.UnmarshalKey("flows", &cfg.Flows); err != nil {
		return nil, fmt.Errorf("failed to parse flows: %w", err)
	}

	return cfg, nil
}

// initViper initializes viper with common settings.
func initViper() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/flowgrind")
	viper.AddConfigPath("$HOME/.flowgrind")

	// Ignore if config file is not found; flags/env/defaults still apply.
	_ = viper.ReadInConfig()
}

// setCommonDefaults sets default values for common configuration.
func setCommonDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "human")
	viper.SetDefault("metrics_port", "9090")
	viper.SetDefault("tracing_enabled", false)
	viper.SetDefault("jaeger_endpoint", "http://localhost:14268/api/traces")
}

// setDaemonDefaults sets default values for daemon configuration.
func setDaemonDefaults() {
	viper.SetDefault("rpc_bind_address", "0.0.0.0")
	viper.SetDefault("rpc_port", 5999)
	viper.SetDefault("debug", false)
	viper.SetDefault("dump_dir", "")
	viper.SetDefault("pid_file", "/var/run/flowgrindd.pid")
	viper.SetDefault("health_port", "8082")
}

// contains checks if a string slice contains a specific value.
func contains(slice []string, val string) bool {
	for _, item := range slice {
		if item == val {
			return true
		}
	}
	return false
}
