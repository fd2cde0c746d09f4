package config

import (
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommonConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  CommonConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: CommonConfig{
				LogLevel:  "info",
				LogFormat: "json",
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			config: CommonConfig{
				LogLevel:  "invalid",
				LogFormat: "json",
			},
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name: "invalid log format",
			config: CommonConfig{
				LogLevel:  "info",
				LogFormat: "invalid",
			},
			wantErr: true,
			errMsg:  "invalid log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDaemonConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  DaemonConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: DaemonConfig{
				CommonConfig: CommonConfig{
					LogLevel:  "info",
					LogFormat: "json",
				},
				RPCBindAddress: "0.0.0.0",
				RPCPort:        5999,
			},
			wantErr: false,
		},
		{
			name: "empty bind address",
			config: DaemonConfig{
				CommonConfig: CommonConfig{
					LogLevel:  "info",
					LogFormat: "json",
				},
				RPCBindAddress: "",
				RPCPort:        5999,
			},
			wantErr: true,
			errMsg:  "rpc bind address cannot be empty",
		},
		{
			name: "invalid rpc port",
			config: DaemonConfig{
				CommonConfig: CommonConfig{
					LogLevel:  "info",
					LogFormat: "json",
				},
				RPCBindAddress: "0.0.0.0",
				RPCPort:        0,
			},
			wantErr: true,
			errMsg:  "invalid rpc port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestControllerConfigValidate(t *testing.T) {
	baseCommon := CommonConfig{LogLevel: "info", LogFormat: "json"}

	tests := []struct {
		name    string
		config  ControllerConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: ControllerConfig{
				CommonConfig: baseCommon,
				Endpoints:    []EndpointSpec{{Host: "node-a", RPCPort: 5999}, {Host: "node-b", RPCPort: 5999}},
				Flows:        []FlowSpec{{MaxBlockSize: 8192}},
			},
			wantErr: false,
		},
		{
			name: "no endpoints",
			config: ControllerConfig{
				CommonConfig: baseCommon,
				Flows:        []FlowSpec{{MaxBlockSize: 8192}},
			},
			wantErr: true,
			errMsg:  "at least one daemon endpoint",
		},
		{
			name: "endpoint missing host",
			config: ControllerConfig{
				CommonConfig: baseCommon,
				Endpoints:    []EndpointSpec{{Host: "", RPCPort: 5999}},
				Flows:        []FlowSpec{{MaxBlockSize: 8192}},
			},
			wantErr: true,
			errMsg:  "host cannot be empty",
		},
		{
			name: "endpoint invalid port",
			config: ControllerConfig{
				CommonConfig: baseCommon,
				Endpoints:    []EndpointSpec{{Host: "node-a", RPCPort: 70000}},
				Flows:        []FlowSpec{{MaxBlockSize: 8192}},
			},
			wantErr: true,
			errMsg:  "invalid rpc port",
		},
		{
			name: "no flows",
			config: ControllerConfig{
				CommonConfig: baseCommon,
				Endpoints:    []EndpointSpec{{Host: "node-a", RPCPort: 5999}},
			},
			wantErr: true,
			errMsg:  "at least one flow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadDaemonConfig(t *testing.T) {
	viper.Reset()
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)

	_ = os.Setenv("FLOWGRIND_LOG_LEVEL", "debug")
	defer func() { _ = os.Unsetenv("FLOWGRIND_LOG_LEVEL") }()

	cfg, err := LoadDaemonConfig()
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5999, cfg.RPCPort) // default value
}

func TestLoadControllerConfig(t *testing.T) {
	viper.Reset()
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)

	_ = os.Setenv("FLOWGRIND_METRICS_PORT", "9999")
	defer func() { _ = os.Unsetenv("FLOWGRIND_METRICS_PORT") }()

	cfg, err := LoadControllerConfig()
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "9999", cfg.MetricsPort)
}

func TestContains(t *testing.T) {
	tests := []struct {
		name  string
		slice []string
		val   string
		want  bool
	}{
		{
			name:  "value exists",
			slice: []string{"a", "b", "c"},
			val:   "b",
			want:  true,
		},
		{
			name:  "value doesn't exist",
			slice: []string{"a", "b", "c"},
			val:   "d",
			want:  false,
		},
		{
			name:  "empty slice",
			slice: []string{},
			val:   "a",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contains(tt.slice, tt.val)
			assert.Equal(t, tt.want, got)
		})
	}
}
