package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	var cfg Config
	require.NoError(t, defaults.Set(&cfg))
	cfg.Admin.Token = "test-admin-token"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing admin token",
			mutate:  func(c *Config) { c.Admin.Token = "" },
			wantErr: true,
			errMsg:  "Token",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: true,
			errMsg:  "Level",
		},
		{
			name:    "unknown log output",
			mutate:  func(c *Config) { c.Log.Output = "syslog" },
			wantErr: true,
			errMsg:  "Output",
		},
		{
			name:    "file output without path",
			mutate:  func(c *Config) { c.Log.Output = "file" },
			wantErr: true,
			errMsg:  "log.file",
		},
		{
			name: "file output with dir",
			mutate: func(c *Config) {
				c.Log.Output = "file"
				c.Log.Dir = "/var/log/mpcd"
			},
			wantErr: false,
		},
		{
			name:    "volume too loud",
			mutate:  func(c *Config) { c.Player.Volume = 101 },
			wantErr: true,
			errMsg:  "Volume",
		},
		{
			name:    "loop forever",
			mutate:  func(c *Config) { c.Player.LoopCount = -1 },
			wantErr: false,
		},
		{
			name:    "loop count below forever",
			mutate:  func(c *Config) { c.Player.LoopCount = -2 },
			wantErr: true,
			errMsg:  "LoopCount",
		},
		{
			name:    "empty preload pool",
			mutate:  func(c *Config) { c.Preload.MaxSessions = 0 },
			wantErr: true,
			errMsg:  "MaxSessions",
		},
		{
			name:    "negative grace",
			mutate:  func(c *Config) { c.CDN.Grace = -time.Second },
			wantErr: true,
			errMsg:  "Grace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv(EnvAdminToken, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Parse([]byte("admin:\n  token: secret\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Admin.Token)
	assert.Equal(t, "stdout", cfg.Log.Output)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, time.Second, cfg.Player.PositionInterval)
	assert.Equal(t, 100, cfg.Player.Volume)
	assert.Equal(t, 1, cfg.Player.LoopCount)
	assert.Equal(t, 4, cfg.Preload.MaxSessions)
	assert.False(t, cfg.CDN.AutoSwitch)
	assert.Equal(t, 30*time.Second, cfg.CDN.WarnAhead)
	assert.Equal(t, 10*time.Second, cfg.CDN.Grace)
	assert.Equal(t, 3*time.Minute, cfg.Pipeline.Duration)
}

func TestParse_FileValues(t *testing.T) {
	t.Setenv(EnvAdminToken, "")
	t.Setenv(EnvLogLevel, "")

	data := []byte(`
server:
  addr: ":9090"
  hooks:
    on_started: ["echo started"]
admin:
  token: secret
log:
  output: stderr
  level: debug
player:
  position_interval: 250ms
  volume: 80
  loop_count: -1
preload:
  max_sessions: 2
cdn:
  auto_switch: true
  switch_interval: 2s
pipeline:
  live: true
  auto_eof: true
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"echo started"}, cfg.Server.Hooks.OnStarted)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Player.PositionInterval)
	assert.Equal(t, 80, cfg.Player.Volume)
	assert.Equal(t, -1, cfg.Player.LoopCount)
	assert.Equal(t, 2, cfg.Preload.MaxSessions)
	assert.True(t, cfg.CDN.AutoSwitch)
	assert.Equal(t, 2*time.Second, cfg.CDN.SwitchInterval)
	assert.True(t, cfg.Pipeline.Live)
	assert.True(t, cfg.Pipeline.AutoEOF)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvAdminToken, "from-env")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Parse([]byte("admin:\n  token: from-file\nlog:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Admin.Token)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestParse_Errors(t *testing.T) {
	t.Setenv(EnvAdminToken, "")

	_, err := Parse([]byte("admin: [broken"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = Parse([]byte("log:\n  level: info\n"))
	assert.ErrorContains(t, err, "config validation failed")
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvAdminToken, "")

	path := filepath.Join(t.TempDir(), "mpcd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admin:\n  token: secret\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Admin.Token)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
