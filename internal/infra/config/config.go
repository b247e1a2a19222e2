// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that take precedence over file values.
const (
	EnvAdminToken = "MPC_ADMIN_TOKEN"
	EnvLogLevel   = "MPC_LOG_LEVEL"
)

// Config represents the daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
	Player   PlayerConfig   `yaml:"player"`
	Preload  PreloadConfig  `yaml:"preload"`
	CDN      CDNConfig      `yaml:"cdn"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output    string `yaml:"output" default:"stdout" validate:"oneof=stdout stderr file"`
	Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	File      string `yaml:"file"`
	Dir       string `yaml:"dir"`
	MaxSizeKB int    `yaml:"max_size_kb" default:"1024" validate:"gte=0"`
}

// PlayerConfig holds the settings every new player starts with.
type PlayerConfig struct {
	PositionInterval time.Duration `yaml:"position_interval" default:"1s" validate:"gte=0"`
	Volume           int           `yaml:"volume" default:"100" validate:"gte=0,lte=100"`
	LoopCount        int           `yaml:"loop_count" default:"1" validate:"gte=-1"`
}

// PreloadConfig represents preload pool configuration.
type PreloadConfig struct {
	MaxSessions int `yaml:"max_sessions" default:"4" validate:"gte=1,lte=64"`
}

// CDNConfig represents multi-line CDN configuration.
type CDNConfig struct {
	AutoSwitch     bool          `yaml:"auto_switch"`
	SwitchInterval time.Duration `yaml:"switch_interval" default:"500ms" validate:"gte=0"`
	WarnAhead      time.Duration `yaml:"warn_ahead" default:"30s" validate:"gte=0"`
	Grace          time.Duration `yaml:"grace" default:"10s" validate:"gte=0"`
}

// PipelineConfig tunes the simulated media engine the daemon runs on.
type PipelineConfig struct {
	OpenDelay      time.Duration `yaml:"open_delay" default:"200ms" validate:"gte=0"`
	SeekDelay      time.Duration `yaml:"seek_delay" default:"100ms" validate:"gte=0"`
	SwitchDelay    time.Duration `yaml:"switch_delay" default:"300ms" validate:"gte=0"`
	Duration       time.Duration `yaml:"duration" default:"3m" validate:"gte=0"`
	Live           bool          `yaml:"live"` // sources have no duration
	AutoEOF        bool          `yaml:"auto_eof"`
	FrameInterval  time.Duration `yaml:"frame_interval" validate:"gte=0"`
	BufferInterval time.Duration `yaml:"buffer_interval" validate:"gte=0"`
	SnapshotDir    string        `yaml:"snapshot_dir"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv(EnvAdminToken); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Log.Output == "file" && c.Log.File == "" && c.Log.Dir == "" {
		return errors.New("log.file or log.dir is required when log.output is file")
	}
	return nil
}
