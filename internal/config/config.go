package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"load_simulator/internal/profile"

	"gopkg.in/yaml.v3"
)

// Duration is a custom type that can unmarshal from JSON and YAML strings
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

type Config struct {
	Server struct {
		Port            string   `yaml:"port" json:"port" default:":3000"`
		ReadTimeout     Duration `yaml:"read_timeout" json:"read_timeout" default:"10s"`
		WriteTimeout    Duration `yaml:"write_timeout" json:"write_timeout" default:"10s"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" default:"30s"`
	} `yaml:"server" json:"server"`

	Metrics struct {
		CollectionInterval Duration `yaml:"collection_interval" json:"collection_interval" default:"5s"`
		CommandTimeout     Duration `yaml:"command_timeout" json:"command_timeout" default:"2s"`
		Window             Duration `yaml:"window" json:"window" default:"15s"`
		ExcludedPaths      []string `yaml:"excluded_paths" json:"excluded_paths"`
	} `yaml:"metrics" json:"metrics"`

	Load struct {
		InitialLevel     string `yaml:"initial_level" json:"initial_level" default:"low"`
		ScratchFile      string `yaml:"scratch_file" json:"scratch_file"`
		IOBurstBytes     int    `yaml:"io_burst_bytes" json:"io_burst_bytes" default:"65536"`
		MemoryChunkMB    int    `yaml:"memory_chunk_mb" json:"memory_chunk_mb" default:"16"`
		DeclaredMemoryMB int64  `yaml:"declared_memory_mb" json:"declared_memory_mb"`
	} `yaml:"load" json:"load"`

	Attack struct {
		TickInterval Duration `yaml:"tick_interval" json:"tick_interval" default:"1s"`
		LogCapacity  int      `yaml:"log_capacity" json:"log_capacity" default:"200"`
	} `yaml:"attack" json:"attack"`

	Logging struct {
		Level  string `yaml:"level" json:"level" default:"info"`
		Format string `yaml:"format" json:"format" default:"json"`
	} `yaml:"logging" json:"logging"`
}

// DefaultExcludedPaths are request paths kept out of the request window
var DefaultExcludedPaths = []string{"/api/metrics", "/api/health", "/metrics", "/ws"}

// New returns a config with every default applied
func New() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

// Load reads path as YAML when it ends in .yaml or .yml and as JSON
// otherwise, then applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	var (
		config *Config
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		config, err = LoadFromYAML(path)
	default:
		config, err = LoadFromJSON(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	config.applyDefaults()
	if err := config.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromJSON loads configuration from a JSON file
func LoadFromJSON(path string) (*Config, error) {
	// Create empty config
	config := &Config{}

	// Open the JSON file
	file, err := os.Open(path)
	if err != nil {
		return nil, err // Fail if file doesn't exist
	}
	defer file.Close()

	// Decode JSON into config struct
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields() // Fail on unknown fields

	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromYAML loads configuration from a YAML file
func LoadFromYAML(path string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Fail on unknown fields
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	setDuration := func(d *Duration, def time.Duration) {
		if d.Duration == 0 {
			d.Duration = def
		}
	}

	if c.Server.Port == "" {
		c.Server.Port = ":3000"
	}
	setDuration(&c.Server.ReadTimeout, 10*time.Second)
	setDuration(&c.Server.WriteTimeout, 10*time.Second)
	setDuration(&c.Server.ShutdownTimeout, 30*time.Second)

	setDuration(&c.Metrics.CollectionInterval, 5*time.Second)
	setDuration(&c.Metrics.CommandTimeout, 2*time.Second)
	setDuration(&c.Metrics.Window, 15*time.Second)
	if c.Metrics.ExcludedPaths == nil {
		c.Metrics.ExcludedPaths = append([]string(nil), DefaultExcludedPaths...)
	}

	if c.Load.InitialLevel == "" {
		c.Load.InitialLevel = string(profile.Low)
	}
	if c.Load.IOBurstBytes == 0 {
		c.Load.IOBurstBytes = 64 * 1024
	}
	if c.Load.MemoryChunkMB == 0 {
		c.Load.MemoryChunkMB = 16
	}

	setDuration(&c.Attack.TickInterval, time.Second)
	if c.Attack.LogCapacity == 0 {
		c.Attack.LogCapacity = 200
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// applyEnv overrides the port and the declared memory capacity
func (c *Config) applyEnv(getenv func(string) string) error {
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		c.Server.Port = port
	}
	if raw := strings.TrimSpace(getenv("DECLARED_MEMORY_MB")); raw != "" {
		mb, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("parse DECLARED_MEMORY_MB: %w", err)
		}
		c.Load.DeclaredMemoryMB = mb
	}
	return nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Metrics.Window.Duration <= 0 {
		errs = append(errs, errors.New("metrics.window must be positive"))
	}
	if c.Metrics.CollectionInterval.Duration <= 0 {
		errs = append(errs, errors.New("metrics.collection_interval must be positive"))
	}
	if c.Metrics.CommandTimeout.Duration <= 0 {
		errs = append(errs, errors.New("metrics.command_timeout must be positive"))
	}
	if c.Attack.TickInterval.Duration <= 0 {
		errs = append(errs, errors.New("attack.tick_interval must be positive"))
	}
	if _, err := profile.ParseLevel(c.Load.InitialLevel); err != nil {
		errs = append(errs, fmt.Errorf("load.initial_level: %w", err))
	}
	if c.Load.DeclaredMemoryMB < 0 {
		errs = append(errs, errors.New("load.declared_memory_mb must not be negative"))
	}
	if c.Load.IOBurstBytes < 0 || c.Load.MemoryChunkMB < 0 {
		errs = append(errs, errors.New("load sizes must not be negative"))
	}
	return errors.Join(errs...)
}
