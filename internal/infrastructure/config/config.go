package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the configuration file looked up in the tests directory
// when no explicit path is given.
const DefaultFileName = "fleetrunner.yaml"

// EnvConfigPath names the environment variable holding an explicit config path.
const EnvConfigPath = "FLEETRUNNER_CONFIG"

// Config is the root configuration structure for fleetrunner.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Logging   LoggingConfig   `yaml:"logging"`
	Appium    AppiumConfig    `yaml:"appium"`
	Runner    RunnerConfig    `yaml:"runner"`
	Merger    MergerConfig    `yaml:"merger"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
}

// WorkspaceConfig describes the run workspace below the tests directory.
type WorkspaceConfig struct {
	// RunnerDir is relative to the tests directory unless absolute.
	RunnerDir string `yaml:"runner_dir"`

	// DevicesDir holds the device records, relative to RunnerDir.
	DevicesDir string `yaml:"devices_dir"`

	// ErrorLog is the append-only error log, relative to RunnerDir.
	ErrorLog string `yaml:"error_log"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AppiumConfig contains the automation server launch settings.
type AppiumConfig struct {
	Binary string `yaml:"binary"`

	// KillBinary and KillArgs form the stray server sweep run once before
	// the fleet starts. An empty KillBinary disables the sweep.
	KillBinary string   `yaml:"kill_binary"`
	KillArgs   []string `yaml:"kill_args"`

	// Warmup is how long the pipeline waits after launching the fleet.
	Warmup time.Duration `yaml:"warmup"`

	// StopWait is how long teardown waits for a server to exit after
	// SIGTERM before sending SIGKILL. Zero means teardown does not wait.
	StopWait time.Duration `yaml:"stop_wait"`
}

// RunnerConfig contains the parallel suite runner (pabot) invocation.
type RunnerConfig struct {
	Binary     string   `yaml:"binary"`
	Args       []string `yaml:"args"`
	Verbose    bool     `yaml:"verbose"`
	PabotLib   bool     `yaml:"pabotlib"`
	ResultsDir string   `yaml:"results_dir"`
}

// MergerConfig contains the result merger (rebot) invocation.
type MergerConfig struct {
	Binary string `yaml:"binary"`
}

// ProxyConfig contains the proxy bypass handed to every collaborator.
type ProxyConfig struct {
	NoProxy string `yaml:"no_proxy"`
}

// DatabaseConfig contains SQLite run history settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLEETRUNNER_SECTION_KEY
// For example: FLEETRUNNER_DATABASE_PATH, FLEETRUNNER_APPIUM_BINARY
//
// Parameters:
//   - path: Path to the YAML configuration file. Empty means defaults only.
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Resolve picks the configuration file for a run.
//
// An explicit path wins, then FLEETRUNNER_CONFIG, then DefaultFileName in
// testsDir. It returns "" when none of them applies, meaning defaults only.
func Resolve(explicit, testsDir string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v, nil
	}

	candidate := filepath.Join(testsDir, DefaultFileName)
	_, err := os.Stat(candidate)
	switch {
	case err == nil:
		return candidate, nil
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	default:
		return "", fmt.Errorf("checking %s: %w", candidate, err)
	}
}

// Default returns the built-in configuration with environment overrides applied.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			RunnerDir:  "runner",
			DevicesDir: "devices_conf",
			ErrorLog:   "error.log.txt",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Appium: AppiumConfig{
			Binary:     "appium",
			KillBinary: "killall",
			KillArgs:   []string{"node"},
			Warmup:     5 * time.Second,
		},
		Runner: RunnerConfig{
			Binary:     "python",
			Args:       []string{"-m", "pabot.pabot"},
			Verbose:    true,
			PabotLib:   true,
			ResultsDir: "pabot_results",
		},
		Merger: MergerConfig{
			Binary: "rebot",
		},
		Proxy: ProxyConfig{
			NoProxy: "127.0.0.1, localhost, 0.0.0.0",
		},
		Database: DatabaseConfig{
			Path:        "./fleetrunner.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fleetrunner",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "fleetrunner",
			BatchSize:     100,
			FlushInterval: 5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FLEETRUNNER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Collaborators
	if v := os.Getenv("FLEETRUNNER_APPIUM_BINARY"); v != "" {
		cfg.Appium.Binary = v
	}
	if v := os.Getenv("FLEETRUNNER_RUNNER_BINARY"); v != "" {
		cfg.Runner.Binary = v
	}
	if v := os.Getenv("FLEETRUNNER_MERGER_BINARY"); v != "" {
		cfg.Merger.Binary = v
	}

	// Database
	if v := os.Getenv("FLEETRUNNER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
		cfg.Database.Enabled = true
	}

	// MQTT
	if v := os.Getenv("FLEETRUNNER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLEETRUNNER_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("FLEETRUNNER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLEETRUNNER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FLEETRUNNER_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("FLEETRUNNER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Workspace.RunnerDir == "" {
		errs = append(errs, "workspace.runner_dir is required")
	}
	if c.Workspace.DevicesDir == "" {
		errs = append(errs, "workspace.devices_dir is required")
	}

	if c.Appium.Binary == "" {
		errs = append(errs, "appium.binary is required")
	}
	if c.Appium.Warmup < 0 {
		errs = append(errs, "appium.warmup must not be negative")
	}
	if c.Appium.StopWait < 0 {
		errs = append(errs, "appium.stop_wait must not be negative")
	}
	if c.Runner.Binary == "" {
		errs = append(errs, "runner.binary is required")
	}
	if c.Runner.ResultsDir == "" {
		errs = append(errs, "runner.results_dir is required")
	}
	if c.Merger.Binary == "" {
		errs = append(errs, "merger.binary is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
