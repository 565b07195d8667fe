package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
appium:
  binary: "/opt/appium/bin/appium"
  kill_binary: ""
  warmup: 2s
  stop_wait: 10s
runner:
  binary: "python3"
  args: ["-m", "pabot.pabot"]
  pabotlib: false
database:
  enabled: true
  path: "/tmp/history.db"
mqtt:
  enabled: true
  broker:
    host: "broker.lab"
    port: 8883
  qos: 2
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "fleetrunner.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Appium.Binary != "/opt/appium/bin/appium" {
		t.Errorf("Appium.Binary = %q, want %q", cfg.Appium.Binary, "/opt/appium/bin/appium")
	}
	if cfg.Appium.KillBinary != "" {
		t.Errorf("Appium.KillBinary = %q, want empty", cfg.Appium.KillBinary)
	}
	if cfg.Appium.Warmup != 2*time.Second {
		t.Errorf("Appium.Warmup = %v, want 2s", cfg.Appium.Warmup)
	}
	if cfg.Appium.StopWait != 10*time.Second {
		t.Errorf("Appium.StopWait = %v, want 10s", cfg.Appium.StopWait)
	}
	if cfg.Runner.Binary != "python3" {
		t.Errorf("Runner.Binary = %q, want %q", cfg.Runner.Binary, "python3")
	}
	if cfg.Runner.PabotLib {
		t.Error("Runner.PabotLib = true, want false")
	}
	// Untouched keys keep their defaults.
	if cfg.Merger.Binary != "rebot" {
		t.Errorf("Merger.Binary = %q, want %q", cfg.Merger.Binary, "rebot")
	}
	if cfg.Workspace.RunnerDir != "runner" {
		t.Errorf("Workspace.RunnerDir = %q, want %q", cfg.Workspace.RunnerDir, "runner")
	}
	if cfg.MQTT.Broker.Host != "broker.lab" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.lab")
	}
	if cfg.MQTT.QoS != 2 {
		t.Errorf("MQTT.QoS = %d, want 2", cfg.MQTT.QoS)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	if cfg.Appium.Binary != "appium" {
		t.Errorf("Appium.Binary = %q, want %q", cfg.Appium.Binary, "appium")
	}
	if cfg.Appium.Warmup != 5*time.Second {
		t.Errorf("Appium.Warmup = %v, want 5s", cfg.Appium.Warmup)
	}
	if !reflect.DeepEqual(cfg.Appium.KillArgs, []string{"node"}) {
		t.Errorf("Appium.KillArgs = %v, want [node]", cfg.Appium.KillArgs)
	}
	if !reflect.DeepEqual(cfg.Runner.Args, []string{"-m", "pabot.pabot"}) {
		t.Errorf("Runner.Args = %v, want [-m pabot.pabot]", cfg.Runner.Args)
	}
	if cfg.Proxy.NoProxy != "127.0.0.1, localhost, 0.0.0.0" {
		t.Errorf("Proxy.NoProxy = %q", cfg.Proxy.NoProxy)
	}
	if cfg.Database.Enabled || cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("optional integrations should be disabled by default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/fleetrunner.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "fleetrunner.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
merger:
  binary: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "fleetrunner.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for empty merger.binary, got nil")
	}
	if !strings.Contains(err.Error(), "merger.binary") {
		t.Errorf("error = %v, want mention of merger.binary", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "empty appium binary",
			mutate:  func(c *Config) { c.Appium.Binary = "" },
			wantErr: true,
		},
		{
			name:    "negative warmup",
			mutate:  func(c *Config) { c.Appium.Warmup = -time.Second },
			wantErr: true,
		},
		{
			name:    "empty results dir",
			mutate:  func(c *Config) { c.Runner.ResultsDir = "" },
			wantErr: true,
		},
		{
			name: "database enabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name: "mqtt disabled ignores bad qos",
			mutate: func(c *Config) {
				c.MQTT.QoS = 7
			},
			wantErr: false,
		},
		{
			name: "mqtt enabled with bad qos",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 7
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without org",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled and complete",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Org = "lab"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("FLEETRUNNER_APPIUM_BINARY", "/usr/local/bin/appium")
	t.Setenv("FLEETRUNNER_DATABASE_PATH", "/var/lib/fleetrunner/history.db")
	t.Setenv("FLEETRUNNER_MQTT_PORT", "1884")
	t.Setenv("FLEETRUNNER_INFLUXDB_TOKEN", "secret-token")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Appium.Binary != "/usr/local/bin/appium" {
		t.Errorf("Appium.Binary = %q", cfg.Appium.Binary)
	}
	if cfg.Database.Path != "/var/lib/fleetrunner/history.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if !cfg.Database.Enabled {
		t.Error("Database.Enabled = false, want true when path is set from env")
	}
	if cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker.Port = %d, want 1884", cfg.MQTT.Broker.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q", cfg.InfluxDB.Token)
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	t.Run("explicit path wins", func(t *testing.T) {
		got, err := Resolve("/etc/fleetrunner.yaml", t.TempDir())
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != "/etc/fleetrunner.yaml" {
			t.Errorf("Resolve() = %q", got)
		}
	})

	t.Run("file in tests dir", func(t *testing.T) {
		dir := t.TempDir()
		want := filepath.Join(dir, DefaultFileName)
		if err := os.WriteFile(want, []byte("{}\n"), 0600); err != nil {
			t.Fatal(err)
		}
		got, err := Resolve("", dir)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != want {
			t.Errorf("Resolve() = %q, want %q", got, want)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		got, err := Resolve("", t.TempDir())
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != "" {
			t.Errorf("Resolve() = %q, want empty", got)
		}
	})

	t.Run("environment variable", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/srv/lab.yaml")
		got, err := Resolve("", t.TempDir())
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != "/srv/lab.yaml" {
			t.Errorf("Resolve() = %q", got)
		}
	})
}
