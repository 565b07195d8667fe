package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "fleetrunner-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnected returns a client that was never connected.
func disconnected() *Client {
	return newClient(testConfig())
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"RunnerStatus", topics.RunnerStatus("ci-3"), "fleetrunner/runner/ci-3/status"},
		{"RunState", topics.RunState("r1"), "fleetrunner/run/r1/state"},
		{"RunSuite", topics.RunSuite("r1", "Login"), "fleetrunner/run/r1/suite/Login"},
		{"RunSuite sanitised", topics.RunSuite("r1", "a/b+c#"), "fleetrunner/run/r1/suite/a_b_c_"},
		{"DeviceServer", topics.DeviceServer("r1", "emulator-5554"), "fleetrunner/run/r1/device/emulator-5554/server"},
		{"DeviceServer IP udid", topics.DeviceServer("r1", "192.168.0.7:5555"), "fleetrunner/run/r1/device/192.168.0.7:5555/server"},
		{"RunSummary", topics.RunSummary("r1"), "fleetrunner/run/r1/summary"},
		{"RunAbort", topics.RunAbort("r1"), "fleetrunner/run/r1/abort"},
		{"AllRuns", topics.AllRuns(), "fleetrunner/run/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestParseRunTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantRun  string
		wantRest string
		wantOk   bool
	}{
		{"fleetrunner/run/abc/abort", "abc", "abort", true},
		{"fleetrunner/run/abc/suite/Login", "abc", "suite/Login", true},
		{"fleetrunner/run/abc", "", "", false},
		{"fleetrunner/run//abort", "", "", false},
		{"fleetrunner/runner/x/status", "", "", false},
		{"other/run/abc/abort", "", "", false},
	}

	for _, tt := range tests {
		runID, rest, ok := ParseRunTopic(tt.topic)
		if ok != tt.wantOk || runID != tt.wantRun || rest != tt.wantRest {
			t.Errorf("ParseRunTopic(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.topic, runID, rest, ok, tt.wantRun, tt.wantRest, tt.wantOk)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		opts := buildClientOptions(testConfig())

		if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
			t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
		}
		if opts.ClientID != "fleetrunner-test" {
			t.Errorf("ClientID = %q", opts.ClientID)
		}
		if opts.Username != "" {
			t.Errorf("Username = %q, want empty", opts.Username)
		}
		if !opts.AutoReconnect || !opts.CleanSession {
			t.Error("AutoReconnect and CleanSession should be set")
		}
		if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
			t.Error("TLS should not be configured")
		}
	})

	t.Run("tls and auth", func(t *testing.T) {
		cfg := testConfig()
		cfg.Broker.TLS = true
		cfg.Broker.Port = 8883
		cfg.Auth = config.MQTTAuthConfig{Username: "ci", Password: "secret"}

		opts := buildClientOptions(cfg)

		if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
			t.Errorf("Servers[0] = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
		}
		if opts.Username != "ci" || opts.Password != "secret" {
			t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
		}
		if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
			t.Error("TLS min version not set")
		}
	})
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "fleetrunner-test")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Error("will should be enabled and retained")
	}
	if opts.WillTopic != "fleetrunner/runner/fleetrunner-test/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var status runnerStatus
	if err := json.Unmarshal(opts.WillPayload, &status); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if status.Status != statusOffline || status.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", status)
	}
}

func TestPublishValidation(t *testing.T) {
	c := disconnected()
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "fleetrunner/run/x/state", nil, 3, ErrInvalidQoS},
		{"too large", "fleetrunner/run/x/state", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "fleetrunner/run/x/state", []byte("{}"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSONEncodingError(t *testing.T) {
	err := disconnected().PublishJSON("fleetrunner/run/x/state", make(chan int), false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnected()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("t", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("t") {
		t.Error("failed subscribe should not be tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe empty topic error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c := disconnected()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestCloseNeverConnected(t *testing.T) {
	if err := disconnected().Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }

func TestDispatch(t *testing.T) {
	c := disconnected()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var got string
	c.dispatch(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	}, "fleetrunner/run/r1/abort", []byte("now"))
	if got != "fleetrunner/run/r1/abort=now" {
		t.Errorf("handler saw %q", got)
	}

	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one handler error", logger.warns)
	}

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("errors = %v, want one recovered panic", logger.errors)
	}
}

func TestStatusPayload(t *testing.T) {
	tests := []struct {
		name   string
		status string
		run    string
		reason string
	}{
		{"idle", statusOnline, "", ""},
		{"busy", statusBusy, "run-7", ""},
		{"offline", statusOffline, "", "graceful_shutdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got runnerStatus
			if err := json.Unmarshal(statusPayload("ci-3", tt.status, tt.run, tt.reason), &got); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if got.Status != tt.status || got.RunID != tt.run || got.Reason != tt.reason || got.ClientID != "ci-3" {
				t.Errorf("payload = %+v", got)
			}
			if got.Timestamp == "" {
				t.Error("timestamp missing")
			}
		})
	}
}

func TestSetActiveRunDisconnected(t *testing.T) {
	c := disconnected()
	if err := c.SetActiveRun("run-7"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SetActiveRun() error = %v, want ErrNotConnected", err)
	}
	if c.activeRun != "run-7" {
		t.Errorf("activeRun = %q, want it kept for the next connect", c.activeRun)
	}
}

func TestRegistry(t *testing.T) {
	r := newRegistry()
	noop := func(string, []byte) error { return nil }

	r.put(subscription{topic: "fleetrunner/run/b/abort", qos: 1, handler: noop})
	r.put(subscription{topic: "fleetrunner/run/a/abort", qos: 1, handler: noop})
	r.put(subscription{topic: "fleetrunner/run/a/abort", qos: 2, handler: noop})

	if r.len() != 2 {
		t.Fatalf("len() = %d, want 2", r.len())
	}
	snap := r.snapshot()
	if snap[0].topic != "fleetrunner/run/a/abort" || snap[0].qos != 2 {
		t.Errorf("snapshot[0] = %s qos %d, want the replaced a/abort at qos 2", snap[0].topic, snap[0].qos)
	}

	r.remove("fleetrunner/run/a/abort")
	if r.has("fleetrunner/run/a/abort") || !r.has("fleetrunner/run/b/abort") {
		t.Error("remove() dropped the wrong subscription")
	}
}
