package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// Runner status values published on the runner status topic.
const (
	statusOnline  = "online"
	statusBusy    = "busy"
	statusOffline = "offline"
)

// buildClientOptions creates paho options from the MQTT configuration.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureLWT makes the broker publish an offline status if the runner
// disappears without closing the connection (crash, network loss).
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetBinaryWill(
		Topics{}.RunnerStatus(clientID),
		statusPayload(clientID, statusOffline, "", "unexpected_disconnect"),
		1,
		true,
	)
}

type runnerStatus struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	RunID     string `json:"run_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusPayload(clientID, status, runID, reason string) []byte {
	data, _ := json.Marshal(runnerStatus{ //nolint:errcheck // plain struct of strings
		Status:    status,
		ClientID:  clientID,
		RunID:     runID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return data
}
