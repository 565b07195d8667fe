package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
)

// Client publishes run events and receives remote control messages.
//
// The runner announces itself on its status topic: "online" when idle,
// "busy" with the run ID while SetActiveRun is in effect, and "offline"
// on Close or, through the broker's Last Will, when the process dies.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are restored on reconnection.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig
	subs *registry

	mu           sync.RWMutex
	connected    bool
	activeRun    string
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives handler failures. logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's goroutines and should not block.
// A returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{cfg: cfg, subs: newRegistry()}
}

// Connect establishes a connection to the MQTT broker.
//
// The broker URL, credentials and TLS come from cfg. A retained Last Will
// marks the runner offline if the connection drops without Close. paho
// reconnects automatically with backoff once the first connection is up.
//
// Parameters:
//   - cfg: MQTT section of the configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the broker cannot be reached in time
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), ErrConnectionFailed, defaultConnectTimeout); err != nil {
		return nil, err
	}

	// The OnConnect handler runs asynchronously and may not have fired yet.
	c.setConnected(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.setConnected(true)

	for _, sub := range c.subs.snapshot() {
		if err := await(c.paho.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler)), ErrSubscribeFailed, defaultPublishTimeout); err != nil {
			c.warn("restoring subscription failed", "topic", sub.topic, "error", err)
		}
	}
	c.announce("")

	c.mu.RLock()
	callback := c.onConnect
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// SetActiveRun marks the runner busy with runID on its status topic. An
// empty runID marks it idle again. The status is re-sent after reconnects.
func (c *Client) SetActiveRun(runID string) error {
	c.mu.Lock()
	c.activeRun = runID
	c.mu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.announce("")
}

// announce publishes the retained runner status.
func (c *Client) announce(reason string) error {
	c.mu.RLock()
	run := c.activeRun
	c.mu.RUnlock()

	status := statusOnline
	if run != "" {
		status = statusBusy
	}
	return c.publishStatus(status, run, reason)
}

func (c *Client) publishStatus(status, run, reason string) error {
	topic := Topics{}.RunnerStatus(c.cfg.Broker.ClientID)
	payload := statusPayload(c.cfg.Broker.ClientID, status, run, reason)
	return await(c.paho.Publish(topic, byte(c.cfg.QoS), true, payload), ErrPublishFailed, defaultPublishTimeout)
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		if err := c.publishStatus(statusOffline, "", "graceful_shutdown"); err != nil {
			c.warn("offline status not delivered", "error", err)
		}
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports whether the connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect sets a callback invoked on initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets a logger for handler errors and panics.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) warn(msg string, args ...any) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// wrapHandler adapts a MessageHandler to paho.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs one handler call, logging its error or panic.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.mu.RLock()
			logger := c.logger
			c.mu.RUnlock()
			if logger != nil {
				logger.Error("mqtt handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		c.warn("mqtt handler returned error", "topic", topic, "error", err)
	}
}
