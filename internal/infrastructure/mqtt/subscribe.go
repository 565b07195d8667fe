package mqtt

import (
	"fmt"
	"sort"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// registry remembers subscriptions so they can be restored after the
// broker drops the session.
type registry struct {
	mu   sync.RWMutex
	subs map[string]subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]subscription)}
}

func (r *registry) put(s subscription) {
	r.mu.Lock()
	r.subs[s.topic] = s
	r.mu.Unlock()
}

func (r *registry) remove(topic string) {
	r.mu.Lock()
	delete(r.subs, topic)
	r.mu.Unlock()
}

func (r *registry) has(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[topic]
	return ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// snapshot returns the subscriptions in topic order.
func (r *registry) snapshot() []subscription {
	r.mu.RLock()
	out := make([]subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].topic < out[j].topic })
	return out
}

// Subscribe registers a handler for messages on topic, which may use the
// + and # wildcards. A second Subscribe on the same topic replaces the
// handler.
//
// Parameters:
//   - topic: The topic pattern to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validateSubscribe(topic, qos, handler); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.put(subscription{topic: topic, qos: qos, handler: handler})
	if err := await(c.paho.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed, defaultPublishTimeout); err != nil {
		c.subs.remove(topic)
		return err
	}
	return nil
}

// Unsubscribe removes a subscription. It is forgotten locally even when
// the broker cannot be told.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	c.subs.remove(topic)

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Unsubscribe(topic), ErrUnsubscribeFailed, defaultPublishTimeout)
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	return c.subs.len()
}

// HasSubscription checks if a subscription exists for the exact topic string.
func (c *Client) HasSubscription(topic string) bool {
	return c.subs.has(topic)
}

func validateSubscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return nil
}

// await waits for a paho token, wrapping a timeout or failure in kind.
func await(token pahomqtt.Token, kind error, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", kind, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}
