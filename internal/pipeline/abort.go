package pipeline

import (
	"context"
	"fmt"

	"github.com/nerrad567/fleet-runner/internal/infrastructure/mqtt"
)

// abortQoS makes an abort request survive a broker hiccup.
const abortQoS = 1

// Subscriber is the part of mqtt.Client the remote abort uses.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// WatchAbort cancels the run when a message arrives on the run's abort
// topic. The returned function removes the subscription.
//
// Parameters:
//   - sub: Connected MQTT client
//   - runID: Run to watch
//   - cancel: Cancels the run context; called with ErrAborted as cause
//   - logger: Receives the abort notice
//
// Returns:
//   - func(): Stops watching
//   - error: If the subscription fails
func WatchAbort(sub Subscriber, runID string, cancel context.CancelCauseFunc, logger Logger) (func(), error) {
	if logger == nil {
		logger = noopLogger{}
	}
	topic := mqtt.Topics{}.RunAbort(runID)

	err := sub.Subscribe(topic, abortQoS, func(_ string, payload []byte) error {
		logger.Warn("remote abort requested", "run_id", runID, "payload", string(payload))
		cancel(fmt.Errorf("%w: remote request", ErrAborted))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", topic, err)
	}

	return func() {
		if err := sub.Unsubscribe(topic); err != nil {
			logger.Debug("abort unsubscribe failed", "topic", topic, "error", err)
		}
	}, nil
}
