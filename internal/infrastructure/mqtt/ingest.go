package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-notify/internal/metrics"
	"github.com/nerrad567/gray-logic-notify/internal/subscription"
)

// stateFanOutTimeout bounds one fan-out triggered by a state message.
const stateFanOutTimeout = 30 * time.Second

// Publisher fans a message out to an entity's subscribers.
type Publisher interface {
	FanOut(ctx context.Context, entityID string, message any) ([]subscription.Outcome, error)
}

// NewStateHandler returns a MessageHandler that fans each state message out
// to the subscribers of the entity named by the topic's last level. The
// payload must be valid JSON and is forwarded unchanged.
func NewStateHandler(publisher Publisher, logger Logger) MessageHandler {
	return func(topic string, payload []byte) error {
		err := handleState(publisher, logger, topic, payload)
		metrics.StateMessages.WithLabelValues(metrics.Result(err)).Inc()
		return err
	}
}

func handleState(publisher Publisher, logger Logger, topic string, payload []byte) error {
	entityID, ok := EntityFromTopic(topic)
	if !ok {
		return fmt.Errorf("%w: no entity in topic %q", ErrInvalidStateMessage, topic)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: payload on %q is not JSON", ErrInvalidStateMessage, topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), stateFanOutTimeout)
	defer cancel()

	outcomes, err := publisher.FanOut(ctx, entityID, json.RawMessage(payload))
	if err != nil {
		return fmt.Errorf("fan-out for %s: %w", entityID, err)
	}
	if logger != nil {
		for _, o := range outcomes {
			if o.Status == subscription.StatusFailed {
				logger.Warn("state delivery failed",
					"entity_id", entityID,
					"subscriber_id", o.SubscriberID,
					"error", o.Err,
				)
			}
		}
	}
	return nil
}
