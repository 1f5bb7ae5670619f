package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-notify/internal/metrics"
	"github.com/nerrad567/gray-logic-notify/internal/store"
)

// Logger is the logging surface the registry needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Registry.
type Options struct {
	// MaxConcurrency bounds concurrent deliveries in one FanOut. 0 means unbounded.
	MaxConcurrency int

	// Recorder, if set, receives every outcome.
	Recorder Recorder

	Logger Logger
}

// Registry maintains the entity/subscriber indexes and performs fan-out.
//
// Concurrent Subscribe calls for the same entity race on the
// load-modify-store of the Subscription record; the last write wins.
type Registry struct {
	store          store.Store
	channel        Channel
	maxConcurrency int
	recorder       Recorder
	logger         Logger
}

// NewRegistry returns a Registry over s that delivers through ch.
func NewRegistry(s store.Store, ch Channel, opts Options) *Registry {
	r := &Registry{
		store:          s,
		channel:        ch,
		maxConcurrency: opts.MaxConcurrency,
		recorder:       opts.Recorder,
		logger:         opts.Logger,
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r
}

// Subscribe attaches sub to entityID. Subscribing an id that is already
// present replaces the entry. A subscriber attached to a different entity
// is detached from it first.
func (r *Registry) Subscribe(ctx context.Context, entityID string, sub Subscriber) (err error) {
	defer func() {
		metrics.RegistryOperations.WithLabelValues("subscribe", metrics.Result(err)).Inc()
	}()

	existing, err := r.loadMap(ctx, sub.ID())
	if err != nil {
		return err
	}
	if existing != nil && existing.EntityID != entityID {
		if err := r.removeFromEntity(ctx, existing.EntityID, sub.ID()); err != nil {
			return err
		}
	}

	subscription, err := r.loadSubscription(ctx, entityID)
	if err != nil {
		return err
	}
	if subscription == nil {
		subscription = &Subscription{EntityID: entityID}
	}

	replaced := false
	for i, s := range subscription.Subscribers {
		if s.ID() == sub.ID() {
			subscription.Subscribers[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		subscription.Subscribers = append(subscription.Subscribers, sub)
	}

	if err := store.PutJSON(ctx, r.store, subscriptionKey(entityID), subscription); err != nil {
		return fmt.Errorf("storing subscription %s: %w", entityID, err)
	}
	if err := store.PutJSON(ctx, r.store, subscriberKey(sub.ID()), SubscriberMap{
		SubscriberID: sub.ID(),
		EntityID:     entityID,
	}); err != nil {
		return fmt.Errorf("storing subscriber map %s: %w", sub.ID(), err)
	}

	r.logger.Debug("subscribed", "entity_id", entityID, "subscriber_id", sub.ID(), "type", sub.Type())
	return nil
}

// Unsubscribe detaches subscriberID from whatever entity it is attached to.
// An unknown subscriber is a no-op.
func (r *Registry) Unsubscribe(ctx context.Context, subscriberID string) (err error) {
	defer func() {
		metrics.RegistryOperations.WithLabelValues("unsubscribe", metrics.Result(err)).Inc()
	}()

	m, err := r.loadMap(ctx, subscriberID)
	if err != nil || m == nil {
		return err
	}

	if err := r.removeFromEntity(ctx, m.EntityID, subscriberID); err != nil {
		return err
	}

	if err := r.store.Delete(ctx, subscriberKey(subscriberID)); err != nil {
		return fmt.Errorf("deleting subscriber map %s: %w", subscriberID, err)
	}

	r.logger.Debug("unsubscribed", "entity_id", m.EntityID, "subscriber_id", subscriberID)
	return nil
}

// Subscribers returns the current subscribers of entityID.
func (r *Registry) Subscribers(ctx context.Context, entityID string) ([]Subscriber, error) {
	s, err := r.loadSubscription(ctx, entityID)
	if err != nil || s == nil {
		return nil, err
	}
	return s.Subscribers, nil
}

// FanOut delivers message to every subscriber of entityID and returns one
// Outcome per subscriber. Per-subscriber failures are reported in the
// outcomes; the error is non-nil only when the message cannot be encoded
// or the subscription cannot be loaded.
//
// message is JSON-encoded unless it is already []byte or json.RawMessage.
// Deliveries are detached from ctx cancellation so a caller going away
// does not abort deliveries already under way.
func (r *Registry) FanOut(ctx context.Context, entityID string, message any) ([]Outcome, error) {
	start := time.Now()
	defer func() { metrics.FanOutDuration.Observe(time.Since(start).Seconds()) }()

	payload, err := encode(message)
	if err != nil {
		return nil, fmt.Errorf("encoding message for %s: %w", entityID, err)
	}

	subscription, err := r.loadSubscription(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if subscription == nil || len(subscription.Subscribers) == 0 {
		return nil, nil
	}

	outcomes := make([]Outcome, len(subscription.Subscribers))
	deliverCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}
	for i, sub := range subscription.Subscribers {
		g.Go(func() error {
			outcomes[i] = r.deliver(deliverCtx, sub, payload)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Deliveries never return errors; outcomes carry them

	for i := range outcomes {
		if outcomes[i].Status != StatusPruned {
			continue
		}
		if err := r.prune(deliverCtx, entityID, outcomes[i].SubscriberID); err != nil {
			r.logger.Warn("pruning gone subscriber failed",
				"entity_id", entityID,
				"subscriber_id", outcomes[i].SubscriberID,
				"error", err,
			)
			outcomes[i].Status = StatusFailed
			outcomes[i].Err = err
		}
	}

	for _, o := range outcomes {
		metrics.FanOutOutcomes.WithLabelValues(o.Type, o.Status).Inc()
		if r.recorder != nil {
			r.recorder.RecordOutcome(entityID, o)
		}
	}

	r.logger.Debug("fan-out complete", "entity_id", entityID, "subscribers", len(outcomes))
	return outcomes, nil
}

// deliver sends payload to one subscriber. A StatusPruned result means the
// channel reported the connection gone and the subscriber still needs removing.
func (r *Registry) deliver(ctx context.Context, sub Subscriber, payload []byte) Outcome {
	o := Outcome{SubscriberID: sub.ID(), Type: sub.Type()}

	switch s := sub.(type) {
	case WebSocketSubscriber:
		err := r.channel.Deliver(ctx, s.ConnectionID, s.Endpoint, payload)
		switch {
		case err == nil:
			o.Status = StatusDelivered
		case errors.Is(err, ErrGone):
			o.Status = StatusPruned
		default:
			o.Status = StatusFailed
			o.Err = fmt.Errorf("%w: %s: %w", ErrDelivery, s.ConnectionID, err)
		}
	case PushNotificationSubscriber:
		o.Status = StatusFailed
		o.Err = ErrNotImplemented
	default:
		o.Status = StatusFailed
		o.Err = fmt.Errorf("%w: %T", ErrUnknownSubscriberType, sub)
	}

	return o
}

// prune removes a gone subscriber from entityID's list. Its reverse entry
// is deleted only when it still points at entityID, so a missing map or one
// already moved to another entity leaves that entity untouched.
func (r *Registry) prune(ctx context.Context, entityID, subscriberID string) error {
	if err := r.removeFromEntity(ctx, entityID, subscriberID); err != nil {
		return err
	}

	m, err := r.loadMap(ctx, subscriberID)
	if err != nil || m == nil || m.EntityID != entityID {
		return err
	}
	if err := r.store.Delete(ctx, subscriberKey(subscriberID)); err != nil {
		return fmt.Errorf("deleting subscriber map %s: %w", subscriberID, err)
	}
	return nil
}

// removeFromEntity drops subscriberID from entityID's list, deleting the
// record when it empties. A missing subscription is not an error.
func (r *Registry) removeFromEntity(ctx context.Context, entityID, subscriberID string) error {
	subscription, err := r.loadSubscription(ctx, entityID)
	if err != nil || subscription == nil {
		return err
	}

	kept := subscription.Subscribers[:0]
	for _, s := range subscription.Subscribers {
		if s.ID() != subscriberID {
			kept = append(kept, s)
		}
	}
	subscription.Subscribers = kept

	if len(kept) == 0 {
		if err := r.store.Delete(ctx, subscriptionKey(entityID)); err != nil {
			return fmt.Errorf("deleting subscription %s: %w", entityID, err)
		}
		return nil
	}
	if err := store.PutJSON(ctx, r.store, subscriptionKey(entityID), subscription); err != nil {
		return fmt.Errorf("storing subscription %s: %w", entityID, err)
	}
	return nil
}

func (r *Registry) loadSubscription(ctx context.Context, entityID string) (*Subscription, error) {
	s, err := store.GetJSON[Subscription](ctx, r.store, subscriptionKey(entityID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading subscription %s: %w", entityID, err)
	}
	return &s, nil
}

func (r *Registry) loadMap(ctx context.Context, subscriberID string) (*SubscriberMap, error) {
	m, err := store.GetJSON[SubscriberMap](ctx, r.store, subscriberKey(subscriberID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading subscriber map %s: %w", subscriberID, err)
	}
	return &m, nil
}

func encode(message any) ([]byte, error) {
	switch m := message.(type) {
	case json.RawMessage:
		return m, nil
	case []byte:
		return m, nil
	default:
		return json.Marshal(message)
	}
}
