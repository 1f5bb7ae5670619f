package entity

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/nerrad567/gray-logic-notify/internal/store"
	"github.com/nerrad567/gray-logic-notify/internal/subscription"
)

// Action types understood by Reduce.
const (
	ActionSet   = "set"
	ActionUnset = "unset"
)

var (
	// ErrNotFound is returned when no entity exists for the id.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidEntity is returned for writes without a usable id.
	ErrInvalidEntity = errors.New("invalid entity")
)

// Entity is a free-form JSON object. The "id" key holds its identifier.
type Entity map[string]any

// ID returns the entity's id, or "" when absent or not a string.
func (e Entity) ID() string {
	id, _ := e["id"].(string)
	return id
}

// Action is a Flux-style state transition.
type Action struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Error   bool           `json:"error,omitempty"`
}

// Reduce returns the state that results from applying action to state.
// state is not modified.
func Reduce(state Entity, action Action) Entity {
	next := maps.Clone(state)
	if next == nil {
		next = Entity{}
	}

	switch action.Type {
	case ActionSet:
		for k, v := range action.Payload {
			if k == "id" {
				continue
			}
			next[k] = v
		}
	case ActionUnset:
		for _, k := range unsetKeys(action.Payload) {
			if k == "id" {
				continue
			}
			delete(next, k)
		}
	}
	return next
}

func unsetKeys(payload map[string]any) []string {
	switch keys := payload["keys"].(type) {
	case []string:
		return keys
	case []any:
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := k.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Publisher delivers a new entity state to its subscribers.
type Publisher interface {
	FanOut(ctx context.Context, entityID string, message any) ([]subscription.Outcome, error)
}

// Logger is the logging surface the service needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Service reads and writes entities and publishes every change.
type Service struct {
	store     store.ConditionalStore
	publisher Publisher
	logger    Logger
}

// NewService returns a Service over s. publisher may be nil, in which case
// changes are stored but not published.
func NewService(s store.ConditionalStore, publisher Publisher, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{store: s, publisher: publisher, logger: logger}
}

// Get returns the entity with the given id.
func (s *Service) Get(ctx context.Context, id string) (Entity, error) {
	e, err := store.GetJSON[Entity](ctx, s.store, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return e, nil
}

// Create stores a new entity {"id": id}. An existing entity is left untouched.
func (s *Service) Create(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEntity)
	}
	if _, err := store.PutJSONIfAbsent(ctx, s.store, id, Entity{"id": id}); err != nil {
		return err
	}
	return nil
}

// Put replaces the entity with e and publishes it.
func (s *Service) Put(ctx context.Context, e Entity) (Entity, error) {
	id := e.ID()
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidEntity)
	}
	if err := store.PutJSON(ctx, s.store, id, e); err != nil {
		return nil, err
	}
	s.publish(ctx, e)
	return e, nil
}

// Apply runs action against the stored entity, stores the result and
// publishes it.
func (s *Service) Apply(ctx context.Context, id string, action Action) (Entity, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := Reduce(current, action)
	next["id"] = id
	if err := store.PutJSON(ctx, s.store, id, next); err != nil {
		return nil, err
	}
	s.publish(ctx, next)
	return next, nil
}

// publish fans out e. Delivery problems never fail the write.
func (s *Service) publish(ctx context.Context, e Entity) {
	if s.publisher == nil {
		return
	}
	outcomes, err := s.publisher.FanOut(ctx, e.ID(), e)
	if err != nil {
		s.logger.Warn("entity fan-out failed", "entity_id", e.ID(), "error", err)
		return
	}
	for _, o := range outcomes {
		if o.Status == subscription.StatusFailed {
			s.logger.Warn("entity delivery failed",
				"entity_id", e.ID(),
				"subscriber_id", o.SubscriberID,
				"error", o.Err,
			)
		}
	}
}
