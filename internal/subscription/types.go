package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Subscriber type tags as persisted.
const (
	TypeWebSocket        = "WebSocket"
	TypePushNotification = "PushNotification"
)

// Errors reported by the registry.
var (
	// ErrGone is returned by a Channel when the connection no longer exists.
	// It never leaves FanOut; the subscriber is pruned instead.
	ErrGone = errors.New("connection gone")

	// ErrDelivery wraps any other channel failure.
	ErrDelivery = errors.New("delivery failed")

	// ErrNotImplemented is reported for push notification subscribers.
	ErrNotImplemented = errors.New("push notifications not implemented")

	ErrUnknownSubscriberType = errors.New("unknown subscriber type")
)

// Channel delivers a payload to one live connection.
type Channel interface {
	Deliver(ctx context.Context, connectionID, endpoint string, payload []byte) error
}

// Subscriber is a WebSocketSubscriber or a PushNotificationSubscriber.
type Subscriber interface {
	// ID is unique among all subscribers.
	ID() string
	Type() string
	isSubscriber()
}

// WebSocketSubscriber is a live WebSocket connection.
type WebSocketSubscriber struct {
	ConnectionID string `json:"connectionId"`
	// Endpoint is where the delivery channel reaches the connection.
	Endpoint string `json:"endpoint"`
}

func (s WebSocketSubscriber) ID() string  { return s.ConnectionID }
func (WebSocketSubscriber) Type() string  { return TypeWebSocket }
func (WebSocketSubscriber) isSubscriber() {}

// PushNotificationSubscriber is a device registered for push delivery.
type PushNotificationSubscriber struct {
	DeviceID string `json:"deviceId"`
}

func (s PushNotificationSubscriber) ID() string  { return s.DeviceID }
func (PushNotificationSubscriber) Type() string  { return TypePushNotification }
func (PushNotificationSubscriber) isSubscriber() {}

// Subscription lists the subscribers of one entity. Subscriber ids are unique within it.
type Subscription struct {
	EntityID    string
	Subscribers []Subscriber
}

// SubscriberMap is the reverse index from a subscriber to its entity.
type SubscriberMap struct {
	SubscriberID string `json:"subscriberId"`
	EntityID     string `json:"entityId"`
}

type subscriberRecord struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	DeviceID     string `json:"deviceId,omitempty"`
}

type subscriptionRecord struct {
	EntityID    string             `json:"entityId"`
	Subscribers []subscriberRecord `json:"subscribers"`
}

// MarshalJSON encodes subscribers with a type discriminator.
func (s Subscription) MarshalJSON() ([]byte, error) {
	rec := subscriptionRecord{
		EntityID:    s.EntityID,
		Subscribers: make([]subscriberRecord, 0, len(s.Subscribers)),
	}
	for _, sub := range s.Subscribers {
		switch v := sub.(type) {
		case WebSocketSubscriber:
			rec.Subscribers = append(rec.Subscribers, subscriberRecord{
				Type: TypeWebSocket, ConnectionID: v.ConnectionID, Endpoint: v.Endpoint,
			})
		case PushNotificationSubscriber:
			rec.Subscribers = append(rec.Subscribers, subscriberRecord{
				Type: TypePushNotification, DeviceID: v.DeviceID,
			})
		default:
			return nil, fmt.Errorf("%w: %T", ErrUnknownSubscriberType, sub)
		}
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes the type-discriminated form written by MarshalJSON.
func (s *Subscription) UnmarshalJSON(data []byte) error {
	var rec subscriptionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	s.EntityID = rec.EntityID
	s.Subscribers = make([]Subscriber, 0, len(rec.Subscribers))
	for _, r := range rec.Subscribers {
		switch r.Type {
		case TypeWebSocket:
			s.Subscribers = append(s.Subscribers, WebSocketSubscriber{ConnectionID: r.ConnectionID, Endpoint: r.Endpoint})
		case TypePushNotification:
			s.Subscribers = append(s.Subscribers, PushNotificationSubscriber{DeviceID: r.DeviceID})
		default:
			return fmt.Errorf("%w: %q", ErrUnknownSubscriberType, r.Type)
		}
	}
	return nil
}

// Outcome status values.
const (
	StatusDelivered = "delivered"
	StatusPruned    = "pruned"
	StatusFailed    = "failed"
)

// Outcome is the result of fanning out to one subscriber.
type Outcome struct {
	SubscriberID string
	Type         string
	Status       string
	Err          error
}

// Recorder receives one call per fan-out outcome.
type Recorder interface {
	RecordOutcome(entityID string, o Outcome)
}

func subscriptionKey(entityID string) string   { return "subscription#" + entityID }
func subscriberKey(subscriberID string) string { return "subscriber#" + subscriberID }
