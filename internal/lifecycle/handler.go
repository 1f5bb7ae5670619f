package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nerrad567/gray-logic-notify/internal/auth"
	"github.com/nerrad567/gray-logic-notify/internal/metrics"
	"github.com/nerrad567/gray-logic-notify/internal/subscription"
)

// Route keys.
const (
	RouteConnect    = "$connect"
	RouteDisconnect = "$disconnect"
	RouteDefault    = "$default"
)

var (
	ErrMissingIdentifier = errors.New("missing identifier")
	ErrUnsupported       = errors.New("incoming messages not supported")
)

// clientErrors are the failures whose text may be shown to the client.
// Anything else is reported as internalErrorMessage.
var clientErrors = []error{auth.ErrUnauthorized, ErrMissingIdentifier, ErrUnsupported}

const internalErrorMessage = "internal error"

// Event is one connection lifecycle event.
type Event struct {
	RouteKey     string
	ConnectionID string
	DomainName   string
	Stage        string
	Headers      http.Header
}

// Result acknowledges an event to the transport.
type Result struct {
	StatusCode int `json:"statusCode"`
}

// Registry is the part of subscription.Registry the handler uses.
type Registry interface {
	Subscribe(ctx context.Context, entityID string, sub subscription.Subscriber) error
	Unsubscribe(ctx context.Context, subscriberID string) error
}

// Logger is the logging surface the handler needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Endpoints derives the delivery endpoint for a connection's domain.
type Endpoints struct {
	LocalDomain   string
	LocalEndpoint string
	CloudMarker   string
}

// DefaultEndpoints matches local development and the hosted gateway.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		LocalDomain:   "localhost",
		LocalEndpoint: "http://localhost:3001",
		CloudMarker:   "amazonaws.com",
	}
}

// Derive returns the endpoint for domain and stage.
func (e Endpoints) Derive(domain, stage string) string {
	switch {
	case domain == e.LocalDomain:
		return e.LocalEndpoint
	case e.CloudMarker != "" && strings.Contains(domain, e.CloudMarker):
		return fmt.Sprintf("https://%s/%s", domain, stage)
	default:
		return "https://" + domain
	}
}

// Handler processes connection lifecycle events.
type Handler struct {
	identity  Identity
	registry  Registry
	channel   subscription.Channel
	endpoints Endpoints
	logger    Logger
}

// NewHandler returns a Handler. channel is used only to push error messages
// back to the connection.
func NewHandler(identity Identity, registry Registry, channel subscription.Channel, endpoints Endpoints, logger Logger) *Handler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Handler{
		identity:  identity,
		registry:  registry,
		channel:   channel,
		endpoints: endpoints,
		logger:    logger,
	}
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Handle processes ev and always returns StatusCode 200.
func (h *Handler) Handle(ctx context.Context, ev Event) Result {
	endpoint := h.endpoints.Derive(ev.DomainName, ev.Stage)

	err := h.dispatch(ctx, ev, endpoint)
	metrics.LifecycleEvents.WithLabelValues(routeLabel(ev.RouteKey), metrics.Result(err)).Inc()
	if err != nil {
		h.logger.Warn("connection event failed",
			"route", ev.RouteKey,
			"connection_id", ev.ConnectionID,
			"endpoint", endpoint,
			"error", err,
		)
		h.pushError(ctx, ev.ConnectionID, endpoint, err)
	}

	return Result{StatusCode: http.StatusOK}
}

func (h *Handler) dispatch(ctx context.Context, ev Event, endpoint string) error {
	switch ev.RouteKey {
	case RouteConnect:
		entityID, err := h.identity.EntityID(ctx, ev.Headers)
		if err != nil {
			return err
		}
		sub := subscription.WebSocketSubscriber{ConnectionID: ev.ConnectionID, Endpoint: endpoint}
		if err := h.registry.Subscribe(ctx, entityID, sub); err != nil {
			return err
		}
		h.logger.Info("connection subscribed", "connection_id", ev.ConnectionID, "entity_id", entityID, "endpoint", endpoint)
		return nil

	case RouteDisconnect:
		if err := h.registry.Unsubscribe(ctx, ev.ConnectionID); err != nil {
			return err
		}
		h.logger.Info("connection unsubscribed", "connection_id", ev.ConnectionID)
		return nil

	default:
		return ErrUnsupported
	}
}

func (h *Handler) pushError(ctx context.Context, connectionID, endpoint string, cause error) {
	payload, err := json.Marshal(errorMessage{Type: "error", Message: clientMessage(cause)})
	if err != nil {
		return
	}
	if err := h.channel.Deliver(ctx, connectionID, endpoint, payload); err != nil {
		h.logger.Warn("error message not delivered", "connection_id", connectionID, "error", err)
	}
}

// clientMessage returns the sentinel text for known client errors and a
// generic message otherwise; the full error is only logged.
func clientMessage(err error) string {
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return internalErrorMessage
}

func routeLabel(routeKey string) string {
	switch routeKey {
	case RouteConnect, RouteDisconnect, RouteDefault:
		return routeKey
	default:
		return "other"
	}
}
