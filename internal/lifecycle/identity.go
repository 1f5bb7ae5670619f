package lifecycle

import (
	"context"
	"net/http"
)

// Identity resolves the entity a connecting client subscribes to.
type Identity interface {
	EntityID(ctx context.Context, headers http.Header) (string, error)
}

// BearerAuthorizer verifies an Authorization header value.
type BearerAuthorizer interface {
	AuthorizeBearer(ctx context.Context, header string, requiredScopes []string) (string, error)
}

// UserIdentity subscribes the authenticated principal to its own entity.
type UserIdentity struct {
	Auth   BearerAuthorizer
	Scopes []string
}

// EntityID implements Identity.
func (u UserIdentity) EntityID(ctx context.Context, headers http.Header) (string, error) {
	return u.Auth.AuthorizeBearer(ctx, headers.Get("Authorization"), u.Scopes)
}

// DefaultDeviceHeader names the header DeviceIdentity reads by default.
const DefaultDeviceHeader = "X-Device-Id"

// DeviceIdentity subscribes to the entity named in a request header.
type DeviceIdentity struct {
	Header string
}

// EntityID implements Identity.
func (d DeviceIdentity) EntityID(_ context.Context, headers http.Header) (string, error) {
	name := d.Header
	if name == "" {
		name = DefaultDeviceHeader
	}
	id := headers.Get(name)
	if id == "" {
		return "", ErrMissingIdentifier
	}
	return id, nil
}
