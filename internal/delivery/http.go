// Package delivery implements subscription.Channel over the connection
// management API: POST {endpoint}/@connections/{id}.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-notify/internal/subscription"
)

// ManagementKeyHeader carries the shared key for the management API.
const ManagementKeyHeader = "X-Management-Key"

const (
	defaultTimeout = 5 * time.Second
	maxErrorBody   = 512
)

// HTTPChannel delivers payloads through the management API of whichever
// instance holds the connection.
type HTTPChannel struct {
	client        *http.Client
	managementKey string
}

// NewHTTPChannel returns a channel whose requests time out after timeout.
// managementKey, if non-empty, is sent in X-Management-Key.
func NewHTTPChannel(timeout time.Duration, managementKey string) *HTTPChannel {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPChannel{
		client:        &http.Client{Timeout: timeout},
		managementKey: managementKey,
	}
}

// Deliver implements subscription.Channel. A 410 response or a refused
// connection is reported as subscription.ErrGone.
func (c *HTTPChannel) Deliver(ctx context.Context, connectionID, endpoint string, payload []byte) error {
	target := strings.TrimRight(endpoint, "/") + "/@connections/" + url.PathEscape(connectionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.managementKey != "" {
		req.Header.Set(ManagementKeyHeader, c.managementKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("%w: %w", subscription.ErrGone, err)
		}
		return fmt.Errorf("posting to connection %s: %w", connectionID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse
		return subscription.ErrGone
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // Best effort detail
		return fmt.Errorf("posting to connection %s failed with status %d: %s", connectionID, resp.StatusCode, string(body))
	}
}
