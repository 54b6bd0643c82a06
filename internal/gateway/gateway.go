// Package gateway is the single chokepoint for authenticated calls to
// the chat backend. It attaches the bearer credential, runs the
// one-shot refresh transition on 401, and shares concurrent refreshes
// per token store.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"chat-frontend/web/internal/session"
	"chat-frontend/web/internal/telemetry"
)

const (
	refreshPath    = "/auth/token/refresh"
	defaultTimeout = 15 * time.Second
)

// ErrSessionExpired is returned when the refresh transition fails. The
// token store has been cleared; the caller must redirect to the login
// entry point. Terminal for the session, never retried.
var ErrSessionExpired = errors.New("session expired; login required")

// Client forwards requests to the backend with the current access
// token. Safe for concurrent use.
type Client struct {
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
	emitter telemetry.EventEmitter

	flight singleflight.Group

	refreshAttempts metric.Int64Counter
	refreshFailures metric.Int64Counter
}

// New returns a gateway client for the backend at baseURL. emitter may
// be nil.
func New(baseURL string, logger *slog.Logger, emitter telemetry.EventEmitter) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("chat-frontend/web/internal/gateway")
	attempts, _ := meter.Int64Counter("session_refresh_attempts_total",
		metric.WithDescription("Access token refresh attempts"))
	failures, _ := meter.Int64Counter("session_refresh_failures_total",
		metric.WithDescription("Access token refresh failures ending the session"))
	return &Client{
		baseURL:         baseURL,
		hc:              &http.Client{Timeout: defaultTimeout},
		logger:          logger,
		emitter:         emitter,
		refreshAttempts: attempts,
		refreshFailures: failures,
	}
}

// SetHTTPClient overrides the underlying HTTP client. Tests use this to
// remove the default timeout or inject transports.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.hc = hc
}

// Do sends one authenticated request through the gateway. The bearer
// credential is attached iff the store holds a session; the refresh
// token is never attached here. On 401 the refresh transition runs once
// and the request is resent exactly once; a 401 on the resend is
// returned to the caller as-is. The caller owns the response body.
func (c *Client) Do(ctx context.Context, store *session.Store, method, path string, body []byte) (*http.Response, error) {
	return c.do(ctx, store, method, path, body, 0)
}

func (c *Client) do(ctx context.Context, store *session.Store, method, path string, body []byte, attempt int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: build %s %s: %w", method, path, err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	sess, hasSession := store.Get()
	if hasSession {
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusUnauthorized || !hasSession || attempt > 0 {
		return resp, nil
	}

	// First 401 for this logical request: run the refresh transition,
	// then resend with the incremented attempt count.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err := c.refreshAccess(ctx, store); err != nil {
		return nil, err
	}
	return c.do(ctx, store, method, path, body, attempt+1)
}

// refreshAccess performs the refresh transition: a single credentials-
// inclusive call to the refresh endpoint, shared across concurrent
// callers per store. On success the store's access token is replaced in
// place; on failure the store is cleared entirely and ErrSessionExpired
// is returned.
func (c *Client) refreshAccess(ctx context.Context, store *session.Store) error {
	key := fmt.Sprintf("%p", store)
	_, err, _ := c.flight.Do(key, func() (any, error) {
		sess, ok := store.Get()
		if !ok {
			return nil, ErrSessionExpired
		}
		c.refreshAttempts.Add(ctx, 1)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, nil)
		if err != nil {
			return nil, c.failSession(ctx, store, sess.User.ID, fmt.Errorf("build refresh request: %w", err))
		}
		// The refresh credential travels only on this call, as transport.
		req.AddCookie(&http.Cookie{Name: session.CookieRefreshToken, Value: sess.RefreshToken})

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, c.failSession(ctx, store, sess.User.ID, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, c.failSession(ctx, store, sess.User.ID, fmt.Errorf("refresh endpoint returned %d", resp.StatusCode))
		}
		var out struct {
			Access string `json:"access"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Access == "" {
			return nil, c.failSession(ctx, store, sess.User.ID, fmt.Errorf("refresh response malformed"))
		}
		if !store.UpdateAccessToken(out.Access) {
			// Session was cleared while the refresh was in flight
			// (logout mid-refresh). Do not resurrect it.
			return nil, ErrSessionExpired
		}
		telemetry.EmitAsync(c.emitter, telemetry.Event{
			Type:   telemetry.EventRefresh,
			UserID: sess.User.ID,
		}, c.logger)
		return nil, nil
	})
	return err
}

// failSession clears the store, records the failure, and returns
// ErrSessionExpired wrapping the cause.
func (c *Client) failSession(ctx context.Context, store *session.Store, userID string, cause error) error {
	store.Clear()
	c.refreshFailures.Add(ctx, 1)
	c.logger.Warn("token refresh failed; session terminated", "user_id", userID, "error", cause)
	telemetry.EmitAsync(c.emitter, telemetry.Event{
		Type:   telemetry.EventRefreshFailed,
		UserID: userID,
		Detail: cause.Error(),
	}, c.logger)
	return fmt.Errorf("%w: %v", ErrSessionExpired, cause)
}

// DoJSON sends a JSON request through Do and decodes a JSON response
// into out (skipped when out is nil or the body is empty). Returns the
// response status code.
func (c *Client) DoJSON(ctx context.Context, store *session.Store, method, path string, in, out any) (int, error) {
	var body []byte
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("gateway: encode %s %s: %w", method, path, err)
		}
		body = raw
	}
	resp, err := c.Do(ctx, store, method, path, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("gateway: read %s %s: %w", method, path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("gateway: decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}
