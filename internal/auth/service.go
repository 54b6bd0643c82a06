// Package auth implements the session bootstrap: the login transition
// that creates a full session and the logout transition that destroys
// it.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chat-frontend/web/internal/routeguard"
	"chat-frontend/web/internal/session"
	"chat-frontend/web/internal/session/domain"
	"chat-frontend/web/internal/telemetry"
)

const (
	loginPath      = "/auth/login"
	defaultTimeout = 15 * time.Second
)

// Sentinel errors classifying login failures. Neither is ever retried
// automatically.
var (
	// ErrInvalidCredentials means the backend rejected the credentials.
	// The wrapped message is sourced from the backend's error detail
	// when available.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNetwork means the backend could not be reached.
	ErrNetwork = errors.New("network error, try again")
)

// Service performs login and logout against the backend auth endpoint.
type Service struct {
	baseURL string
	hc      *http.Client
	routes  routeguard.Classifier
	logger  *slog.Logger
	emitter telemetry.EventEmitter
}

// NewService returns a bootstrap service for the backend at baseURL.
// emitter may be nil.
func NewService(baseURL string, routes routeguard.Classifier, logger *slog.Logger, emitter telemetry.EventEmitter) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: defaultTimeout},
		routes:  routes,
		logger:  logger,
		emitter: emitter,
	}
}

// SetHTTPClient overrides the underlying HTTP client, for tests.
func (s *Service) SetHTTPClient(hc *http.Client) {
	s.hc = hc
}

// LoginResult is the outcome of a successful login: the full session
// and the role-appropriate landing page.
type LoginResult struct {
	Session      domain.Session
	RedirectPath string
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    domain.User `json:"user"`
}

// Login calls the backend authentication endpoint once and assembles
// the full session. Nothing is installed on failure; partial responses
// are discarded. Errors wrap ErrInvalidCredentials or ErrNetwork.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	raw, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+loginPath, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		s.logger.Warn("login call failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, errorDetail(resp.Body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: login endpoint returned %d", ErrNetwork, resp.StatusCode)
	}

	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: malformed login response", ErrNetwork)
	}
	sess := domain.Session{
		AccessToken:  body.Access,
		RefreshToken: body.Refresh,
		Role:         domain.DeriveRole(body.User.IsSuperuser, body.User.IsStaff),
		User:         body.User,
	}
	if err := sess.Validate(); err != nil {
		// Partially-received data is never stored.
		return nil, fmt.Errorf("%w: incomplete login response", ErrNetwork)
	}
	telemetry.EmitAsync(s.emitter, telemetry.Event{
		Type:   telemetry.EventLogin,
		UserID: sess.User.ID,
	}, s.logger)
	return &LoginResult{
		Session:      sess,
		RedirectPath: s.routes.RoleHome(sess.Role),
	}, nil
}

// Logout clears every credential the store holds. It cannot fail and is
// idempotent; clearing an empty store is a no-op success.
func (s *Service) Logout(store *session.Store) {
	sess, had := store.Get()
	store.Clear()
	if had {
		telemetry.EmitAsync(s.emitter, telemetry.Event{
			Type:   telemetry.EventLogout,
			UserID: sess.User.ID,
		}, s.logger)
	}
}

// errorDetail extracts the backend's human-readable error detail, or
// falls back to a generic message.
func errorDetail(body io.Reader) string {
	var out struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&out); err == nil {
		if out.Detail != "" {
			return out.Detail
		}
		if out.Error != "" {
			return out.Error
		}
	}
	return "invalid credentials"
}
