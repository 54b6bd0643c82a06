// Package presence keeps the backend's last-activity timestamp fresh
// for each signed-in browser session and exposes the online-user list.
// Everything here is best-effort: failures are logged, never surfaced.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chat-frontend/web/internal/gateway"
	"chat-frontend/web/internal/session"
	"chat-frontend/web/internal/telemetry"
)

// DefaultInterval is the heartbeat period.
const DefaultInterval = 2 * time.Minute

// sendTimeout bounds one heartbeat call.
const sendTimeout = 10 * time.Second

// Sender performs one heartbeat send.
type Sender interface {
	Send(ctx context.Context) error
}

// Scheduler is the per-session heartbeat state machine. It is idle
// until Start and active until the returned stop function runs. Ticks
// with no session are skipped without tearing the timer down; teardown
// belongs to the owning scope (logout or shutdown).
type Scheduler struct {
	store    *session.Store
	sender   Sender
	interval time.Duration
	logger   *slog.Logger
	emitter  telemetry.EventEmitter
	nowF     func() time.Time

	mu         sync.Mutex
	lastSentAt time.Time
	stopped    bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler returns an idle scheduler. emitter may be nil.
func NewScheduler(store *session.Store, sender Sender, interval time.Duration, logger *slog.Logger, emitter telemetry.EventEmitter) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		sender:   sender,
		interval: interval,
		logger:   logger,
		emitter:  emitter,
		nowF:     time.Now,
		done:     make(chan struct{}),
	}
}

// Start moves the scheduler to active: one immediate send, then one
// send per interval. The returned stop function cancels the timer and
// disables visibility delivery together; it is idempotent and safe to
// call from any goroutine.
func (s *Scheduler) Start() (stop func()) {
	go func() {
		s.send()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.send()
			}
		}
	}()
	return func() {
		s.stopOnce.Do(func() {
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()
			close(s.done)
		})
	}
}

// Visibility delivers a page-visibility transition. A hidden→visible
// transition resends out of cycle only when more than half the interval
// passed since the last successful send; rapid tab switching costs
// nothing. Calls after teardown are no-ops.
func (s *Scheduler) Visibility(visible bool) {
	if !visible {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	stale := s.nowF().Sub(s.lastSentAt) > s.interval/2
	s.mu.Unlock()
	if stale {
		s.send()
	}
}

// send performs one heartbeat. No session means no network action.
// Errors are swallowed here and never reach a caller.
func (s *Scheduler) send() {
	sess, ok := s.store.Get()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.sender.Send(ctx); err != nil {
		s.logger.Warn("heartbeat send failed", "user_id", sess.User.ID, "error", err)
		telemetry.EmitAsync(s.emitter, telemetry.Event{
			Type:   telemetry.EventHeartbeatFailed,
			UserID: sess.User.ID,
			Detail: err.Error(),
		}, s.logger)
		return
	}
	s.mu.Lock()
	s.lastSentAt = s.nowF()
	s.mu.Unlock()
}

// lastSent returns the time of the last successful send.
func (s *Scheduler) lastSent() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSentAt
}

// HeartbeatSender sends heartbeats through the request gateway with the
// session's bearer credential.
type HeartbeatSender struct {
	GW    *gateway.Client
	Store *session.Store
	NowF  func() time.Time
}

type heartbeatRequest struct {
	Timestamp string `json:"timestamp"`
}

// Send posts the heartbeat. A 404 means the backend has no presence
// feature and counts as success.
func (h *HeartbeatSender) Send(ctx context.Context) error {
	now := time.Now
	if h.NowF != nil {
		now = h.NowF
	}
	body := heartbeatRequest{Timestamp: now().UTC().Format(time.RFC3339)}
	status, err := h.GW.DoJSON(ctx, h.Store, http.MethodPost, "/chat/heartbeat", body, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("heartbeat endpoint returned %d", status)
	}
	return nil
}
