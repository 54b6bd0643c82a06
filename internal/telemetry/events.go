// Package telemetry defines session lifecycle events and the emitter
// boundary. Events are best-effort observability; no caller depends on
// emit success.
package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Event types emitted by the session and presence subsystem.
const (
	EventLogin           = "session.login"
	EventLogout          = "session.logout"
	EventRefresh         = "session.refresh"
	EventRefreshFailed   = "session.refresh_failed"
	EventHeartbeatFailed = "presence.heartbeat_failed"
)

// Event is one session lifecycle occurrence.
type Event struct {
	Type      string
	UserID    string
	SessionID string
	Detail    string
	At        time.Time
}

// EventEmitter sends events to the telemetry backend.
type EventEmitter interface {
	Emit(ctx context.Context, event Event) error
}

// emitTimeout bounds a single async emit so a slow collector never
// holds a goroutine for long.
const emitTimeout = 5 * time.Second

// EmitAsync runs Emit in a goroutine, detached from the request
// context so cancellation does not abort an in-flight emit. Errors are
// logged and dropped. A nil emitter is a no-op.
func EmitAsync(emitter EventEmitter, event Event, logger *slog.Logger) {
	if emitter == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil && logger != nil {
			logger.Warn("telemetry emit failed", "event_type", event.Type, "error", err)
		}
	}()
}
