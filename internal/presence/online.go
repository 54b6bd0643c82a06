package presence

import (
	"context"
	"log/slog"
	"net/http"

	"chat-frontend/web/internal/gateway"
	"chat-frontend/web/internal/session"
)

// OnlineUsers returns the identifiers of currently online users. Any
// failure degrades to an empty list; presence display is never worth an
// error page.
func OnlineUsers(ctx context.Context, gw *gateway.Client, store *session.Store, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	var out struct {
		OnlineUsers []string `json:"online_users"`
	}
	status, err := gw.DoJSON(ctx, store, http.MethodGet, "/chat/online-users", nil, &out)
	if err != nil {
		logger.Warn("online-users fetch failed", "error", err)
		return []string{}
	}
	if status < 200 || status > 299 {
		logger.Warn("online-users fetch failed", "status", status)
		return []string{}
	}
	if out.OnlineUsers == nil {
		return []string{}
	}
	return out.OnlineUsers
}
