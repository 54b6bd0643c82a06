// Package server wires the HTTP surface: page routes behind the route
// guard, the session bootstrap endpoints, and the authenticated proxy
// to the chat backend.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-frontend/web/internal/auth"
	"chat-frontend/web/internal/config"
	"chat-frontend/web/internal/gateway"
	"chat-frontend/web/internal/presence"
	"chat-frontend/web/internal/routeguard"
	"chat-frontend/web/internal/session"
	"chat-frontend/web/internal/session/domain"
)

// Server holds the wired components behind the HTTP surface.
type Server struct {
	cfg      *config.Config
	routes   routeguard.Classifier
	codec    *session.CookieCodec
	registry *session.Registry
	gw       *gateway.Client
	auth     *auth.Service
	presence *presence.Manager
	logger   *slog.Logger
}

// New assembles a server from its components.
func New(cfg *config.Config, routes routeguard.Classifier, codec *session.CookieCodec, registry *session.Registry, gw *gateway.Client, authSvc *auth.Service, pm *presence.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		routes:   routes,
		codec:    codec,
		registry: registry,
		gw:       gw,
		auth:     authSvc,
		presence: pm,
		logger:   logger,
	}
}

// Handler builds the gin engine with all routes and middleware.
func (s *Server) Handler() http.Handler {
	e := gin.New()
	e.Use(gin.Recovery(), RequestID(), AccessLog(s.logger), s.rehydrate)

	guard := routeguard.Middleware(s.routes, func(c *gin.Context) (bool, domain.Role) {
		return s.codec.HasToken(c.Request)
	})

	pages := e.Group("", guard)
	pages.GET("/", s.home)
	pages.GET("/login", s.page(pageData{Title: "Sign in", ShowLoginForm: true}))
	pages.GET("/register", s.page(pageData{Title: "Register"}))
	pages.GET("/status", s.page(pageData{Title: "Status"}))
	pages.GET("/dashboard", s.page(pageData{Title: "Dashboard", ShowLogout: true}))
	pages.GET("/chat", s.page(pageData{Title: "Chat", ShowLogout: true}))
	pages.GET("/admin/dashboard", s.page(pageData{Title: "Admin Dashboard", ShowLogout: true}))

	e.POST("/auth/login", s.handleLogin)
	e.POST("/auth/logout", s.handleLogout)

	api := e.Group("/api")
	api.POST("/visibility", s.handleVisibility)
	api.GET("/online-users", s.handleOnlineUsers)
	api.Any("/backend/*path", s.handleProxy)

	return e
}

// rehydrate rebuilds the in-memory token store from the request's
// credential cookies after a server restart. A full cookie set brings
// the heartbeat back with it; a partial set rehydrates nothing.
func (s *Server) rehydrate(c *gin.Context) {
	sid := s.codec.ReadSessionID(c.Request)
	if sid == "" {
		c.Next()
		return
	}
	if _, ok := s.registry.Get(sid); ok {
		c.Next()
		return
	}
	sess, ok := s.codec.ReadSession(c.Request)
	if !ok {
		c.Next()
		return
	}
	st, _ := s.registry.GetOrCreate(sid)
	if err := st.Set(sess); err == nil {
		s.presence.StartSession(sid, st)
	}
	c.Next()
}

// currentStore resolves the browser session id and its token store.
func (s *Server) currentStore(c *gin.Context) (string, *session.Store, bool) {
	sid := s.codec.ReadSessionID(c.Request)
	if sid == "" {
		return "", nil, false
	}
	st, ok := s.registry.Get(sid)
	return sid, st, ok
}

// home sends an authenticated visitor to their role's landing page. The
// guard has already redirected anonymous visitors to the login page.
func (s *Server) home(c *gin.Context) {
	_, role := s.codec.HasToken(c.Request)
	c.Redirect(http.StatusFound, s.routes.RoleHome(role))
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed login request"})
		return
	}

	res, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": auth.ErrNetwork.Error()})
		return
	}

	sid := uuid.NewString()
	st, _ := s.registry.GetOrCreate(sid)
	if err := st.Set(res.Session); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": auth.ErrNetwork.Error()})
		return
	}
	if err := s.codec.WriteSession(c.Writer, res.Session); err != nil {
		s.registry.Remove(sid)
		c.JSON(http.StatusBadGateway, gin.H{"error": auth.ErrNetwork.Error()})
		return
	}
	s.codec.WriteSessionID(c.Writer, sid)
	s.presence.StartSession(sid, st)

	c.JSON(http.StatusOK, gin.H{"redirect": res.RedirectPath})
}

// handleLogout tears the session down in one pass: heartbeat, store,
// registry entry, and every credential cookie. Idempotent; logging out
// twice is two successes.
func (s *Server) handleLogout(c *gin.Context) {
	sid, st, ok := s.currentStore(c)
	if sid != "" {
		s.presence.StopSession(sid)
		s.registry.Remove(sid)
	}
	if ok {
		s.auth.Logout(st)
	}
	s.codec.ClearAll(c.Writer)
	c.JSON(http.StatusOK, gin.H{"redirect": s.routes.LoginPath})
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

// handleVisibility forwards a page-visibility transition to the
// session's heartbeat scheduler. Unknown sessions are ignored.
func (s *Server) handleVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed visibility request"})
		return
	}
	if sid := s.codec.ReadSessionID(c.Request); sid != "" {
		s.presence.Visibility(sid, req.Visible)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleOnlineUsers(c *gin.Context) {
	_, st, ok := s.currentStore(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"online_users": []string{}})
		return
	}
	users := presence.OnlineUsers(c.Request.Context(), s.gw, st, s.logger)
	c.JSON(http.StatusOK, gin.H{"online_users": users})
}

// handleProxy forwards an API call to the backend through the gateway.
// The bearer credential, the 401 refresh transition, and the single
// resend all happen inside the gateway; this handler re-syncs the
// access cookie when the refresh replaced the token, and converts a
// terminated session into a login redirect.
func (s *Server) handleProxy(c *gin.Context) {
	sid, st, ok := s.currentStore(c)
	if !ok {
		// No session: the call still goes through, unauthenticated.
		st = session.NewStore()
	}

	path := c.Param("path")
	if q := c.Request.URL.RawQuery; q != "" {
		path += "?" + q
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}

	var prevAccess string
	if sess, has := st.Get(); has {
		prevAccess = sess.AccessToken
	}

	resp, err := s.gw.Do(c.Request.Context(), st, c.Request.Method, path, body)
	if err != nil {
		if errors.Is(err, gateway.ErrSessionExpired) {
			if sid != "" {
				s.presence.StopSession(sid)
				s.registry.Remove(sid)
			}
			s.codec.ClearAll(c.Writer)
			c.JSON(http.StatusUnauthorized, gin.H{"redirect": s.routes.LoginPath})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unreachable"})
		return
	}
	defer resp.Body.Close()

	if sess, has := st.Get(); has && sess.AccessToken != prevAccess {
		s.codec.WriteAccessToken(c.Writer, sess.AccessToken)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		s.logger.Warn("proxy body copy failed", "path", path, "error", err)
	}
}
