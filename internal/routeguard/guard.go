// Package routeguard decides, before any page renders, whether the
// current navigation is allowed or must be redirected. The decision is
// a pure function over (path, hasToken, role); path classes are
// enumerated configuration.
package routeguard

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-frontend/web/internal/session/domain"
)

// Action is the outcome class of a guard decision.
type Action int

const (
	// Allow lets the page render.
	Allow Action = iota
	// Redirect sends the client to Decision.Target instead.
	Redirect
)

// Decision is the guard's verdict for one navigation.
type Decision struct {
	Action Action
	Target string
}

// Classifier holds the enumerated path classification and the redirect
// targets. PublicOnly paths (login, register, diagnostic pages) are
// unreachable for authenticated users; AdminPrefixes are reachable only
// with the admin role; every other declared path is protected.
type Classifier struct {
	PublicOnly    []string
	AdminPrefixes []string
	LoginPath     string
	UserHome      string
	AdminHome     string
}

// Default returns the classifier for the application's route surface.
func Default() Classifier {
	return Classifier{
		PublicOnly:    []string{"/login", "/register", "/status"},
		AdminPrefixes: []string{"/admin"},
		LoginPath:     "/login",
		UserHome:      "/dashboard",
		AdminHome:     "/admin/dashboard",
	}
}

// RoleHome maps a role to its landing page. Exhaustive over the closed
// role set; anything unexpected lands on the user home.
func (c Classifier) RoleHome(role domain.Role) string {
	switch role {
	case domain.RoleAdmin:
		return c.AdminHome
	case domain.RoleUser:
		return c.UserHome
	}
	return c.UserHome
}

// Decide classifies one navigation. It reads nothing but its arguments
// and never mutates session state.
func (c Classifier) Decide(path string, hasToken bool, role domain.Role) Decision {
	switch {
	case !hasToken && !c.isPublicOnly(path):
		return Decision{Action: Redirect, Target: c.LoginPath}
	case hasToken && c.isPublicOnly(path):
		return Decision{Action: Redirect, Target: c.RoleHome(role)}
	case hasToken && c.isAdminScoped(path) && role != domain.RoleAdmin:
		return Decision{Action: Redirect, Target: c.UserHome}
	default:
		return Decision{Action: Allow}
	}
}

func (c Classifier) isPublicOnly(path string) bool {
	for _, p := range c.PublicOnly {
		if matchesPrefix(path, p) {
			return true
		}
	}
	return false
}

func (c Classifier) isAdminScoped(path string) bool {
	for _, p := range c.AdminPrefixes {
		if matchesPrefix(path, p) {
			return true
		}
	}
	return false
}

// matchesPrefix reports whether path equals prefix or sits beneath it
// as a segment, so "/admin" covers "/admin/x" but not "/administrate".
func matchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// Middleware returns a gin handler that applies Decide before the page
// handler runs, so unauthorized content never renders. hasToken reads
// the request's credential artifacts without mutating anything.
func Middleware(c Classifier, hasToken func(ctx *gin.Context) (bool, domain.Role)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		has, role := hasToken(ctx)
		d := c.Decide(ctx.Request.URL.Path, has, role)
		if d.Action == Redirect {
			ctx.Redirect(http.StatusFound, d.Target)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
