// Package domain defines the session model shared by the token store,
// request gateway, route guard, and presence scheduler.
package domain

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the coarse privilege classification derived at login.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a stored role string to a Role. Unknown or empty values
// resolve to RoleUser so a malformed artifact never grants admin access.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleUser:
		return RoleUser
	default:
		return RoleUser
	}
}

// DeriveRole computes the role from the privilege flags on the backend
// user record: superuser or staff means admin.
func DeriveRole(isSuperuser, isStaff bool) Role {
	if isSuperuser || isStaff {
		return RoleAdmin
	}
	return RoleUser
}

// User is the denormalized profile snapshot returned by the login
// endpoint. Read-only on this side; the backend owns the record.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	IsSuperuser bool   `json:"is_superuser"`
	IsStaff     bool   `json:"is_staff"`
}

// Session is the authenticated identity bound to one browser session.
// A Session is either fully present (all fields set) or absent; partial
// sessions are rejected by Validate and never stored.
type Session struct {
	AccessToken  string
	RefreshToken string
	Role         Role
	User         User
}

// ErrIncompleteSession is returned by Validate when any required field
// is missing.
var ErrIncompleteSession = errors.New("session is missing required fields")

// Validate reports whether the session satisfies the
// fully-present-or-absent invariant.
func (s *Session) Validate() error {
	if s == nil {
		return ErrIncompleteSession
	}
	if s.AccessToken == "" || s.RefreshToken == "" || s.User.ID == "" {
		return ErrIncompleteSession
	}
	if s.Role != RoleUser && s.Role != RoleAdmin {
		return ErrIncompleteSession
	}
	return nil
}

// TokenExpiry returns the exp claim of a JWT access token without
// verifying the signature. Used only to cap cookie lifetimes; the
// backend remains the authority on token validity. Returns ok false
// when the token is not a parseable JWT or carries no exp claim.
func TokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
