package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"chat-frontend/web/internal/session/domain"
)

// Cookie names for the persisted credential artifacts.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieRole         = "user_role"
	CookieUser         = "user_info"
	CookieSessionID    = "sid"
)

// CookieCodec writes and reads the credential artifacts as browser
// cookies. The access token, role, and user snapshot are readable by
// page script; the refresh token and session id are HttpOnly, visible
// only to this server as transport.
type CookieCodec struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	nowF       func() time.Time
}

// NewCookieCodec returns a codec with the given cookie scope and
// artifact lifetimes.
func NewCookieCodec(cookieDomain string, secure bool, accessTTL, refreshTTL time.Duration) *CookieCodec {
	return &CookieCodec{
		Domain:     cookieDomain,
		Secure:     secure,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		nowF:       time.Now,
	}
}

// WriteSession persists all four artifacts for the session. The access
// artifact's lifetime is capped at the token's own exp claim when the
// token is a JWT expiring sooner than the configured TTL.
func (c *CookieCodec) WriteSession(w http.ResponseWriter, sess domain.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	accessTTL := c.AccessTTL
	if exp, ok := domain.TokenExpiry(sess.AccessToken); ok {
		if until := exp.Sub(c.now()); until > 0 && until < accessTTL {
			accessTTL = until
		}
	}
	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return err
	}
	c.setCookie(w, CookieAccessToken, sess.AccessToken, accessTTL, false)
	c.setCookie(w, CookieRefreshToken, sess.RefreshToken, c.RefreshTTL, true)
	c.setCookie(w, CookieRole, string(sess.Role), accessTTL, false)
	c.setCookie(w, CookieUser, base64.RawURLEncoding.EncodeToString(userJSON), accessTTL, false)
	return nil
}

// WriteAccessToken rewrites only the access artifact, used after the
// gateway's refresh transition replaced the token in the store.
func (c *CookieCodec) WriteAccessToken(w http.ResponseWriter, accessToken string) {
	accessTTL := c.AccessTTL
	if exp, ok := domain.TokenExpiry(accessToken); ok {
		if until := exp.Sub(c.now()); until > 0 && until < accessTTL {
			accessTTL = until
		}
	}
	c.setCookie(w, CookieAccessToken, accessToken, accessTTL, false)
}

// ReadSession rebuilds a session from the request cookies. ok is false
// unless every artifact is present and well formed; a partial cookie
// set yields no session at all.
func (c *CookieCodec) ReadSession(r *http.Request) (domain.Session, bool) {
	access := cookieValue(r, CookieAccessToken)
	refresh := cookieValue(r, CookieRefreshToken)
	roleRaw := cookieValue(r, CookieRole)
	userRaw := cookieValue(r, CookieUser)
	if access == "" || refresh == "" || roleRaw == "" || userRaw == "" {
		return domain.Session{}, false
	}
	userJSON, err := base64.RawURLEncoding.DecodeString(userRaw)
	if err != nil {
		return domain.Session{}, false
	}
	var user domain.User
	if err := json.Unmarshal(userJSON, &user); err != nil {
		return domain.Session{}, false
	}
	sess := domain.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		Role:         domain.ParseRole(roleRaw),
		User:         user,
	}
	if err := sess.Validate(); err != nil {
		return domain.Session{}, false
	}
	return sess, true
}

// HasToken reports whether the request carries a readable access
// artifact, and the role artifact parsed fail-closed. The route guard
// uses this; it never needs the full session.
func (c *CookieCodec) HasToken(r *http.Request) (bool, domain.Role) {
	access := cookieValue(r, CookieAccessToken)
	if access == "" {
		return false, domain.RoleUser
	}
	return true, domain.ParseRole(cookieValue(r, CookieRole))
}

// ClearAll expires every credential artifact, including the session id.
// One destruction operation covers them all.
func (c *CookieCodec) ClearAll(w http.ResponseWriter) {
	c.setCookie(w, CookieAccessToken, "", -1, false)
	c.setCookie(w, CookieRefreshToken, "", -1, true)
	c.setCookie(w, CookieRole, "", -1, false)
	c.setCookie(w, CookieUser, "", -1, false)
	c.setCookie(w, CookieSessionID, "", -1, true)
}

// WriteSessionID sets the HttpOnly browser session id cookie, scoped to
// the refresh artifact's lifetime so a live refresh token always has a
// session id alongside it.
func (c *CookieCodec) WriteSessionID(w http.ResponseWriter, sid string) {
	c.setCookie(w, CookieSessionID, sid, c.RefreshTTL, true)
}

// ReadSessionID returns the browser session id from the request.
func (c *CookieCodec) ReadSessionID(r *http.Request) string {
	return cookieValue(r, CookieSessionID)
}

func (c *CookieCodec) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration, httpOnly bool) {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		Secure:   c.Secure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *CookieCodec) now() time.Time {
	if c.nowF != nil {
		return c.nowF()
	}
	return time.Now()
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
