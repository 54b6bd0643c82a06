package routeguard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"chat-frontend/web/internal/session/domain"
)

// The four table rows of the guard contract, as literal cases.
func TestDecide_TableRows(t *testing.T) {
	c := Default()
	cases := []struct {
		name     string
		path     string
		hasToken bool
		role     domain.Role
		want     Decision
	}{
		{
			name: "no token on protected path",
			path: "/dashboard", hasToken: false, role: domain.RoleUser,
			want: Decision{Action: Redirect, Target: "/login"},
		},
		{
			name: "token on public-only path goes to role home",
			path: "/login", hasToken: true, role: domain.RoleAdmin,
			want: Decision{Action: Redirect, Target: "/admin/dashboard"},
		},
		{
			name: "non-admin on admin-scoped path",
			path: "/admin/x", hasToken: true, role: domain.RoleUser,
			want: Decision{Action: Redirect, Target: "/dashboard"},
		},
		{
			name: "token on protected path",
			path: "/dashboard", hasToken: true, role: domain.RoleUser,
			want: Decision{Action: Allow},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Decide(tc.path, tc.hasToken, tc.role)
			if got != tc.want {
				t.Errorf("Decide(%q, %v, %q) = %+v, want %+v", tc.path, tc.hasToken, tc.role, got, tc.want)
			}
		})
	}
}

func TestDecide_Pure(t *testing.T) {
	c := Default()
	first := c.Decide("/admin/x", true, domain.RoleUser)
	for i := 0; i < 5; i++ {
		if got := c.Decide("/admin/x", true, domain.RoleUser); got != first {
			t.Fatalf("Decide not deterministic: %+v then %+v", first, got)
		}
	}
}

func TestDecide_AdminOnAdminPath(t *testing.T) {
	c := Default()
	if got := c.Decide("/admin/dashboard", true, domain.RoleAdmin); got.Action != Allow {
		t.Errorf("admin on /admin/dashboard: %+v, want allow", got)
	}
}

func TestDecide_UserOnPublicOnly(t *testing.T) {
	c := Default()
	got := c.Decide("/register", true, domain.RoleUser)
	want := Decision{Action: Redirect, Target: "/dashboard"}
	if got != want {
		t.Errorf("Decide = %+v, want %+v", got, want)
	}
}

func TestDecide_NoTokenOnPublicOnly(t *testing.T) {
	c := Default()
	for _, path := range []string{"/login", "/register", "/status"} {
		if got := c.Decide(path, false, domain.RoleUser); got.Action != Allow {
			t.Errorf("Decide(%q, false) = %+v, want allow", path, got)
		}
	}
}

func TestMatchesPrefix_SegmentBoundary(t *testing.T) {
	c := Default()
	// "/administrate" is not admin-scoped; it is a protected path.
	if got := c.Decide("/administrate", true, domain.RoleUser); got.Action != Allow {
		t.Errorf("Decide(/administrate) = %+v, want allow", got)
	}
}

func TestRoleHome(t *testing.T) {
	c := Default()
	if got := c.RoleHome(domain.RoleAdmin); got != "/admin/dashboard" {
		t.Errorf("RoleHome(admin) = %q", got)
	}
	if got := c.RoleHome(domain.RoleUser); got != "/dashboard" {
		t.Errorf("RoleHome(user) = %q", got)
	}
	if got := c.RoleHome(domain.Role("weird")); got != "/dashboard" {
		t.Errorf("RoleHome(weird) = %q, want user home", got)
	}
}

func TestMiddleware_RedirectsBeforeHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rendered := false
	r := gin.New()
	r.Use(Middleware(Default(), func(ctx *gin.Context) (bool, domain.Role) {
		return false, domain.RoleUser
	}))
	r.GET("/dashboard", func(ctx *gin.Context) {
		rendered = true
		ctx.String(http.StatusOK, "dashboard")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/login" {
		t.Errorf("Location = %q, want /login", got)
	}
	if rendered {
		t.Error("protected handler ran before the guard decision")
	}
}

func TestMiddleware_AllowsThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(Default(), func(ctx *gin.Context) (bool, domain.Role) {
		return true, domain.RoleAdmin
	}))
	r.GET("/admin/dashboard", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "admin")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
