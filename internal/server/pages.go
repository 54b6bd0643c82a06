package server

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .ShowLoginForm}}
<form id="login-form" method="post" action="/auth/login">
<input type="email" name="email" placeholder="Email" required>
<input type="password" name="password" placeholder="Password" required>
<button type="submit">Sign in</button>
</form>
{{end}}
{{if .ShowLogout}}
<form id="logout-form" method="post" action="/auth/logout">
<button type="submit">Sign out</button>
</form>
{{end}}
</body>
</html>
`))

type pageData struct {
	Title         string
	ShowLoginForm bool
	ShowLogout    bool
}

// page returns a handler rendering a minimal HTML shell. The route
// guard has already run by the time a page handler executes.
func (s *Server) page(data pageData) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusOK)
		c.Header("Content-Type", "text/html; charset=utf-8")
		if err := pageTmpl.Execute(c.Writer, data); err != nil {
			s.logger.Error("page render failed", "error", err)
		}
	}
}
