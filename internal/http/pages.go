package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/otplogin/internal/apipaths"
	"github.com/otplogin/internal/validation"
)

type breadcrumb struct {
	Label   string
	Path    string
	Current bool
}

var (
	loginCrumb      = breadcrumb{Label: "Login", Path: apipaths.Login}
	emailLoginCrumb = breadcrumb{Label: "Email", Path: apipaths.LoginEmail}
	smsLoginCrumb   = breadcrumb{Label: "SMS", Path: apipaths.LoginSMS}
)

// trail marks the last crumb as the current page
func trail(crumbs ...breadcrumb) []breadcrumb {
	if len(crumbs) > 0 {
		crumbs[len(crumbs)-1].Current = true
	}
	return crumbs
}

// page builds template data shared by every page. Errors is always present so
// templates can index it.
func page(title string, crumbs []breadcrumb, data gin.H) gin.H {
	h := gin.H{
		"Title":       title,
		"Breadcrumbs": crumbs,
		"Errors":      validation.FieldErrors(nil),
	}
	for k, v := range data {
		h[k] = v
	}
	return h
}

func (s *Server) homePage(c *gin.Context) {
	c.HTML(http.StatusOK, "home.html", page("Home", nil, nil))
}

func (s *Server) loginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", page("Login", trail(loginCrumb), nil))
}
