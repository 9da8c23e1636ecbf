package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/otplogin/internal/domain"
	"github.com/otplogin/internal/httputil"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeError maps err to a status code and renders it as JSON or an error page
func (s *Server) writeError(c *gin.Context, err error) {
	status := domain.HTTPStatus(err)
	resp := ErrorResponse{Error: domain.PublicMessage(err)}

	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "Request failed",
			"method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		if s.config.ExposeErrorDetails {
			resp.Details = err.Error()
		}
	}

	s.renderError(c, status, resp)
}

func (s *Server) renderError(c *gin.Context, status int, resp ErrorResponse) {
	if httputil.WantsJSON(c) {
		c.JSON(status, resp)
		return
	}

	c.HTML(status, "error.html", page("Error", nil, gin.H{
		"Status":     status,
		"StatusText": http.StatusText(status),
		"Error":      resp.Error,
		"Details":    resp.Details,
	}))
}
