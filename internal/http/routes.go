package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/otplogin/internal/apipaths"
)

// setupRoutes configures all page routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.engine.GET(apipaths.Health, s.healthCheck)

	s.engine.GET(apipaths.Home, s.homePage)

	// Login pages - a signed-in user is sent straight to the profile
	login := s.engine.Group(apipaths.Login)
	login.Use(s.redirectIfAuthenticated())
	{
		login.GET("", s.loginPage)
		login.GET("/email", s.emailLoginPage)
		login.POST("/email", s.submitEmailLogin)
		login.GET("/sms", s.smsLoginPage)
		login.POST("/sms", s.submitSMSLogin)
		login.GET("/otp", s.otpPage)
		login.POST("/otp", s.submitOTP)
	}

	s.engine.GET(apipaths.Profile, s.requireSession(), s.profilePage)

	// Logout answers every method so that non-GET requests get a 405
	s.engine.Any(apipaths.Logout, s.logout)

	s.engine.NoRoute(func(c *gin.Context) {
		s.renderError(c, http.StatusNotFound, ErrorResponse{Error: "Page not found"})
	})
}

// healthCheck reports whether the database is reachable
func (s *Server) healthCheck(c *gin.Context) {
	if err := s.health.PingContext(c.Request.Context()); err != nil {
		s.logger.ErrorContext(c.Request.Context(), "Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "otplogin",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "otplogin",
	})
}
