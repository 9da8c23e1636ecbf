package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/otplogin/internal/apipaths"
	"github.com/otplogin/internal/httputil"
	"github.com/otplogin/internal/session"
)

const sessionContextKey = "session"

// requireSession lets requests with a valid session through and sends
// everyone else to the login page
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.sessions.Read(c.Request)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				s.logger.WarnContext(c.Request.Context(), "Rejected session cookie", "error", err)
				http.SetCookie(c.Writer, s.sessions.Destroy())
			}
			c.Redirect(http.StatusFound, apipaths.Login)
			c.Abort()
			return
		}

		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// redirectIfAuthenticated sends a signed-in user to the profile page
func (s *Server) redirectIfAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.sessions.Read(c.Request); err == nil {
			c.Redirect(http.StatusFound, apipaths.Profile)
			c.Abort()
			return
		}
		c.Next()
	}
}

// getSessionFromContext extracts the session stored by requireSession
func getSessionFromContext(c *gin.Context) (*session.Session, bool) {
	if v, exists := c.Get(sessionContextKey); exists {
		if sess, ok := v.(*session.Session); ok {
			return sess, true
		}
	}
	return nil, false
}

// profilePage shows the merged Stytch and local user record
func (s *Server) profilePage(c *gin.Context) {
	sess, ok := getSessionFromContext(c)
	if !ok {
		c.Redirect(http.StatusFound, apipaths.Login)
		return
	}

	profile, err := s.loginService.GetProfile(c.Request.Context(), sess.UserID, sess.StytchUserID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.logger.InfoContext(c.Request.Context(), "User is logged in",
		"user_id", sess.UserID, "stytch_user_id", sess.StytchUserID)

	if httputil.WantsJSON(c) {
		c.JSON(http.StatusOK, profile)
		return
	}

	pretty, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.HTML(http.StatusOK, "profile.html", page("Profile", trail(breadcrumb{Label: "Profile"}), gin.H{
		"Welcome":     httputil.UserCreatedFlag(c),
		"ProfileJSON": string(pretty),
	}))
}

// logout clears the session cookie. Every method but GET gets 405, HEAD included.
func (s *Server) logout(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.Header("Allow", http.MethodGet)
		s.renderError(c, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
		return
	}

	http.SetCookie(c.Writer, s.sessions.Destroy())
	c.Redirect(http.StatusFound, apipaths.Home)
}
