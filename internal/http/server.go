package http

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/otplogin/internal/config"
	"github.com/otplogin/internal/constants"
	"github.com/otplogin/internal/domain"
	"github.com/otplogin/internal/service"
	"github.com/otplogin/internal/session"
	"github.com/otplogin/internal/telemetry"
	"github.com/otplogin/internal/validation"
)

//go:embed templates/*.html
var templateFS embed.FS

// HealthChecker reports whether the backing database is reachable
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Store is the user storage the server runs on
type Store interface {
	domain.UserStore
	HealthChecker
}

// Server wraps the HTTP server
type Server struct {
	config       *config.Config
	health       HealthChecker
	loginService domain.LoginService
	sessions     *session.Manager
	validator    *validation.Validator
	engine       *gin.Engine
	logger       *slog.Logger
}

// NewServer creates a new HTTP server serving the login pages
func NewServer(
	cfg *config.Config,
	store Store,
	provider domain.AuthProvider,
	metrics *telemetry.LoginMetrics,
) *Server {
	// Set Gin mode based on environment; tests pick their own mode
	if gin.Mode() != gin.TestMode {
		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		} else {
			gin.SetMode(gin.DebugMode)
		}
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	// Middleware - order matters
	engine.Use(securityHeadersMiddleware())
	engine.Use(cacheControlMiddleware())
	engine.Use(loggerMiddleware())
	engine.Use(formBodyLimitMiddleware(constants.MaxFormBodySize))

	engine.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	logger := slog.Default()
	validator := validation.New(cfg.SMS.SupportedCountries)

	server := &Server{
		config:       cfg,
		health:       store,
		loginService: service.NewLoginService(provider, store, validator, logger, metrics),
		sessions: session.NewManager(session.Options{
			Secret:     cfg.Session.Secret,
			CookieName: cfg.Session.CookieName,
			Domain:     cfg.Session.CookieDomain,
			Secure:     cfg.Session.SecureCookie,
		}),
		validator: validator,
		engine:    engine,
		logger:    logger,
	}

	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP server and shuts it down gracefully once ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.ServerAddress
	if addr == "" {
		addr = ":8080"
	}

	// Configure server with timeouts
	server := &http.Server{
		Addr:           addr,
		Handler:        s.engine,
		ReadTimeout:    constants.ReadTimeout,
		WriteTimeout:   constants.WriteTimeout,
		IdleTimeout:    constants.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "address", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// securityHeadersMiddleware adds security-related HTTP headers
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		// Prevent clickjacking
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// HSTS (only if using HTTPS)
		if c.Request.TLS != nil {
			c.Writer.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// cacheControlMiddleware keeps login, profile and logout responses out of caches
func cacheControlMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if strings.HasPrefix(path, "/login") || strings.HasPrefix(path, "/profile") || strings.HasPrefix(path, "/logout") {
			c.Writer.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Writer.Header().Set("Pragma", "no-cache")
			c.Writer.Header().Set("Expires", "0")
		}

		c.Next()
	}
}

// formBodyLimitMiddleware limits the size of request bodies
func formBodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			if c.Request.ContentLength > maxBytes {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
					Error: "Request body too large",
				})
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// loggerMiddleware logs HTTP requests once they complete
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		slog.InfoContext(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", c.Request.RemoteAddr,
		)
	}
}
