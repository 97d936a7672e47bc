// Package web provides the HTTP server for checkweb
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-while/checkweb/internal/auth"
	"github.com/go-while/checkweb/internal/cache"
	"github.com/go-while/checkweb/internal/config"
	"github.com/go-while/checkweb/internal/logging"
	"github.com/go-while/checkweb/internal/metrics"
	"github.com/go-while/checkweb/internal/templates"
	"github.com/go-while/checkweb/internal/validation"
	"go.uber.org/zap"
)

// Deps are the services the server is assembled from.
// Pages, Views, HotReload and Metrics are optional.
type Deps struct {
	Config    *config.MainConfig
	Logger    *zap.Logger
	Cache     cache.Client
	Users     auth.UserStore
	Pages     *templates.Engine
	Views     *templates.Engine
	HotReload *templates.HotReload
	Metrics   *metrics.Metrics
}

// WebServer represents the web server
type WebServer struct {
	Router    *gin.Engine
	Config    *config.MainConfig
	StartTime time.Time

	logger     *zap.Logger
	cache      cache.Client
	auth       *auth.Feature
	validator  *validation.Validator
	pages      *templates.Engine
	views      *templates.Engine
	hotReload  *templates.HotReload
	metrics    *metrics.Metrics
	operations []Operation
	httpServer *http.Server
}

// NewServer creates a new web server instance
func NewServer(d Deps) (*WebServer, error) {
	if d.Config == nil {
		return nil, errors.New("web: no config")
	}
	if d.Cache == nil {
		return nil, errors.New("web: no cache client")
	}
	if d.Users == nil {
		return nil, errors.New("web: no user store")
	}
	cfg := d.Config

	if gin.Mode() != gin.TestMode {
		if cfg.Host.DebugMode {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	logger := logging.Component(d.Logger, "web")
	router := gin.New()

	// Configure Gin to trust reverse proxy headers
	if err := router.SetTrustedProxies(cfg.Web.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	s := &WebServer{
		Router:    router,
		Config:    cfg,
		StartTime: time.Now(),
		logger:    logger,
		cache:     d.Cache,
		pages:     d.Pages,
		views:     d.Views,
		hotReload: d.HotReload,
		metrics:   d.Metrics,
	}
	if !cfg.Plugins.TemplatePages {
		s.pages = nil
	}
	if !cfg.Plugins.Views {
		s.views = nil
	}
	if !cfg.Plugins.Metrics {
		s.metrics = nil
	}
	if cfg.Plugins.Validation {
		s.validator = validation.New()
	}

	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.CustomRecoveryWithZap(logger, true, s.recoverWithResponse))
	if s.metrics != nil {
		router.Use(s.metrics.Middleware())
	}

	// Configure security headers based on SSL setup
	secureConfig := secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}
	// Only add SSL-specific headers if SSL is enabled on the application itself
	// (not when running behind a reverse proxy like nginx with SSL)
	if cfg.Web.SSL {
		secureConfig.SSLRedirect = true
		secureConfig.STSSeconds = 31536000
		secureConfig.STSIncludeSubdomains = true
	}
	router.Use(secure.New(secureConfig))

	if cfg.Web.CORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AddAllowHeaders("Accept", auth.SessionHeader)
		router.Use(cors.New(corsConfig))
	}

	// Add reverse proxy middleware for handling X-Forwarded headers
	router.Use(s.ReverseProxyMiddleware())

	sessions := auth.NewSessionStore(d.Cache, cfg.Auth.SessionExpiry, cfg.Auth.PermSessionExpiry)
	creds := auth.NewCredentialsProvider(d.Users, cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutTime)
	s.auth = auth.NewFeature(sessions, creds, cfg.Host, s, logging.Component(d.Logger, "auth"))

	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Web.ListenPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *WebServer) setupRoutes() {
	s.operations = s.defaultOperations()
	for _, op := range s.operations {
		s.registerOperation(op)
	}

	s.auth.Register(s.Router)

	s.Router.GET("/ping", func(c *gin.Context) {
		c.Header("X-Uptime", time.Since(s.StartTime).Truncate(time.Second).String())
		c.String(http.StatusOK, "pong")
	})
	if s.Config.Plugins.Metadata {
		s.Router.GET("/metadata", s.metadataHandler)
	}
	if s.metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	if s.Config.HotReloadEnabled() && s.hotReload != nil {
		s.Router.GET("/templates/hotreload/page", s.hotReloadHandler)
	}

	s.Router.NoRoute(s.fallbackHandler)
}

// Handler returns the root http.Handler
func (s *WebServer) Handler() http.Handler {
	return s.Router
}

// Start starts the web server with SSL support if configured.
// It blocks until the server stops; a graceful Shutdown returns nil.
func (s *WebServer) Start() error {
	addr := s.httpServer.Addr

	var err error
	if s.Config.Web.SSL {
		if s.Config.Web.CertFile == "" || s.Config.Web.KeyFile == "" {
			return errors.New("SSL enabled but cert_file or key_file not specified in config")
		}
		s.logger.Info("Starting HTTPS server", zap.String("addr", addr))
		err = s.httpServer.ListenAndServeTLS(s.Config.Web.CertFile, s.Config.Web.KeyFile)
	} else {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for active requests
func (s *WebServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// ReverseProxyMiddleware handles X-Forwarded headers when running behind a reverse proxy.
// Client IPs are resolved by gin from the trusted proxies list.
func (s *WebServer) ReverseProxyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Handle X-Forwarded-Proto to detect if the original request was HTTPS
		if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" {
			c.Request.URL.Scheme = "https"
		}

		// Handle X-Forwarded-Host to get the original host
		if host := c.GetHeader("X-Forwarded-Host"); host != "" {
			c.Request.Host = host
		}

		c.Next()
	}
}
