package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelgate/internal/router"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	// MasterKey protects every route except /health and /metrics.
	// Empty disables authentication.
	MasterKey string
	// BodyLimit is an echo body-limit spec like "10M".
	BodyLimit string
	// MetricsHandler serves GET /metrics; defaults to promhttp.Handler.
	MetricsHandler http.Handler
}

// New creates a new HTTP server
func New(rt *router.Router, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(rt)

	bodyLimit := "10M"
	var masterKey string
	metricsHandler := http.Handler(promhttp.Handler())
	if cfg != nil {
		masterKey = cfg.MasterKey
		if cfg.BodyLimit != "" {
			bodyLimit = cfg.BodyLimit
		}
		if cfg.MetricsHandler != nil {
			metricsHandler = cfg.MetricsHandler
		}
	}

	// Global middleware stack (order matters)
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(AuthMiddleware(masterKey, []string{"/health", "/metrics"}))

	// Public routes
	e.GET("/health", handler.Health)
	e.GET("/metrics", echo.WrapHandler(metricsHandler))

	// API routes
	e.GET("/v1/models", handler.ListModels)
	e.POST("/v1/chat/completions", handler.ChatCompletion)
	e.POST("/v1/vision/extract-text", handler.ExtractVision)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
