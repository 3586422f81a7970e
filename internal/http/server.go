// Package http provides the treegate introspection HTTP server: health,
// usage statistics, a validate endpoint, and Prometheus metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/treegate/pkg/fault"
	"github.com/fyrsmithlabs/treegate/pkg/security"
)

// Server exposes the gating layer's introspection endpoints.
type Server struct {
	echo   *echo.Echo
	sec    *security.Context
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the introspection server around a security context.
func NewServer(sec *security.Context, logger *zap.Logger, cfg *Config) (*Server, error) {
	if sec == nil {
		return nil, fmt.Errorf("security context cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		sec:    sec,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/stats", s.handleStats)
	v1.POST("/validate", s.handleValidate)
	v1.POST("/reset", s.handleReset)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sec.Stats())
}

// ValidateResponse is the response body for POST /api/v1/validate.
type ValidateResponse struct {
	RootPath        string `json:"root_path"`
	Component       string `json:"component"`
	Attribute       string `json:"attribute"`
	ExpectedValue   string `json:"expected_value,omitempty"`
	ExactMatch      bool   `json:"exact_match"`
	IncludeChildren bool   `json:"include_children"`
}

// handleValidate runs the validate-and-sanitize entry point over a raw
// parameter bag and returns the sanitized form.
func (s *Server) handleValidate(c echo.Context) error {
	var bag map[string]any
	if err := c.Bind(&bag); err != nil {
		s.logger.Warn("invalid validate request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	params, err := s.sec.ValidateAndSanitize(bag)
	if err != nil {
		return faultHTTPError(err)
	}

	return c.JSON(http.StatusOK, ValidateResponse{
		RootPath:        params.RootPath,
		Component:       params.Component,
		Attribute:       params.Attribute,
		ExpectedValue:   params.ExpectedValue,
		ExactMatch:      params.ExactMatch,
		IncludeChildren: params.IncludeChildren,
	})
}

func (s *Server) handleReset(c echo.Context) error {
	s.sec.Reset()
	return c.NoContent(http.StatusNoContent)
}

// faultHTTPError maps the error taxonomy onto HTTP status codes without
// losing the message.
func faultHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, fault.ErrPathTraversal):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, fault.ErrPathNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, fault.ErrResourceExceeded):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case errors.Is(err, fault.ErrTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, fault.ErrParseFailure):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
