// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/crane-billing/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HealthFunc reports whether the backing store is reachable
type HealthFunc func(ctx context.Context) error

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxUploadBytes: 10 << 20,
	}
}

// Services groups the application services the API exposes
type Services struct {
	Measurements service.MeasurementService
	Generator    service.GeneratorService
	Documents    service.DocumentService
	Reports      service.ReportService
	Audit        service.AuditService
	Health       HealthFunc
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	if config.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = config.MaxUploadBytes
	}

	server := &Server{
		config:   config,
		router:   router,
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.services, s.config.MaxUploadBytes, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	measurements := s.router.Group("/measurements")
	{
		measurements.GET("", handlers.ListMeasurements)
		measurements.POST("", handlers.CreateMeasurement)
		measurements.POST("/generate-automatic", handlers.GenerateMeasurement)
		measurements.GET("/by-budget/:budget_id", handlers.ListByBudget)
		measurements.GET("/by-site/:site_id", handlers.ListBySite)

		measurements.GET("/:id", handlers.GetMeasurement)
		measurements.PUT("/:id", handlers.UpdateMeasurement)
		measurements.DELETE("/:id", handlers.DeleteMeasurement)
		measurements.GET("/:id/audit", handlers.MeasurementAudit)

		measurements.PATCH("/:id/finalize", handlers.FinalizeMeasurement)
		measurements.PATCH("/:id/cancel", handlers.CancelMeasurement)
		measurements.PATCH("/:id/send", handlers.SendMeasurement)
		measurements.PATCH("/:id/approval", handlers.RecordApproval)

		measurements.POST("/:id/items/:category", handlers.AddLineItem)
		measurements.PUT("/:id/items/:category", handlers.ReplaceLineItems)
		measurements.PUT("/:id/items/:category/:item_id", handlers.UpdateLineItem)
		measurements.DELETE("/:id/items/:category/:item_id", handlers.RemoveLineItem)

		measurements.GET("/:id/documents", handlers.ListDocuments)
		measurements.POST("/:id/documents", handlers.AttachDocument)
		measurements.PATCH("/:id/documents/:kind/status", handlers.UpdateDocumentStatus)
	}

	s.router.GET("/budgets/:budget_id/measurements/report.xlsx", handlers.BudgetReport)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
