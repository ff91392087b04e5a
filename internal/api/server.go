// Package api exposes the processing pipeline over HTTP.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/opendental/eob-processor/internal/config"
	"github.com/opendental/eob-processor/internal/models"
	"github.com/opendental/eob-processor/internal/pipeline"
	"github.com/opendental/eob-processor/internal/tasks"
)

// Processor runs one request through the pipeline.
type Processor interface {
	Run(ctx context.Context, runID string, req models.ProcessRequest, withNotify bool) *pipeline.RunReport
}

// Server handles the HTTP API
type Server struct {
	app       *fiber.App
	config    *config.Config
	processor Processor
	runner    *tasks.Runner
	logger    *zap.Logger
}

// New creates a new API server
func New(cfg *config.Config, processor Processor, runner *tasks.Runner, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:       app,
		config:    cfg,
		processor: processor,
		runner:    runner,
		logger:    logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	s.app.Get("/", s.handleRoot)
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", s.handleMetrics)
	s.app.Get("/metrics.json", s.handleMetricsJSON)

	s.app.Post("/eob", s.handleProcess)
	s.app.Post("/eob/sync", s.handleProcessSync)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}
