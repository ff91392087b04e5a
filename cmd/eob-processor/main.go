package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/opendental/eob-processor/internal/api"
	"github.com/opendental/eob-processor/internal/config"
	"github.com/opendental/eob-processor/internal/extract"
	"github.com/opendental/eob-processor/internal/llm"
	"github.com/opendental/eob-processor/internal/notify"
	"github.com/opendental/eob-processor/internal/ocr"
	"github.com/opendental/eob-processor/internal/pipeline"
	"github.com/opendental/eob-processor/internal/storage"
	"github.com/opendental/eob-processor/internal/tasks"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	version    = "dev"
)

const drainTimeout = 60 * time.Second

func main() {
	flag.Parse()

	logger, err := newLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting eob-processor",
		zap.String("version", version),
	)

	cfg, err := config.Load(context.Background(), *configPath, config.NewSecretResolver())
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	gateway := storage.New()
	recognizer := ocr.NewClient(cfg.OCR, logger)
	chatClient := llm.NewClient(cfg.LLM)
	extractor := extract.New(chatClient, cfg.Extraction, cfg.LLM.MaxTokens, logger)
	notifier := notify.New(cfg.Notify)
	processor := pipeline.New(cfg.Storage.Bucket, gateway, recognizer, extractor, notifier, logger)
	runner := tasks.NewRunner(logger)

	server := api.New(cfg, processor, runner, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("address", cfg.Server.Address),
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Env),
		zap.String("bucket", cfg.Storage.Bucket),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	if err := server.Shutdown(30 * time.Second); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	if !runner.Drain(drainTimeout) {
		logger.Warn("Background runs still in flight at shutdown",
			zap.Int64("active", runner.Active()),
		)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
