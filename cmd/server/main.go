package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/katakuxiko/sasgpt/internal/api"
	"github.com/katakuxiko/sasgpt/internal/app"
	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/katakuxiko/sasgpt/internal/logging"
	"go.uber.org/zap"
)

func main() {
	// config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// services
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build services", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	// api
	srv := fiber.New(fiber.Config{
		AppName:               "sasgpt",
		DisableStartupMessage: true,
		BodyLimit:             64 << 20,
	})
	defaultStore := ""
	if len(cfg.Routing.Default) > 0 {
		defaultStore = cfg.Routing.Default[0]
	}
	api.RegisterRoutes(srv, api.NewHandler(a.Chat, a.LLM, api.Options{
		Title:        cfg.Server.Title,
		Caption:      cfg.Server.Caption,
		DefaultStore: defaultStore,
		Ingest:       a.IngestInto,
		Logger:       logger,
	}))

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("🚀 Server started", zap.String("addr", cfg.Server.Addr))
	if err := srv.Listen(cfg.Server.Addr); err != nil {
		logger.Error("listen", zap.Error(err))
	}
}
