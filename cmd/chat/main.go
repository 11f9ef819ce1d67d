package main

import (
	"context"
	"flag"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/katakuxiko/sasgpt/internal/app"
	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/katakuxiko/sasgpt/internal/logging"
	"github.com/katakuxiko/sasgpt/internal/service"
	"github.com/katakuxiko/sasgpt/internal/tui"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file (default $CONFIG_PATH or config.yaml)")
	chemicalID := flag.String("id", "", "Chemical id (default chemical.default_id)")
	logPath := flag.String("log", "sasgpt-chat.log", "Log file")
	flag.Parse()

	if *cfgPath != "" {
		os.Setenv("CONFIG_PATH", *cfgPath)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.NewFile(cfg.Log.Level, *logPath)
	if err != nil {
		log.Fatalf("failed to open log: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build services", zap.Error(err))
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	id := *chemicalID
	if id == "" {
		id = cfg.Chemical.DefaultID
	}
	m := tui.New(ctx, a.Chat, tui.Options{
		Title:      cfg.Server.Title,
		Caption:    cfg.Server.Caption,
		Banner:     service.Banner(a.Chat.ChemicalName(ctx, id)),
		SessionID:  uuid.NewString(),
		ChemicalID: id,
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		log.Fatalf("tui error: %v", err)
	}
}
