// Package app wires the configured adapters into the chat services shared by
// the web server and the terminal client.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/katakuxiko/sasgpt/internal/chemical"
	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/katakuxiko/sasgpt/internal/conversation"
	"github.com/katakuxiko/sasgpt/internal/guard"
	"github.com/katakuxiko/sasgpt/internal/ingest"
	"github.com/katakuxiko/sasgpt/internal/logging"
	"github.com/katakuxiko/sasgpt/internal/retriever"
	"github.com/katakuxiko/sasgpt/internal/router"
	"github.com/katakuxiko/sasgpt/internal/service"
	"github.com/katakuxiko/sasgpt/internal/session"
	"github.com/katakuxiko/sasgpt/internal/store"
	"go.uber.org/zap"
)

type App struct {
	Config   *config.Config
	LLM      *service.LLMClient
	Router   *router.Router
	RAG      *service.RAGService
	Chat     *service.ChatService
	Ingester *ingest.Ingester

	closers []io.Closer
	logger  *zap.Logger
}

// Build opens every store and backend named in cfg. The keyword watcher, when
// configured, runs until ctx is done.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logging.OrNop(logger)}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	a.LLM = service.NewLLMClient(cfg.LLM)

	handles := make([]retriever.Handle, 0, len(cfg.Stores))
	for _, sc := range cfg.Stores {
		col, err := store.Open(ctx, sc, a.LLM)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, col)
		handles = append(handles, col)
		a.logger.Info("store opened", zap.String("store", sc.Name), zap.String("backend", sc.Backend))
	}
	registry, err := retriever.NewRegistry(handles...)
	if err != nil {
		return err
	}

	a.Router = router.New(cfg.Routing, a.logger)
	if path := cfg.Routing.KeywordsFile; path != "" {
		go func() {
			if err := a.Router.Watch(ctx, path); err != nil {
				a.logger.Error("keywords watcher stopped", zap.String("path", path), zap.Error(err))
			}
		}()
	}

	var sink *retriever.ContextSink
	if cfg.Retrieval.ContextFile != "" {
		sink = retriever.NewContextSink(cfg.Retrieval.ContextFile)
	}

	filter, err := guard.FromConfig(cfg.Guard, a.LLM, a.logger)
	if err != nil {
		return err
	}
	composer, err := service.LoadComposer(cfg.Prompt.TemplateFile)
	if err != nil {
		return err
	}

	convLog, err := conversation.Open(ctx, cfg.Conversation)
	if err != nil {
		return fmt.Errorf("open conversation log: %w", err)
	}
	a.closers = append(a.closers, convLog)

	sessions, err := session.Open(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	a.closers = append(a.closers, sessions)

	a.RAG, err = service.NewRAGService(service.RAGDeps{
		Router:          a.Router,
		Stores:          registry,
		Retriever:       retriever.New(cfg.Retrieval.TopK, sink, a.logger),
		Composer:        composer,
		Filter:          filter,
		LLM:             a.LLM,
		Log:             convLog,
		Logger:          a.logger,
		Refusal:         cfg.Guard.Refusal,
		Sentinel:        cfg.Answer.Sentinel,
		SentinelRewrite: cfg.Answer.SentinelRewrite,
	})
	if err != nil {
		return err
	}

	chem := chemical.NewClient(cfg.Chemical, a.logger)
	a.Chat = service.NewChatService(a.RAG, sessions, chem, cfg.Chemical.DefaultID, a.logger)
	a.Ingester = ingest.New(a.LLM, cfg.Ingest, a.logger)
	return nil
}

// IngestInto embeds the document at path into the named store.
func (a *App) IngestInto(ctx context.Context, storeName, path string) ([]ingest.Result, error) {
	sc, ok := a.Config.Store(storeName)
	if !ok {
		return nil, fmt.Errorf("unknown store %q", storeName)
	}
	return a.Ingester.IngestTo(ctx, sc, a.Config.LLM.EmbedModel, 0, path)
}

// Close releases stores and backends in reverse opening order.
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
