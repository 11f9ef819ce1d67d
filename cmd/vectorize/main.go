// Command vectorize splits documents, embeds the chunks and writes them to a
// vector collection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/katakuxiko/sasgpt/internal/ingest"
	"github.com/katakuxiko/sasgpt/internal/logging"
	"github.com/katakuxiko/sasgpt/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	configPath string
	storeName  string
	collection string
	backend    string
	pgConn     string
	qdrantURL  string
	qdrantKey  string
	outputDir  string
	embedModel string
	chunkSize  int
	overlap    int
	separator  string
	dimension  int
	asJSON     bool
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "vectorize [flags] path...",
		Short: "Embed documents into a vector collection",
		Long: `Loads .txt, .md and .pdf files (directories are scanned non-recursively),
splits them into chunks and stores the embeddings.

Either --store selects a collection from the config file, or --collection
names a new one (written to <output-dir>/<collection> for the dir backend).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, o, args)
		},
		SilenceUsage: true,
	}
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "config file (default $CONFIG_PATH or config.yaml)")
	f.StringVarP(&o.storeName, "store", "s", "", "store name from the config file")
	f.StringVar(&o.collection, "collection", "", "collection name, e.g. CHILDRENS_PRODUCTS")
	f.StringVar(&o.backend, "backend", "dir", "backend for --collection: dir, pgvector or qdrant")
	f.StringVar(&o.pgConn, "pg-conn", "", "PostgreSQL connection string for pgvector")
	f.StringVar(&o.qdrantURL, "qdrant-url", "", "Qdrant base URL")
	f.StringVar(&o.qdrantKey, "qdrant-api-key", "", "Qdrant API key")
	f.StringVarP(&o.outputDir, "output-dir", "o", "", "root directory for dir collections (default ingest.output_dir)")
	f.StringVar(&o.embedModel, "embed-model", "", "embedding model (default llm.embed_model)")
	f.IntVar(&o.chunkSize, "chunk-size", 0, "chunk size in characters (default ingest.chunk_size)")
	f.IntVar(&o.overlap, "chunk-overlap", -1, "chunk overlap in characters (default ingest.chunk_overlap)")
	f.StringVar(&o.separator, "separator", "", "split separator (default ingest.separator)")
	f.IntVar(&o.dimension, "dimension", 0, "embedding dimension for a typed pgvector column")
	f.BoolVar(&o.asJSON, "json", false, "print results as JSON")
	cmd.MarkFlagsMutuallyExclusive("store", "collection")
	cmd.MarkFlagsOneRequired("store", "collection")
	return cmd
}

func run(cmd *cobra.Command, o options, paths []string) error {
	if o.configPath != "" {
		os.Setenv("CONFIG_PATH", o.configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sc, err := resolveStore(cfg, o)
	if err != nil {
		return err
	}
	ic := cfg.Ingest
	if o.outputDir != "" {
		ic.OutputDir = o.outputDir
	}
	if o.chunkSize > 0 {
		ic.ChunkSize = o.chunkSize
	}
	if o.overlap >= 0 {
		ic.ChunkOverlap = o.overlap
	}
	if o.separator != "" {
		ic.Separator = o.separator
	}
	if ic.ChunkOverlap >= ic.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", ic.ChunkOverlap, ic.ChunkSize)
	}
	if o.embedModel != "" {
		cfg.LLM.EmbedModel = o.embedModel
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	llm := service.NewLLMClient(cfg.LLM)
	ing := ingest.New(llm, ic, logger)
	results, err := ing.IngestTo(ctx, sc, cfg.LLM.EmbedModel, o.dimension, paths...)
	if err != nil {
		return err
	}
	logger.Info("vectorization finished", zap.String("store", sc.Name), zap.Int("documents", len(results)))
	return printResults(cmd, results, o.asJSON)
}

func resolveStore(cfg *config.Config, o options) (config.StoreConfig, error) {
	if o.storeName != "" {
		sc, ok := cfg.Store(o.storeName)
		if !ok {
			return sc, fmt.Errorf("store %q is not configured", o.storeName)
		}
		return sc, nil
	}
	sc := config.StoreConfig{
		Name:       o.collection,
		Backend:    o.backend,
		Collection: o.collection,
		PgConn:     o.pgConn,
		QdrantURL:  o.qdrantURL,
		QdrantKey:  o.qdrantKey,
	}
	switch sc.Backend {
	case "dir":
	case "pgvector":
		if sc.PgConn == "" {
			sc.PgConn = os.Getenv("PG_CONN")
		}
		if sc.PgConn == "" {
			return sc, errors.New("--pg-conn or PG_CONN is required for pgvector")
		}
	case "qdrant":
		if sc.QdrantURL == "" {
			return sc, errors.New("--qdrant-url is required for qdrant")
		}
	default:
		return sc, fmt.Errorf("unknown backend %q", sc.Backend)
	}
	return sc, nil
}

func printResults(cmd *cobra.Command, results []ingest.Result, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	for _, r := range results {
		cmd.Printf("%s: %d/%d chunks saved\n", r.Doc, r.Saved, r.Chunks)
	}
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
