// Package ingest turns source documents into embedded chunks in a vector collection.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/katakuxiko/sasgpt/internal/pdf"
	"github.com/katakuxiko/sasgpt/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// batchSize is the number of chunks embedded per request.
const batchSize = 16

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Result reports one ingested document.
type Result struct {
	Doc    string `json:"doc"`
	Chunks int    `json:"chunks_total"`
	Saved  int    `json:"chunks_saved"`
}

type Ingester struct {
	emb     Embedder
	cfg     config.IngestConfig
	limiter *rate.Limiter
	delay   time.Duration
	logger  *zap.Logger
}

func New(emb Embedder, cfg config.IngestConfig, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Ingester{
		emb:     emb,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		delay:   500 * time.Millisecond,
		logger:  logger,
	}
}

// Split loads path and cuts it into chunks with the configured splitter.
func (i *Ingester) Split(path string) ([]string, error) {
	text, err := pdf.LoadText(path)
	if err != nil {
		return nil, err
	}
	return pdf.SplitText(text, i.cfg.ChunkSize, i.cfg.ChunkOverlap, i.cfg.Separator), nil
}

// IngestFile splits, embeds and writes one document. A batch that still
// fails after retries is skipped and logged; the document continues.
func (i *Ingester) IngestFile(ctx context.Context, path string, w store.Writer) (Result, error) {
	doc := filepath.Base(path)
	chunks, err := i.Split(path)
	if err != nil {
		return Result{Doc: doc}, err
	}
	res := Result{Doc: doc, Chunks: len(chunks)}
	if len(chunks) == 0 {
		return res, fmt.Errorf("no text extracted from %s", doc)
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		batch := chunks[start:end]

		vecs, err := i.embed(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			i.logger.Error("embedding error", zap.String("doc", doc), zap.Int("from", start), zap.Error(err))
			continue
		}
		if err := w.Add(ctx, doc, start, batch, vecs); err != nil {
			i.logger.Error("store insert error", zap.String("doc", doc), zap.Int("from", start), zap.Error(err))
			continue
		}
		res.Saved += len(batch)
	}
	i.logger.Info("document ingested", zap.String("doc", doc), zap.Int("chunks", res.Chunks), zap.Int("saved", res.Saved))
	return res, nil
}

func (i *Ingester) embed(ctx context.Context, batch []string) ([][]float32, error) {
	var vecs [][]float32
	attempts := i.cfg.Retries + 1
	err := retry.Do(
		func() error {
			if err := i.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			v, err := i.emb.EmbedBatch(ctx, batch)
			if err != nil {
				return err
			}
			vecs = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(i.delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			i.logger.Warn("embedding retry", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	return vecs, err
}

// IngestPaths ingests files and directories (non-recursive for .txt, .md
// and .pdf files) in lexical order.
func (i *Ingester) IngestPaths(ctx context.Context, paths []string, w store.Writer) ([]Result, error) {
	files, err := collect(paths)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, f := range files {
		res, err := i.IngestFile(ctx, f, w)
		if err != nil {
			if ctx.Err() != nil {
				return out, err
			}
			i.logger.Error("ingest failed", zap.String("file", f), zap.Error(err))
		}
		out = append(out, res)
	}
	return out, nil
}

// IngestTo opens the writer described by cfg, ingests paths into it and
// persists the collection.
func (i *Ingester) IngestTo(ctx context.Context, cfg config.StoreConfig, embedModel string, dim int, paths ...string) ([]Result, error) {
	w, err := store.OpenWriter(ctx, cfg, i.cfg.OutputDir, embedModel, dim)
	if err != nil {
		return nil, err
	}
	res, err := i.IngestPaths(ctx, paths, w)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close store %s: %w", cfg.Name, cerr)
	}
	return res, err
}

func collect(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !Supported(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(p, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Supported reports whether name has an extension the loader understands.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}
