package evaluate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ContextRecall      = "context_recall"
	FactualCorrectness = "factual_correctness"
	Faithfulness       = "faithfulness"
	SemanticSimilarity = "semantic_similarity"
)

// Metrics is the column order of a result table.
var Metrics = []string{ContextRecall, FactualCorrectness, Faithfulness, SemanticSimilarity}

// ErrNoReference marks metrics that need a reference answer.
var ErrNoReference = errors.New("sample has no reference")

type Judge interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const judgeInstructions = `You are an expert evaluator of a chemical-safety question answering system.
Provide ONLY the score as a float between 0 and 1.`

const contextRecallPrompt = judgeInstructions + `
Score the fraction of statements in the reference answer that can be attributed to the retrieved contexts.

Question: %s

Retrieved contexts:
%s

Reference answer: %s`

const faithfulnessPrompt = judgeInstructions + `
Score the fraction of claims in the response that can be inferred from the retrieved contexts.

Question: %s

Retrieved contexts:
%s

Response: %s`

const factualCorrectnessPrompt = judgeInstructions + `
Score how factually consistent the response is with the reference answer (1 means every claim matches).

Question: %s

Response: %s

Reference answer: %s`

var scoreRegex = regexp.MustCompile(`(\d+(\.\d+)?)`)

// ParseScore extracts the first number in resp and checks it lies in [0, 1].
func ParseScore(resp string) (float64, error) {
	m := scoreRegex.FindStringSubmatch(resp)
	if len(m) == 0 {
		return 0, fmt.Errorf("no score in judge response %q", resp)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("score %v out of range", v)
	}
	return v, nil
}

// Row is a sample with its scores. A missing metric is left out of Scores.
type Row struct {
	Sample
	Scores map[string]float64
}

type Evaluator struct {
	judge   Judge
	emb     Embedder
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewEvaluator(judge Judge, emb Embedder, requestsPerSecond float64, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Evaluator{judge: judge, emb: emb, limiter: rate.NewLimiter(limit, 1), logger: logger}
}

// Run scores every sample. Metric failures leave the cell empty; only
// cancellation stops the run.
func (e *Evaluator) Run(ctx context.Context, samples []Sample) ([]Row, error) {
	rows := make([]Row, 0, len(samples))
	for i, s := range samples {
		row := Row{Sample: s, Scores: make(map[string]float64, len(Metrics))}
		for _, m := range Metrics {
			v, err := e.Score(ctx, m, s)
			if err != nil {
				if ctx.Err() != nil {
					return rows, ctx.Err()
				}
				if !errors.Is(err, ErrNoReference) {
					e.logger.Warn("metric failed", zap.Int("sample", i), zap.String("metric", m), zap.Error(err))
				}
				continue
			}
			row.Scores[m] = v
		}
		e.logger.Info("sample evaluated", zap.Int("sample", i), zap.Any("scores", row.Scores))
		rows = append(rows, row)
	}
	return rows, nil
}

// Score computes one metric for s.
func (e *Evaluator) Score(ctx context.Context, metric string, s Sample) (float64, error) {
	contexts := strings.Join(s.RetrievedContexts, "\n\n")
	switch metric {
	case ContextRecall:
		if s.Reference == "" {
			return 0, ErrNoReference
		}
		return e.ask(ctx, fmt.Sprintf(contextRecallPrompt, s.UserInput, contexts, s.Reference))
	case Faithfulness:
		return e.ask(ctx, fmt.Sprintf(faithfulnessPrompt, s.UserInput, contexts, s.Response))
	case FactualCorrectness:
		if s.Reference == "" {
			return 0, ErrNoReference
		}
		return e.ask(ctx, fmt.Sprintf(factualCorrectnessPrompt, s.UserInput, s.Response, s.Reference))
	case SemanticSimilarity:
		if s.Reference == "" {
			return 0, ErrNoReference
		}
		return e.similarity(ctx, s.Response, s.Reference)
	default:
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
}

func (e *Evaluator) ask(ctx context.Context, prompt string) (float64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	resp, err := e.judge.Complete(ctx, prompt)
	if err != nil {
		return 0, err
	}
	return ParseScore(resp)
}

func (e *Evaluator) similarity(ctx context.Context, a, b string) (float64, error) {
	var vecs [2][]float32
	for i, t := range []string{a, b} {
		if err := e.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		v, err := e.emb.Embed(ctx, t)
		if err != nil {
			return 0, err
		}
		vecs[i] = v
	}
	return cosine(vecs[0], vecs[1])
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
