package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/katakuxiko/sasgpt/internal/conversation"
	"github.com/katakuxiko/sasgpt/internal/guard"
	"github.com/katakuxiko/sasgpt/internal/model"
	"github.com/katakuxiko/sasgpt/internal/retriever"
	"go.uber.org/zap"
)

// Stage names a step of the answer pipeline.
type Stage string

const (
	StageRoute        Stage = "route"
	StageRetrieve     Stage = "retrieve"
	StageCompose      Stage = "compose"
	StageFilterInput  Stage = "filter_input"
	StageGenerate     Stage = "generate"
	StageFilterOutput Stage = "filter_output"
)

// PipelineError tags a failure with the stage it happened in.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *PipelineError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error { return &PipelineError{Stage: stage, Err: err} }

// Router выбирает набор хранилищ для вопроса
type Router interface {
	Route(query string) (model.RoutingCategory, []string)
}

type StoreSelector interface {
	Select(ids []string) ([]retriever.Handle, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, stores []retriever.Handle) ([]model.DocumentChunk, error)
}

// Answer — итог одного хода
type Answer struct {
	Text       string
	Category   model.RoutingCategory
	Contexts   []model.DocumentChunk
	Provenance []string
	Refused    bool
}

// RAGDeps are the adapters wired once at startup.
type RAGDeps struct {
	Router    Router
	Stores    StoreSelector
	Retriever Retriever
	Composer  *Composer
	Filter    guard.Filter
	LLM       Generator
	Log       conversation.Store
	Logger    *zap.Logger

	// Refusal replaces a rejected question or answer.
	Refusal string
	// Sentinel is rewritten to SentinelRewrite before logging and display.
	Sentinel        string
	SentinelRewrite string

	Now func() time.Time
}

type RAGService struct {
	d RAGDeps
}

func NewRAGService(d RAGDeps) (*RAGService, error) {
	switch {
	case d.Router == nil, d.Stores == nil, d.Retriever == nil, d.LLM == nil:
		return nil, errors.New("rag service: router, stores, retriever and llm are required")
	}
	if d.Composer == nil {
		c, err := NewComposer("")
		if err != nil {
			return nil, err
		}
		d.Composer = c
	}
	if d.Filter == nil {
		d.Filter = guard.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &RAGService{d: d}, nil
}

// Answer runs route, retrieve, compose, filter, generate, filter and parse,
// then logs the turn. A rejected question skips generation.
func (s *RAGService) Answer(ctx context.Context, question string) (*Answer, error) {
	log := s.d.Logger

	category, ids := s.d.Router.Route(question)
	stores, err := s.d.Stores.Select(ids)
	if err != nil {
		return nil, stageErr(StageRoute, err)
	}
	log.Info("question routed",
		zap.String("question", question),
		zap.Stringer("category", category),
		zap.Strings("stores", ids),
	)

	chunks, err := s.d.Retriever.Retrieve(ctx, question, stores)
	if err != nil {
		return nil, stageErr(StageRetrieve, err)
	}

	prompt := s.d.Composer.Compose(FormatContext(chunks), question)
	if prompt == "" {
		return nil, stageErr(StageCompose, errors.New("empty prompt"))
	}

	ans := &Answer{Category: category, Contexts: chunks, Provenance: provenance(chunks)}

	v, err := s.d.Filter.CheckInput(ctx, question)
	if err != nil {
		return nil, stageErr(StageFilterInput, err)
	}
	if !v.Allowed {
		log.Info("question rejected", zap.String("reason", v.Reason))
		ans.Text, ans.Refused = s.d.Refusal, true
	} else {
		gen, err := s.d.LLM.Generate(ctx, prompt)
		if err != nil {
			return nil, stageErr(StageGenerate, fmt.Errorf("llm error: %w", err))
		}
		ans.Text = gen.Text
		if len(gen.Provenance) > 0 {
			ans.Provenance = gen.Provenance
		}

		v, err := s.d.Filter.CheckOutput(ctx, question, gen.Text)
		if err != nil {
			return nil, stageErr(StageFilterOutput, err)
		}
		if !v.Allowed {
			log.Info("answer rejected", zap.String("reason", v.Reason))
			ans.Text, ans.Refused = s.d.Refusal, true
		}
	}

	if s.d.Sentinel != "" && ans.Text == s.d.Sentinel {
		ans.Text = s.d.SentinelRewrite
	}
	log.Info("answer", zap.String("response", ans.Text), zap.Bool("refused", ans.Refused))

	s.record(ctx, question, ans)
	return ans, nil
}

func (s *RAGService) record(ctx context.Context, question string, ans *Answer) {
	if s.d.Log == nil {
		return
	}
	texts := make([]string, len(ans.Contexts))
	for i, c := range ans.Contexts {
		texts[i] = c.Text
	}
	rec := model.ConversationRecord{
		UserInput:         question,
		RetrievedContexts: texts,
		Response:          ans.Text,
		Timestamp:         s.d.Now(),
	}
	if err := s.d.Log.Append(ctx, rec); err != nil {
		s.d.Logger.Error("save conversation log", zap.Error(err))
	}
}

// provenance lists the distinct source collections in first-seen order.
func provenance(chunks []model.DocumentChunk) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range chunks {
		if c.SourceCollectionID == "" || seen[c.SourceCollectionID] {
			continue
		}
		seen[c.SourceCollectionID] = true
		out = append(out, c.SourceCollectionID)
	}
	return out
}
