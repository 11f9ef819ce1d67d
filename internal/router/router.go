// Package router picks the vector store set for a question by keyword match.
package router

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/katakuxiko/sasgpt/internal/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Keywords is the hot-reloadable part of the routing config.
type Keywords struct {
	Alternative []string `yaml:"alternative_keywords"`
	Summary     []string `yaml:"summary_keywords"`
}

type Router struct {
	mu       sync.RWMutex
	keywords Keywords

	defaultSet     []string
	alternativeSet []string
	logger         *zap.Logger
}

func New(cfg config.RoutingConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		keywords: Keywords{
			Alternative: cfg.AlternativeKeywords,
			Summary:     cfg.SummaryKeywords,
		},
		defaultSet:     cfg.Default,
		alternativeSet: cfg.Alternative,
		logger:         logger,
	}
}

// Route returns Alternative and the alternative store set when the query
// contains any alternative keyword (case-sensitive substring), otherwise
// General and the default set.
func (r *Router) Route(query string) (model.RoutingCategory, []string) {
	r.mu.RLock()
	hit := containsAny(query, r.keywords.Alternative)
	r.mu.RUnlock()

	if hit {
		return model.Alternative, append([]string(nil), r.alternativeSet...)
	}
	return model.General, append([]string(nil), r.defaultSet...)
}

// IsSummaryQuery reports whether the query asks for a summary. Routing does
// not use it.
func (r *Router) IsSummaryQuery(query string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return containsAny(query, r.keywords.Summary)
}

// SetKeywords replaces the keyword lists. Empty lists keep the current ones.
func (r *Router) SetKeywords(k Keywords) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(k.Alternative) > 0 {
		r.keywords.Alternative = k.Alternative
	}
	if len(k.Summary) > 0 {
		r.keywords.Summary = k.Summary
	}
}

func (r *Router) Keywords() Keywords {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Keywords{
		Alternative: append([]string(nil), r.keywords.Alternative...),
		Summary:     append([]string(nil), r.keywords.Summary...),
	}
}

// LoadKeywords reads a YAML keyword file.
func LoadKeywords(path string) (Keywords, error) {
	var k Keywords
	data, err := os.ReadFile(path)
	if err != nil {
		return k, fmt.Errorf("read keywords: %w", err)
	}
	if err := yaml.Unmarshal(data, &k); err != nil {
		return k, fmt.Errorf("parse keywords %s: %w", path, err)
	}
	return k, nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}
