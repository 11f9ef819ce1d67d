package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Log          LogConfig          `yaml:"log" toml:"log"`
	LLM          LLMConfig          `yaml:"llm" toml:"llm"`
	Retrieval    RetrievalConfig    `yaml:"retrieval" toml:"retrieval"`
	Stores       []StoreConfig      `yaml:"stores" toml:"stores"`
	Routing      RoutingConfig      `yaml:"routing" toml:"routing"`
	Prompt       PromptConfig       `yaml:"prompt" toml:"prompt"`
	Guard        GuardConfig        `yaml:"guard" toml:"guard"`
	Answer       AnswerConfig       `yaml:"answer" toml:"answer"`
	Conversation ConversationConfig `yaml:"conversation" toml:"conversation"`
	Session      SessionConfig      `yaml:"session" toml:"session"`
	Chemical     ChemicalConfig     `yaml:"chemical" toml:"chemical"`
	Ingest       IngestConfig       `yaml:"ingest" toml:"ingest"`
	Evaluate     EvaluateConfig     `yaml:"evaluate" toml:"evaluate"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr" toml:"addr"`
	Title   string `yaml:"title" toml:"title"`
	Caption string `yaml:"caption" toml:"caption"`
}

type LogConfig struct {
	Level       string `yaml:"level" toml:"level"`
	Development bool   `yaml:"development" toml:"development"`
}

// LLMConfig — OpenAI-совместимый сервер (Ollama, LM Studio, OpenAI)
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	APIKey      string  `yaml:"api_key" toml:"api_key"`
	ChatModel   string  `yaml:"chat_model" toml:"chat_model"`
	EmbedModel  string  `yaml:"embed_model" toml:"embed_model"`
	Temperature float32 `yaml:"temperature" toml:"temperature"`
}

type RetrievalConfig struct {
	TopK        int    `yaml:"top_k" toml:"top_k"`
	ContextFile string `yaml:"context_file" toml:"context_file"`
}

// StoreConfig describes one vector collection. Backend is dir, pgvector or qdrant.
type StoreConfig struct {
	Name       string `yaml:"name" toml:"name"`
	Backend    string `yaml:"backend" toml:"backend"`
	Path       string `yaml:"path" toml:"path"`
	Collection string `yaml:"collection" toml:"collection"`
	PgConn     string `yaml:"pg_conn" toml:"pg_conn"`
	QdrantURL  string `yaml:"qdrant_url" toml:"qdrant_url"`
	QdrantKey  string `yaml:"qdrant_api_key" toml:"qdrant_api_key"`
}

type RoutingConfig struct {
	Default             []string `yaml:"default" toml:"default"`
	Alternative         []string `yaml:"alternative" toml:"alternative"`
	AlternativeKeywords []string `yaml:"alternative_keywords" toml:"alternative_keywords"`
	SummaryKeywords     []string `yaml:"summary_keywords" toml:"summary_keywords"`
	// KeywordsFile, when set, is watched and reloaded on change.
	KeywordsFile string `yaml:"keywords_file" toml:"keywords_file"`
}

type PromptConfig struct {
	TemplateFile string `yaml:"template_file" toml:"template_file"`
}

// GuardConfig selects the policy filter: none, rules, self_check or rules+self_check.
type GuardConfig struct {
	Provider      string   `yaml:"provider" toml:"provider"`
	Refusal       string   `yaml:"refusal" toml:"refusal"`
	BlockedInput  []string `yaml:"blocked_input" toml:"blocked_input"`
	BlockedOutput []string `yaml:"blocked_output" toml:"blocked_output"`
}

type AnswerConfig struct {
	Sentinel        string `yaml:"sentinel" toml:"sentinel"`
	SentinelRewrite string `yaml:"sentinel_rewrite" toml:"sentinel_rewrite"`
}

// ConversationConfig selects the conversation log backend: json, postgres or sqlite.
type ConversationConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	Path    string `yaml:"path" toml:"path"`
	DSN     string `yaml:"dsn" toml:"dsn"`
}

type SessionConfig struct {
	Backend    string `yaml:"backend" toml:"backend"`
	RedisURL   string `yaml:"redis_url" toml:"redis_url"`
	TTLSeconds int    `yaml:"ttl_seconds" toml:"ttl_seconds"`
}

type ChemicalConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	DefaultID   string `yaml:"default_id" toml:"default_id"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

type IngestConfig struct {
	ChunkSize         int     `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap      int     `yaml:"chunk_overlap" toml:"chunk_overlap"`
	Separator         string  `yaml:"separator" toml:"separator"`
	OutputDir         string  `yaml:"output_dir" toml:"output_dir"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Retries           uint    `yaml:"retries" toml:"retries"`
}

type EvaluateConfig struct {
	JudgeModel        string  `yaml:"judge_model" toml:"judge_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

// Load читает конфиг из CONFIG_PATH (по умолчанию config.yaml), .env и переменные окружения
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFile(getenv("CONFIG_PATH", "config.yaml"))
}

// LoadFile reads path (yaml or toml by extension); a missing file yields defaults.
// Environment overrides are applied last.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Default describes the single-chemical (benzene) deployment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    ":8501",
			Title:   "🧪 SAS GPT 對談機器人",
			Caption: "🦙 A SAS GPT powered by Llama-3-Taiwan-8B & Guardrails",
		},
		Log: LogConfig{Level: "info"},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:11434/v1",
			APIKey:      "not-needed",
			ChatModel:   "kenneth85/llama-3-taiwan",
			EmbedModel:  "all-minilm",
			Temperature: 0.3,
		},
		Retrieval: RetrievalConfig{TopK: 10, ContextFile: "retrieved_contexts.json"},
		Stores: []StoreConfig{
			{Name: "benzene", Backend: "dir", Path: "./BENZENE_CHROMA_DB"},
		},
		Routing: RoutingConfig{
			Default:             []string{"benzene"},
			Alternative:         []string{"benzene"},
			AlternativeKeywords: DefaultAlternativeKeywords(),
			SummaryKeywords:     DefaultSummaryKeywords(),
		},
		Guard: GuardConfig{
			Provider: "rules",
			Refusal:  DefaultSentinel,
		},
		Answer: AnswerConfig{
			Sentinel:        DefaultSentinel,
			SentinelRewrite: "依據目前的資料，無法回答此問題",
		},
		Conversation: ConversationConfig{Backend: "json", Path: "conversation_logs.json"},
		Session:      SessionConfig{Backend: "memory", TTLSeconds: 24 * 3600},
		Chemical: ChemicalConfig{
			BaseURL:     "https://sas.cmdm.tw",
			DefaultID:   "59",
			TimeoutSecs: 10,
		},
		Ingest: IngestConfig{
			ChunkSize:         1500,
			ChunkOverlap:      150,
			Separator:         "\n\n",
			OutputDir:         "./VECTOR_DB",
			RequestsPerSecond: 5,
			Retries:           3,
		},
		Evaluate: EvaluateConfig{RequestsPerSecond: 1},
	}
}

// DefaultSentinel is the stock refusal emitted by the guardrails layer.
const DefaultSentinel = "I'm sorry, I can't respond to that."

func DefaultAlternativeKeywords() []string {
	return []string{
		"替代", "取代", "代替", "替換", "替代物", "替代品", "安全替代",
		"alternative", "alternatives", "substitute", "substitutes", "substitution", "replacement",
	}
}

func DefaultSummaryKeywords() []string {
	return []string{
		"總結", "概述", "摘要", "回顧", "重點", "要點", "整理",
		"summary", "summarize", "summarization", "conclude",
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if len(cfg.Routing.AlternativeKeywords) == 0 {
		cfg.Routing.AlternativeKeywords = def.Routing.AlternativeKeywords
	}
	if len(cfg.Routing.SummaryKeywords) == 0 {
		cfg.Routing.SummaryKeywords = def.Routing.SummaryKeywords
	}
	if cfg.Guard.Refusal == "" {
		cfg.Guard.Refusal = DefaultSentinel
	}
	if cfg.Answer.Sentinel == "" {
		cfg.Answer.Sentinel = DefaultSentinel
	}
	if cfg.Answer.SentinelRewrite == "" {
		cfg.Answer.SentinelRewrite = def.Answer.SentinelRewrite
	}
	if cfg.Conversation.Backend == "" {
		cfg.Conversation.Backend = "json"
	}
	if cfg.Conversation.Backend == "json" && cfg.Conversation.Path == "" {
		cfg.Conversation.Path = def.Conversation.Path
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.TTLSeconds == 0 {
		cfg.Session.TTLSeconds = def.Session.TTLSeconds
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = def.Ingest.ChunkSize
	}
	if cfg.Ingest.Separator == "" {
		cfg.Ingest.Separator = def.Ingest.Separator
	}
	if cfg.Evaluate.JudgeModel == "" {
		cfg.Evaluate.JudgeModel = cfg.LLM.ChatModel
	}
	for i := range cfg.Stores {
		if cfg.Stores[i].Backend == "" {
			cfg.Stores[i].Backend = "dir"
		}
		if cfg.Stores[i].Collection == "" {
			cfg.Stores[i].Collection = cfg.Stores[i].Name
		}
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getenv("SERVER_ADDR", cfg.Server.Addr)
	cfg.LLM.BaseURL = getenv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getenv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.ChatModel = getenv("LLM_MODEL", cfg.LLM.ChatModel)
	cfg.LLM.EmbedModel = getenv("EMBED_MODEL", cfg.LLM.EmbedModel)
	cfg.Session.RedisURL = getenv("REDIS_URL", cfg.Session.RedisURL)
	cfg.Chemical.BaseURL = getenv("CHEMICAL_API_URL", cfg.Chemical.BaseURL)
	cfg.Log.Level = getenv("LOG_LEVEL", cfg.Log.Level)
	if pg := os.Getenv("PG_CONN"); pg != "" {
		for i := range cfg.Stores {
			if cfg.Stores[i].Backend == "pgvector" && cfg.Stores[i].PgConn == "" {
				cfg.Stores[i].PgConn = pg
			}
		}
		if cfg.Conversation.Backend == "postgres" && cfg.Conversation.DSN == "" {
			cfg.Conversation.DSN = pg
		}
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Retrieval.TopK <= 0 {
		result = multierror.Append(result, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if len(c.Stores) == 0 {
		result = multierror.Append(result, errors.New("at least one store must be configured"))
	}

	names := make(map[string]bool, len(c.Stores))
	for i, s := range c.Stores {
		if s.Name == "" {
			result = multierror.Append(result, fmt.Errorf("stores[%d]: name is required", i))
			continue
		}
		if names[s.Name] {
			result = multierror.Append(result, fmt.Errorf("stores[%d]: duplicate name %q", i, s.Name))
		}
		names[s.Name] = true
		switch s.Backend {
		case "dir":
			if s.Path == "" {
				result = multierror.Append(result, fmt.Errorf("store %q: path is required for dir backend", s.Name))
			}
		case "pgvector":
			if s.PgConn == "" {
				result = multierror.Append(result, fmt.Errorf("store %q: pg_conn is required for pgvector backend", s.Name))
			}
		case "qdrant":
			if s.QdrantURL == "" {
				result = multierror.Append(result, fmt.Errorf("store %q: qdrant_url is required for qdrant backend", s.Name))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("store %q: unknown backend %q", s.Name, s.Backend))
		}
	}

	for set, ids := range map[string][]string{"default": c.Routing.Default, "alternative": c.Routing.Alternative} {
		if len(ids) == 0 {
			result = multierror.Append(result, fmt.Errorf("routing.%s: store set is empty", set))
		}
		for _, id := range ids {
			if !names[id] {
				result = multierror.Append(result, fmt.Errorf("routing.%s: unknown store %q", set, id))
			}
		}
	}

	switch c.Guard.Provider {
	case "", "none", "rules", "self_check", "rules+self_check":
	default:
		result = multierror.Append(result, fmt.Errorf("guard.provider: unknown provider %q", c.Guard.Provider))
	}

	switch c.Conversation.Backend {
	case "json":
	case "postgres", "sqlite":
		if c.Conversation.DSN == "" {
			result = multierror.Append(result, fmt.Errorf("conversation.dsn is required for %s backend", c.Conversation.Backend))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("conversation.backend: unknown backend %q", c.Conversation.Backend))
	}

	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			result = multierror.Append(result, errors.New("session.redis_url is required for redis backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("session.backend: unknown backend %q", c.Session.Backend))
	}

	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		result = multierror.Append(result, fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap))
	}

	return result.ErrorOrNil()
}

// Store returns the store config with the given name.
func (c *Config) Store(name string) (StoreConfig, bool) {
	for _, s := range c.Stores {
		if s.Name == name {
			return s, true
		}
	}
	return StoreConfig{}, false
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
