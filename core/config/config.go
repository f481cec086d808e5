// Package config loads the server process's configuration from environment
// variables, following the teacher's getEnv/getEnvInt pattern rather than a
// struct-tag binding library the pack never imports.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AgentEndpoint holds one agent role's backend binding: which provider,
// which model, and how many in-flight calls that role's endpoint tolerates
// (spec §4.2).
type AgentEndpoint struct {
	Provider      string // "anthropic" or "openai", per common/llm's two client constructors
	APIKey        string
	BaseURL       string
	Model         string
	SemaphoreSize int
	CallTimeout   time.Duration
}

// KVConfig addresses the Redis instance backing internal/kv.
type KVConfig struct {
	Addr     string
	Password string
	DB       int
}

// ArangoConfig optionally backs the hierarchical memory network's graph
// store; Enabled gates it off entirely for local dev without Arango running.
type ArangoConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
}

// HMNConfig parameterizes the memory network's ingest/retrieval pass.
type HMNConfig struct {
	MaxFiles              int
	MinPatternSize        int
	PageRankDamping       float64
	PageRankTolerance     float64
	PageRankMaxIterations int
}

// OrchestratorConfig mirrors internal/orchestrator.Config's tunables so they
// can be overridden per deployment without a recompile.
type OrchestratorConfig struct {
	MaxIterations          int
	NumCandidates          int
	VoteK                  int
	ReviewMode             string // "high" or "low"
	EnableEEPlanner        bool
	SkillAnnounceThreshold float64
	HMNTopK                int
	MaxContextTokens       int
	RecentWindow           int
	SummaryChunkSize       int
}

// OTelConfig configures the tracing/log exporter.
type OTelConfig struct {
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Headers        string // comma-separated key=value pairs, e.g. "Authorization=Bearer xyz"
}

func (o OTelConfig) Enabled() bool { return o.Endpoint != "" }

// Config holds all application configuration.
type Config struct {
	Env  string
	Port string

	KV           KVConfig
	Arango       ArangoConfig
	Agents       map[string]AgentEndpoint
	CodebaseRoot string
	HMN          HMNConfig
	Orchestrator OrchestratorConfig
	SkillsDir    string
	AdminAPIKey  string
	OTel         OTelConfig
}

func (c Config) IsProduction() bool  { return c.Env == "production" }
func (c Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads configuration from the environment, defaulting every field to
// a value sane for local development, matching the teacher's Load().
func Load() (Config, error) {
	cfg := Config{
		Env:          getEnv("MAKER_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		CodebaseRoot: getEnv("CODEBASE_ROOT", "."),
		SkillsDir:    getEnv("SKILLS_DIR", "./skills"),
		AdminAPIKey:  getEnv("ADMIN_API_KEY", ""),
	}

	cfg.KV = KVConfig{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	cfg.Arango = ArangoConfig{
		Enabled:  getEnvBool("ARANGO_ENABLED", false),
		URL:      getEnv("ARANGO_URL", "http://localhost:8529"),
		Username: getEnv("ARANGO_USERNAME", "root"),
		Password: getEnv("ARANGO_PASSWORD", ""),
		Database: getEnv("ARANGO_DATABASE", "maker"),
	}

	cfg.HMN = HMNConfig{
		MaxFiles:              getEnvInt("HMN_MAX_FILES", 5000),
		MinPatternSize:        getEnvInt("HMN_MIN_PATTERN_SIZE", 3),
		PageRankDamping:       getEnvFloat("HMN_PAGERANK_DAMPING", 0.85),
		PageRankTolerance:     getEnvFloat("HMN_PAGERANK_TOLERANCE", 1e-6),
		PageRankMaxIterations: getEnvInt("HMN_PAGERANK_MAX_ITERATIONS", 100),
	}

	cfg.Orchestrator = OrchestratorConfig{
		MaxIterations:          getEnvInt("ORCH_MAX_ITERATIONS", 3),
		NumCandidates:          getEnvInt("ORCH_NUM_CANDIDATES", 5),
		VoteK:                  getEnvInt("ORCH_VOTE_K", 3),
		ReviewMode:             getEnv("ORCH_REVIEW_MODE", "high"),
		EnableEEPlanner:        getEnvBool("ORCH_ENABLE_EE_PLANNER", false),
		SkillAnnounceThreshold: getEnvFloat("ORCH_SKILL_ANNOUNCE_THRESHOLD", 0.85),
		HMNTopK:                getEnvInt("ORCH_HMN_TOP_K", 5),
		MaxContextTokens:       getEnvInt("ORCH_MAX_CONTEXT_TOKENS", 32000),
		RecentWindow:           getEnvInt("ORCH_RECENT_WINDOW", 8000),
		SummaryChunkSize:       getEnvInt("ORCH_SUMMARY_CHUNK_SIZE", 10),
	}

	cfg.OTel = OTelConfig{
		Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:    getEnv("OTEL_SERVICE_NAME", "maker"),
		ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
	}

	cfg.Agents = map[string]AgentEndpoint{
		"preprocessor": loadAgentEndpoint("PREPROCESSOR", 1),
		"planner":      loadAgentEndpoint("PLANNER", 1),
		"coder":        loadAgentEndpoint("CODER", 5),
		"reviewer":     loadAgentEndpoint("REVIEWER", 1),
		"voter":        loadAgentEndpoint("VOTER", 3),
	}

	for role, ep := range cfg.Agents {
		if ep.APIKey == "" {
			return cfg, fmt.Errorf("config: missing API key for agent role %q (set %s_API_KEY)", role, strings.ToUpper(role))
		}
	}

	return cfg, nil
}

func loadAgentEndpoint(prefix string, defaultSemaphore int) AgentEndpoint {
	return AgentEndpoint{
		Provider:      getEnv(prefix+"_PROVIDER", "anthropic"),
		APIKey:        getEnv(prefix+"_API_KEY", ""),
		BaseURL:       getEnv(prefix+"_BASE_URL", ""),
		Model:         getEnv(prefix+"_MODEL", "claude-sonnet-4-20250514"),
		SemaphoreSize: getEnvInt(prefix+"_SEMAPHORE", defaultSemaphore),
		CallTimeout:   time.Duration(getEnvInt(prefix+"_TIMEOUT_SECONDS", 300)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
