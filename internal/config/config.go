// Package config provides application configuration with multi-source priority.
//
// Sources, highest priority first:
//  1. Environment variables (runtime override)
//  2. Config file (~/.folio/config.yaml or ./config.yaml)
//  3. Defaults
//
// Categories:
//   - AI: generation, classification and embedding model selection
//   - Retrieval: per-agent top-K, candidate multiplier, chunk token budget
//   - Session: window size, recency window, inactivity TTL
//   - Timeouts: classification, per-agent retrieval, whole turn
//   - Storage: PostgreSQL + pgvector connection
//   - Sources: GitHub owner/token, public activity feed endpoint
//   - Otel: OTLP trace export endpoint
//
// Sensitive fields (password, tokens) are masked in MarshalJSON and String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidTopK indicates a retrieval top-K outside the allowed range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidMultiplier indicates a rerank candidate multiplier outside the allowed range.
	ErrInvalidMultiplier = errors.New("invalid candidate multiplier")

	// ErrInvalidTokenBudget indicates a chunk token budget outside the allowed range.
	ErrInvalidTokenBudget = errors.New("invalid chunk token budget")

	// ErrInvalidSessionWindow indicates a session window outside the allowed range.
	ErrInvalidSessionWindow = errors.New("invalid session window")

	// ErrInvalidTimeout indicates a non-positive or inconsistent timeout.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidPostgresHost indicates an empty PostgreSQL host.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates a PostgreSQL port out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrMissingRefusalMessage indicates an empty refusal message.
	ErrMissingRefusalMessage = errors.New("missing refusal message")
)

// GroundingRetryLimit is the number of synthesis retries allowed after a
// grounding violation. Fixed by design, not configurable.
const GroundingRetryLimit = 1

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding a new
// secret field, update MarshalJSON as well.
type Config struct {
	// Profile identity
	ProfileName    string `mapstructure:"profile_name" json:"profile_name"`
	RefusalMessage string `mapstructure:"refusal_message" json:"refusal_message"`

	// AI model configuration (provider-qualified Genkit names)
	ModelName       string `mapstructure:"model_name" json:"model_name"`
	ClassifierModel string `mapstructure:"classifier_model" json:"classifier_model"`
	RerankModel     string `mapstructure:"rerank_model" json:"rerank_model"`
	EmbedderModel   string `mapstructure:"embedder_model" json:"embedder_model"`

	// Retrieval configuration
	Retrieval RetrievalConfig `mapstructure:"retrieval" json:"retrieval"`

	// Session configuration
	Session SessionConfig `mapstructure:"session" json:"session"`

	// Timeout configuration
	Timeouts TimeoutConfig `mapstructure:"timeouts" json:"timeouts"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Secondary evidence sources
	GitHub GitHubConfig `mapstructure:"github" json:"github"`
	Feed   FeedConfig   `mapstructure:"feed" json:"feed"`

	// Observability
	Otel OtelConfig `mapstructure:"otel" json:"otel"`
}

// RetrievalConfig tunes the retrieval and reranking engine.
type RetrievalConfig struct {
	// TopKProfessional is the evidence-chunk budget of the professional agent.
	TopKProfessional int `mapstructure:"top_k_professional" json:"top_k_professional"`

	// TopKPersona is the evidence-chunk budget of the persona agent.
	TopKPersona int `mapstructure:"top_k_persona" json:"top_k_persona"`

	// CandidateMultiplier M: first-stage search fetches topK*M candidates.
	CandidateMultiplier int `mapstructure:"candidate_multiplier" json:"candidate_multiplier"`

	// ChunkTokenBudget caps chunk length before rerank scoring. Longer
	// chunks are truncated at a sentence boundary.
	ChunkTokenBudget int `mapstructure:"chunk_token_budget" json:"chunk_token_budget"`
}

// SessionConfig tunes the in-memory conversation state.
type SessionConfig struct {
	// Window is the maximum number of retained turns per session (FIFO).
	Window int `mapstructure:"window" json:"window"`

	// RecencyTurns is how many of the most recent turns qualify for the
	// context-sufficiency bypass.
	RecencyTurns int `mapstructure:"recency_turns" json:"recency_turns"`

	// TTL is the inactivity duration after which a session is evicted.
	TTL time.Duration `mapstructure:"ttl" json:"ttl"`
}

// TimeoutConfig bounds the three external call sites plus the whole turn.
type TimeoutConfig struct {
	Classify time.Duration `mapstructure:"classify" json:"classify"`
	Agent    time.Duration `mapstructure:"agent" json:"agent"`
	Turn     time.Duration `mapstructure:"turn" json:"turn"`
}

// GitHubConfig configures the repository-metadata evidence adapter.
// Empty Owner disables the adapter.
type GitHubConfig struct {
	Owner string `mapstructure:"owner" json:"owner"`
	Token string `mapstructure:"token" json:"token"` // SENSITIVE
}

// FeedConfig configures the public-activity feed evidence adapter.
// Empty BaseURL disables the adapter.
type FeedConfig struct {
	BaseURL string  `mapstructure:"base_url" json:"base_url"`
	APIKey  string  `mapstructure:"api_key" json:"api_key"` // SENSITIVE
	RPS     float64 `mapstructure:"rps" json:"rps"`
}

// OtelConfig configures best-effort OTLP trace export.
// Empty Endpoint disables export; the pipeline never depends on it.
type OtelConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".folio")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile_name", "the profile owner")
	v.SetDefault("refusal_message",
		"Sorry, I can only answer questions about the profile owner's professional background and public work.")

	// Model defaults (GoogleAI provider-qualified names)
	v.SetDefault("model_name", "googleai/gemini-2.5-flash")
	v.SetDefault("classifier_model", "googleai/gemini-2.5-flash")
	v.SetDefault("rerank_model", "googleai/gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")

	// Retrieval defaults
	v.SetDefault("retrieval.top_k_professional", 6)
	v.SetDefault("retrieval.top_k_persona", 4)
	v.SetDefault("retrieval.candidate_multiplier", 4)
	v.SetDefault("retrieval.chunk_token_budget", 512)

	// Session defaults
	v.SetDefault("session.window", 10)
	v.SetDefault("session.recency_turns", 2)
	v.SetDefault("session.ttl", 30*time.Minute)

	// Timeout defaults
	v.SetDefault("timeouts.classify", 5*time.Second)
	v.SetDefault("timeouts.agent", 10*time.Second)
	v.SetDefault("timeouts.turn", 30*time.Second)

	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "folio")
	v.SetDefault("postgres_password", "folio_dev_password")
	v.SetDefault("postgres_db_name", "folio")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Feed defaults
	v.SetDefault("feed.rps", 2.0)

	// Otel defaults
	v.SetDefault("otel.service_name", "folio")
	v.SetDefault("otel.environment", "dev")
}

// bindEnvVariables binds secrets and deployment overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("postgres_password", "FOLIO_POSTGRES_PASSWORD")
	mustBind("github.token", "FOLIO_GITHUB_TOKEN")
	mustBind("feed.api_key", "FOLIO_FEED_API_KEY")
	mustBind("otel.endpoint", "FOLIO_OTEL_ENDPOINT")
	mustBind("model_name", "FOLIO_MODEL_NAME")
	mustBind("profile_name", "FOLIO_PROFILE_NAME")
}

// PostgresURL returns a postgres:// URL suitable for golang-migrate.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost, c.PostgresPort, c.PostgresDBName, c.PostgresSSLMode)
}

// PostgresConnectionString returns a keyword/value DSN for pgxpool.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword,
		c.PostgresDBName, c.PostgresSSLMode)
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.GitHub.Token = maskSecret(a.GitHub.Token)
	a.Feed.APIKey = maskSecret(a.Feed.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
