package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/lexrag/internal/llm"
	"github.com/efebarandurmaz/lexrag/internal/observability"
)

// EnvPrefix prefixes environment overrides, e.g. LEXRAG_LLM_API_KEY.
const EnvPrefix = "LEXRAG"

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Server    ServerConfig    `mapstructure:"server"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Log       LogConfig       `mapstructure:"log"`
}

// LLMConfig configures the chat model.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	TokensPerMinute   int           `mapstructure:"tokens_per_minute"`
}

// ProviderConfig converts the section for llm.ProviderFactory.
func (c LLMConfig) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:          c.Provider,
		APIKey:            c.APIKey,
		Model:             c.Model,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		MaxRetries:        c.MaxRetries,
		RetryDelay:        time.Second,
		RequestsPerMinute: c.RequestsPerMinute,
		TokensPerMinute:   c.TokensPerMinute,
	}
}

// RequestOptions returns per-call overrides; zero values keep the
// provider default.
func (c LLMConfig) RequestOptions() *llm.RequestOptions {
	opts := &llm.RequestOptions{}
	if c.Temperature > 0 {
		t := c.Temperature
		opts.Temperature = &t
	}
	if c.MaxTokens > 0 {
		n := c.MaxTokens
		opts.MaxTokens = &n
	}
	return opts
}

// EmbeddingConfig configures the embedding model. Retrieval never retries
// embedding calls, so only a timeout is applied.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Dimensions int           `mapstructure:"dimensions"`
	CacheSize  int           `mapstructure:"cache_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (c EmbeddingConfig) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:   c.Provider,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		EmbedModel: c.Model,
		Timeout:    c.Timeout,
	}
}

// VectorConfig selects and configures the vector index.
type VectorConfig struct {
	Backend    string `mapstructure:"backend"` // qdrant or hnsw
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	FetchBatch int    `mapstructure:"fetch_batch"`
	// Path is the on-disk location of the hnsw graph.
	Path string `mapstructure:"path"`
}

type RetrievalConfig struct {
	TopK          int    `mapstructure:"top_k"`
	Neighbors     int    `mapstructure:"neighbors"`
	MaxNeighbors  int    `mapstructure:"max_neighbors"`
	IDPrefix      string `mapstructure:"id_prefix"`
	DefaultSource string `mapstructure:"default_source"`
}

type IngestConfig struct {
	PDFPath     string `mapstructure:"pdf_path"`
	StartPage   int    `mapstructure:"start_page"`
	BatchSize   int    `mapstructure:"batch_size"`
	MaxArticles int    `mapstructure:"max_articles"`
	Source      string `mapstructure:"source"`
}

type SessionsConfig struct {
	Dir string `mapstructure:"dir"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Observability converts the section for observability.InitTracing.
func (c TracingConfig) Observability() *observability.TracingConfig {
	tc := observability.DefaultTracingConfig()
	tc.OTLPEndpoint = c.Endpoint
	tc.Insecure = c.Insecure
	if c.ServiceName != "" {
		tc.ServiceName = c.ServiceName
	}
	if c.Environment != "" {
		tc.Environment = c.Environment
	}
	tc.SampleRate = c.SampleRate
	return tc
}

type SecretsConfig struct {
	Provider  string `mapstructure:"provider"` // env or file
	FilePath  string `mapstructure:"file_path"`
	EnvPrefix string `mapstructure:"env_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func (c LogConfig) Observability() observability.LogConfig {
	return observability.LogConfig{Level: c.Level, Format: c.Format}
}

// SetDefaults registers default values. Every key is registered so that
// environment overrides reach Unmarshal even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "mistral")
	v.SetDefault("llm.model", "mistral-small-latest")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.tokens_per_minute", 0)

	v.SetDefault("embedding.provider", "mistral")
	v.SetDefault("embedding.model", "mistral-embed")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.cache_size", 1000)
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("vector.backend", "qdrant")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "legal-articles")
	v.SetDefault("vector.api_key", "")
	v.SetDefault("vector.use_tls", false)
	v.SetDefault("vector.fetch_batch", 100)
	v.SetDefault("vector.path", "data/index.hnsw")

	v.SetDefault("retrieval.top_k", 10)
	v.SetDefault("retrieval.neighbors", 0)
	v.SetDefault("retrieval.max_neighbors", 20)
	v.SetDefault("retrieval.id_prefix", "art")
	v.SetDefault("retrieval.default_source", "Документ")

	v.SetDefault("ingest.pdf_path", "")
	v.SetDefault("ingest.start_page", 37)
	v.SetDefault("ingest.batch_size", 100)
	v.SetDefault("ingest.max_articles", 1500)
	v.SetDefault("ingest.source", "")

	v.SetDefault("sessions.dir", "chat_sessions")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "lexrag-ingest")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "lexrag")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.file_path", "")
	v.SetDefault("secrets.env_prefix", "LEXRAG_")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	// Local providers run without keys.
	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.Embedding.Provider != "" && c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", c.Embedding.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.RequestsPerMinute < 0 || c.LLM.TokensPerMinute < 0 {
		warnings = append(warnings, "LLM rate limits must not be negative; negative values disable limiting")
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.Retrieval.TopK < 0 {
		warnings = append(warnings, fmt.Sprintf("retrieval top_k %d is negative", c.Retrieval.TopK))
	}
	if c.Retrieval.Neighbors < 0 {
		warnings = append(warnings, fmt.Sprintf("retrieval neighbors %d is negative", c.Retrieval.Neighbors))
	}
	if c.Retrieval.MaxNeighbors < 1 {
		warnings = append(warnings, fmt.Sprintf("retrieval max_neighbors %d is not positive; the built-in limit applies", c.Retrieval.MaxNeighbors))
	} else if c.Retrieval.Neighbors > c.Retrieval.MaxNeighbors {
		warnings = append(warnings, fmt.Sprintf("retrieval neighbors %d exceeds max_neighbors %d", c.Retrieval.Neighbors, c.Retrieval.MaxNeighbors))
	}
	if c.Embedding.Dimensions == 0 {
		warnings = append(warnings, "embedding dimensions is 0; vector sizes will not be checked")
	}

	switch c.Vector.Backend {
	case "", "qdrant", "hnsw":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown vector backend '%s'", c.Vector.Backend))
	}

	return warnings
}

// Load reads configuration from file and environment. A missing file is not
// an error: defaults and environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
