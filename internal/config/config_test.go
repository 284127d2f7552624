package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{Embedding: EmbeddingConfig{Dimensions: 1024}}
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("empty config should have no warnings, got %v", warnings)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := &Config{
		LLM:       LLMConfig{Provider: "mistral"},
		Embedding: EmbeddingConfig{Provider: "mistral", Dimensions: 1024},
	}
	warnings := cfg.Validate()
	if !hasWarning(warnings, "LLM provider 'mistral'") {
		t.Error("expected warning about missing llm api_key")
	}
	if !hasWarning(warnings, "embedding provider 'mistral'") {
		t.Error("expected warning about missing embedding api_key")
	}

	cfg.LLM.APIKey = "k"
	if w := cfg.Validate(); len(w) != 0 {
		t.Errorf("embedding should reuse the llm key, got %v", w)
	}
}

func TestValidate_OllamaNeedsNoKey(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Provider: "ollama"}, Embedding: EmbeddingConfig{Provider: "ollama", Dimensions: 768}}
	if w := cfg.Validate(); len(w) != 0 {
		t.Errorf("unexpected warnings %v", w)
	}
}

func TestValidate_InvalidTemperature(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want bool // true = should warn
	}{
		{"zero", 0, false},
		{"normal", 0.7, false},
		{"max", 2.0, false},
		{"negative", -1, true},
		{"too_high", 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LLM: LLMConfig{Temperature: tt.temp}, Embedding: EmbeddingConfig{Dimensions: 1}}
			if got := hasWarning(cfg.Validate(), "temperature"); got != tt.want {
				t.Errorf("temperature=%.1f: hasWarn=%v, want=%v", tt.temp, got, tt.want)
			}
		})
	}
}

func TestValidate_Retrieval(t *testing.T) {
	cfg := &Config{Retrieval: RetrievalConfig{TopK: -1, Neighbors: -2}, Vector: VectorConfig{Backend: "pinecone"}}
	warnings := cfg.Validate()
	for _, want := range []string{"top_k", "neighbors", "dimensions", "pinecone"} {
		if !hasWarning(warnings, want) {
			t.Errorf("expected warning containing %q, got %v", want, warnings)
		}
	}
}

func TestValidate_MaxNeighbors(t *testing.T) {
	cfg := &Config{Retrieval: RetrievalConfig{Neighbors: 5, MaxNeighbors: 2}}
	if !hasWarning(cfg.Validate(), "exceeds max_neighbors") {
		t.Error("expected a warning for neighbors above max_neighbors")
	}
	cfg.Retrieval.MaxNeighbors = 0
	if !hasWarning(cfg.Validate(), "max_neighbors 0") {
		t.Error("expected a warning for a non-positive max_neighbors")
	}
	cfg.Retrieval.MaxNeighbors = 20
	if hasWarning(cfg.Validate(), "max_neighbors") {
		t.Error("unexpected max_neighbors warning")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retrieval.TopK != 10 || cfg.Retrieval.Neighbors != 0 || cfg.Retrieval.MaxNeighbors != 20 {
		t.Errorf("retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.DefaultSource != "Документ" || cfg.Retrieval.IDPrefix != "art" {
		t.Errorf("retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Ingest.StartPage != 37 || cfg.Ingest.BatchSize != 100 || cfg.Ingest.MaxArticles != 1500 {
		t.Errorf("ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Sessions.Dir != "chat_sessions" || cfg.Server.Addr != ":8080" {
		t.Errorf("defaults: sessions=%q addr=%q", cfg.Sessions.Dir, cfg.Server.Addr)
	}
	if cfg.Vector.Backend != "qdrant" || cfg.Vector.Port != 6334 {
		t.Errorf("vector defaults: %+v", cfg.Vector)
	}
	if cfg.Embedding.Dimensions != 1024 || cfg.Embedding.CacheSize != 1000 {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.LLM.Timeout != 2*time.Minute {
		t.Errorf("llm timeout: %v", cfg.LLM.Timeout)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexrag.yaml")
	yaml := `
llm:
  provider: openai
  model: gpt-4o-mini
retrieval:
  top_k: 5
  neighbors: 1
server:
  request_timeout: 30s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEXRAG_LLM_API_KEY", "from-env")
	t.Setenv("LEXRAG_RETRIEVAL_TOP_K", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm from file: %+v", cfg.LLM)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("api key from env: %q", cfg.LLM.APIKey)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Errorf("env should override file, got top_k=%d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.Neighbors != 1 {
		t.Errorf("neighbors=%d", cfg.Retrieval.Neighbors)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("request_timeout=%v", cfg.Server.RequestTimeout)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLLMConfig_Conversions(t *testing.T) {
	c := LLMConfig{Provider: "mistral", Model: "m", Temperature: 0.3, MaxTokens: 512, RequestsPerMinute: 60, TokensPerMinute: 50000}
	pc := c.ProviderConfig()
	if pc.Provider != "mistral" || pc.RequestsPerMinute != 60 || pc.TokensPerMinute != 50000 {
		t.Errorf("provider config: %+v", pc)
	}
	opts := c.RequestOptions()
	if opts.Temperature == nil || *opts.Temperature != 0.3 || opts.MaxTokens == nil || *opts.MaxTokens != 512 {
		t.Errorf("request options: %+v", opts)
	}
	if o := (LLMConfig{}).RequestOptions(); o.Temperature != nil || o.MaxTokens != nil {
		t.Errorf("zero config should keep provider defaults: %+v", o)
	}

	ec := EmbeddingConfig{Provider: "mistral", Model: "mistral-embed", Timeout: time.Second}.ProviderConfig()
	if ec.EmbedModel != "mistral-embed" || ec.MaxRetries != 0 {
		t.Errorf("embedding provider config: %+v", ec)
	}
}
