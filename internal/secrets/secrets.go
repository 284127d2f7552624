// Package secrets resolves credentials from the environment or a local
// secrets file.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/efebarandurmaz/lexrag/internal/config"
)

// Well-known keys.
const (
	KeyLLMAPIKey       = "llm_api_key"
	KeyEmbeddingAPIKey = "embedding_api_key"
	KeyVectorAPIKey    = "vector_api_key"
)

// ErrNotFound is returned when no backend holds a key.
var ErrNotFound = errors.New("secret not found")

// Provider is a secret backend.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Name() string
}

// Manager reads from a primary backend, falls back to the environment and
// caches hits.
type Manager struct {
	primary  Provider
	fallback Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager builds a manager from the secrets config section.
func NewManager(cfg config.SecretsConfig) (*Manager, error) {
	env := NewEnvProvider(cfg.EnvPrefix)
	m := &Manager{primary: env, cache: make(map[string]string)}

	switch cfg.Provider {
	case "env", "":
	case "file":
		fp, err := NewFileProvider(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("create file provider: %w", err)
		}
		m.primary, m.fallback = fp, env
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}
	return m, nil
}

// Get returns the value for key from the first backend that has it.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	val, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return val, nil
	}

	for _, p := range []Provider{m.primary, m.fallback} {
		if p == nil {
			continue
		}
		if val, err := p.Get(ctx, key); err == nil && val != "" {
			m.mu.Lock()
			m.cache[key] = val
			m.mu.Unlock()
			return val, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// GetOrDefault returns def when key is not found.
func (m *Manager) GetOrDefault(ctx context.Context, key, def string) string {
	val, err := m.Get(ctx, key)
	if err != nil {
		return def
	}
	return val
}

// Resolve fills empty API keys in cfg. An empty embedding key falls back to
// the LLM key, since both usually belong to the same account.
func Resolve(ctx context.Context, m *Manager, cfg *config.Config) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = m.GetOrDefault(ctx, key, "")
		}
	}
	fill(&cfg.LLM.APIKey, KeyLLMAPIKey)
	fill(&cfg.Embedding.APIKey, KeyEmbeddingAPIKey)
	fill(&cfg.Vector.APIKey, KeyVectorAPIKey)
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
}

// EnvProvider reads secrets from environment variables, first with the
// prefix and then without it.
type EnvProvider struct {
	prefix string
}

func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = config.EnvPrefix + "_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	name := strings.ToUpper(key)
	if val := os.Getenv(p.prefix + name); val != "" {
		return val, nil
	}
	if val := os.Getenv(name); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("%w: env %s%s", ErrNotFound, p.prefix, name)
}
