// Package llmutil wires the built-in LLM backends into a provider factory.
package llmutil

import (
	"github.com/efebarandurmaz/lexrag/internal/llm"
	"github.com/efebarandurmaz/lexrag/internal/llm/openai"
)

// RegisterDefaultProviders registers every OpenAI-compatible preset from
// llm.KnownProviders plus "custom", which requires base_url. Both cmd/lexrag
// and cmd/worker call this.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	for name, url := range llm.KnownProviders {
		factory.Register(name, openAICompatible(name, url))
	}
	factory.Register("custom", openAICompatible("custom", ""))
}

func openAICompatible(name, defaultURL string) llm.ProviderConstructor {
	return func(c llm.ProviderConfig) (llm.Provider, error) {
		base := c.BaseURL
		if base == "" {
			base = defaultURL
		}
		return openai.New(c.APIKey, c.Model, base, c.EmbedModel).WithName(name), nil
	}
}
