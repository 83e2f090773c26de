package advisor

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

var providerNames = []string{"groq", "claude", "openai", "gemini"}

// Factory builds a provider instance for a name + key. Swappable in
// tests so the chain is exercised without network calls.
type Factory func(name, apiKey string) Provider

func DefaultFactory(name, apiKey string) Provider {
	switch name {
	case "groq":
		return NewGroqProvider(apiKey)
	case "claude":
		return NewClaudeProvider(apiKey)
	case "openai":
		return NewOpenAIProvider(apiKey)
	case "gemini":
		return NewGeminiProvider(apiKey)
	}
	return nil
}

// Chain walks an explicit ordered list of providers until one answers.
// The round-robin rotation used by "auto" mode is state owned here, not
// a package global, so behavior is deterministic under test.
type Chain struct {
	factory Factory
	log     *zap.SugaredLogger

	mu        sync.Mutex
	autoIndex int
}

func NewChain(factory Factory, log *zap.SugaredLogger) *Chain {
	return &Chain{factory: factory, log: log}
}

// ProviderOrder returns the attempt order for a preference. "auto"
// rotates the starting provider across calls to spread quota usage.
func (c *Chain) ProviderOrder(preferred string) []string {
	if preferred == "auto" || preferred == "" {
		c.mu.Lock()
		i := c.autoIndex
		c.autoIndex = (c.autoIndex + 1) % len(providerNames)
		c.mu.Unlock()
		ordered := make([]string, 0, len(providerNames))
		ordered = append(ordered, providerNames[i:]...)
		ordered = append(ordered, providerNames[:i]...)
		return ordered
	}
	ordered := []string{preferred}
	for _, n := range providerNames {
		if n != preferred {
			ordered = append(ordered, n)
		}
	}
	return ordered
}

// GetExplanation tries each configured provider in order and returns
// the first answer. With no usable provider it returns a human-readable
// placeholder and provider "none", never an error.
func (c *Chain) GetExplanation(ctx context.Context, cfg Config, messages []Message) (string, string) {
	for _, name := range c.ProviderOrder(cfg.Preferred) {
		key := cfg.keyFor(name)
		if key == "" {
			continue
		}
		p := c.factory(name, key)
		if p == nil {
			continue
		}
		text, err := p.GenerateExplanation(ctx, messages)
		if err != nil {
			c.log.Warnw("advisor_provider_failed", "provider", name, "err", err)
			continue
		}
		return text, name
	}

	if cfg.HasAnyKey() {
		return "AI providers are currently unavailable. Please try again later or check your API keys in Settings.", "none"
	}
	return "No AI API keys configured. Add a Groq, Claude, OpenAI, or Gemini API key in Settings.", "none"
}
