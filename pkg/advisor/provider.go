// Package advisor is the pluggable AI collaborator: it explains
// executed trades and optionally vetoes risky ones. Every path through
// this package fails open: the trading pipeline never depends on an
// advisory answer arriving.
package advisor

import "context"

type Message struct {
	Role    string `json:"role"` // "system" | "user"
	Content string `json:"content"`
}

// Provider is the closed advisory interface: one operation, no runtime
// capability probing.
type Provider interface {
	Name() string
	GenerateExplanation(ctx context.Context, messages []Message) (string, error)
}

// Config holds one wallet's provider credentials and preference.
// Preferred is a provider name or "auto" for round-robin.
type Config struct {
	WalletAddress string `json:"walletAddress"`
	Preferred     string `json:"preferred"`
	GroqAPIKey    string `json:"groqApiKey,omitempty"`
	ClaudeAPIKey  string `json:"claudeApiKey,omitempty"`
	OpenAIAPIKey  string `json:"openaiApiKey,omitempty"`
	GeminiAPIKey  string `json:"geminiApiKey,omitempty"`
}

func (c Config) keyFor(name string) string {
	switch name {
	case "groq":
		return c.GroqAPIKey
	case "claude":
		return c.ClaudeAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "gemini":
		return c.GeminiAPIKey
	}
	return ""
}

// HasAnyKey reports whether any provider credential is configured.
func (c Config) HasAnyKey() bool {
	return c.GroqAPIKey != "" || c.ClaudeAPIKey != "" || c.OpenAIAPIKey != "" || c.GeminiAPIKey != ""
}

// ConfigRepo loads per-wallet advisor configuration.
type ConfigRepo interface {
	LoadAdvisorConfig(walletAddress string) (Config, error)
	SaveAdvisorConfig(cfg Config) error
}
