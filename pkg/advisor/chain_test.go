package advisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	name string
	text string
	err  error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) GenerateExplanation(ctx context.Context, _ []Message) (string, error) {
	return f.text, f.err
}

func fakeFactory(replies map[string]*fakeProvider) Factory {
	return func(name, apiKey string) Provider {
		if p, ok := replies[name]; ok {
			return p
		}
		return nil
	}
}

func allKeys() Config {
	return Config{Preferred: "groq", GroqAPIKey: "k", ClaudeAPIKey: "k", OpenAIAPIKey: "k", GeminiAPIKey: "k"}
}

func TestProviderOrderPreferredFirst(t *testing.T) {
	c := NewChain(DefaultFactory, zap.NewNop().Sugar())
	order := c.ProviderOrder("openai")
	require.Equal(t, []string{"openai", "groq", "claude", "gemini"}, order)
}

func TestProviderOrderAutoRotates(t *testing.T) {
	c := NewChain(DefaultFactory, zap.NewNop().Sugar())
	first := c.ProviderOrder("auto")
	second := c.ProviderOrder("auto")
	require.Equal(t, []string{"groq", "claude", "openai", "gemini"}, first)
	require.Equal(t, []string{"claude", "openai", "gemini", "groq"}, second)
}

func TestGetExplanationFallsThroughFailures(t *testing.T) {
	c := NewChain(fakeFactory(map[string]*fakeProvider{
		"groq":   {name: "groq", err: errors.New("rate limited")},
		"claude": {name: "claude", text: "trigger hit at target price"},
	}), zap.NewNop().Sugar())

	text, provider := c.GetExplanation(context.Background(), allKeys(), nil)
	require.Equal(t, "claude", provider)
	require.Equal(t, "trigger hit at target price", text)
}

func TestGetExplanationSkipsUnconfiguredProviders(t *testing.T) {
	c := NewChain(fakeFactory(map[string]*fakeProvider{
		"gemini": {name: "gemini", text: "ok"},
	}), zap.NewNop().Sugar())

	cfg := Config{Preferred: "groq", GeminiAPIKey: "k"}
	text, provider := c.GetExplanation(context.Background(), cfg, nil)
	require.Equal(t, "gemini", provider)
	require.Equal(t, "ok", text)
}

func TestGetExplanationNoKeys(t *testing.T) {
	c := NewChain(fakeFactory(nil), zap.NewNop().Sugar())
	text, provider := c.GetExplanation(context.Background(), Config{Preferred: "auto"}, nil)
	require.Equal(t, "none", provider)
	require.Contains(t, text, "No AI API keys configured")
}

type staticConfigs struct{ cfg Config }

func (s *staticConfigs) LoadAdvisorConfig(string) (Config, error) { return s.cfg, nil }
func (s *staticConfigs) SaveAdvisorConfig(Config) error           { return nil }

func TestRiskCheckParsesVerdict(t *testing.T) {
	c := NewChain(fakeFactory(map[string]*fakeProvider{
		"groq": {name: "groq", text: `{"execute": false, "confidence": 0.9, "reasoning": "liquidity collapsed"}`},
	}), zap.NewNop().Sugar())
	a := New(c, &staticConfigs{cfg: allKeys()})

	v := a.RiskCheck(context.Background(), "0xabc", TradeContext{})
	require.False(t, v.Execute)
	require.InDelta(t, 0.9, v.Confidence, 1e-9)
	require.Equal(t, "liquidity collapsed", v.Reasoning)
	require.Equal(t, "groq", v.Provider)
}

func TestRiskCheckFailsOpenOnGarbage(t *testing.T) {
	c := NewChain(fakeFactory(map[string]*fakeProvider{
		"groq": {name: "groq", text: "definitely not json"},
	}), zap.NewNop().Sugar())
	a := New(c, &staticConfigs{cfg: allKeys()})

	v := a.RiskCheck(context.Background(), "0xabc", TradeContext{})
	require.True(t, v.Execute)
	require.InDelta(t, 0.3, v.Confidence, 1e-9)
}
