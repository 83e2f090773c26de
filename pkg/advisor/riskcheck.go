package advisor

import (
	"context"
	"encoding/json"
	"fmt"
)

// RiskVerdict is the advisory pre-execution decision.
type RiskVerdict struct {
	Execute    bool    `json:"execute"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Provider   string  `json:"provider"`
}

// Advisor bundles the provider chain with per-wallet configuration.
type Advisor struct {
	chain   *Chain
	configs ConfigRepo
}

func New(chain *Chain, configs ConfigRepo) *Advisor {
	return &Advisor{chain: chain, configs: configs}
}

// Explain produces a best-effort trade explanation. Never errors; the
// fallback text from the chain is itself a valid explanation.
func (a *Advisor) Explain(ctx context.Context, walletAddress string, t TradeContext) (string, string) {
	cfg, err := a.configs.LoadAdvisorConfig(walletAddress)
	if err != nil {
		return "AI explanation unavailable.", "none"
	}
	return a.chain.GetExplanation(ctx, cfg, BuildExplanationPrompt(t))
}

// RiskCheck asks the provider chain for a veto verdict. Fail-open
// throughout: config errors, provider errors, and unparseable replies
// all yield an executable verdict.
func (a *Advisor) RiskCheck(ctx context.Context, walletAddress string, t TradeContext) RiskVerdict {
	cfg, err := a.configs.LoadAdvisorConfig(walletAddress)
	if err != nil {
		return RiskVerdict{Execute: true, Confidence: 0, Reasoning: "advisor config unavailable", Provider: "none"}
	}
	text, provider := a.chain.GetExplanation(ctx, cfg, BuildRiskCheckPrompt(t))

	var parsed struct {
		Execute    *bool   `json:"execute"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		raw := text
		if len(raw) > 100 {
			raw = raw[:100]
		}
		return RiskVerdict{
			Execute:    true,
			Confidence: 0.3,
			Reasoning:  fmt.Sprintf("AI response unparseable, defaulting to execute. Raw: %s", raw),
			Provider:   provider,
		}
	}
	verdict := RiskVerdict{Execute: true, Confidence: parsed.Confidence, Reasoning: parsed.Reasoning, Provider: provider}
	if parsed.Execute != nil {
		verdict.Execute = *parsed.Execute
	}
	if parsed.Reasoning == "" {
		verdict.Reasoning = text
	}
	if verdict.Confidence == 0 && parsed.Execute == nil {
		verdict.Confidence = 0.5
	}
	return verdict
}
