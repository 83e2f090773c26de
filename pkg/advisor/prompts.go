package advisor

import "fmt"

// TradeContext is the structured trade snapshot handed to advisory
// prompts. All numeric fields are pre-formatted human-readable strings;
// prompts never see raw wei.
type TradeContext struct {
	TokenAddress    string
	TokenName       string
	TokenSymbol     string
	Direction       string
	TriggerType     string
	TriggerValue    string
	CurrentPrice    string
	Progress        string
	IsGraduated     bool
	IsLocked        bool
	Router          string
	SlippageBps     int
	InputAmount     string
	EstimatedOutput string
	Volume          string
	HolderCount     int
}

func BuildExplanationPrompt(t TradeContext) []Message {
	return []Message{
		{
			Role: "system",
			Content: "You are a DeFi order execution analyst for a synthetic limit order platform trading bonding-curve tokens.\n" +
				"You explain why a synthetic limit order was triggered and auto-executed by the platform's agent.\n" +
				"Rules:\n" +
				"- Only reference the exact numbers provided. Never fabricate prices or percentages.\n" +
				"- Be concise: 2-3 sentences maximum.\n" +
				"- Mention the trigger condition, current value, and what the user will receive.\n" +
				"- If there are risks (high slippage, near graduation), mention them briefly.\n" +
				"- Do not use markdown formatting. Plain text only.",
		},
		{
			Role: "user",
			Content: fmt.Sprintf("Explain this order trigger:\n"+
				"Token: %s (%s) at %s\n"+
				"Direction: %s\n"+
				"Trigger: %s at %s\n"+
				"Current price: %s per token\n"+
				"Current progress: %s\n"+
				"Graduated: %t\n"+
				"Locked: %t\n"+
				"Router: %s\n"+
				"Input: %s\n"+
				"Estimated output: %s\n"+
				"Max slippage: %.2f%%",
				t.TokenSymbol, t.TokenName, t.TokenAddress,
				t.Direction, t.TriggerType, t.TriggerValue,
				t.CurrentPrice, t.Progress, t.IsGraduated, t.IsLocked,
				t.Router, t.InputAmount, t.EstimatedOutput,
				float64(t.SlippageBps)/100),
		},
	}
}

func BuildRiskCheckPrompt(t TradeContext) []Message {
	extra := ""
	if t.Volume != "" {
		extra += fmt.Sprintf("\n24h volume: %s", t.Volume)
	}
	if t.HolderCount > 0 {
		extra += fmt.Sprintf("\nHolder count: %d", t.HolderCount)
	}
	return []Message{
		{
			Role: "system",
			Content: "You are a pre-execution risk checker for an automated trading agent.\n" +
				"Given a pending trade, decide whether it should execute.\n" +
				"Respond with ONLY a JSON object: {\"execute\": bool, \"confidence\": number 0-1, \"reasoning\": string}.\n" +
				"Block only clear dangers (rug signals, absurd slippage, dead token). When uncertain, allow execution with low confidence.",
		},
		{
			Role: "user",
			Content: fmt.Sprintf("Pending trade:\n"+
				"Token: %s (%s)\n"+
				"Direction: %s\n"+
				"Trigger: %s\n"+
				"Input: %s\n"+
				"Estimated output: %s\n"+
				"Current price: %s per token\n"+
				"Max slippage: %.2f%%\n"+
				"Graduated: %t\n"+
				"Progress: %s%s",
				t.TokenSymbol, t.TokenName, t.Direction, t.TriggerType,
				t.InputAmount, t.EstimatedOutput, t.CurrentPrice,
				float64(t.SlippageBps)/100, t.IsGraduated, t.Progress, extra),
		},
	}
}
