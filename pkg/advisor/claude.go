package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type claudeProvider struct {
	apiKey string
	model  string
	http   *http.Client
}

func NewClaudeProvider(apiKey string) Provider {
	return &claudeProvider{
		apiKey: apiKey,
		model:  "claude-3-5-haiku-latest",
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *claudeProvider) Name() string { return "claude" }

type claudeRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *claudeProvider) GenerateExplanation(ctx context.Context, messages []Message) (string, error) {
	// The messages API takes the system prompt out of band.
	var system string
	var rest []Message
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		rest = append(rest, m)
	}

	body, err := json.Marshal(claudeRequest{
		Model:     p.model,
		MaxTokens: 512,
		System:    system,
		Messages:  rest,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("claude request: %w", err)
	}
	defer resp.Body.Close()

	var out claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("claude decode: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("claude: %s", out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK || len(out.Content) == 0 {
		return "", fmt.Errorf("claude: status %d with no content", resp.StatusCode)
	}
	return out.Content[0].Text, nil
}
