package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// openAICompatible drives any chat-completions endpoint speaking the
// OpenAI wire format. Groq and OpenAI share this client.
type openAICompatible struct {
	name    string
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
}

func NewOpenAIProvider(apiKey string) Provider {
	return &openAICompatible{
		name:    "openai",
		baseURL: "https://api.openai.com/v1",
		model:   "gpt-4o-mini",
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func NewGroqProvider(apiKey string) Provider {
	return &openAICompatible{
		name:    "groq",
		baseURL: "https://api.groq.com/openai/v1",
		model:   "llama-3.3-70b-versatile",
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *openAICompatible) Name() string { return p.name }

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *openAICompatible) GenerateExplanation(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: p.model, Messages: messages})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", p.name, err)
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s decode: %w", p.name, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%s: %s", p.name, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK || len(out.Choices) == 0 {
		return "", fmt.Errorf("%s: status %d with no choices", p.name, resp.StatusCode)
	}
	return out.Choices[0].Message.Content, nil
}
