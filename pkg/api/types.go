package api

import (
	"time"

	"github.com/monfun/agent/pkg/order"
)

// Request/response types for the REST surface.

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type CreateAccountRequest struct {
	WalletAddress string `json:"walletAddress"`
}

// AccountResponse never carries key material.
type AccountResponse struct {
	WalletAddress string    `json:"walletAddress"`
	AgentAddress  string    `json:"agentAddress"`
	AutoExecute   bool      `json:"autoExecute"`
	RiskCheck     bool      `json:"riskCheck"`
	CreatedAt     time.Time `json:"createdAt"`
}

type BalanceResponse struct {
	WalletAddress string `json:"walletAddress"`
	AgentAddress  string `json:"agentAddress"`
	NativeBalance string `json:"nativeBalance"` // wei
	TokenAddress  string `json:"tokenAddress,omitempty"`
	TokenBalance  string `json:"tokenBalance,omitempty"` // wei
}

// SettingsRequest uses pointers so "absent" and "false" stay distinct.
type SettingsRequest struct {
	AutoExecute *bool `json:"autoExecute,omitempty"`
	RiskCheck   *bool `json:"riskCheck,omitempty"`
}

// ExportKeyRequest proves wallet ownership with a personal-sign
// signature over a recent timestamped message.
type ExportKeyRequest struct {
	WalletAddress string `json:"walletAddress"`
	Message       string `json:"message"`
	Signature     string `json:"signature"` // 0x-prefixed 65-byte signature
}

type ExportKeyResponse struct {
	AgentAddress string `json:"agentAddress"`
	PrivateKey   string `json:"privateKey"` // hex, no 0x prefix
}

type OrderDetailResponse struct {
	Order *order.Order          `json:"order"`
	Logs  []*order.ExecutionLog `json:"logs"`
}

// OrderbookEntry is one resting order in the per-token view.
type OrderbookEntry struct {
	ID           string `json:"id"`
	Wallet       string `json:"wallet"`
	TriggerType  string `json:"triggerType"`
	TriggerValue string `json:"triggerValue"`
	InputAmount  string `json:"inputAmount"`
	Status       string `json:"status"`
}

// OrderbookResponse groups live orders by direction: buys sorted by
// triggerValue descending, sells ascending, mirroring a bid/ask ladder.
type OrderbookResponse struct {
	TokenAddress string           `json:"tokenAddress"`
	Buys         []OrderbookEntry `json:"buys"`
	Sells        []OrderbookEntry `json:"sells"`
	Timestamp    int64            `json:"timestamp"` // unix ms
}

type TokenResponse struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	IsGraduated bool   `json:"isGraduated"`
	IsLocked    bool   `json:"isLocked"`
	Progress    string `json:"progress"` // bps
	TotalSupply string `json:"totalSupply"`
	BuyPrice    string `json:"buyPrice"`  // wei per token
	SellPrice   string `json:"sellPrice"` // wei per token
	PriceUSD    string `json:"priceUsd,omitempty"`
	Volume      string `json:"volume,omitempty"`
	HolderCount int    `json:"holderCount,omitempty"`
}

type QuoteResponse struct {
	Router     string `json:"router"`
	RouterType string `json:"routerType"`
	AmountOut  string `json:"amountOut"`
	Timestamp  int64  `json:"timestamp"` // unix ms
}

// AIConfigResponse reports key presence only, never key material.
type AIConfigResponse struct {
	WalletAddress string `json:"walletAddress"`
	Preferred     string `json:"preferred"`
	HasGroqKey    bool   `json:"hasGroqKey"`
	HasClaudeKey  bool   `json:"hasClaudeKey"`
	HasOpenAIKey  bool   `json:"hasOpenaiKey"`
	HasGeminiKey  bool   `json:"hasGeminiKey"`
}

type AIConfigRequest struct {
	WalletAddress string `json:"walletAddress"`
	Preferred     string `json:"preferred,omitempty"`
	GroqAPIKey    string `json:"groqApiKey,omitempty"`
	ClaudeAPIKey  string `json:"claudeApiKey,omitempty"`
	OpenAIAPIKey  string `json:"openaiApiKey,omitempty"`
	GeminiAPIKey  string `json:"geminiApiKey,omitempty"`
}

// WSSubscribeRequest scopes a websocket connection to one wallet's
// events, or all events with wallet "*".
type WSSubscribeRequest struct {
	Op     string `json:"op"` // "subscribe" | "unsubscribe"
	Wallet string `json:"wallet"`
}
