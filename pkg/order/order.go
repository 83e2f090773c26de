package order

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

type TriggerType string

const (
	TriggerPriceBelow     TriggerType = "PRICE_BELOW"
	TriggerPriceAbove     TriggerType = "PRICE_ABOVE"
	TriggerProgressBelow  TriggerType = "PROGRESS_BELOW"
	TriggerProgressAbove  TriggerType = "PROGRESS_ABOVE"
	TriggerPostGraduation TriggerType = "POST_GRADUATION"
	TriggerMcapBelow      TriggerType = "MCAP_BELOW"
	TriggerMcapAbove      TriggerType = "MCAP_ABOVE"
	TriggerMcapBelowUSD   TriggerType = "MCAP_BELOW_USD"
	TriggerMcapAboveUSD   TriggerType = "MCAP_ABOVE_USD"
	TriggerTrailingStop   TriggerType = "TRAILING_STOP"
	TriggerTakeProfit     TriggerType = "TAKE_PROFIT"
	TriggerStopLoss       TriggerType = "STOP_LOSS"
	TriggerDCAInterval    TriggerType = "DCA_INTERVAL"
	TriggerPriceDropPct   TriggerType = "PRICE_DROP_PCT"
)

var validTriggers = map[TriggerType]bool{
	TriggerPriceBelow:     true,
	TriggerPriceAbove:     true,
	TriggerProgressBelow:  true,
	TriggerProgressAbove:  true,
	TriggerPostGraduation: true,
	TriggerMcapBelow:      true,
	TriggerMcapAbove:      true,
	TriggerMcapBelowUSD:   true,
	TriggerMcapAboveUSD:   true,
	TriggerTrailingStop:   true,
	TriggerTakeProfit:     true,
	TriggerStopLoss:       true,
	TriggerDCAInterval:    true,
	TriggerPriceDropPct:   true,
}

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusTriggered Status = "TRIGGERED"
	StatusExecuted  Status = "EXECUTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
// A recurring DCA order is the single exception: EXECUTED re-arms to ACTIVE.
func (s Status) Terminal() bool {
	switch s {
	case StatusExecuted, StatusExpired, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Order is a persisted synthetic limit order: a conditional trade intent
// executed by the monitoring agent once its trigger condition is met.
// All monetary fields are 18-decimal fixed-point wei amounts stored as
// decimal strings; they are never floats.
type Order struct {
	ID             string      `json:"id"`
	WalletAddress  string      `json:"walletAddress"` // lowercased hex
	TokenAddress   string      `json:"tokenAddress"`  // lowercased hex
	Direction      Direction   `json:"direction"`
	InputAmount    string      `json:"inputAmount"` // wei
	TriggerType    TriggerType `json:"triggerType"`
	TriggerValue   string      `json:"triggerValue"` // unit depends on TriggerType
	MaxSlippageBps int         `json:"maxSlippageBps"`
	ExpiresAt      time.Time   `json:"expiresAt"`
	Status         Status      `json:"status"`

	ReferencePrice string     `json:"referencePrice,omitempty"` // wei price snapshot at creation
	PeakPrice      string     `json:"peakPrice,omitempty"`      // ratcheted high-water mark (TRAILING_STOP)
	LastExecutedAt *time.Time `json:"lastExecutedAt,omitempty"` // DCA recurrence anchor

	RouterUsed string `json:"routerUsed,omitempty"`
	TxHash     string `json:"txHash,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InputAmountWei parses InputAmount; returns 0 on malformed input rather
// than failing, matching the availability-over-strictness policy.
func (o *Order) InputAmountWei() *big.Int {
	return parseBig(o.InputAmount)
}

func (o *Order) TriggerValueBig() *big.Int {
	return parseBig(o.TriggerValue)
}

func (o *Order) ReferencePriceBig() *big.Int {
	return parseBig(o.ReferencePrice)
}

func (o *Order) PeakPriceBig() *big.Int {
	return parseBig(o.PeakPrice)
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

var addrRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
var numRe = regexp.MustCompile(`^\d+$`)

// CreateRequest is the order-intake payload.
type CreateRequest struct {
	WalletAddress  string      `json:"walletAddress"`
	TokenAddress   string      `json:"tokenAddress"`
	Direction      Direction   `json:"direction"`
	InputAmount    string      `json:"inputAmount"`
	TriggerType    TriggerType `json:"triggerType"`
	TriggerValue   string      `json:"triggerValue"`
	MaxSlippageBps int         `json:"maxSlippageBps"`
	ExpiresAt      time.Time   `json:"expiresAt"`
	ReferencePrice string      `json:"referencePrice,omitempty"`
	PeakPrice      string      `json:"peakPrice,omitempty"`
}

// Validate enforces the intake invariants. Slippage is bounded to 50%
// at creation even though the model field ranges to 10000.
func (r *CreateRequest) Validate(now time.Time) error {
	if r.WalletAddress == "" || r.TokenAddress == "" || r.InputAmount == "" || r.TriggerValue == "" {
		return fmt.Errorf("missing required fields")
	}
	if !addrRe.MatchString(r.TokenAddress) {
		return fmt.Errorf("invalid token address format")
	}
	if !addrRe.MatchString(r.WalletAddress) {
		return fmt.Errorf("invalid wallet address format")
	}
	if r.Direction != Buy && r.Direction != Sell {
		return fmt.Errorf("direction must be BUY or SELL")
	}
	if !validTriggers[r.TriggerType] {
		return fmt.Errorf("invalid trigger type: %s", r.TriggerType)
	}
	if !numRe.MatchString(r.InputAmount) || r.InputAmount == "0" {
		return fmt.Errorf("inputAmount must be a positive numeric string in wei")
	}
	if !numRe.MatchString(r.TriggerValue) {
		return fmt.Errorf("triggerValue must be a numeric string")
	}
	if !r.ExpiresAt.After(now) {
		return fmt.Errorf("expiresAt must be in the future")
	}
	if r.MaxSlippageBps < 1 || r.MaxSlippageBps > 5000 {
		return fmt.Errorf("maxSlippageBps must be between 1 and 5000")
	}
	return nil
}

// New materializes a validated request into an ACTIVE order.
func New(id string, r *CreateRequest, now time.Time) *Order {
	return &Order{
		ID:             id,
		WalletAddress:  strings.ToLower(r.WalletAddress),
		TokenAddress:   strings.ToLower(r.TokenAddress),
		Direction:      r.Direction,
		InputAmount:    r.InputAmount,
		TriggerType:    r.TriggerType,
		TriggerValue:   r.TriggerValue,
		MaxSlippageBps: r.MaxSlippageBps,
		ExpiresAt:      r.ExpiresAt,
		Status:         StatusActive,
		ReferencePrice: r.ReferencePrice,
		PeakPrice:      r.PeakPrice,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
