package order

import "time"

// LogAction tags an execution-log entry.
type LogAction string

const (
	LogCheck       LogAction = "CHECK"
	LogTrigger     LogAction = "TRIGGER"
	LogAbort       LogAction = "ABORT"
	LogExpire      LogAction = "EXPIRE"
	LogTxConfirmed LogAction = "TX_CONFIRMED"
	LogTxFailed    LogAction = "TX_FAILED"
)

// UnsignedTx is the venue call payload built at trigger time, recorded in
// the audit trail and handed to the executor for signing.
type UnsignedTx struct {
	To      string `json:"to"`
	Data    string `json:"data"`  // 0x-prefixed calldata
	Value   string `json:"value"` // wei, decimal string
	ChainID int64  `json:"chainId"`
}

// ExecutionLog is one append-only audit entry for an order, with a
// context snapshot of the market state the decision was made against.
type ExecutionLog struct {
	ID              string      `json:"id"`
	OrderID         string      `json:"orderId"`
	Action          LogAction   `json:"action"`
	CurrentPrice    string      `json:"currentPrice,omitempty"`
	CurrentProgress string      `json:"currentProgress,omitempty"`
	IsGraduated     bool        `json:"isGraduated,omitempty"`
	IsLocked        bool        `json:"isLocked,omitempty"`
	RouterAddress   string      `json:"routerAddress,omitempty"`
	UnsignedTx      *UnsignedTx `json:"unsignedTx,omitempty"`
	TxHash          string      `json:"txHash,omitempty"`
	Explanation     string      `json:"explanation,omitempty"`
	Provider        string      `json:"provider,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}
