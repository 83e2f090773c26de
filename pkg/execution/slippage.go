package execution

import (
	"math/big"

	"github.com/monfun/agent/pkg/order"
)

type SlippageCheck struct {
	Acceptable        bool
	AmountOutMin      *big.Int
	ActualSlippageBps int
}

// ValidateSlippage gates execution on the drift between the
// evaluation-time expectation and the fresh quote. The minimum-output
// floor is always derived from the fresh quote, never the stale
// expectation, so the floor cannot be artificially loose.
func ValidateSlippage(expectedOut, freshOut *big.Int, maxSlippageBps int) SlippageCheck {
	acceptable, actualBps := order.CheckSlippageAcceptable(expectedOut, freshOut, maxSlippageBps)
	return SlippageCheck{
		Acceptable:        acceptable,
		AmountOutMin:      order.ApplySlippage(freshOut, maxSlippageBps),
		ActualSlippageBps: actualBps,
	}
}
