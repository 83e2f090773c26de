package order

import "math/big"

const bpsDenominator = 10000

// ApplySlippage returns amountOut reduced by maxSlippageBps
// (the minimum-output floor for a swap).
func ApplySlippage(amountOut *big.Int, maxSlippageBps int) *big.Int {
	out := new(big.Int).Mul(amountOut, big.NewInt(int64(bpsDenominator-maxSlippageBps)))
	return out.Div(out, big.NewInt(bpsDenominator))
}

// CheckSlippageAcceptable compares an expected output against a fresh
// quote. Only downside deviation counts; a better-than-expected quote is
// zero slippage. A zero expectation fails closed with 10000 bps.
func CheckSlippageAcceptable(expected, fresh *big.Int, maxSlippageBps int) (bool, int) {
	if expected == nil || expected.Sign() == 0 {
		return false, bpsDenominator
	}
	diff := new(big.Int)
	if expected.Cmp(fresh) > 0 {
		diff.Sub(expected, fresh)
	}
	diff.Mul(diff, big.NewInt(bpsDenominator))
	diff.Div(diff, expected)
	actual := int(diff.Int64())
	return actual <= maxSlippageBps, actual
}
