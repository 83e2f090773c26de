package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// OneToken is the 18-decimal fixed-point unit (1e18 wei).
func OneToken() *big.Int { return new(big.Int).SetUint64(params.Ether) }

// PricePerToken computes amountIn * 1e18 / amountOut as a fixed-point
// wei price. Returns 0 when amountOut is 0.
func PricePerToken(amountIn, amountOut *big.Int) *big.Int {
	if amountOut == nil || amountOut.Sign() == 0 {
		return new(big.Int)
	}
	p := new(big.Int).Mul(amountIn, OneToken())
	return p.Div(p, amountOut)
}

// FormatWei renders a wei amount as a decimal token amount, trimming
// trailing zeros ("1", "0.1", "0.0002").
func FormatWei(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	whole := new(big.Int)
	frac := new(big.Int)
	whole.DivMod(wei, OneToken(), frac)
	if frac.Sign() == 0 {
		return whole.String()
	}
	fs := fmt.Sprintf("%018s", frac.String())
	for len(fs) > 0 && fs[len(fs)-1] == '0' {
		fs = fs[:len(fs)-1]
	}
	return whole.String() + "." + fs
}

// FormatProgress renders a bps progress value as a percentage ("35.20%").
func FormatProgress(bps *big.Int) string {
	if bps == nil {
		return "0.00%"
	}
	whole := new(big.Int)
	rem := new(big.Int)
	whole.DivMod(bps, big.NewInt(100), rem)
	return fmt.Sprintf("%s.%02d%%", whole.String(), rem.Int64())
}
