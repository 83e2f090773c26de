package monitor

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/monfun/agent/pkg/chain"
	"github.com/monfun/agent/pkg/order"
)

// FreshQuote is an execution-time quote for an order's actual input
// amount, fetched immediately before building the transaction. The tick
// snapshot's probe quotes are never used for execution sizing.
type FreshQuote struct {
	Router    common.Address
	AmountOut *big.Int
	Timestamp time.Time
}

// QuoteFetcher pulls fresh routed quotes from the lens.
type QuoteFetcher struct {
	chain *chain.Client
}

func NewQuoteFetcher(c *chain.Client) *QuoteFetcher {
	return &QuoteFetcher{chain: c}
}

func (f *QuoteFetcher) FetchFreshQuote(ctx context.Context, tokenAddress string, amountIn *big.Int, direction order.Direction) (*FreshQuote, error) {
	router, amountOut, err := f.chain.GetAmountOut(ctx, common.HexToAddress(tokenAddress), amountIn, direction == order.Buy)
	if err != nil {
		return nil, err
	}
	return &FreshQuote{Router: router, AmountOut: amountOut, Timestamp: time.Now()}, nil
}
