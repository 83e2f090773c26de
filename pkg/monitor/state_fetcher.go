// Package monitor is the evaluation loop: every tick it snapshots chain
// state per token, runs each active order's trigger against the
// snapshot, and hands triggered orders to the execution pipeline.
package monitor

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/monfun/agent/pkg/chain"
	"github.com/monfun/agent/pkg/market"
	"github.com/monfun/agent/pkg/order"
)

// TokenChainState is one token's per-tick snapshot. Every order for the
// token evaluates against the same snapshot, so one tick gives one
// consistent answer per token.
type TokenChainState struct {
	TokenAddress string
	Name         string
	Symbol       string
	IsGraduated  bool
	IsLocked     bool
	Progress     *big.Int // bonding-curve progress in bps
	TotalSupply  *big.Int

	// Probe quotes for one whole unit in each direction.
	BuyAmountOut  *big.Int // tokens out for 1e18 native in
	SellAmountOut *big.Int // native out for 1e18 tokens in
	BuyRouter     common.Address
	SellRouter    common.Address

	Market *market.Summary // nil when the aggregator has no record
}

// Unavailable reports whether every sub-read failed, i.e. the token is
// unreadable this tick. Orders against an unavailable token are skipped,
// never aborted.
func (s *TokenChainState) Unavailable() bool {
	return s.Name == "Unknown" && s.Progress.Sign() == 0 && s.BuyAmountOut.Sign() == 0
}

// PriceFor computes the direction-appropriate fixed-point price from the
// probe quotes. BUY prices off the buy probe, SELL off the sell probe.
func (s *TokenChainState) PriceFor(direction order.Direction) *big.Int {
	if direction == order.Buy {
		return order.PricePerToken(order.OneToken(), s.BuyAmountOut)
	}
	return order.PricePerToken(s.SellAmountOut, order.OneToken())
}

// MarketSource is the aggregator lookup surface the fetcher needs.
type MarketSource interface {
	Lookup(ctx context.Context, tokenAddress string) (market.Summary, bool)
}

// StateFetcher snapshots token state in a single multicall round trip
// plus one (cached) aggregator lookup.
type StateFetcher struct {
	chain  *chain.Client
	market MarketSource
	log    *zap.SugaredLogger
}

func NewStateFetcher(c *chain.Client, m MarketSource, log *zap.SugaredLogger) *StateFetcher {
	return &StateFetcher{chain: c, market: m, log: log}
}

// FetchTokenState reads the full snapshot for one token. Individual
// sub-read failures degrade to neutral defaults; only a failed multicall
// round trip is an error.
func (f *StateFetcher) FetchTokenState(ctx context.Context, tokenAddress string) (*TokenChainState, error) {
	token := common.HexToAddress(tokenAddress)
	contracts := f.chain.Contracts()
	one := order.OneToken()

	calls := []chain.Call{
		{Target: token, CallData: mustPack(chain.ERC20ABI, "name")},
		{Target: token, CallData: mustPack(chain.ERC20ABI, "symbol")},
		{Target: contracts.Lens, CallData: mustPack(chain.LensABI, "isGraduated", token)},
		{Target: contracts.Lens, CallData: mustPack(chain.LensABI, "isLocked", token)},
		{Target: contracts.Lens, CallData: mustPack(chain.LensABI, "getProgress", token)},
		{Target: contracts.Lens, CallData: mustPack(chain.LensABI, "getAmountOut", token, one, true)},
		{Target: contracts.Lens, CallData: mustPack(chain.LensABI, "getAmountOut", token, one, false)},
		{Target: token, CallData: mustPack(chain.ERC20ABI, "totalSupply")},
	}

	results, err := f.chain.Aggregate3(ctx, calls)
	if err != nil {
		return nil, err
	}

	state := &TokenChainState{
		TokenAddress:  strings.ToLower(tokenAddress),
		Name:          "Unknown",
		Symbol:        "???",
		Progress:      new(big.Int),
		TotalSupply:   new(big.Int),
		BuyAmountOut:  new(big.Int),
		SellAmountOut: new(big.Int),
		BuyRouter:     contracts.BondingCurveRouter,
		SellRouter:    contracts.BondingCurveRouter,
	}

	if s, ok := unpackString(chain.ERC20ABI, "name", results[0]); ok {
		state.Name = s
	}
	if s, ok := unpackString(chain.ERC20ABI, "symbol", results[1]); ok {
		state.Symbol = s
	}
	if b, ok := unpackBool(chain.LensABI, "isGraduated", results[2]); ok {
		state.IsGraduated = b
	}
	if b, ok := unpackBool(chain.LensABI, "isLocked", results[3]); ok {
		state.IsLocked = b
	}
	if v, ok := unpackBig(chain.LensABI, "getProgress", results[4]); ok {
		state.Progress = v
	}
	if router, amountOut, ok := unpackQuote(results[5]); ok {
		state.BuyRouter = router
		state.BuyAmountOut = amountOut
	}
	if router, amountOut, ok := unpackQuote(results[6]); ok {
		state.SellRouter = router
		state.SellAmountOut = amountOut
	}
	if v, ok := unpackBig(chain.ERC20ABI, "totalSupply", results[7]); ok {
		state.TotalSupply = v
	}

	if summary, hit := f.market.Lookup(ctx, state.TokenAddress); hit {
		state.Market = &summary
	}
	return state, nil
}

// FetchBatch snapshots a set of tokens concurrently. A token whose fetch
// fails is simply absent from the result; its orders skip the tick.
func (f *StateFetcher) FetchBatch(ctx context.Context, tokenAddresses []string) map[string]*TokenChainState {
	seen := map[string]bool{}
	unique := make([]string, 0, len(tokenAddresses))
	for _, addr := range tokenAddresses {
		key := strings.ToLower(addr)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, key)
		}
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		states = make(map[string]*TokenChainState, len(unique))
	)
	for _, addr := range unique {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			state, err := f.FetchTokenState(ctx, addr)
			if err != nil {
				f.log.Warnw("token_state_fetch_failed", "token", addr, "err", err)
				return
			}
			mu.Lock()
			states[addr] = state
			mu.Unlock()
		}(addr)
	}
	wg.Wait()
	return states
}
