package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Client wraps a JSON-RPC connection with the read helpers the agent
// needs: multicall batching, lens quotes, and ERC-20 views.
type Client struct {
	eth       *ethclient.Client
	contracts Contracts
	chainID   *big.Int
	log       *zap.SugaredLogger
}

func Dial(ctx context.Context, rpcURL string, contracts Contracts, chainID int64, log *zap.SugaredLogger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &Client{
		eth:       eth,
		contracts: contracts,
		chainID:   big.NewInt(chainID),
		log:       log,
	}, nil
}

func (c *Client) Close()                  { c.eth.Close() }
func (c *Client) Eth() *ethclient.Client  { return c.eth }
func (c *Client) Contracts() Contracts    { return c.contracts }
func (c *Client) ChainID() *big.Int       { return new(big.Int).Set(c.chainID) }

// Call is one sub-read of a multicall batch.
type Call struct {
	Target   common.Address
	CallData []byte
}

// CallResult carries a sub-read's outcome; failed sub-reads do not fail
// the batch (allowFailure=true on chain).
type CallResult struct {
	Success    bool
	ReturnData []byte
}

type mcCall struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type mcResult struct {
	Success    bool
	ReturnData []byte
}

// Aggregate3 batches reads through the Multicall3 contract in a single
// network round trip.
func (c *Client) Aggregate3(ctx context.Context, calls []Call) ([]CallResult, error) {
	packed := make([]mcCall, len(calls))
	for i, call := range calls {
		packed[i] = mcCall{Target: call.Target, AllowFailure: true, CallData: call.CallData}
	}
	input, err := Multicall3ABI.Pack("aggregate3", packed)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate3: %w", err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contracts.Multicall3,
		Data: input,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("multicall: %w", err)
	}

	var out []mcResult
	if err := Multicall3ABI.UnpackIntoInterface(&out, "aggregate3", raw); err != nil {
		return nil, fmt.Errorf("unpack aggregate3: %w", err)
	}
	results := make([]CallResult, len(out))
	for i, r := range out {
		results[i] = CallResult{Success: r.Success, ReturnData: r.ReturnData}
	}
	return results, nil
}

// GetAmountOut queries the lens for a routed swap quote.
func (c *Client) GetAmountOut(ctx context.Context, token common.Address, amountIn *big.Int, isBuy bool) (common.Address, *big.Int, error) {
	input, err := LensABI.Pack("getAmountOut", token, amountIn, isBuy)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("pack getAmountOut: %w", err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contracts.Lens, Data: input}, nil)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("getAmountOut: %w", err)
	}
	vals, err := LensABI.Unpack("getAmountOut", raw)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("unpack getAmountOut: %w", err)
	}
	router := vals[0].(common.Address)
	amountOut := vals[1].(*big.Int)
	return router, amountOut, nil
}

func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, addr, nil)
}

// TokenBalance reads balanceOf; failures degrade to zero so callers can
// treat "unreadable" and "empty" uniformly.
func (c *Client) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	out, err := c.erc20View(ctx, token, "balanceOf", holder)
	if err != nil {
		c.log.Warnw("token_balance_read_failed", "token", token.Hex(), "err", err)
		return new(big.Int), nil
	}
	return out, nil
}

func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.erc20View(ctx, token, "allowance", owner, spender)
}

func (c *Client) erc20View(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	input, err := ERC20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	vals, err := ERC20ABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals[0].(*big.Int), nil
}
