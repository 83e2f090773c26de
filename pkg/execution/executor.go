package execution

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/monfun/agent/pkg/chain"
	"github.com/monfun/agent/pkg/order"
)

// ExecResult reports a broadcast attempt. Success with Confirmed=false
// means the transaction was accepted by the network but the receipt
// wait timed out: sent, unconfirmed.
type ExecResult struct {
	TxHash    common.Hash
	Success   bool
	Confirmed bool
	Err       string
}

type ApprovalResult struct {
	Approved bool
	TxHash   common.Hash
	Err      string
}

// Executor signs and broadcasts venue transactions. Orders sharing an
// agent wallet serialize through a per-wallet lock: at most one
// in-flight signed transaction per wallet, so nonces never race.
type Executor struct {
	chain          *chain.Client
	receiptTimeout time.Duration
	log            *zap.SugaredLogger

	mu      sync.Mutex
	wallets map[common.Address]*sync.Mutex
}

func NewExecutor(c *chain.Client, receiptTimeout time.Duration, log *zap.SugaredLogger) *Executor {
	return &Executor{
		chain:          c,
		receiptTimeout: receiptTimeout,
		log:            log,
		wallets:        map[common.Address]*sync.Mutex{},
	}
}

func (e *Executor) walletLock(addr common.Address) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.wallets[addr]
	if !ok {
		l = &sync.Mutex{}
		e.wallets[addr] = l
	}
	return l
}

// Execute signs utx with key, broadcasts it, and waits for a receipt up
// to the configured timeout.
func (e *Executor) Execute(ctx context.Context, key *ecdsa.PrivateKey, utx *order.UnsignedTx) ExecResult {
	from := crypto.PubkeyToAddress(key.PublicKey)
	lock := e.walletLock(from)
	lock.Lock()
	defer lock.Unlock()

	to := common.HexToAddress(utx.To)
	value, ok := new(big.Int).SetString(utx.Value, 10)
	if !ok {
		return ExecResult{Success: false, Err: fmt.Sprintf("malformed tx value %q", utx.Value)}
	}
	data, err := hexutil.Decode(utx.Data)
	if err != nil {
		return ExecResult{Success: false, Err: fmt.Sprintf("malformed tx data: %v", err)}
	}

	signed, err := e.signTx(ctx, key, from, to, value, data)
	if err != nil {
		return ExecResult{Success: false, Err: err.Error()}
	}
	if err := e.chain.Eth().SendTransaction(ctx, signed); err != nil {
		return ExecResult{Success: false, Err: fmt.Sprintf("broadcast: %v", err)}
	}
	hash := signed.Hash()
	e.log.Infow("tx_broadcast", "hash", hash.Hex(), "from", from.Hex(), "to", to.Hex())

	waitCtx, cancel := context.WithTimeout(ctx, e.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, e.chain.Eth(), signed)
	if err != nil {
		// Sent but unconfirmed within the window; report optimistically
		// with the hash. Callers must treat this as unconfirmed.
		e.log.Warnw("receipt_wait_timeout", "hash", hash.Hex())
		return ExecResult{TxHash: hash, Success: true, Confirmed: false}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ExecResult{TxHash: hash, Success: false, Confirmed: true, Err: "transaction reverted"}
	}
	return ExecResult{TxHash: hash, Success: true, Confirmed: true}
}

// EnsureApproval checks the router's allowance on token and, when
// insufficient, submits a max-allowance approval and waits for it to
// confirm. Max allowance amortizes the cost over every future sell.
func (e *Executor) EnsureApproval(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, required *big.Int) ApprovalResult {
	from := crypto.PubkeyToAddress(key.PublicKey)

	allowance, err := e.chain.Allowance(ctx, token, from, spender)
	if err != nil {
		return ApprovalResult{Approved: false, Err: fmt.Sprintf("read allowance: %v", err)}
	}
	if allowance.Cmp(required) >= 0 {
		return ApprovalResult{Approved: true}
	}

	lock := e.walletLock(from)
	lock.Lock()
	defer lock.Unlock()

	data, err := chain.ERC20ABI.Pack("approve", spender, math.MaxBig256)
	if err != nil {
		return ApprovalResult{Approved: false, Err: fmt.Sprintf("encode approve: %v", err)}
	}
	signed, err := e.signTx(ctx, key, from, token, new(big.Int), data)
	if err != nil {
		return ApprovalResult{Approved: false, Err: err.Error()}
	}
	if err := e.chain.Eth().SendTransaction(ctx, signed); err != nil {
		return ApprovalResult{Approved: false, Err: fmt.Sprintf("broadcast approve: %v", err)}
	}
	hash := signed.Hash()
	e.log.Infow("approval_broadcast", "hash", hash.Hex(), "token", token.Hex(), "spender", spender.Hex())

	waitCtx, cancel := context.WithTimeout(ctx, e.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, e.chain.Eth(), signed)
	if err != nil {
		return ApprovalResult{Approved: false, TxHash: hash, Err: "approval receipt wait timed out"}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ApprovalResult{Approved: false, TxHash: hash, Err: "approval transaction reverted"}
	}
	return ApprovalResult{Approved: true, TxHash: hash}
}

func (e *Executor) signTx(ctx context.Context, key *ecdsa.PrivateKey, from, to common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	eth := e.chain.Eth()
	nonce, err := eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gas, err := eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		// Estimation failing usually means the call would revert.
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chain.ChainID()), key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return signed, nil
}
