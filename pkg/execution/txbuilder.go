package execution

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/monfun/agent/pkg/chain"
	"github.com/monfun/agent/pkg/order"
	"github.com/monfun/agent/pkg/util"
)

type buyParams struct {
	AmountOutMin *big.Int
	Token        common.Address
	To           common.Address
	Deadline     *big.Int
}

type sellParams struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Token        common.Address
	To           common.Address
	Deadline     *big.Int
}

// TxBuilder encodes venue calls into unsigned transactions. Every call
// embeds an absolute deadline so a stuck transaction dies in the
// mempool instead of executing at a stale price.
type TxBuilder struct {
	contracts chain.Contracts
	chainID   int64
	deadline  int64 // seconds
	clock     util.Clock
}

func NewTxBuilder(contracts chain.Contracts, chainID int64, deadlineSeconds int64, clock util.Clock) *TxBuilder {
	return &TxBuilder{contracts: contracts, chainID: chainID, deadline: deadlineSeconds, clock: clock}
}

func (b *TxBuilder) txDeadline() *big.Int {
	return big.NewInt(b.clock.Now().Unix() + b.deadline)
}

// BuildUnsignedTx encodes one of the four venue paths
// (buy/sell x bonding-curve/dex). BUY carries the input as native
// value; SELL moves tokens via allowance and carries zero value.
func (b *TxBuilder) BuildUnsignedTx(direction order.Direction, routerType RouterType, inputAmount, amountOutMin *big.Int, token, recipient common.Address) (*order.UnsignedTx, error) {
	router := b.contracts.RouterFor(routerType == RouterDex)

	var (
		data  []byte
		value = new(big.Int)
		err   error
	)
	if direction == order.Buy {
		data, err = chain.RouterABI.Pack("buy", buyParams{
			AmountOutMin: amountOutMin,
			Token:        token,
			To:           recipient,
			Deadline:     b.txDeadline(),
		})
		value = inputAmount
	} else {
		data, err = chain.RouterABI.Pack("sell", sellParams{
			AmountIn:     inputAmount,
			AmountOutMin: amountOutMin,
			Token:        token,
			To:           recipient,
			Deadline:     b.txDeadline(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", direction, err)
	}

	return &order.UnsignedTx{
		To:      router.Hex(),
		Data:    hexutil.Encode(data),
		Value:   value.String(),
		ChainID: b.chainID,
	}, nil
}
