package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contracts holds the venue addresses the agent talks to. The lens is a
// read-aggregation contract; the two routers are the only write targets.
type Contracts struct {
	Lens              common.Address
	BondingCurveRouter common.Address
	DexRouter         common.Address
	Multicall3        common.Address
}

// RouterFor returns the write target for a router classification.
func (c Contracts) RouterFor(isDex bool) common.Address {
	if isDex {
		return c.DexRouter
	}
	return c.BondingCurveRouter
}

const lensABIJSON = `[
 {"name":"getAmountOut","type":"function","stateMutability":"view",
  "inputs":[{"name":"token","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"isBuy","type":"bool"}],
  "outputs":[{"name":"router","type":"address"},{"name":"amountOut","type":"uint256"}]},
 {"name":"isGraduated","type":"function","stateMutability":"view",
  "inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"name":"isLocked","type":"function","stateMutability":"view",
  "inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"name":"getProgress","type":"function","stateMutability":"view",
  "inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc20ABIJSON = `[
 {"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
 {"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
 {"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"name":"balanceOf","type":"function","stateMutability":"view",
  "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"name":"allowance","type":"function","stateMutability":"view",
  "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"name":"approve","type":"function","stateMutability":"nonpayable",
  "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]}
]`

// Both routers expose the same buy/sell shape; the single tuple argument
// mirrors the on-chain params struct.
const routerABIJSON = `[
 {"name":"buy","type":"function","stateMutability":"payable",
  "inputs":[{"name":"params","type":"tuple","components":[
    {"name":"amountOutMin","type":"uint256"},
    {"name":"token","type":"address"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}]}],
  "outputs":[]},
 {"name":"sell","type":"function","stateMutability":"nonpayable",
  "inputs":[{"name":"params","type":"tuple","components":[
    {"name":"amountIn","type":"uint256"},
    {"name":"amountOutMin","type":"uint256"},
    {"name":"token","type":"address"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}]}],
  "outputs":[]}
]`

const multicall3ABIJSON = `[
 {"name":"aggregate3","type":"function","stateMutability":"payable",
  "inputs":[{"name":"calls","type":"tuple[]","components":[
    {"name":"target","type":"address"},
    {"name":"allowFailure","type":"bool"},
    {"name":"callData","type":"bytes"}]}],
  "outputs":[{"name":"returnData","type":"tuple[]","components":[
    {"name":"success","type":"bool"},
    {"name":"returnData","type":"bytes"}]}]}
]`

var (
	LensABI       = mustABI(lensABIJSON)
	ERC20ABI      = mustABI(erc20ABIJSON)
	RouterABI     = mustABI(routerABIJSON)
	Multicall3ABI = mustABI(multicall3ABIJSON)
)

func mustABI(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic(err)
	}
	return parsed
}
