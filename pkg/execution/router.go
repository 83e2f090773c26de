package execution

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/monfun/agent/pkg/chain"
)

type RouterType string

const (
	RouterBondingCurve RouterType = "bonding_curve"
	RouterDex          RouterType = "dex"
)

type RouterInfo struct {
	Address common.Address
	Type    RouterType
}

// SelectRouter classifies a venue address returned by the lens.
// Anything that is not the known DEX router is treated as the bonding
// curve; common.Address comparison makes the match case-insensitive.
func SelectRouter(routerAddress common.Address, contracts chain.Contracts) RouterInfo {
	t := RouterBondingCurve
	if routerAddress == contracts.DexRouter {
		t = RouterDex
	}
	return RouterInfo{Address: routerAddress, Type: t}
}
