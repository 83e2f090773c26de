package monitor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/monfun/agent/pkg/chain"
)

// Decode helpers for multicall sub-reads. Every helper treats a failed
// or malformed sub-read as a miss so the caller keeps its defaults.

func mustPack(a abi.ABI, method string, args ...interface{}) []byte {
	data, err := a.Pack(method, args...)
	if err != nil {
		panic(err)
	}
	return data
}

func unpackString(a abi.ABI, method string, r chain.CallResult) (string, bool) {
	if !r.Success || len(r.ReturnData) == 0 {
		return "", false
	}
	vals, err := a.Unpack(method, r.ReturnData)
	if err != nil || len(vals) == 0 {
		return "", false
	}
	s, ok := vals[0].(string)
	return s, ok && s != ""
}

func unpackBool(a abi.ABI, method string, r chain.CallResult) (bool, bool) {
	if !r.Success || len(r.ReturnData) == 0 {
		return false, false
	}
	vals, err := a.Unpack(method, r.ReturnData)
	if err != nil || len(vals) == 0 {
		return false, false
	}
	b, ok := vals[0].(bool)
	return b, ok
}

func unpackBig(a abi.ABI, method string, r chain.CallResult) (*big.Int, bool) {
	if !r.Success || len(r.ReturnData) == 0 {
		return nil, false
	}
	vals, err := a.Unpack(method, r.ReturnData)
	if err != nil || len(vals) == 0 {
		return nil, false
	}
	v, ok := vals[0].(*big.Int)
	return v, ok
}

func unpackQuote(r chain.CallResult) (common.Address, *big.Int, bool) {
	if !r.Success || len(r.ReturnData) == 0 {
		return common.Address{}, nil, false
	}
	vals, err := chain.LensABI.Unpack("getAmountOut", r.ReturnData)
	if err != nil || len(vals) < 2 {
		return common.Address{}, nil, false
	}
	router, rok := vals[0].(common.Address)
	amountOut, aok := vals[1].(*big.Int)
	if !rok || !aok {
		return common.Address{}, nil, false
	}
	return router, amountOut, true
}
