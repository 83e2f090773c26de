package execution

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/monfun/agent/pkg/chain"
)

func testContracts() chain.Contracts {
	return chain.Contracts{
		Lens:               common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		BondingCurveRouter: common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		DexRouter:          common.HexToAddress("0x00000000000000000000000000000000000000cc"),
		Multicall3:         common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11"),
	}
}

func TestSelectRouter(t *testing.T) {
	contracts := testContracts()

	tests := []struct {
		name string
		addr string
		want RouterType
	}{
		{"dex router", contracts.DexRouter.Hex(), RouterDex},
		{"dex router lowercased", "0x00000000000000000000000000000000000000cc", RouterDex},
		{"bonding curve router", contracts.BondingCurveRouter.Hex(), RouterBondingCurve},
		{"unknown defaults to bonding curve", "0x1234567890123456789012345678901234567890", RouterBondingCurve},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectRouter(common.HexToAddress(tt.addr), contracts)
			if got.Type != tt.want {
				t.Errorf("SelectRouter(%s).Type = %s, want %s", tt.addr, got.Type, tt.want)
			}
			if got.Address != common.HexToAddress(tt.addr) {
				t.Errorf("SelectRouter(%s).Address = %s", tt.addr, got.Address.Hex())
			}
		})
	}
}
