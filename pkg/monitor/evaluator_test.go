package monitor

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/monfun/agent/pkg/market"
	"github.com/monfun/agent/pkg/order"
)

var evalNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// milliEther returns n/1000 whole units, for sub-unit prices like 0.001.
func milliEther(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e15))
}

func testOrder(dir order.Direction, tt order.TriggerType, triggerValue string) *order.Order {
	return &order.Order{
		ID:             "ord-1",
		WalletAddress:  "0x00000000000000000000000000000000000000ee",
		TokenAddress:   "0x0000000000000000000000000000000000000011",
		Direction:      dir,
		InputAmount:    ether(1).String(),
		TriggerType:    tt,
		TriggerValue:   triggerValue,
		MaxSlippageBps: 300,
		ExpiresAt:      evalNow.Add(24 * time.Hour),
		Status:         order.StatusActive,
	}
}

// testState builds a healthy snapshot where 1 native buys 1000 tokens
// (price 0.001 native per token, both directions symmetric).
func testState() *TokenChainState {
	return &TokenChainState{
		TokenAddress:  "0x0000000000000000000000000000000000000011",
		Name:          "Test Token",
		Symbol:        "TST",
		Progress:      big.NewInt(5000),
		TotalSupply:   ether(1_000_000),
		BuyAmountOut:  ether(1000),
		SellAmountOut: milliEther(1),
		BuyRouter:     common.HexToAddress("0xbb"),
		SellRouter:    common.HexToAddress("0xbb"),
	}
}

func TestEvaluatePriceBelowBoundary(t *testing.T) {
	state := testState() // price 0.001

	tests := []struct {
		name         string
		triggerValue *big.Int
		triggered    bool
	}{
		{"above current price", milliEther(2), true},
		{"exactly at current price", milliEther(1), true},
		{"below current price", big.NewInt(5e14), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOrder(order.Buy, order.TriggerPriceBelow, tt.triggerValue.String())
			res := Evaluate(o, state, evalNow)
			if res.Triggered != tt.triggered {
				t.Errorf("triggered = %v, want %v (price %s vs trigger %s)",
					res.Triggered, tt.triggered, res.CurrentPrice, tt.triggerValue)
			}
		})
	}
}

func TestEvaluatePriceDirectionality(t *testing.T) {
	// BUY prices off the buy probe, SELL off the sell probe.
	state := testState()
	state.SellAmountOut = big.NewInt(8e14) // selling nets 0.0008, worse than the 0.001 buy side

	buy := Evaluate(testOrder(order.Buy, order.TriggerPriceBelow, "0"), state, evalNow)
	if buy.CurrentPrice.Cmp(milliEther(1)) != 0 {
		t.Errorf("buy price = %s, want %s", buy.CurrentPrice, milliEther(1))
	}
	sell := Evaluate(testOrder(order.Sell, order.TriggerPriceBelow, "0"), state, evalNow)
	if sell.CurrentPrice.Cmp(big.NewInt(8e14)) != 0 {
		t.Errorf("sell price = %s, want 8e14", sell.CurrentPrice)
	}
}

func TestEvaluateExpiredNeverTriggers(t *testing.T) {
	state := testState()
	o := testOrder(order.Buy, order.TriggerPriceBelow, ether(1).String()) // would trigger on price
	o.ExpiresAt = evalNow.Add(-time.Minute)

	res := Evaluate(o, state, evalNow)
	if !res.Expired || res.Triggered {
		t.Errorf("got %+v, want expired and not triggered", res)
	}

	// Boundary: expiry at exactly now counts as expired.
	o.ExpiresAt = evalNow
	if res := Evaluate(o, state, evalNow); !res.Expired {
		t.Error("expiresAt == now should expire")
	}
}

func TestEvaluateUnavailableStateSkips(t *testing.T) {
	state := &TokenChainState{
		Name:          "Unknown",
		Symbol:        "???",
		Progress:      new(big.Int),
		TotalSupply:   new(big.Int),
		BuyAmountOut:  new(big.Int),
		SellAmountOut: new(big.Int),
	}
	res := Evaluate(testOrder(order.Buy, order.TriggerPriceBelow, ether(1).String()), state, evalNow)
	if !res.Skip || res.Triggered || res.Abort {
		t.Errorf("got %+v, want skip only", res)
	}
}

func TestEvaluateLockedToken(t *testing.T) {
	state := testState()
	state.IsLocked = true

	for _, tt := range []order.TriggerType{order.TriggerPriceBelow, order.TriggerPostGraduation, order.TriggerDCAInterval} {
		if res := Evaluate(testOrder(order.Buy, tt, "100"), state, evalNow); !res.Abort {
			t.Errorf("BUY %s on locked token: want abort, got %+v", tt, res)
		}
	}
	// SELL is never gated on lock.
	o := testOrder(order.Sell, order.TriggerPriceBelow, ether(1).String())
	if res := Evaluate(o, state, evalNow); res.Abort {
		t.Errorf("SELL on locked token should not abort: %+v", res)
	}
}

func TestEvaluateGraduatedGates(t *testing.T) {
	state := testState()
	state.IsGraduated = true

	if res := Evaluate(testOrder(order.Buy, order.TriggerPriceBelow, ether(1).String()), state, evalNow); !res.Abort {
		t.Errorf("graduated PRICE_BELOW BUY: want abort, got %+v", res)
	}
	survivors := []order.TriggerType{
		order.TriggerPostGraduation,
		order.TriggerMcapBelow,
		order.TriggerDCAInterval,
		order.TriggerPriceDropPct,
	}
	for _, tt := range survivors {
		o := testOrder(order.Buy, tt, "1")
		o.ReferencePrice = milliEther(1).String()
		if res := Evaluate(o, state, evalNow); res.Abort {
			t.Errorf("graduated BUY %s should survive graduation, got abort: %s", tt, res.Reason)
		}
	}
	// SELL orders are never gated on graduation.
	o := testOrder(order.Sell, order.TriggerPriceAbove, "0")
	if res := Evaluate(o, state, evalNow); res.Abort {
		t.Errorf("graduated SELL should not abort: %+v", res)
	}
}

func TestEvaluateProgressThresholds(t *testing.T) {
	state := testState()
	state.Progress = big.NewInt(7500)

	tests := []struct {
		tt        order.TriggerType
		value     string
		triggered bool
	}{
		{order.TriggerProgressAbove, "7000", true},
		{order.TriggerProgressAbove, "7500", true},
		{order.TriggerProgressAbove, "8000", false},
		{order.TriggerProgressBelow, "8000", true},
		{order.TriggerProgressBelow, "7500", true},
		{order.TriggerProgressBelow, "7000", false},
	}
	for _, tt := range tests {
		res := Evaluate(testOrder(order.Sell, tt.tt, tt.value), state, evalNow)
		if res.Triggered != tt.triggered {
			t.Errorf("%s at %s: triggered = %v, want %v", tt.tt, tt.value, res.Triggered, tt.triggered)
		}
	}
}

func TestEvaluatePostGraduation(t *testing.T) {
	state := testState()
	o := testOrder(order.Buy, order.TriggerPostGraduation, "0")

	if res := Evaluate(o, state, evalNow); res.Triggered {
		t.Error("not graduated, should not trigger")
	}
	state.IsGraduated = true
	if res := Evaluate(o, state, evalNow); !res.Triggered {
		t.Error("graduated, should trigger")
	}
}

func TestEvaluateMcapNative(t *testing.T) {
	// price 0.001 x 1M supply = 1000 native mcap.
	state := testState()

	tests := []struct {
		tt        order.TriggerType
		value     *big.Int
		triggered bool
	}{
		{order.TriggerMcapAbove, ether(500), true},
		{order.TriggerMcapAbove, ether(1000), true},
		{order.TriggerMcapAbove, ether(2000), false},
		{order.TriggerMcapBelow, ether(2000), true},
		{order.TriggerMcapBelow, ether(500), false},
	}
	for _, tt := range tests {
		res := Evaluate(testOrder(order.Sell, tt.tt, tt.value.String()), state, evalNow)
		if res.Triggered != tt.triggered {
			t.Errorf("%s at %s: triggered = %v, want %v", tt.tt, tt.value, res.Triggered, tt.triggered)
		}
	}
}

func TestEvaluateTrailingStop(t *testing.T) {
	state := testState()
	peak := milliEther(1) // 0.001, threshold at 2000bps = 0.0008

	tests := []struct {
		name      string
		sellOut   *big.Int // sell probe = current price
		triggered bool
	}{
		{"price below threshold", big.NewInt(7e14), true},
		{"price exactly at threshold", big.NewInt(8e14), true},
		{"price above threshold", big.NewInt(9e14), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOrder(order.Sell, order.TriggerTrailingStop, "2000")
			o.PeakPrice = peak.String()
			state.SellAmountOut = tt.sellOut
			res := Evaluate(o, state, evalNow)
			if res.Triggered != tt.triggered {
				t.Errorf("triggered = %v, want %v (price %s, peak %s)", res.Triggered, tt.triggered, res.CurrentPrice, peak)
			}
		})
	}
}

func TestEvaluateTrailingStopFallsBackToReference(t *testing.T) {
	state := testState()
	state.SellAmountOut = big.NewInt(7e14)

	o := testOrder(order.Sell, order.TriggerTrailingStop, "2000")
	o.ReferencePrice = milliEther(1).String() // no peak recorded yet
	if res := Evaluate(o, state, evalNow); !res.Triggered {
		t.Errorf("reference-anchored trailing stop should trigger: %+v", res)
	}
}

func TestEvaluateTakeProfitStopLoss(t *testing.T) {
	state := testState()
	ref := milliEther(1)

	// TAKE_PROFIT 5000bps: threshold 0.0015.
	tp := testOrder(order.Sell, order.TriggerTakeProfit, "5000")
	tp.ReferencePrice = ref.String()
	state.SellAmountOut = big.NewInt(15e14)
	if res := Evaluate(tp, state, evalNow); !res.Triggered {
		t.Errorf("take profit at threshold should trigger: %+v", res)
	}
	state.SellAmountOut = big.NewInt(14e14)
	if res := Evaluate(tp, state, evalNow); res.Triggered {
		t.Error("take profit below threshold should not trigger")
	}

	// STOP_LOSS 3000bps: threshold 0.0007.
	sl := testOrder(order.Sell, order.TriggerStopLoss, "3000")
	sl.ReferencePrice = ref.String()
	state.SellAmountOut = big.NewInt(7e14)
	if res := Evaluate(sl, state, evalNow); !res.Triggered {
		t.Errorf("stop loss at threshold should trigger: %+v", res)
	}
	state.SellAmountOut = big.NewInt(71e13)
	if res := Evaluate(sl, state, evalNow); res.Triggered {
		t.Error("stop loss above threshold should not trigger")
	}
}

func TestEvaluateDCAInterval(t *testing.T) {
	state := testState()
	hourMs := "3600000"

	o := testOrder(order.Buy, order.TriggerDCAInterval, hourMs)
	if res := Evaluate(o, state, evalNow); !res.Triggered {
		t.Error("never-executed DCA should always trigger")
	}

	recent := evalNow.Add(-30 * time.Minute)
	o.LastExecutedAt = &recent
	if res := Evaluate(o, state, evalNow); res.Triggered {
		t.Error("30min since last with 1h interval should not trigger")
	}

	stale := evalNow.Add(-2 * time.Hour)
	o.LastExecutedAt = &stale
	if res := Evaluate(o, state, evalNow); !res.Triggered {
		t.Error("2h since last with 1h interval should trigger")
	}
}

func TestEvaluatePriceDropPct(t *testing.T) {
	state := testState()
	o := testOrder(order.Buy, order.TriggerPriceDropPct, "5000") // buy the 50% dip
	o.ReferencePrice = milliEther(2).String()                    // threshold 0.001

	state.BuyAmountOut = ether(1000) // price 0.001, exactly at threshold
	if res := Evaluate(o, state, evalNow); !res.Triggered {
		t.Errorf("50%% drop reached, should trigger: %+v", res)
	}
	state.BuyAmountOut = ether(900) // price ~0.00111
	if res := Evaluate(o, state, evalNow); res.Triggered {
		t.Error("drop not reached, should not trigger")
	}
}

func TestEvaluateUnknownTriggerNeverFires(t *testing.T) {
	state := testState()
	o := testOrder(order.Sell, order.TriggerType("LUNAR_PHASE"), "1")
	res := Evaluate(o, state, evalNow)
	if res.Triggered || res.Abort || res.Reason == "" {
		t.Errorf("unknown trigger: got %+v, want inert result naming the type", res)
	}
}

func TestEvaluateReferentialTransparency(t *testing.T) {
	state := testState()
	o := testOrder(order.Sell, order.TriggerTrailingStop, "2000")
	o.PeakPrice = milliEther(1).String()

	first := Evaluate(o, state, evalNow)
	for i := 0; i < 5; i++ {
		got := Evaluate(o, state, evalNow)
		if got.Triggered != first.Triggered || got.Abort != first.Abort ||
			got.Reason != first.Reason || got.CurrentPrice.Cmp(first.CurrentPrice) != 0 {
			t.Fatalf("evaluation %d differed: %+v vs %+v", i, got, first)
		}
	}
}

func TestEvaluateUSDMcap(t *testing.T) {
	state := testState()

	o := testOrder(order.Sell, order.TriggerMcapAboveUSD, "5000")
	if res := Evaluate(o, state, evalNow); res.Triggered {
		t.Error("USD trigger without market data should never fire")
	}

	// $0.01 x 1M supply = $10,000 mcap.
	state.Market = &market.Summary{PriceUSD: "0.01"}
	if res := Evaluate(o, state, evalNow); !res.Triggered {
		t.Errorf("mcap $10000 >= $5000 should trigger: %+v", res)
	}

	below := testOrder(order.Sell, order.TriggerMcapBelowUSD, "5000")
	if res := Evaluate(below, state, evalNow); res.Triggered {
		t.Error("mcap $10000 <= $5000 should not trigger")
	}
}
