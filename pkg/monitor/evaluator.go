package monitor

import (
	"fmt"
	"math/big"
	"time"

	"github.com/monfun/agent/pkg/order"
)

// EvalResult is the outcome of one order evaluation against one token
// snapshot. Exactly one of Expired/Skip/Abort/Triggered is set for a
// decisive result; all false means "not triggered, keep waiting".
type EvalResult struct {
	Expired   bool
	Skip      bool // snapshot unusable this cycle, no judgement made
	Abort     bool // per-cycle safety veto, order stays active
	Triggered bool
	Reason    string

	CurrentPrice *big.Int
}

var bpsDenom = big.NewInt(10000)

// Evaluate runs an order's trigger against a token snapshot. Pure and
// deterministic: no I/O, no clock reads beyond the now argument, so
// identical inputs always produce identical results.
func Evaluate(o *order.Order, state *TokenChainState, now time.Time) EvalResult {
	if !now.Before(o.ExpiresAt) {
		return EvalResult{Expired: true, Reason: "expired"}
	}
	if state.Unavailable() {
		return EvalResult{Skip: true, Reason: "state unavailable"}
	}

	if o.Direction == order.Buy {
		if state.IsLocked {
			return EvalResult{Abort: true, Reason: "token is locked, buys are rejected"}
		}
		if state.IsGraduated && !survivesGraduation(o.TriggerType) {
			return EvalResult{Abort: true, Reason: fmt.Sprintf("token graduated, %s no longer applies", o.TriggerType)}
		}
	}

	price := state.PriceFor(o.Direction)
	res := EvalResult{CurrentPrice: price}

	switch o.TriggerType {
	case order.TriggerPriceBelow:
		if price.Cmp(o.TriggerValueBig()) <= 0 {
			res.Triggered = true
			res.Reason = fmt.Sprintf("price %s <= %s", order.FormatWei(price), order.FormatWei(o.TriggerValueBig()))
		}
	case order.TriggerPriceAbove:
		if price.Cmp(o.TriggerValueBig()) >= 0 {
			res.Triggered = true
			res.Reason = fmt.Sprintf("price %s >= %s", order.FormatWei(price), order.FormatWei(o.TriggerValueBig()))
		}
	case order.TriggerProgressBelow:
		if state.Progress.Cmp(o.TriggerValueBig()) <= 0 {
			res.Triggered = true
			res.Reason = fmt.Sprintf("progress %s <= %s", order.FormatProgress(state.Progress), order.FormatProgress(o.TriggerValueBig()))
		}
	case order.TriggerProgressAbove:
		if state.Progress.Cmp(o.TriggerValueBig()) >= 0 {
			res.Triggered = true
			res.Reason = fmt.Sprintf("progress %s >= %s", order.FormatProgress(state.Progress), order.FormatProgress(o.TriggerValueBig()))
		}
	case order.TriggerPostGraduation:
		if state.IsGraduated {
			res.Triggered = true
			res.Reason = "token graduated to DEX"
		}
	case order.TriggerMcapBelow:
		mcap := marketCapWei(price, state.TotalSupply)
		if mcap.Cmp(o.TriggerValueBig()) <= 0 {
			res.Triggered = true
			res.Reason = fmt.Sprintf("market cap %s <= %s", order.FormatWei(mcap), order.FormatWei(o.TriggerValueBig()))
		}
	case order.TriggerMcapAbove:
		mcap := marketCapWei(price, state.TotalSupply)
		if mcap.Cmp(o.TriggerValueBig()) >= 0 {
			res.Triggered = true
			res.Reason = fmt.Sprintf("market cap %s >= %s", order.FormatWei(mcap), order.FormatWei(o.TriggerValueBig()))
		}
	case order.TriggerMcapBelowUSD, order.TriggerMcapAboveUSD:
		evalUSDMcap(o, state, &res)
	case order.TriggerTrailingStop:
		peak := EffectivePeak(o, price)
		threshold := scaleBps(peak, -o.TriggerValueBig().Int64())
		if price.Cmp(threshold) <= 0 {
			res.Triggered = true
			res.Reason = fmt.Sprintf("price %s fell to %s, %.2f%% below peak %s",
				order.FormatWei(price), order.FormatWei(threshold),
				float64(o.TriggerValueBig().Int64())/100, order.FormatWei(peak))
		}
	case order.TriggerTakeProfit:
		threshold := scaleBps(o.ReferencePriceBig(), o.TriggerValueBig().Int64())
		if price.Cmp(threshold) >= 0 {
			res.Triggered = true
			res.Reason = fmt.Sprintf("price %s reached take-profit %s", order.FormatWei(price), order.FormatWei(threshold))
		}
	case order.TriggerStopLoss:
		threshold := scaleBps(o.ReferencePriceBig(), -o.TriggerValueBig().Int64())
		if price.Cmp(threshold) <= 0 {
			res.Triggered = true
			res.Reason = fmt.Sprintf("price %s hit stop-loss %s", order.FormatWei(price), order.FormatWei(threshold))
		}
	case order.TriggerDCAInterval:
		if o.LastExecutedAt == nil {
			res.Triggered = true
			res.Reason = "first DCA execution"
		} else if elapsed := now.Sub(*o.LastExecutedAt); elapsed >= time.Duration(o.TriggerValueBig().Int64())*time.Millisecond {
			res.Triggered = true
			res.Reason = fmt.Sprintf("DCA interval elapsed (%s since last execution)", elapsed.Round(time.Second))
		}
	case order.TriggerPriceDropPct:
		threshold := scaleBps(o.ReferencePriceBig(), -o.TriggerValueBig().Int64())
		if price.Cmp(threshold) <= 0 {
			res.Triggered = true
			res.Reason = fmt.Sprintf("price %s dropped %.2f%% below reference %s",
				order.FormatWei(price), float64(o.TriggerValueBig().Int64())/100, order.FormatWei(o.ReferencePriceBig()))
		}
	default:
		res.Reason = fmt.Sprintf("unknown trigger type %s", o.TriggerType)
	}
	return res
}

// survivesGraduation lists the BUY triggers that remain meaningful after
// a token leaves the bonding curve.
func survivesGraduation(t order.TriggerType) bool {
	switch t {
	case order.TriggerPostGraduation, order.TriggerMcapBelow, order.TriggerDCAInterval, order.TriggerPriceDropPct:
		return true
	}
	return false
}

// EffectivePeak resolves the trailing-stop high-water mark: the ratcheted
// peak when recorded, else the creation-time reference, else the current
// price (first observation seeds the peak).
func EffectivePeak(o *order.Order, currentPrice *big.Int) *big.Int {
	if o.PeakPrice != "" {
		return o.PeakPriceBig()
	}
	if o.ReferencePrice != "" {
		return o.ReferencePriceBig()
	}
	return currentPrice
}

func marketCapWei(price, totalSupply *big.Int) *big.Int {
	mcap := new(big.Int).Mul(price, totalSupply)
	return mcap.Div(mcap, order.OneToken())
}

// evalUSDMcap compares an aggregator-priced market cap against a whole-
// dollar threshold. Decimal USD prices make integer math impossible, so
// this is the one comparison done in rationals. Without market data the
// trigger simply never fires.
func evalUSDMcap(o *order.Order, state *TokenChainState, res *EvalResult) {
	if state.Market == nil || state.Market.PriceUSD == "" {
		res.Reason = "no market data for USD trigger"
		return
	}
	priceUSD, ok := new(big.Rat).SetString(state.Market.PriceUSD)
	if !ok {
		res.Reason = "unparseable aggregator USD price"
		return
	}
	supply := new(big.Rat).SetFrac(state.TotalSupply, order.OneToken())
	mcapUSD := new(big.Rat).Mul(priceUSD, supply)
	threshold := new(big.Rat).SetInt(o.TriggerValueBig())

	cmp := mcapUSD.Cmp(threshold)
	if o.TriggerType == order.TriggerMcapBelowUSD && cmp <= 0 {
		res.Triggered = true
		res.Reason = fmt.Sprintf("market cap $%s <= $%s", mcapUSD.FloatString(2), o.TriggerValue)
	}
	if o.TriggerType == order.TriggerMcapAboveUSD && cmp >= 0 {
		res.Triggered = true
		res.Reason = fmt.Sprintf("market cap $%s >= $%s", mcapUSD.FloatString(2), o.TriggerValue)
	}
}

// scaleBps computes base * (10000 + deltaBps) / 10000 in integer math.
func scaleBps(base *big.Int, deltaBps int64) *big.Int {
	v := new(big.Int).Mul(base, big.NewInt(10000+deltaBps))
	return v.Div(v, bpsDenom)
}
