package monitor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/monfun/agent/pkg/advisor"
	"github.com/monfun/agent/pkg/chain"
	"github.com/monfun/agent/pkg/events"
	"github.com/monfun/agent/pkg/execution"
	"github.com/monfun/agent/pkg/order"
	"github.com/monfun/agent/pkg/util"
	"github.com/monfun/agent/pkg/wallet"
)

// OrderRepo is the order persistence surface the scheduler mutates.
type OrderRepo interface {
	ActiveOrders() ([]*order.Order, error)
	UpdateStatus(id string, status order.Status, txHash, routerUsed string) error
	UpdatePeakPrice(id string, peak string) error
	// ReactivateDCA re-arms a recurring order: back to ACTIVE with the
	// execution timestamp recorded as the next interval anchor.
	ReactivateDCA(id string, executedAt time.Time, txHash, routerUsed string) error
}

// LogRepo appends to the per-order audit trail.
type LogRepo interface {
	AppendLog(l *order.ExecutionLog) error
}

type StateSource interface {
	FetchBatch(ctx context.Context, tokenAddresses []string) map[string]*TokenChainState
}

type QuoteSource interface {
	FetchFreshQuote(ctx context.Context, tokenAddress string, amountIn *big.Int, direction order.Direction) (*FreshQuote, error)
}

// WalletSource resolves a user wallet to its delegated agent identity.
type WalletSource interface {
	Get(walletAddress string) (*wallet.Account, error)
	SigningKey(walletAddress string) (*ecdsa.PrivateKey, error)
}

type BalanceSource interface {
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

type ExecutorSource interface {
	Execute(ctx context.Context, key *ecdsa.PrivateKey, utx *order.UnsignedTx) execution.ExecResult
	EnsureApproval(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, required *big.Int) execution.ApprovalResult
}

type TxBuilder interface {
	BuildUnsignedTx(direction order.Direction, routerType execution.RouterType, inputAmount, amountOutMin *big.Int, token, recipient common.Address) (*order.UnsignedTx, error)
}

type AdvisorSource interface {
	Explain(ctx context.Context, walletAddress string, t advisor.TradeContext) (string, string)
	RiskCheck(ctx context.Context, walletAddress string, t advisor.TradeContext) advisor.RiskVerdict
}

// Deps wires the scheduler's collaborators. Everything is an interface
// so ticks run against fakes in tests.
type Deps struct {
	Orders    OrderRepo
	Logs      LogRepo
	States    StateSource
	Quotes    QuoteSource
	Wallets   WalletSource
	Balances  BalanceSource
	Executor  ExecutorSource
	Builder   TxBuilder
	Advisor   AdvisorSource
	Bus       *events.Bus
	Contracts chain.Contracts
	Clock     util.Clock
	Log       *zap.SugaredLogger
}

// Scheduler drives the evaluation loop on a fixed interval. Ticks are
// single-flight: a tick still running suppresses the next one instead of
// overlapping it.
type Scheduler struct {
	d              Deps
	interval       time.Duration
	riskConfidence float64
	cron           *cron.Cron
}

func NewScheduler(d Deps, interval time.Duration, riskConfidence float64) *Scheduler {
	return &Scheduler{d: d, interval: interval, riskConfidence: riskConfidence}
}

// Start schedules ticks and fires the first one immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	s.cron.Start()
	go s.Tick(ctx)
	s.d.Log.Infow("monitor_started", "interval", s.interval.String())
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.d.Log.Infow("monitor_stopped")
}

// Tick evaluates every active order against a fresh batch of token
// snapshots. Per-order failures are isolated; one bad order never takes
// the loop down.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.d.Clock.Now()

	orders, err := s.d.Orders.ActiveOrders()
	if err != nil {
		s.d.Log.Errorw("tick_load_orders_failed", "err", err)
		return
	}
	if len(orders) == 0 {
		return
	}

	tokens := make([]string, 0, len(orders))
	for _, o := range orders {
		tokens = append(tokens, o.TokenAddress)
	}
	states := s.d.States.FetchBatch(ctx, tokens)

	for _, o := range orders {
		s.processOrder(ctx, o, states[o.TokenAddress], now)
	}
}

func (s *Scheduler) processOrder(ctx context.Context, o *order.Order, state *TokenChainState, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.d.Log.Errorw("order_processing_panic", "order", o.ID, "panic", r)
		}
	}()

	if state == nil {
		s.d.Log.Debugw("order_skipped_no_state", "order", o.ID, "token", o.TokenAddress)
		return
	}

	res := Evaluate(o, state, now)
	switch {
	case res.Expired:
		s.expire(o, state, res)
	case res.Skip:
		s.d.Log.Debugw("order_skipped", "order", o.ID, "reason", res.Reason)
	case res.Abort:
		s.abort(o, state, res.CurrentPrice, res.Reason)
	case !res.Triggered:
		s.ratchetPeak(o, res.CurrentPrice)
	default:
		s.execute(ctx, o, state, res, now)
	}
}

func (s *Scheduler) expire(o *order.Order, state *TokenChainState, res EvalResult) {
	if err := s.d.Orders.UpdateStatus(o.ID, order.StatusExpired, "", ""); err != nil {
		s.d.Log.Errorw("order_expire_failed", "order", o.ID, "err", err)
		return
	}
	s.appendLog(o, order.LogExpire, state, res.CurrentPrice, res.Reason, nil)
	s.publish(events.OrderExpired, o, "", res.Reason)
	s.d.Log.Infow("order_expired", "order", o.ID)
}

// abort records a per-cycle veto. The order stays ACTIVE and is
// re-evaluated next tick.
func (s *Scheduler) abort(o *order.Order, state *TokenChainState, price *big.Int, reason string) {
	s.appendLog(o, order.LogAbort, state, price, reason, nil)
	s.publish(events.OrderAborted, o, "", reason)
	s.d.Log.Infow("order_aborted", "order", o.ID, "reason", reason)
}

// ratchetPeak advances a trailing stop's high-water mark when the
// current price exceeds it.
func (s *Scheduler) ratchetPeak(o *order.Order, price *big.Int) {
	if o.TriggerType != order.TriggerTrailingStop || price == nil || price.Sign() == 0 {
		return
	}
	seed := o.PeakPrice == "" && o.ReferencePrice == ""
	if seed || price.Cmp(EffectivePeak(o, price)) > 0 {
		if err := s.d.Orders.UpdatePeakPrice(o.ID, price.String()); err != nil {
			s.d.Log.Warnw("peak_ratchet_failed", "order", o.ID, "err", err)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, o *order.Order, state *TokenChainState, res EvalResult, now time.Time) {
	token := common.HexToAddress(o.TokenAddress)

	acc, err := s.d.Wallets.Get(o.WalletAddress)
	if err != nil {
		s.d.Log.Errorw("account_lookup_failed", "order", o.ID, "err", err)
		return
	}
	var key *ecdsa.PrivateKey
	if acc != nil {
		key, err = s.d.Wallets.SigningKey(o.WalletAddress)
		if err != nil {
			s.d.Log.Errorw("signing_key_unseal_failed", "order", o.ID, "err", err)
			return
		}
	}
	if acc == nil || key == nil || !acc.AutoExecute {
		s.triggerManual(o, state, res)
		return
	}
	agentAddr := common.HexToAddress(acc.AgentAddress)

	// SELL sizes against what the agent wallet actually holds; an order
	// placed for more than the balance sells the balance.
	inputAmount := o.InputAmountWei()
	if o.Direction == order.Sell {
		balance, err := s.d.Balances.TokenBalance(ctx, token, agentAddr)
		if err != nil || balance.Sign() == 0 {
			reason := "zero token balance, nothing to sell"
			s.appendLog(o, order.LogAbort, state, res.CurrentPrice, reason, nil)
			if err := s.d.Orders.UpdateStatus(o.ID, order.StatusFailed, "", ""); err != nil {
				s.d.Log.Errorw("order_fail_transition_failed", "order", o.ID, "err", err)
			}
			s.publish(events.OrderFailed, o, "", reason)
			return
		}
		if balance.Cmp(inputAmount) < 0 {
			s.d.Log.Infow("sell_amount_clamped", "order", o.ID,
				"requested", inputAmount.String(), "balance", balance.String())
			inputAmount = balance
		}
	}

	fresh, err := s.d.Quotes.FetchFreshQuote(ctx, o.TokenAddress, inputAmount, o.Direction)
	if err != nil || fresh.AmountOut.Sign() == 0 {
		s.abort(o, state, res.CurrentPrice, "zero fresh quote, venue cannot fill this size")
		return
	}

	router := execution.SelectRouter(fresh.Router, s.d.Contracts)
	if fresh.Router != s.d.Contracts.DexRouter && fresh.Router != s.d.Contracts.BondingCurveRouter {
		s.d.Log.Warnw("unknown_router_from_lens", "order", o.ID, "router", fresh.Router.Hex(),
			"assuming", string(router.Type))
	}

	// Expected output projects the per-cycle probe linearly to the real
	// size; the probe ignores depth, which is exactly the drift the
	// slippage guard exists to measure.
	expected := s.projectExpected(o.Direction, state, inputAmount)
	if expected.Sign() == 0 {
		expected = fresh.AmountOut
	}
	sc := execution.ValidateSlippage(expected, fresh.AmountOut, o.MaxSlippageBps)
	if !sc.Acceptable {
		s.abort(o, state, res.CurrentPrice,
			fmt.Sprintf("slippage %.2f%% exceeds max %.2f%%",
				float64(sc.ActualSlippageBps)/100, float64(o.MaxSlippageBps)/100))
		return
	}

	tradeCtx := s.tradeContext(o, state, res, inputAmount, fresh.AmountOut, router)

	if acc.RiskCheck {
		verdict := s.d.Advisor.RiskCheck(ctx, o.WalletAddress, tradeCtx)
		if !verdict.Execute && verdict.Confidence > s.riskConfidence {
			s.abort(o, state, res.CurrentPrice,
				fmt.Sprintf("risk check veto (%s, confidence %.2f): %s", verdict.Provider, verdict.Confidence, verdict.Reasoning))
			return
		}
	}

	if o.Direction == order.Sell {
		approval := s.d.Executor.EnsureApproval(ctx, key, token, router.Address, inputAmount)
		if !approval.Approved {
			s.abort(o, state, res.CurrentPrice, fmt.Sprintf("router approval failed: %s", approval.Err))
			return
		}
	}

	utx, err := s.d.Builder.BuildUnsignedTx(o.Direction, router.Type, inputAmount, sc.AmountOutMin, token, agentAddr)
	if err != nil {
		s.abort(o, state, res.CurrentPrice, fmt.Sprintf("transaction encoding failed: %v", err))
		return
	}

	explanation, provider := s.d.Advisor.Explain(ctx, o.WalletAddress, tradeCtx)

	if err := s.d.Orders.UpdateStatus(o.ID, order.StatusTriggered, "", string(router.Type)); err != nil {
		s.d.Log.Errorw("order_trigger_transition_failed", "order", o.ID, "err", err)
		return
	}
	l := s.newLog(o, order.LogTrigger, state, res.CurrentPrice, res.Reason)
	l.UnsignedTx = utx
	l.Explanation = explanation
	l.Provider = provider
	s.append(l)
	s.publish(events.OrderTriggered, o, "", res.Reason)
	s.d.Log.Infow("order_triggered", "order", o.ID, "reason", res.Reason, "router", string(router.Type))

	execRes := s.d.Executor.Execute(ctx, key, utx)
	if !execRes.Success {
		if err := s.d.Orders.UpdateStatus(o.ID, order.StatusFailed, execRes.TxHash.Hex(), string(router.Type)); err != nil {
			s.d.Log.Errorw("order_fail_transition_failed", "order", o.ID, "err", err)
		}
		l := s.newLog(o, order.LogTxFailed, state, res.CurrentPrice, execRes.Err)
		l.TxHash = execRes.TxHash.Hex()
		s.append(l)
		s.publish(events.OrderFailed, o, execRes.TxHash.Hex(), execRes.Err)
		s.d.Log.Warnw("order_execution_failed", "order", o.ID, "err", execRes.Err)
		return
	}

	txHash := execRes.TxHash.Hex()
	if o.TriggerType == order.TriggerDCAInterval {
		err = s.d.Orders.ReactivateDCA(o.ID, now, txHash, string(router.Type))
	} else {
		err = s.d.Orders.UpdateStatus(o.ID, order.StatusExecuted, txHash, string(router.Type))
	}
	if err != nil {
		s.d.Log.Errorw("order_executed_transition_failed", "order", o.ID, "err", err)
	}
	reason := "transaction confirmed"
	if !execRes.Confirmed {
		reason = "transaction sent, confirmation not observed within timeout"
	}
	l = s.newLog(o, order.LogTxConfirmed, state, res.CurrentPrice, reason)
	l.TxHash = txHash
	s.append(l)
	s.publish(events.OrderExecuted, o, txHash, res.Reason)
	s.d.Log.Infow("order_executed", "order", o.ID, "tx", txHash, "confirmed", execRes.Confirmed)
}

// triggerManual marks an order TRIGGERED without executing, for wallets
// with no delegated key or with auto-execution disabled.
func (s *Scheduler) triggerManual(o *order.Order, state *TokenChainState, res EvalResult) {
	if err := s.d.Orders.UpdateStatus(o.ID, order.StatusTriggered, "", ""); err != nil {
		s.d.Log.Errorw("order_trigger_transition_failed", "order", o.ID, "err", err)
		return
	}
	reason := res.Reason + "; no agent wallet configured, manual execution required"
	s.appendLog(o, order.LogTrigger, state, res.CurrentPrice, reason, nil)
	s.publish(events.OrderTriggered, o, "", reason)
	s.d.Log.Infow("order_triggered_manual", "order", o.ID)
}

func (s *Scheduler) projectExpected(direction order.Direction, state *TokenChainState, inputAmount *big.Int) *big.Int {
	probe := state.BuyAmountOut
	if direction == order.Sell {
		probe = state.SellAmountOut
	}
	expected := new(big.Int).Mul(probe, inputAmount)
	return expected.Div(expected, order.OneToken())
}

func (s *Scheduler) tradeContext(o *order.Order, state *TokenChainState, res EvalResult, inputAmount, estimatedOut *big.Int, router execution.RouterInfo) advisor.TradeContext {
	t := advisor.TradeContext{
		TokenAddress:    o.TokenAddress,
		TokenName:       state.Name,
		TokenSymbol:     state.Symbol,
		Direction:       string(o.Direction),
		TriggerType:     string(o.TriggerType),
		TriggerValue:    o.TriggerValue,
		CurrentPrice:    order.FormatWei(res.CurrentPrice),
		Progress:        order.FormatProgress(state.Progress),
		IsGraduated:     state.IsGraduated,
		IsLocked:        state.IsLocked,
		Router:          string(router.Type),
		SlippageBps:     o.MaxSlippageBps,
		InputAmount:     order.FormatWei(inputAmount),
		EstimatedOutput: order.FormatWei(estimatedOut),
	}
	if state.Market != nil {
		t.Volume = state.Market.Volume
		t.HolderCount = state.Market.HolderCount
	}
	return t
}

func (s *Scheduler) newLog(o *order.Order, action order.LogAction, state *TokenChainState, price *big.Int, reason string) *order.ExecutionLog {
	l := &order.ExecutionLog{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		Action:    action,
		Reason:    reason,
		CreatedAt: s.d.Clock.Now(),
	}
	if price != nil {
		l.CurrentPrice = price.String()
	}
	if state != nil {
		l.CurrentProgress = state.Progress.String()
		l.IsGraduated = state.IsGraduated
		l.IsLocked = state.IsLocked
	}
	return l
}

func (s *Scheduler) appendLog(o *order.Order, action order.LogAction, state *TokenChainState, price *big.Int, reason string, utx *order.UnsignedTx) {
	l := s.newLog(o, action, state, price, reason)
	l.UnsignedTx = utx
	s.append(l)
}

func (s *Scheduler) append(l *order.ExecutionLog) {
	if err := s.d.Logs.AppendLog(l); err != nil {
		s.d.Log.Warnw("execution_log_append_failed", "order", l.OrderID, "err", err)
	}
}

func (s *Scheduler) publish(t events.Type, o *order.Order, txHash, reason string) {
	s.d.Bus.Publish(events.Event{
		Type:          t,
		OrderID:       o.ID,
		WalletAddress: o.WalletAddress,
		TokenAddress:  o.TokenAddress,
		Direction:     string(o.Direction),
		TxHash:        txHash,
		Reason:        reason,
		At:            s.d.Clock.Now(),
	})
}
