package monitor

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/monfun/agent/pkg/advisor"
	"github.com/monfun/agent/pkg/chain"
	"github.com/monfun/agent/pkg/events"
	"github.com/monfun/agent/pkg/execution"
	"github.com/monfun/agent/pkg/order"
	"github.com/monfun/agent/pkg/util"
	"github.com/monfun/agent/pkg/wallet"
)

type fakeOrders struct {
	active      []*order.Order
	statuses    map[string]order.Status
	peaks       map[string]string
	reactivated map[string]time.Time
}

func newFakeOrders(orders ...*order.Order) *fakeOrders {
	return &fakeOrders{
		active:      orders,
		statuses:    map[string]order.Status{},
		peaks:       map[string]string{},
		reactivated: map[string]time.Time{},
	}
}

func (f *fakeOrders) ActiveOrders() ([]*order.Order, error) { return f.active, nil }
func (f *fakeOrders) UpdateStatus(id string, status order.Status, txHash, routerUsed string) error {
	f.statuses[id] = status
	return nil
}
func (f *fakeOrders) UpdatePeakPrice(id, peak string) error {
	f.peaks[id] = peak
	return nil
}
func (f *fakeOrders) ReactivateDCA(id string, executedAt time.Time, txHash, routerUsed string) error {
	f.reactivated[id] = executedAt
	f.statuses[id] = order.StatusActive
	return nil
}

type fakeLogs struct{ entries []*order.ExecutionLog }

func (f *fakeLogs) AppendLog(l *order.ExecutionLog) error {
	f.entries = append(f.entries, l)
	return nil
}

func (f *fakeLogs) actions() []order.LogAction {
	out := make([]order.LogAction, len(f.entries))
	for i, l := range f.entries {
		out[i] = l.Action
	}
	return out
}

type fakeStates struct{ m map[string]*TokenChainState }

func (f *fakeStates) FetchBatch(ctx context.Context, tokens []string) map[string]*TokenChainState {
	return f.m
}

type fakeQuotes struct{ quote *FreshQuote }

func (f *fakeQuotes) FetchFreshQuote(ctx context.Context, token string, amountIn *big.Int, dir order.Direction) (*FreshQuote, error) {
	return f.quote, nil
}

type fakeWallets struct {
	acc *wallet.Account
	key *ecdsa.PrivateKey
}

func (f *fakeWallets) Get(walletAddress string) (*wallet.Account, error)            { return f.acc, nil }
func (f *fakeWallets) SigningKey(walletAddress string) (*ecdsa.PrivateKey, error)   { return f.key, nil }

type fakeBalances struct{ bal *big.Int }

func (f *fakeBalances) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return f.bal, nil
}

type fakeExecutor struct {
	result    execution.ExecResult
	approval  execution.ApprovalResult
	executed  int
	approvals int
}

func (f *fakeExecutor) Execute(ctx context.Context, key *ecdsa.PrivateKey, utx *order.UnsignedTx) execution.ExecResult {
	f.executed++
	return f.result
}
func (f *fakeExecutor) EnsureApproval(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, required *big.Int) execution.ApprovalResult {
	f.approvals++
	return f.approval
}

type fakeBuilder struct{ lastInput *big.Int }

func (f *fakeBuilder) BuildUnsignedTx(dir order.Direction, rt execution.RouterType, inputAmount, amountOutMin *big.Int, token, recipient common.Address) (*order.UnsignedTx, error) {
	f.lastInput = new(big.Int).Set(inputAmount)
	value := "0"
	if dir == order.Buy {
		value = inputAmount.String()
	}
	return &order.UnsignedTx{To: recipient.Hex(), Data: "0x00", Value: value, ChainID: 143}, nil
}

type fakeAdvisor struct{ verdict advisor.RiskVerdict }

func (f *fakeAdvisor) Explain(ctx context.Context, w string, t advisor.TradeContext) (string, string) {
	return "trigger condition met", "test"
}
func (f *fakeAdvisor) RiskCheck(ctx context.Context, w string, t advisor.TradeContext) advisor.RiskVerdict {
	return f.verdict
}

type schedulerFixture struct {
	s        *Scheduler
	orders   *fakeOrders
	logs     *fakeLogs
	states   *fakeStates
	quotes   *fakeQuotes
	wallets  *fakeWallets
	balances *fakeBalances
	executor *fakeExecutor
	builder  *fakeBuilder
	bus      *events.Bus
	clock    *util.FakeClock
}

func newFixture(t *testing.T, orders ...*order.Order) *schedulerFixture {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	state := testState()
	f := &schedulerFixture{
		orders:   newFakeOrders(orders...),
		logs:     &fakeLogs{},
		states:   &fakeStates{m: map[string]*TokenChainState{state.TokenAddress: state}},
		quotes:   &fakeQuotes{quote: &FreshQuote{Router: common.HexToAddress("0xb0"), AmountOut: ether(990)}},
		wallets:  &fakeWallets{key: key, acc: &wallet.Account{WalletAddress: "0x00000000000000000000000000000000000000ee", AgentAddress: "0x00000000000000000000000000000000000000aa", AutoExecute: true}},
		balances: &fakeBalances{bal: ether(100)},
		executor: &fakeExecutor{
			result:   execution.ExecResult{TxHash: common.HexToHash("0xdead"), Success: true, Confirmed: true},
			approval: execution.ApprovalResult{Approved: true},
		},
		builder: &fakeBuilder{},
		bus:     events.NewBus(),
		clock:   &util.FakeClock{T: evalNow},
	}
	contracts := chain.Contracts{
		BondingCurveRouter: common.HexToAddress("0xb0"),
		DexRouter:          common.HexToAddress("0xd0"),
	}
	f.s = NewScheduler(Deps{
		Orders:    f.orders,
		Logs:      f.logs,
		States:    f.states,
		Quotes:    f.quotes,
		Wallets:   f.wallets,
		Balances:  f.balances,
		Executor:  f.executor,
		Builder:   f.builder,
		Advisor:   &fakeAdvisor{verdict: advisor.RiskVerdict{Execute: true, Confidence: 0.9}},
		Bus:       f.bus,
		Contracts: contracts,
		Clock:     f.clock,
		Log:       zap.NewNop().Sugar(),
	}, 5*time.Second, 0.7)
	return f
}

func (f *schedulerFixture) tokenState() *TokenChainState {
	for _, s := range f.states.m {
		return s
	}
	return nil
}

func collect(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestTickTriggersAndExecutes(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, milliEther(2).String())
	f := newFixture(t, o)
	ch, cancel := f.bus.Subscribe("")
	defer cancel()

	f.s.Tick(context.Background())

	require.Equal(t, order.StatusExecuted, f.orders.statuses[o.ID])
	require.Equal(t, 1, f.executor.executed)
	require.Equal(t, []order.LogAction{order.LogTrigger, order.LogTxConfirmed}, f.logs.actions())
	require.Equal(t, common.HexToAddress(f.wallets.acc.AgentAddress),
		common.HexToAddress(f.logs.entries[0].UnsignedTx.To), "proceeds go to the agent wallet")

	evs := collect(ch)
	require.Len(t, evs, 2)
	require.Equal(t, events.OrderTriggered, evs[0].Type)
	require.Equal(t, events.OrderExecuted, evs[1].Type)
}

func TestTickNotTriggeredLeavesOrderAlone(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, big.NewInt(1).String())
	f := newFixture(t, o)

	f.s.Tick(context.Background())

	require.Empty(t, f.orders.statuses)
	require.Empty(t, f.logs.entries)
	require.Zero(t, f.executor.executed)
}

func TestTickExpiresStaleOrder(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, milliEther(2).String())
	o.ExpiresAt = evalNow.Add(-time.Hour)
	f := newFixture(t, o)
	ch, cancel := f.bus.Subscribe("")
	defer cancel()

	f.s.Tick(context.Background())

	require.Equal(t, order.StatusExpired, f.orders.statuses[o.ID])
	require.Equal(t, []order.LogAction{order.LogExpire}, f.logs.actions())
	require.Zero(t, f.executor.executed)

	evs := collect(ch)
	require.Len(t, evs, 1)
	require.Equal(t, events.OrderExpired, evs[0].Type)
}

func TestTickAbortStaysActive(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, milliEther(2).String())
	f := newFixture(t, o)
	f.tokenState().IsLocked = true

	f.s.Tick(context.Background())

	_, transitioned := f.orders.statuses[o.ID]
	require.False(t, transitioned, "abort must not change status")
	require.Equal(t, []order.LogAction{order.LogAbort}, f.logs.actions())
	require.Zero(t, f.executor.executed)
}

func TestTickSlippageViolationSoftSkips(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, milliEther(2).String())
	f := newFixture(t, o)
	// Probe projects 1000 out; fresh quote collapsed to 900 = 10% slip
	// against a 3% tolerance.
	f.quotes.quote.AmountOut = ether(900)

	f.s.Tick(context.Background())

	_, transitioned := f.orders.statuses[o.ID]
	require.False(t, transitioned, "slippage veto must leave the order active for retry")
	require.Equal(t, []order.LogAction{order.LogAbort}, f.logs.actions())
	require.Contains(t, f.logs.entries[0].Reason, "slippage")
	require.Zero(t, f.executor.executed)
}

func TestTickSellClampsToBalanceAndApproves(t *testing.T) {
	o := testOrder(order.Sell, order.TriggerPriceAbove, "0")
	o.InputAmount = ether(500).String()
	f := newFixture(t, o)
	f.balances.bal = ether(200)
	f.quotes.quote.AmountOut = milliEther(200) // matches the clamped projection

	f.s.Tick(context.Background())

	require.Equal(t, order.StatusExecuted, f.orders.statuses[o.ID])
	require.Equal(t, 1, f.executor.approvals, "sell path must ensure router approval")
	require.Equal(t, "0", f.logs.entries[0].UnsignedTx.Value, "sell carries no native value")
	require.Zero(t, f.builder.lastInput.Cmp(ether(200)), "input clamped to balance")
}

func TestTickZeroBalanceSellFails(t *testing.T) {
	o := testOrder(order.Sell, order.TriggerPriceAbove, "0")
	f := newFixture(t, o)
	f.balances.bal = new(big.Int)
	ch, cancel := f.bus.Subscribe("")
	defer cancel()

	f.s.Tick(context.Background())

	require.Equal(t, order.StatusFailed, f.orders.statuses[o.ID])
	require.Equal(t, []order.LogAction{order.LogAbort}, f.logs.actions())
	evs := collect(ch)
	require.Len(t, evs, 1)
	require.Equal(t, events.OrderFailed, evs[0].Type)
}

func TestTickZeroFreshQuoteAborts(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, milliEther(2).String())
	f := newFixture(t, o)
	f.quotes.quote.AmountOut = new(big.Int)

	f.s.Tick(context.Background())

	_, transitioned := f.orders.statuses[o.ID]
	require.False(t, transitioned)
	require.Equal(t, []order.LogAction{order.LogAbort}, f.logs.actions())
}

func TestTickDCAReactivates(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerDCAInterval, "3600000")
	f := newFixture(t, o)

	f.s.Tick(context.Background())

	require.Equal(t, order.StatusActive, f.orders.statuses[o.ID])
	require.Equal(t, evalNow, f.orders.reactivated[o.ID])
	require.Equal(t, 1, f.executor.executed)
}

func TestTickExecutionFailureTerminalizes(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, milliEther(2).String())
	f := newFixture(t, o)
	f.executor.result = execution.ExecResult{Success: false, Err: "transaction reverted"}
	ch, cancel := f.bus.Subscribe("")
	defer cancel()

	f.s.Tick(context.Background())

	require.Equal(t, order.StatusFailed, f.orders.statuses[o.ID])
	require.Equal(t, []order.LogAction{order.LogTrigger, order.LogTxFailed}, f.logs.actions())
	evs := collect(ch)
	require.Equal(t, events.OrderFailed, evs[len(evs)-1].Type)
}

func TestTickRiskCheckVetoBlocks(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, milliEther(2).String())
	f := newFixture(t, o)
	f.wallets.acc.RiskCheck = true
	f.s.d.Advisor = &fakeAdvisor{verdict: advisor.RiskVerdict{Execute: false, Confidence: 0.9, Reasoning: "rug signals"}}

	f.s.Tick(context.Background())

	require.Zero(t, f.executor.executed)
	require.Equal(t, []order.LogAction{order.LogAbort}, f.logs.actions())
	require.Contains(t, f.logs.entries[0].Reason, "risk check veto")
}

func TestTickRiskCheckLowConfidenceVetoIgnored(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, milliEther(2).String())
	f := newFixture(t, o)
	f.wallets.acc.RiskCheck = true
	f.s.d.Advisor = &fakeAdvisor{verdict: advisor.RiskVerdict{Execute: false, Confidence: 0.4}}

	f.s.Tick(context.Background())

	require.Equal(t, 1, f.executor.executed, "low-confidence veto must not block")
}

func TestTickNoAgentWalletTriggersManually(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, milliEther(2).String())
	f := newFixture(t, o)
	f.wallets.acc = nil
	f.wallets.key = nil

	f.s.Tick(context.Background())

	require.Equal(t, order.StatusTriggered, f.orders.statuses[o.ID])
	require.Zero(t, f.executor.executed)
	require.Contains(t, f.logs.entries[0].Reason, "manual execution required")
}

func TestTickTrailingStopRatchetsPeak(t *testing.T) {
	o := testOrder(order.Sell, order.TriggerTrailingStop, "2000")
	o.PeakPrice = big.NewInt(8e14).String()
	f := newFixture(t, o)
	f.tokenState().SellAmountOut = milliEther(1) // above the recorded peak, below trigger math

	f.s.Tick(context.Background())

	require.Equal(t, milliEther(1).String(), f.orders.peaks[o.ID])
	require.Zero(t, f.executor.executed)
}

func TestTickMissingStateSkipsOrder(t *testing.T) {
	o := testOrder(order.Buy, order.TriggerPriceBelow, milliEther(2).String())
	f := newFixture(t, o)
	f.states.m = map[string]*TokenChainState{}

	f.s.Tick(context.Background())

	require.Empty(t, f.orders.statuses)
	require.Empty(t, f.logs.entries)
}
