package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/monfun/agent/params"
	"github.com/monfun/agent/pkg/advisor"
	"github.com/monfun/agent/pkg/api"
	"github.com/monfun/agent/pkg/chain"
	"github.com/monfun/agent/pkg/events"
	"github.com/monfun/agent/pkg/execution"
	"github.com/monfun/agent/pkg/market"
	"github.com/monfun/agent/pkg/monitor"
	"github.com/monfun/agent/pkg/storage"
	"github.com/monfun/agent/pkg/util"
	"github.com/monfun/agent/pkg/wallet"
)

func main() {
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/agent.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Persistence ----
	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Store.Path, "err", err)
	}
	defer store.Close()

	// ---- Chain ----
	contracts := chain.Contracts{
		Lens:               common.HexToAddress(cfg.Chain.LensAddress),
		BondingCurveRouter: common.HexToAddress(cfg.Chain.CurveRouterAddress),
		DexRouter:          common.HexToAddress(cfg.Chain.DexRouterAddress),
		Multicall3:         common.HexToAddress(cfg.Chain.Multicall3Address),
	}
	chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, contracts, cfg.Chain.ChainID, sugar)
	if err != nil {
		sugar.Fatalw("rpc_dial_failed", "url", cfg.Chain.RPCURL, "err", err)
	}
	defer chainClient.Close()
	sugar.Infow("chain_connected", "rpc", cfg.Chain.RPCURL, "chain_id", cfg.Chain.ChainID)

	// ---- Collaborators ----
	marketClient := market.NewClient(cfg.Market.BaseURL, cfg.Market.CacheTTL, cfg.Market.MaxPages, sugar)
	walletManager := wallet.NewManager(store, cfg.Wallet.EncryptionSecret, sugar)
	advisorChain := advisor.NewChain(advisor.DefaultFactory, sugar)
	tradingAdvisor := advisor.New(advisorChain, store)
	bus := events.NewBus()

	stateFetcher := monitor.NewStateFetcher(chainClient, marketClient, sugar)
	quoteFetcher := monitor.NewQuoteFetcher(chainClient)
	executor := execution.NewExecutor(chainClient, cfg.Monitor.ReceiptTimeout, sugar)
	txBuilder := execution.NewTxBuilder(contracts, cfg.Chain.ChainID,
		int64(cfg.Monitor.TxDeadline/time.Second), util.RealClock{})

	// ---- Monitor loop ----
	scheduler := monitor.NewScheduler(monitor.Deps{
		Orders:    store,
		Logs:      store,
		States:    stateFetcher,
		Quotes:    quoteFetcher,
		Wallets:   walletManager,
		Balances:  chainClient,
		Executor:  executor,
		Builder:   txBuilder,
		Advisor:   tradingAdvisor,
		Bus:       bus,
		Contracts: contracts,
		Clock:     util.RealClock{},
		Log:       sugar,
	}, cfg.Monitor.Interval, cfg.Monitor.RiskConfidence)
	if err := scheduler.Start(ctx); err != nil {
		sugar.Fatalw("monitor_start_failed", "err", err)
	}
	defer scheduler.Stop()

	// ---- API ----
	server := api.NewServer(store, walletManager, chainClient, stateFetcher, quoteFetcher,
		bus, cfg.API.AllowedOrigins, sugar)
	go func() {
		if err := server.Start(ctx, cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_error", "err", err)
	}
}
