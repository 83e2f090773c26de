// Package api exposes the agent's REST and websocket surface: account
// lifecycle, order CRUD, token/quote reads, advisor config, and the
// order event stream.
package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/monfun/agent/pkg/advisor"
	"github.com/monfun/agent/pkg/chain"
	"github.com/monfun/agent/pkg/events"
	"github.com/monfun/agent/pkg/execution"
	"github.com/monfun/agent/pkg/monitor"
	"github.com/monfun/agent/pkg/order"
	"github.com/monfun/agent/pkg/storage"
	"github.com/monfun/agent/pkg/wallet"
)

type Server struct {
	store   *storage.Store
	wallets *wallet.Manager
	chain   *chain.Client
	states  *monitor.StateFetcher
	quotes  *monitor.QuoteFetcher
	bus     *events.Bus
	router  *mux.Router
	hub     *Hub
	origins []string
	log     *zap.SugaredLogger

	httpSrv *http.Server
}

func NewServer(store *storage.Store, wallets *wallet.Manager, c *chain.Client, states *monitor.StateFetcher, quotes *monitor.QuoteFetcher, bus *events.Bus, origins []string, log *zap.SugaredLogger) *Server {
	s := &Server{
		store:   store,
		wallets: wallets,
		chain:   c,
		states:  states,
		quotes:  quotes,
		bus:     bus,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		origins: origins,
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/account", s.handleCreateAccount).Methods("POST")
	api.HandleFunc("/account", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/account/balance", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/account/settings", s.handleUpdateSettings).Methods("PATCH")
	api.HandleFunc("/account/export-key", s.handleExportKey).Methods("POST")

	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("PATCH")
	api.HandleFunc("/orders/{id}/confirm", s.handleConfirmOrder).Methods("POST")

	api.HandleFunc("/orderbook/{token}", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/token/{address}", s.handleGetToken).Methods("GET")
	api.HandleFunc("/quote", s.handleGetQuote).Methods("GET")

	api.HandleFunc("/ai-config", s.handleGetAIConfig).Methods("GET")
	api.HandleFunc("/ai-config", s.handleSetAIConfig).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start serves until the context is cancelled, bridging bus events into
// the websocket hub.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)
	go s.bridgeEvents(ctx)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.httpSrv = &http.Server{Addr: addr, Handler: c.Handler(s.router)}
	s.log.Infow("api_listening", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) bridgeEvents(ctx context.Context) {
	ch, cancel := s.bus.Subscribe("")
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.hub.BroadcastToWallet(ev.WalletAddress, ev)
		}
	}
}

// ---- accounts ----

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.WalletAddress) {
		respondError(w, http.StatusBadRequest, "invalid wallet address", "")
		return
	}
	acc, err := s.wallets.Create(req.WalletAddress)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "account creation failed", err.Error())
		return
	}
	respondJSON(w, accountResponse(acc))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.requireAccount(w, r.URL.Query().Get("wallet"))
	if !ok {
		return
	}
	respondJSON(w, accountResponse(acc))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.requireAccount(w, r.URL.Query().Get("wallet"))
	if !ok {
		return
	}
	agent := common.HexToAddress(acc.AgentAddress)

	native, err := s.chain.NativeBalance(r.Context(), agent)
	if err != nil {
		respondError(w, http.StatusBadGateway, "balance read failed", err.Error())
		return
	}
	resp := BalanceResponse{
		WalletAddress: acc.WalletAddress,
		AgentAddress:  acc.AgentAddress,
		NativeBalance: native.String(),
	}
	if token := r.URL.Query().Get("token"); token != "" {
		if !common.IsHexAddress(token) {
			respondError(w, http.StatusBadRequest, "invalid token address", "")
			return
		}
		bal, _ := s.chain.TokenBalance(r.Context(), common.HexToAddress(token), agent)
		resp.TokenAddress = strings.ToLower(token)
		resp.TokenBalance = bal.String()
	}
	respondJSON(w, resp)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.requireAccount(w, r.URL.Query().Get("wallet"))
	if !ok {
		return
	}
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.AutoExecute != nil {
		acc.AutoExecute = *req.AutoExecute
	}
	if req.RiskCheck != nil {
		acc.RiskCheck = *req.RiskCheck
	}
	if err := s.store.SaveAccount(acc); err != nil {
		respondError(w, http.StatusInternalServerError, "settings update failed", err.Error())
		return
	}
	respondJSON(w, accountResponse(acc))
}

var exportMsgRe = regexp.MustCompile(`at (\d+)`)

// handleExportKey releases the agent private key after verifying a
// personal-sign ownership proof over a message with a fresh timestamp.
func (s *Server) handleExportKey(w http.ResponseWriter, r *http.Request) {
	var req ExportKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := verifyOwnershipProof(req.WalletAddress, req.Message, req.Signature); err != nil {
		s.log.Warnw("export_key_proof_rejected", "wallet", req.WalletAddress, "err", err)
		respondError(w, http.StatusUnauthorized, "ownership proof rejected", err.Error())
		return
	}
	acc, ok := s.requireAccount(w, req.WalletAddress)
	if !ok {
		return
	}
	key, err := s.wallets.ExportKey(req.WalletAddress)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "key export failed", err.Error())
		return
	}
	s.log.Infow("agent_key_exported", "wallet", acc.WalletAddress)
	respondJSON(w, ExportKeyResponse{AgentAddress: acc.AgentAddress, PrivateKey: key})
}

func verifyOwnershipProof(walletAddress, message, sigHex string) error {
	m := exportMsgRe.FindStringSubmatch(message)
	if m == nil {
		return errBadProof("message missing timestamp")
	}
	ts, ok := new(big.Int).SetString(m[1], 10)
	if !ok {
		return errBadProof("unparseable timestamp")
	}
	issued := time.UnixMilli(ts.Int64())
	if age := time.Since(issued); age > 5*time.Minute || age < -time.Minute {
		return errBadProof("stale signature")
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != 65 {
		return errBadProof("malformed signature")
	}
	// Wallets produce V as 27/28; SigToPub wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return errBadProof("unrecoverable signature")
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(walletAddress) {
		return errBadProof("signer does not match wallet")
	}
	return nil
}

type errBadProof string

func (e errBadProof) Error() string { return string(e) }

// ---- orders ----

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	now := time.Now()
	if err := req.Validate(now); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}

	o := order.New(uuid.New().String(), &req, now)
	if o.ReferencePrice == "" && needsReference(o.TriggerType) {
		s.captureReferencePrice(r.Context(), o)
	}
	if err := s.store.CreateOrder(o); err != nil {
		respondError(w, http.StatusInternalServerError, "order creation failed", err.Error())
		return
	}
	s.log.Infow("order_created", "order", o.ID, "wallet", o.WalletAddress,
		"token", o.TokenAddress, "trigger", string(o.TriggerType))
	respondJSON(w, o)
}

func needsReference(t order.TriggerType) bool {
	switch t {
	case order.TriggerTakeProfit, order.TriggerStopLoss, order.TriggerPriceDropPct, order.TriggerTrailingStop:
		return true
	}
	return false
}

// captureReferencePrice anchors relative triggers to the price at
// creation time. Best-effort: a failed read leaves the anchor empty and
// the evaluator treats the order as unanchored.
func (s *Server) captureReferencePrice(ctx context.Context, o *order.Order) {
	state, err := s.states.FetchTokenState(ctx, o.TokenAddress)
	if err != nil || state.Unavailable() {
		s.log.Warnw("reference_price_capture_failed", "order", o.ID, "token", o.TokenAddress)
		return
	}
	o.ReferencePrice = state.PriceFor(o.Direction).String()
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	walletAddr := r.URL.Query().Get("wallet")
	if !common.IsHexAddress(walletAddr) {
		respondError(w, http.StatusBadRequest, "invalid wallet address", "")
		return
	}
	orders, err := s.store.OrdersByWallet(walletAddr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "order lookup failed", err.Error())
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, err := s.store.GetOrder(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "order lookup failed", err.Error())
		return
	}
	if o == nil {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	logs, err := s.store.LogsByOrder(id, 100)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "log lookup failed", err.Error())
		return
	}
	if logs == nil {
		logs = []*order.ExecutionLog{}
	}
	respondJSON(w, OrderDetailResponse{Order: o, Logs: logs})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, err := s.store.CancelOrder(id)
	if err != nil {
		respondError(w, http.StatusConflict, "cancel rejected", err.Error())
		return
	}
	s.log.Infow("order_cancelled", "order", id)
	respondJSON(w, o)
}

// handleConfirmOrder closes the loop on manually-executed orders: a
// TRIGGERED order whose owner executed the trade themselves is marked
// EXECUTED with their transaction hash.
func (s *Server) handleConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		TxHash string `json:"txHash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	o, err := s.store.GetOrder(id)
	if err != nil || o == nil {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if o.Status != order.StatusTriggered {
		respondError(w, http.StatusConflict, "confirm rejected",
			"only TRIGGERED orders can be confirmed")
		return
	}
	if err := s.store.UpdateStatus(id, order.StatusExecuted, req.TxHash, o.RouterUsed); err != nil {
		respondError(w, http.StatusInternalServerError, "confirm failed", err.Error())
		return
	}
	o, _ = s.store.GetOrder(id)
	respondJSON(w, o)
}

// ---- market views ----

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if !common.IsHexAddress(token) {
		respondError(w, http.StatusBadRequest, "invalid token address", "")
		return
	}
	orders, err := s.store.OrdersByToken(token)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "orderbook lookup failed", err.Error())
		return
	}

	buys := make([]OrderbookEntry, 0)
	sells := make([]OrderbookEntry, 0)
	for _, o := range orders {
		entry := OrderbookEntry{
			ID:           o.ID,
			Wallet:       o.WalletAddress,
			TriggerType:  string(o.TriggerType),
			TriggerValue: o.TriggerValue,
			InputAmount:  o.InputAmount,
			Status:       string(o.Status),
		}
		if o.Direction == order.Buy {
			buys = append(buys, entry)
		} else {
			sells = append(sells, entry)
		}
	}
	sort.Slice(buys, func(i, j int) bool { return cmpNumeric(buys[i].TriggerValue, buys[j].TriggerValue) > 0 })
	sort.Slice(sells, func(i, j int) bool { return cmpNumeric(sells[i].TriggerValue, sells[j].TriggerValue) < 0 })

	respondJSON(w, OrderbookResponse{
		TokenAddress: strings.ToLower(token),
		Buys:         buys,
		Sells:        sells,
		Timestamp:    time.Now().UnixMilli(),
	})
}

func cmpNumeric(a, b string) int {
	av, aok := new(big.Int).SetString(a, 10)
	bv, bok := new(big.Int).SetString(b, 10)
	if !aok || !bok {
		return strings.Compare(a, b)
	}
	return av.Cmp(bv)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addr) {
		respondError(w, http.StatusBadRequest, "invalid token address", "")
		return
	}
	state, err := s.states.FetchTokenState(r.Context(), addr)
	if err != nil {
		respondError(w, http.StatusBadGateway, "token state fetch failed", err.Error())
		return
	}
	resp := TokenResponse{
		Address:     state.TokenAddress,
		Name:        state.Name,
		Symbol:      state.Symbol,
		IsGraduated: state.IsGraduated,
		IsLocked:    state.IsLocked,
		Progress:    state.Progress.String(),
		TotalSupply: state.TotalSupply.String(),
		BuyPrice:    state.PriceFor(order.Buy).String(),
		SellPrice:   state.PriceFor(order.Sell).String(),
	}
	if state.Market != nil {
		resp.PriceUSD = state.Market.PriceUSD
		resp.Volume = state.Market.Volume
		resp.HolderCount = state.Market.HolderCount
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	if !common.IsHexAddress(token) {
		respondError(w, http.StatusBadRequest, "invalid token address", "")
		return
	}
	amountIn, ok := new(big.Int).SetString(q.Get("amountIn"), 10)
	if !ok || amountIn.Sign() <= 0 {
		respondError(w, http.StatusBadRequest, "amountIn must be a positive wei amount", "")
		return
	}
	direction := order.Direction(q.Get("direction"))
	if direction != order.Buy && direction != order.Sell {
		respondError(w, http.StatusBadRequest, "direction must be BUY or SELL", "")
		return
	}

	quote, err := s.quotes.FetchFreshQuote(r.Context(), token, amountIn, direction)
	if err != nil {
		respondError(w, http.StatusBadGateway, "quote fetch failed", err.Error())
		return
	}
	router := execution.SelectRouter(quote.Router, s.chain.Contracts())
	respondJSON(w, QuoteResponse{
		Router:     quote.Router.Hex(),
		RouterType: string(router.Type),
		AmountOut:  quote.AmountOut.String(),
		Timestamp:  quote.Timestamp.UnixMilli(),
	})
}

// ---- advisor config ----

func (s *Server) handleGetAIConfig(w http.ResponseWriter, r *http.Request) {
	walletAddr := r.URL.Query().Get("wallet")
	if !common.IsHexAddress(walletAddr) {
		respondError(w, http.StatusBadRequest, "invalid wallet address", "")
		return
	}
	cfg, err := s.store.LoadAdvisorConfig(walletAddr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "config lookup failed", err.Error())
		return
	}
	respondJSON(w, aiConfigResponse(cfg))
}

func (s *Server) handleSetAIConfig(w http.ResponseWriter, r *http.Request) {
	var req AIConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.WalletAddress) {
		respondError(w, http.StatusBadRequest, "invalid wallet address", "")
		return
	}

	// Merge onto the stored config: absent fields keep their values, so
	// setting a preference never wipes saved keys.
	cfg, err := s.store.LoadAdvisorConfig(req.WalletAddress)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "config lookup failed", err.Error())
		return
	}
	if req.Preferred != "" {
		cfg.Preferred = req.Preferred
	}
	if req.GroqAPIKey != "" {
		cfg.GroqAPIKey = req.GroqAPIKey
	}
	if req.ClaudeAPIKey != "" {
		cfg.ClaudeAPIKey = req.ClaudeAPIKey
	}
	if req.OpenAIAPIKey != "" {
		cfg.OpenAIAPIKey = req.OpenAIAPIKey
	}
	if req.GeminiAPIKey != "" {
		cfg.GeminiAPIKey = req.GeminiAPIKey
	}
	if err := s.store.SaveAdvisorConfig(cfg); err != nil {
		respondError(w, http.StatusInternalServerError, "config save failed", err.Error())
		return
	}
	respondJSON(w, aiConfigResponse(cfg))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ---- helpers ----

func (s *Server) requireAccount(w http.ResponseWriter, walletAddress string) (*wallet.Account, bool) {
	if !common.IsHexAddress(walletAddress) {
		respondError(w, http.StatusBadRequest, "invalid wallet address", "")
		return nil, false
	}
	acc, err := s.wallets.Get(walletAddress)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "account lookup failed", err.Error())
		return nil, false
	}
	if acc == nil {
		respondError(w, http.StatusNotFound, "account not found", "")
		return nil, false
	}
	return acc, true
}

func accountResponse(acc *wallet.Account) AccountResponse {
	return AccountResponse{
		WalletAddress: acc.WalletAddress,
		AgentAddress:  acc.AgentAddress,
		AutoExecute:   acc.AutoExecute,
		RiskCheck:     acc.RiskCheck,
		CreatedAt:     acc.CreatedAt,
	}
}

func aiConfigResponse(cfg advisor.Config) AIConfigResponse {
	return AIConfigResponse{
		WalletAddress: cfg.WalletAddress,
		Preferred:     cfg.Preferred,
		HasGroqKey:    cfg.GroqAPIKey != "",
		HasClaudeKey:  cfg.ClaudeAPIKey != "",
		HasOpenAIKey:  cfg.OpenAIAPIKey != "",
		HasGeminiKey:  cfg.GeminiAPIKey != "",
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: error, Message: message})
}
