package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Chain struct {
	RPCURL             string
	ChainID            int64
	LensAddress        string
	CurveRouterAddress string
	DexRouterAddress   string
	Multicall3Address  string
}

type Monitor struct {
	Interval       time.Duration
	TxDeadline     time.Duration // embedded in every swap call
	ReceiptTimeout time.Duration
	// RiskConfidence is the veto threshold: an advisory "do not execute"
	// below this confidence is ignored.
	RiskConfidence float64
}

type Market struct {
	BaseURL  string
	CacheTTL time.Duration
	MaxPages int
}

type API struct {
	ListenAddr     string
	AllowedOrigins []string
}

type Store struct {
	Path string
}

type Wallet struct {
	// EncryptionSecret seals agent private keys at rest.
	EncryptionSecret string
}

type Config struct {
	Chain   Chain
	Monitor Monitor
	Market  Market
	API     API
	Store   Store
	Wallet  Wallet
}

func Default() Config {
	return Config{
		Chain: Chain{
			RPCURL:             "https://rpc.monad.xyz",
			ChainID:            143,
			LensAddress:        "0x0000000000000000000000000000000000001001",
			CurveRouterAddress: "0x0000000000000000000000000000000000001002",
			DexRouterAddress:   "0x0000000000000000000000000000000000001003",
			Multicall3Address:  "0xcA11bde05977b3631167028862bE2a173976CA11",
		},
		Monitor: Monitor{
			Interval:       5 * time.Second,
			TxDeadline:     300 * time.Second,
			ReceiptTimeout: 60 * time.Second,
			RiskConfidence: 0.7,
		},
		Market: Market{
			BaseURL:  "https://api.nad.fun",
			CacheTTL: 10 * time.Second,
			MaxPages: 5,
		},
		API: API{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Store: Store{
			Path: "data/agent",
		},
		Wallet: Wallet{
			EncryptionSecret: "change-me",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Chain.RPCURL = getEnv("RPC_URL", cfg.Chain.RPCURL)
	if id := os.Getenv("CHAIN_ID"); id != "" {
		if v, err := strconv.ParseInt(id, 10, 64); err == nil {
			cfg.Chain.ChainID = v
		}
	}
	cfg.Chain.LensAddress = getEnv("LENS_ADDRESS", cfg.Chain.LensAddress)
	cfg.Chain.CurveRouterAddress = getEnv("CURVE_ROUTER_ADDRESS", cfg.Chain.CurveRouterAddress)
	cfg.Chain.DexRouterAddress = getEnv("DEX_ROUTER_ADDRESS", cfg.Chain.DexRouterAddress)
	cfg.Chain.Multicall3Address = getEnv("MULTICALL3_ADDRESS", cfg.Chain.Multicall3Address)

	if ms := os.Getenv("MONITOR_INTERVAL_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.Monitor.Interval = time.Duration(v) * time.Millisecond
		}
	}
	if sec := os.Getenv("TX_DEADLINE_SECONDS"); sec != "" {
		if v, err := strconv.Atoi(sec); err == nil {
			cfg.Monitor.TxDeadline = time.Duration(v) * time.Second
		}
	}
	if sec := os.Getenv("RECEIPT_TIMEOUT_SECONDS"); sec != "" {
		if v, err := strconv.Atoi(sec); err == nil {
			cfg.Monitor.ReceiptTimeout = time.Duration(v) * time.Second
		}
	}
	if conf := os.Getenv("RISK_CONFIDENCE"); conf != "" {
		if v, err := strconv.ParseFloat(conf, 64); err == nil {
			cfg.Monitor.RiskConfidence = v
		}
	}

	cfg.Market.BaseURL = getEnv("MARKET_API_URL", cfg.Market.BaseURL)
	if ms := os.Getenv("MARKET_CACHE_TTL_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.Market.CacheTTL = time.Duration(v) * time.Millisecond
		}
	}
	if pages := os.Getenv("MARKET_MAX_PAGES"); pages != "" {
		if v, err := strconv.Atoi(pages); err == nil {
			cfg.Market.MaxPages = v
		}
	}

	cfg.API.ListenAddr = getEnv("API_LISTEN_ADDR", cfg.API.ListenAddr)
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Store.Path = getEnv("STORE_PATH", cfg.Store.Path)
	cfg.Wallet.EncryptionSecret = getEnv("AGENT_ENCRYPTION_KEY", cfg.Wallet.EncryptionSecret)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
