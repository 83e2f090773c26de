// Package market fetches supplementary token summaries from the venue's
// public aggregator API. Data here is advisory: any failure yields
// "no market data", never an error.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Summary is one token's aggregator record.
type Summary struct {
	TokenID       string `json:"token_id"`
	MarketType    string `json:"market_type"` // "CURVE" | "DEX"
	MarketID      string `json:"market_id"`
	ReserveNative string `json:"reserve_native"`
	ReserveToken  string `json:"reserve_token"`
	Price         string `json:"price"`
	PriceUSD      string `json:"price_usd"`
	PriceNative   string `json:"price_native"`
	TotalSupply   string `json:"total_supply"`
	Volume        string `json:"volume"`
	ATHPrice      string `json:"ath_price"`
	ATHPriceUSD   string `json:"ath_price_usd"`
	HolderCount   int    `json:"holder_count"`
	NativePrice   string `json:"native_price"` // native/USD rate
}

type pageResponse struct {
	Tokens []struct {
		MarketInfo *Summary `json:"market_info"`
	} `json:"tokens"`
}

// Client caches aggregator pages for a short TTL. The cache is owned
// state, injected where needed, so monitor ticks stay deterministic in
// tests.
type Client struct {
	baseURL  string
	http     *http.Client
	ttl      time.Duration
	maxPages int
	log      *zap.SugaredLogger

	mu        sync.RWMutex
	cache     map[string]Summary
	fetchedAt time.Time
}

func NewClient(baseURL string, ttl time.Duration, maxPages int, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
		ttl:      ttl,
		maxPages: maxPages,
		cache:    map[string]Summary{},
		log:      log,
	}
}

// Lookup returns the cached summary for a token, refreshing the cache
// when stale. It paginates a bounded number of aggregator pages until
// the token is found or pages are exhausted.
func (c *Client) Lookup(ctx context.Context, tokenAddress string) (Summary, bool) {
	key := strings.ToLower(tokenAddress)

	c.mu.RLock()
	fresh := time.Since(c.fetchedAt) < c.ttl
	s, hit := c.cache[key]
	c.mu.RUnlock()
	if fresh && hit {
		return s, true
	}

	next := map[string]Summary{}
	for page := 1; page <= c.maxPages; page++ {
		resp, err := c.fetchPage(ctx, page)
		if err != nil {
			c.log.Debugw("market_page_fetch_failed", "page", page, "err", err)
			break
		}
		if len(resp.Tokens) == 0 {
			break
		}
		for _, entry := range resp.Tokens {
			if entry.MarketInfo != nil && entry.MarketInfo.TokenID != "" {
				next[strings.ToLower(entry.MarketInfo.TokenID)] = *entry.MarketInfo
			}
		}
		if _, ok := next[key]; ok {
			break
		}
	}

	c.mu.Lock()
	c.cache = next
	c.fetchedAt = time.Now()
	s, hit = c.cache[key]
	c.mu.Unlock()
	return s, hit
}

func (c *Client) fetchPage(ctx context.Context, page int) (*pageResponse, error) {
	url := fmt.Sprintf("%s/order/market_cap?page=%d", c.baseURL, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aggregator status %d", resp.StatusCode)
	}
	var out pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
