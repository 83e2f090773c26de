package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func aggregatorStub(t *testing.T, pages map[int][]Summary, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != "/order/market_cap" {
			http.NotFound(w, r)
			return
		}
		var page int
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)

		resp := struct {
			Tokens []struct {
				MarketInfo *Summary `json:"market_info"`
			} `json:"tokens"`
		}{}
		for i := range pages[page] {
			resp.Tokens = append(resp.Tokens, struct {
				MarketInfo *Summary `json:"market_info"`
			}{MarketInfo: &pages[page][i]})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestLookupPaginatesUntilFound(t *testing.T) {
	pages := map[int][]Summary{
		1: {{TokenID: "0xAAA", PriceUSD: "0.5"}},
		2: {{TokenID: "0xBBB", PriceUSD: "1.5"}},
	}
	srv := aggregatorStub(t, pages, nil)
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute, 5, zap.NewNop().Sugar())

	s, ok := c.Lookup(context.Background(), "0xbbb") // case-insensitive
	if !ok {
		t.Fatal("token on page 2 not found")
	}
	if s.PriceUSD != "1.5" {
		t.Errorf("PriceUSD = %s, want 1.5", s.PriceUSD)
	}

	if _, ok := c.Lookup(context.Background(), "0xmissing"); ok {
		t.Error("missing token reported as found")
	}
}

func TestLookupRespectsPageCap(t *testing.T) {
	var hits atomic.Int64
	pages := map[int][]Summary{}
	for p := 1; p <= 10; p++ {
		pages[p] = []Summary{{TokenID: fmt.Sprintf("0xpage%d", p)}}
	}
	srv := aggregatorStub(t, pages, &hits)
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute, 3, zap.NewNop().Sugar())
	c.Lookup(context.Background(), "0xnotthere")

	if hits.Load() > 3 {
		t.Errorf("fetched %d pages, cap is 3", hits.Load())
	}
}

func TestLookupServesFromCacheWithinTTL(t *testing.T) {
	var hits atomic.Int64
	pages := map[int][]Summary{1: {{TokenID: "0xaaa", PriceUSD: "2"}}}
	srv := aggregatorStub(t, pages, &hits)
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute, 5, zap.NewNop().Sugar())

	c.Lookup(context.Background(), "0xaaa")
	first := hits.Load()
	for i := 0; i < 5; i++ {
		c.Lookup(context.Background(), "0xaaa")
	}
	if hits.Load() != first {
		t.Errorf("cache hit still fetched: %d -> %d requests", first, hits.Load())
	}
}

func TestLookupDegradesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute, 5, zap.NewNop().Sugar())
	if _, ok := c.Lookup(context.Background(), "0xaaa"); ok {
		t.Error("server error should yield no market data, not a hit")
	}
}
