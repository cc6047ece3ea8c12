package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/clob/types"
	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/config"
)

func quoteServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/markets/SLUG_C1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"market": map[string]any{
				"ticker":  "SLUG_C1",
				"yes_bid": 52,
				"yes_ask": 54,
				"no_bid":  46,
				"no_ask":  48,
			},
		})
	}))
}

func quoteConfig(host string) config.CrossVenueConfig {
	cfg := config.CrossVenueConfig{SecondVenueHost: host}
	cfg.Defaults()
	cfg.SecondVenueHost = host
	return cfg
}

func TestQuoteClientFetchesAndConverts(t *testing.T) {
	var hits atomic.Int64
	srv := quoteServer(t, &hits)
	defer srv.Close()

	client := NewQuoteClient(quoteConfig(srv.URL))
	markets := []domain.Market{{ID: "c1", Slug: "slug-c1"}}

	quotes := client.Quotes(context.Background(), markets)
	quote, ok := quotes["c1"]
	if !ok {
		t.Fatalf("应返回 c1 的报价")
	}
	if !quote.YesBid.Equal(decimal.RequireFromString("0.52")) {
		t.Fatalf("整数分应折算为价格: %s", quote.YesBid)
	}
	if !quote.NoAsk.Equal(decimal.RequireFromString("0.48")) {
		t.Fatalf("NoAsk 应为 0.48: %s", quote.NoAsk)
	}
	if quote.MarketID != "SLUG_C1" || quote.Venue != "kalshi" {
		t.Fatalf("报价来源标注错误: %+v", quote)
	}
	if quote.FeePct.IsZero() {
		t.Fatalf("应带上对手平台费率")
	}
}

func TestQuoteClientCachesWithinTTL(t *testing.T) {
	var hits atomic.Int64
	srv := quoteServer(t, &hits)
	defer srv.Close()

	client := NewQuoteClient(quoteConfig(srv.URL))
	markets := []domain.Market{{ID: "c1", Slug: "slug-c1"}}

	client.Quotes(context.Background(), markets)
	client.Quotes(context.Background(), markets)

	if hits.Load() != 1 {
		t.Fatalf("TTL 内应复用缓存: %d 次请求", hits.Load())
	}
}

func TestQuoteClientSkipsUnknownMarkets(t *testing.T) {
	var hits atomic.Int64
	srv := quoteServer(t, &hits)
	defer srv.Close()

	client := NewQuoteClient(quoteConfig(srv.URL))
	markets := []domain.Market{
		{ID: "c1", Slug: "slug-c1"},
		{ID: "c9", Slug: "slug-unknown"}, // 对手平台不存在
		{ID: "c2"},                       // 无 slug
	}

	quotes := client.Quotes(context.Background(), markets)
	if len(quotes) != 1 {
		t.Fatalf("只有 c1 应有报价: %d", len(quotes))
	}
}

func venueOrderServer(t *testing.T, status string, fillCount int64, got *venueOrderRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{
				"order_id":   "ord-1",
				"status":     status,
				"fill_count": fillCount,
			},
		})
	}))
}

func TestQuoteClientPlacesSellOrder(t *testing.T) {
	var got venueOrderRequest
	srv := venueOrderServer(t, "executed", 50, &got)
	defer srv.Close()

	client := NewQuoteClient(quoteConfig(srv.URL))
	fill, err := client.PlaceVenueOrder(context.Background(), "SLUG_C1", "yes", types.SideSell,
		decimal.RequireFromString("0.55"), decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("PlaceVenueOrder: %v", err)
	}

	if got.Action != "sell" || got.Side != "yes" || got.Ticker != "SLUG_C1" {
		t.Fatalf("订单方向参数错误: %+v", got)
	}
	if got.YesPrice != 55 || got.NoPrice != 0 {
		t.Fatalf("限价应折算为整数分并落在 yes_price: %+v", got)
	}
	if got.Count != 50 || got.Type != "limit" || got.TimeInForce != "fill_or_kill" {
		t.Fatalf("应为 50 张 FOK 限价单: %+v", got)
	}
	if !fill.Filled || !fill.FillSize.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("executed 状态应视为全量成交: %+v", fill)
	}
	if !fill.FillPrice.Equal(decimal.RequireFromString("0.55")) {
		t.Fatalf("成交价应为 0.55: %s", fill.FillPrice)
	}
}

func TestQuoteClientKilledOrderIsNotAnError(t *testing.T) {
	var got venueOrderRequest
	srv := venueOrderServer(t, "canceled", 0, &got)
	defer srv.Close()

	client := NewQuoteClient(quoteConfig(srv.URL))
	fill, err := client.PlaceVenueOrder(context.Background(), "SLUG_C1", "no", types.SideBuy,
		decimal.RequireFromString("0.45"), decimal.NewFromInt(20))
	if err != nil {
		t.Fatalf("未成交不应报错: %v", err)
	}
	if fill.Filled {
		t.Fatalf("FOK 未执行应为未成交")
	}
	if got.Action != "buy" || got.NoPrice != 45 || got.YesPrice != 0 {
		t.Fatalf("no 侧买单参数错误: %+v", got)
	}
}

func TestVenueTicker(t *testing.T) {
	if got := venueTicker("btc-above-100k"); got != "BTC_ABOVE_100K" {
		t.Fatalf("ticker 映射错误: %q", got)
	}
}
