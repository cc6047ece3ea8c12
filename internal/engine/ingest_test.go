package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/clob/types"
	"github.com/betbot/arbot/pkg/ratelimit"
)

type fakeMarketAPI struct {
	markets []types.ClobMarket
	books   map[string]types.OrderBookSummary

	bookCalls int
}

func (f *fakeMarketAPI) GetAllMarkets(ctx context.Context) ([]types.ClobMarket, error) {
	return f.markets, nil
}

func (f *fakeMarketAPI) GetOrderBooks(ctx context.Context, params []types.BookParams) ([]types.OrderBookSummary, error) {
	f.bookCalls++
	var out []types.OrderBookSummary
	for _, p := range params {
		if book, ok := f.books[p.TokenID]; ok {
			out = append(out, book)
		}
	}
	return out, nil
}

func clobMarket(conditionID, question string, deadline time.Time) types.ClobMarket {
	return types.ClobMarket{
		ConditionID:     conditionID,
		Question:        question,
		MarketSlug:      "slug-" + conditionID,
		EndDateISO:      deadline.Format(time.RFC3339),
		Active:          true,
		AcceptingOrders: true,
		Tokens: []types.ClobToken{
			{TokenID: conditionID + "-yes", Outcome: "Yes"},
			{TokenID: conditionID + "-no", Outcome: "No"},
		},
	}
}

func bookSummary(assetID string, asks, bids [][2]string) types.OrderBookSummary {
	book := types.OrderBookSummary{AssetID: assetID}
	for _, lvl := range asks {
		book.Asks = append(book.Asks, types.OrderSummary{Price: lvl[0], Size: lvl[1]})
	}
	for _, lvl := range bids {
		book.Bids = append(book.Bids, types.OrderSummary{Price: lvl[0], Size: lvl[1]})
	}
	return book
}

func TestIngestorBuildsSnapshot(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	api := &fakeMarketAPI{
		markets: []types.ClobMarket{clobMarket("c1", "Will Bitcoin close above $100k?", deadline)},
		books: map[string]types.OrderBookSummary{
			// 乱序档位：最优价必须扫全档取得
			"c1-yes": bookSummary("c1-yes",
				[][2]string{{"0.50", "20"}, {"0.48", "120"}},
				[][2]string{{"0.44", "30"}, {"0.46", "15"}}),
			"c1-no": bookSummary("c1-no",
				[][2]string{{"0.47", "80"}},
				[][2]string{{"0.45", "40"}}),
		},
	}

	markets, err := NewIngestor(api, ratelimit.NewRateLimitManager()).Markets(context.Background())
	if err != nil {
		t.Fatalf("Markets: %v", err)
	}
	if len(markets) != 1 {
		t.Fatalf("应得到 1 个市场: %d", len(markets))
	}

	m := markets[0]
	if !m.YesAsk.Equal(decimal.RequireFromString("0.48")) {
		t.Fatalf("YES 最优卖价应为 0.48: %s", m.YesAsk)
	}
	if !m.YesAskLiquidity.Equal(decimal.RequireFromString("120")) {
		t.Fatalf("YES 最优档数量应为 120: %s", m.YesAskLiquidity)
	}
	if !m.YesBid.Equal(decimal.RequireFromString("0.46")) {
		t.Fatalf("YES 最优买价应为 0.46: %s", m.YesBid)
	}
	if !m.NoAsk.Equal(decimal.RequireFromString("0.47")) {
		t.Fatalf("NO 最优卖价应为 0.47: %s", m.NoAsk)
	}
	if m.Asset != "BTCUSDT" {
		t.Fatalf("应从问题文本推导标的: %q", m.Asset)
	}
	if m.YesAssetID != "c1-yes" || m.NoAssetID != "c1-no" {
		t.Fatalf("token 归属错误: %s / %s", m.YesAssetID, m.NoAssetID)
	}
}

func TestIngestorDropsMalformedMarkets(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	noBook := clobMarket("c2", "Will ETH rally?", deadline)
	expired := clobMarket("c3", "Old question", time.Now().Add(-time.Hour))
	closed := clobMarket("c4", "Closed market", deadline)
	closed.Closed = true

	api := &fakeMarketAPI{
		markets: []types.ClobMarket{
			clobMarket("c1", "Will Bitcoin close above $100k?", deadline),
			noBook, expired, closed,
		},
		books: map[string]types.OrderBookSummary{
			"c1-yes": bookSummary("c1-yes", [][2]string{{"0.48", "100"}}, [][2]string{{"0.46", "10"}}),
			"c1-no":  bookSummary("c1-no", [][2]string{{"0.47", "100"}}, [][2]string{{"0.45", "10"}}),
			"c3-yes": bookSummary("c3-yes", [][2]string{{"0.48", "100"}}, nil),
			"c3-no":  bookSummary("c3-no", [][2]string{{"0.47", "100"}}, nil),
		},
	}

	markets, err := NewIngestor(api, ratelimit.NewRateLimitManager()).Markets(context.Background())
	if err != nil {
		t.Fatalf("Markets: %v", err)
	}
	if len(markets) != 1 || markets[0].ID != "c1" {
		t.Fatalf("只有 c1 应存活: %+v", markets)
	}
}

func TestIngestorAmbiguityFlag(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	api := &fakeMarketAPI{
		markets: []types.ClobMarket{clobMarket("c1", "Will BTC be approximately $100k?", deadline)},
		books: map[string]types.OrderBookSummary{
			"c1-yes": bookSummary("c1-yes", [][2]string{{"0.48", "100"}}, nil),
			"c1-no":  bookSummary("c1-no", [][2]string{{"0.47", "100"}}, nil),
		},
	}

	markets, err := NewIngestor(api, ratelimit.NewRateLimitManager()).Markets(context.Background())
	if err != nil {
		t.Fatalf("Markets: %v", err)
	}
	if len(markets) != 1 || !markets[0].Ambiguous {
		t.Fatalf("含歧义关键词的问题应置 Ambiguous")
	}
}

func TestAssetSymbol(t *testing.T) {
	cases := map[string]string{
		"Will Ethereum close above $5k?": "ETHUSDT",
		"Will BTC close above $100k?":    "BTCUSDT",
		"Will it rain tomorrow?":         "",
		"sol price above $200":           "SOLUSDT",
	}
	for text, want := range cases {
		if got := assetSymbol(text); got != want {
			t.Fatalf("assetSymbol(%q) = %q, want %q", text, got, want)
		}
	}
}
