package scanner

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/internal/feed"
)

// VenueQuote 第二平台对同一事件的盘口报价
type VenueQuote struct {
	Venue    string
	MarketID string

	YesBid decimal.Decimal
	YesAsk decimal.Decimal
	NoBid  decimal.Decimal
	NoAsk  decimal.Decimal

	// FeePct 对手平台 taker 费率
	FeePct decimal.Decimal

	FetchedAt time.Time
}

// Snapshot 一个扫描周期的完整输入。
// 周期开始时构建，周期内只读；所有扫描器共享同一份。
type Snapshot struct {
	Markets []domain.Market

	// Feed 外部行情观测（latency/certainty 扫描器使用）
	Feed *feed.Buffer

	// CrossQuotes 以本平台市场 ID 为键的第二平台报价
	CrossQuotes map[string]VenueQuote

	Now time.Time
}

// Scanner 机会扫描器。每个变体实现一次 Scan，
// 返回的机会在周期结束即失效，从不跨周期复用。
type Scanner interface {
	Name() domain.Strategy
	Scan(ctx context.Context, snap *Snapshot) []*domain.Opportunity
}
