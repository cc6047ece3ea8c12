package engine

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/clob/types"
	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/logger"
	"github.com/betbot/arbot/pkg/ratelimit"
)

// bookBatchSize 批量拉订单簿的单批上限
const bookBatchSize = 100

// bookRateKey 官方 book 端点的限流键（200 请求/10 秒）
const bookRateKey = "clob:book:get"

// MarketAPI 行情摄取所需的 CLOB 只读能力（由 clob 客户端实现）
type MarketAPI interface {
	GetAllMarkets(ctx context.Context) ([]types.ClobMarket, error)
	GetOrderBooks(ctx context.Context, params []types.BookParams) ([]types.OrderBookSummary, error)
}

// assetKeywords 问题文本到外部行情符号的映射（延迟/确定性扫描用）。
// 先长词后短词，避免 "eth" 误匹配其他词。
var assetKeywords = []struct {
	keyword string
	symbol  string
}{
	{"bitcoin", "BTCUSDT"},
	{"ethereum", "ETHUSDT"},
	{"solana", "SOLUSDT"},
	{"btc", "BTCUSDT"},
	{"eth", "ETHUSDT"},
	{"sol", "SOLUSDT"},
	{"xrp", "XRPUSDT"},
}

func assetSymbol(text string) string {
	t := strings.ToLower(text)
	for _, e := range assetKeywords {
		if strings.Contains(t, e.keyword) {
			return e.symbol
		}
	}
	return ""
}

// Ingestor 每个扫描周期把 CLOB 市场列表与订单簿拼成不可变快照。
// 缺字段、价格非法或已过期的记录直接丢弃并告警，绝不进入扫描。
type Ingestor struct {
	api    MarketAPI
	limits *ratelimit.RateLimitManager
	log    *logrus.Entry
}

// NewIngestor 创建行情摄取器；limits 为共享的 API 限流管理器
func NewIngestor(api MarketAPI, limits *ratelimit.RateLimitManager) *Ingestor {
	return &Ingestor{
		api:    api,
		limits: limits,
		log:    logger.WithField("component", "ingest"),
	}
}

// Markets 拉取全部可交易市场的盘口快照
func (in *Ingestor) Markets(ctx context.Context) ([]domain.Market, error) {
	clobMarkets, err := in.api.GetAllMarkets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch markets")
	}

	var candidates []types.ClobMarket
	var params []types.BookParams
	for _, cm := range clobMarkets {
		if !cm.Active || cm.Closed || !cm.AcceptingOrders || len(cm.Tokens) != 2 {
			continue
		}
		candidates = append(candidates, cm)
		params = append(params,
			types.BookParams{TokenID: cm.Tokens[0].TokenID},
			types.BookParams{TokenID: cm.Tokens[1].TokenID})
	}

	books, err := in.fetchBooks(ctx, params)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	markets := make([]domain.Market, 0, len(candidates))
	dropped := 0
	for i := range candidates {
		m, err := in.build(&candidates[i], books, now)
		if err != nil {
			dropped++
			in.log.WithError(err).
				WithField("market", candidates[i].ConditionID).
				Debug("丢弃无效市场快照")
			continue
		}
		markets = append(markets, *m)
	}
	if dropped > 0 {
		in.log.WithFields(logrus.Fields{
			"dropped": dropped,
			"kept":    len(markets),
		}).Warn("部分市场快照无效已丢弃")
	}
	return markets, nil
}

// fetchBooks 分批拉取订单簿并按 token 索引
func (in *Ingestor) fetchBooks(ctx context.Context, params []types.BookParams) (map[string]*types.OrderBookSummary, error) {
	books := make(map[string]*types.OrderBookSummary, len(params))
	for start := 0; start < len(params); start += bookBatchSize {
		end := start + bookBatchSize
		if end > len(params) {
			end = len(params)
		}
		if err := in.limits.Wait(ctx, bookRateKey); err != nil {
			return nil, err
		}
		batch, err := in.api.GetOrderBooks(ctx, params[start:end])
		if err != nil {
			return nil, errors.Wrap(err, "fetch order books")
		}
		for i := range batch {
			books[batch[i].AssetID] = &batch[i]
		}
	}
	return books, nil
}

// build 把单个 CLOB 市场条目转换为领域快照
func (in *Ingestor) build(cm *types.ClobMarket, books map[string]*types.OrderBookSummary, now time.Time) (*domain.Market, error) {
	yesTok, noTok := splitTokens(cm.Tokens)
	if yesTok.TokenID == "" || noTok.TokenID == "" {
		return nil, errors.New("market tokens incomplete")
	}

	yesBook, ok := books[yesTok.TokenID]
	if !ok {
		return nil, errors.New("missing yes order book")
	}
	noBook, ok := books[noTok.TokenID]
	if !ok {
		return nil, errors.New("missing no order book")
	}

	yesAsk, yesAskSize, yesBid := topOfBook(yesBook)
	noAsk, noAskSize, noBid := topOfBook(noBook)

	var deadline time.Time
	if cm.EndDateISO != "" {
		t, err := time.Parse(time.RFC3339, cm.EndDateISO)
		if err != nil {
			return nil, errors.Wrap(err, "parse end date")
		}
		deadline = t
	}

	m := &domain.Market{
		ID:              cm.ConditionID,
		Slug:            cm.MarketSlug,
		Question:        cm.Question,
		YesAssetID:      yesTok.TokenID,
		NoAssetID:       noTok.TokenID,
		ConditionID:     cm.ConditionID,
		YesAsk:          yesAsk,
		NoAsk:           noAsk,
		YesBid:          yesBid,
		NoBid:           noBid,
		YesAskLiquidity: yesAskSize,
		NoAskLiquidity:  noAskSize,
		Deadline:        deadline,
		Asset:           assetSymbol(cm.Question + " " + cm.MarketSlug),
		Ambiguous:       domain.DetectAmbiguity(cm.Question),
		Timestamp:       now,
	}
	if err := m.Validate(now); err != nil {
		return nil, err
	}
	return m, nil
}

// splitTokens 按 outcome 标签区分 YES/NO；无标签时按顺序兜底
func splitTokens(tokens []types.ClobToken) (yes, no types.ClobToken) {
	for _, tok := range tokens {
		switch {
		case strings.EqualFold(tok.Outcome, "yes"):
			yes = tok
		case strings.EqualFold(tok.Outcome, "no"):
			no = tok
		}
	}
	if yes.TokenID == "" && no.TokenID == "" && len(tokens) == 2 {
		return tokens[0], tokens[1]
	}
	return yes, no
}

// topOfBook 返回最优卖价与该档数量、最优买价。
// 不可解析的档位直接跳过。
func topOfBook(book *types.OrderBookSummary) (bestAsk, askSize, bestBid decimal.Decimal) {
	for _, lvl := range book.Asks {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			continue
		}
		if bestAsk.IsZero() || price.LessThan(bestAsk) {
			bestAsk, askSize = price, size
		}
	}
	for _, lvl := range book.Bids {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		if price.GreaterThan(bestBid) {
			bestBid = price
		}
	}
	return bestAsk, askSize, bestBid
}
