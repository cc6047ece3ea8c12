package engine

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/clob/types"
	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/internal/scanner"
	"github.com/betbot/arbot/pkg/cache"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
)

// QuoteClient 对手平台客户端（Kalshi 风格 REST，价格为整数分）。
// 报价在 TTL 内缓存复用；单个市场拉取失败只跳过该市场，
// 绝不让对手平台故障拖垮扫描周期。
// 下单只支持 FOK 限价，与本平台执行语义对齐。
type QuoteClient struct {
	http   *resty.Client
	venue  string
	feePct decimal.Decimal
	cache  *cache.InMemoryCache[string, scanner.VenueQuote]

	log *logrus.Entry
}

// NewQuoteClient 创建对手平台报价客户端
func NewQuoteClient(cfg config.CrossVenueConfig) *QuoteClient {
	httpClient := resty.New().
		SetBaseURL(cfg.SecondVenueHost).
		SetTimeout(5 * time.Second).
		SetHeader("Accept", "application/json")
	if key := os.Getenv(cfg.SecondVenueKeyEnv); key != "" {
		httpClient.SetHeader("Authorization", "Bearer "+key)
	}

	ttl := time.Duration(cfg.QuoteTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	return &QuoteClient{
		http:   httpClient,
		venue:  cfg.SecondVenueName,
		feePct: decimal.NewFromFloat(cfg.SecondVenueFeePct),
		cache:  cache.NewInMemoryCache[string, scanner.VenueQuote](ttl),
		log:    logger.WithField("component", "cross-quotes"),
	}
}

// venueMarketPayload 对手平台 /markets/{ticker} 响应
type venueMarketPayload struct {
	Market struct {
		Ticker string `json:"ticker"`
		YesBid int64  `json:"yes_bid"`
		YesAsk int64  `json:"yes_ask"`
		NoBid  int64  `json:"no_bid"`
		NoAsk  int64  `json:"no_ask"`
	} `json:"market"`
}

// venueTicker 本平台 slug 到对手平台 ticker 的映射约定
func venueTicker(slug string) string {
	return strings.ToUpper(strings.ReplaceAll(slug, "-", "_"))
}

// Quotes 拉取一批市场的对手平台报价，键为本平台市场 ID
func (q *QuoteClient) Quotes(ctx context.Context, markets []domain.Market) map[string]scanner.VenueQuote {
	out := make(map[string]scanner.VenueQuote)

	for i := range markets {
		if ctx.Err() != nil {
			break
		}
		m := &markets[i]
		if m.Slug == "" {
			continue
		}

		if quote, ok := q.cache.Get(m.ID); ok {
			out[m.ID] = quote
			continue
		}

		quote, err := q.fetch(ctx, m.Slug)
		if err != nil {
			q.log.WithError(err).WithField("market", m.ID).Debug("对手平台报价拉取失败")
			continue
		}

		q.cache.Set(m.ID, *quote, 0)
		out[m.ID] = *quote
	}
	return out
}

func (q *QuoteClient) fetch(ctx context.Context, slug string) (*scanner.VenueQuote, error) {
	var payload venueMarketPayload
	resp, err := q.http.R().
		SetContext(ctx).
		SetResult(&payload).
		Get("/markets/" + venueTicker(slug))
	if err != nil {
		return nil, errors.Wrap(err, "quote request")
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("quote request: http %d", resp.StatusCode())
	}
	if payload.Market.Ticker == "" {
		return nil, errors.New("quote response missing market")
	}

	return &scanner.VenueQuote{
		Venue:     q.venue,
		MarketID:  payload.Market.Ticker,
		YesBid:    centsToPrice(payload.Market.YesBid),
		YesAsk:    centsToPrice(payload.Market.YesAsk),
		NoBid:     centsToPrice(payload.Market.NoBid),
		NoAsk:     centsToPrice(payload.Market.NoAsk),
		FeePct:    q.feePct,
		FetchedAt: time.Now(),
	}, nil
}

func centsToPrice(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}

func priceToCents(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// venueOrderRequest 对手平台 /orders 下单请求
type venueOrderRequest struct {
	Ticker      string `json:"ticker"`
	Action      string `json:"action"` // buy / sell
	Side        string `json:"side"`   // yes / no
	Count       int64  `json:"count"`
	Type        string `json:"type"`
	YesPrice    int64  `json:"yes_price,omitempty"`
	NoPrice     int64  `json:"no_price,omitempty"`
	TimeInForce string `json:"time_in_force"`
	ClientID    string `json:"client_order_id,omitempty"`
}

// venueOrderPayload 对手平台下单响应
type venueOrderPayload struct {
	Order struct {
		OrderID   string `json:"order_id"`
		Status    string `json:"status"`
		FillCount int64  `json:"fill_count"`
	} `json:"order"`
}

// PlaceVenueOrder 在对手平台提交一笔 FOK 限价单。
// 合约只按整数张成交；未成交不算错误，返回 Filled=false。
func (q *QuoteClient) PlaceVenueOrder(ctx context.Context, marketID, outcome string, side types.Side, price, size decimal.Decimal) (*domain.VenueFill, error) {
	count := size.RoundDown(0).IntPart()
	if count <= 0 {
		return nil, errors.New("venue order count is zero")
	}

	req := venueOrderRequest{
		Ticker:      marketID,
		Action:      "buy",
		Side:        outcome,
		Count:       count,
		Type:        "limit",
		TimeInForce: "fill_or_kill",
	}
	if side == types.SideSell {
		req.Action = "sell"
	}
	cents := priceToCents(price)
	if outcome == "no" {
		req.NoPrice = cents
	} else {
		req.YesPrice = cents
	}

	var payload venueOrderPayload
	resp, err := q.http.R().
		SetContext(ctx).
		SetBody(&req).
		SetResult(&payload).
		Post("/orders")
	if err != nil {
		return nil, errors.Wrap(err, "venue order request")
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("venue order request: http %d", resp.StatusCode())
	}

	fill := &domain.VenueFill{OrderID: payload.Order.OrderID}
	if payload.Order.Status != "executed" {
		return fill, nil
	}
	fill.Filled = true
	filled := payload.Order.FillCount
	if filled <= 0 {
		// FOK 已执行即全量成交
		filled = count
	}
	fill.FillSize = decimal.NewFromInt(filled)
	fill.FillPrice = centsToPrice(cents)

	q.log.WithFields(logrus.Fields{
		"market": marketID,
		"action": req.Action,
		"count":  filled,
		"cents":  cents,
	}).Info("对手平台订单成交")
	return fill, nil
}
