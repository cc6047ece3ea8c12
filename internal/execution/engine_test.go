package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/clob/types"
	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/ratelimit"
)

type placedOrder struct {
	TokenID   string
	Side      types.Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	OrderType types.OrderType
}

// stubPlacer 按 tokenID+side 返回预设响应，并记录全部下单
type stubPlacer struct {
	mu        sync.Mutex
	responses map[string]*types.OrderResponse
	errs      map[string]error
	orders    map[string]*types.OpenOrder
	books     map[string]*types.OrderBookSummary
	placed    []placedOrder
	canceled  []string
}

func newStubPlacer() *stubPlacer {
	return &stubPlacer{
		responses: make(map[string]*types.OrderResponse),
		errs:      make(map[string]error),
		orders:    make(map[string]*types.OpenOrder),
		books:     make(map[string]*types.OrderBookSummary),
	}
}

func placeKey(tokenID string, side types.Side) string {
	return tokenID + "|" + string(side)
}

func (p *stubPlacer) set(tokenID string, side types.Side, resp *types.OrderResponse) {
	p.responses[placeKey(tokenID, side)] = resp
}

func (p *stubPlacer) PlaceOrder(ctx context.Context, order *types.UserOrder, orderType types.OrderType) (*types.OrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, placedOrder{
		TokenID:   order.TokenID,
		Side:      order.Side,
		Price:     order.Price,
		Size:      order.Size,
		OrderType: orderType,
	})
	key := placeKey(order.TokenID, order.Side)
	if err := p.errs[key]; err != nil {
		return nil, err
	}
	if resp := p.responses[key]; resp != nil {
		return resp, nil
	}
	return &types.OrderResponse{Success: false, ErrorMsg: "no liquidity"}, nil
}

func (p *stubPlacer) GetOrder(ctx context.Context, orderID string) (*types.OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if order := p.orders[orderID]; order != nil {
		return order, nil
	}
	return nil, errors.New("order not found")
}

func (p *stubPlacer) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, orderID)
	return nil
}

func (p *stubPlacer) GetOrderBook(ctx context.Context, tokenID string) (*types.OrderBookSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if book := p.books[tokenID]; book != nil {
		return book, nil
	}
	return nil, errors.New("book unavailable")
}

func (p *stubPlacer) find(tokenID string, side types.Side) *placedOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.placed {
		if p.placed[i].TokenID == tokenID && p.placed[i].Side == side {
			return &p.placed[i]
		}
	}
	return nil
}

// filledBuy 构造一笔全量成交的买单响应
func filledBuy(orderID string, price, size decimal.Decimal) *types.OrderResponse {
	return &types.OrderResponse{
		Success:      true,
		OrderID:      orderID,
		Status:       "matched",
		MakingAmount: price.Mul(size).String(),
		TakingAmount: size.String(),
	}
}

// filledSell 构造一笔全量成交的卖单响应
func filledSell(orderID string, price, size decimal.Decimal) *types.OrderResponse {
	return &types.OrderResponse{
		Success:      true,
		OrderID:      orderID,
		Status:       "matched",
		MakingAmount: size.String(),
		TakingAmount: price.Mul(size).String(),
	}
}

// killed 构造 FOK 未成交（整单取消）的响应
func killed(orderID string) *types.OrderResponse {
	return &types.OrderResponse{Success: true, OrderID: orderID, Status: "unmatched"}
}

func execMarket() *domain.Market {
	now := time.Now()
	return &domain.Market{
		ID:              "mkt-1",
		YesAssetID:      "tok-yes",
		NoAssetID:       "tok-no",
		YesAsk:          decimal.RequireFromString("0.48"),
		NoAsk:           decimal.RequireFromString("0.47"),
		YesBid:          decimal.RequireFromString("0.46"),
		NoBid:           decimal.RequireFromString("0.45"),
		YesAskLiquidity: decimal.NewFromInt(1000),
		NoAskLiquidity:  decimal.NewFromInt(1000),
		Deadline:        now.Add(time.Hour),
		Timestamp:       now,
	}
}

func pairOpportunity(m *domain.Market) *domain.Opportunity {
	opp := domain.NewOpportunity(domain.StrategyPairedArb, m)
	opp.LegAPrice = m.YesAsk
	opp.LegBPrice = m.NoAsk
	opp.LegAFee = decimal.RequireFromString("0.001")
	opp.LegBFee = decimal.RequireFromString("0.001")
	// 0.48 + 0.47 + 0.001 + 0.001
	opp.TotalCost = decimal.RequireFromString("0.952")
	opp.ExpectedProfit = decimal.RequireFromString("0.048")
	return opp
}

func newTestEngine(placer OrderClient, sink SlippageSink) *Engine {
	cfg := config.ExecutionConfig{}
	cfg.Defaults()
	return NewEngine(cfg, placer, sink, ratelimit.NewRateLimitManager())
}

func TestExecutePairBothFilled(t *testing.T) {
	m := execMarket()
	opp := pairOpportunity(m)
	shares := decimal.NewFromInt(50)

	placer := newStubPlacer()
	placer.set("tok-yes", types.SideBuy, filledBuy("o-yes", m.YesAsk, shares))
	placer.set("tok-no", types.SideBuy, filledBuy("o-no", m.NoAsk, shares))

	eng := newTestEngine(placer, nil)
	// 47.6 / 0.952 = 50 份
	result, err := eng.ExecutePair(context.Background(), opp, decimal.RequireFromString("47.6"))
	if err != nil {
		t.Fatalf("ExecutePair: %v", err)
	}
	if result.Status != domain.TradeStatusSuccess {
		t.Fatalf("双腿成交应为 success: %s", result.Status)
	}
	if !result.WasSuccessful() {
		t.Fatalf("WasSuccessful 应为 true")
	}
	// (1 − 0.952) × 50 = 2.4
	if !result.NetProfit.Equal(decimal.RequireFromString("2.4")) {
		t.Fatalf("净收益应为 2.4: %s", result.NetProfit)
	}

	for _, tok := range []string{"tok-yes", "tok-no"} {
		o := placer.find(tok, types.SideBuy)
		if o == nil {
			t.Fatalf("缺少 %s 买单", tok)
		}
		if o.OrderType != types.OrderTypeFOK {
			t.Fatalf("入场腿必须 FOK: %s", o.OrderType)
		}
		if !o.Size.Equal(shares) {
			t.Fatalf("两腿份额应相等: %s", o.Size)
		}
	}
}

func TestExecutePairNeitherFilled(t *testing.T) {
	m := execMarket()
	opp := pairOpportunity(m)

	placer := newStubPlacer()
	placer.set("tok-yes", types.SideBuy, killed("o-yes"))
	placer.set("tok-no", types.SideBuy, killed("o-no"))

	eng := newTestEngine(placer, nil)
	result, err := eng.ExecutePair(context.Background(), opp, decimal.RequireFromString("47.6"))
	if err != nil {
		t.Fatalf("ExecutePair: %v", err)
	}
	if result.Status != domain.TradeStatusFailed {
		t.Fatalf("双腿都未成交应为 failed: %s", result.Status)
	}
	if !result.NetProfit.IsZero() {
		t.Fatalf("未成交净收益应为 0: %s", result.NetProfit)
	}
	if result.UnwindAttempted {
		t.Fatalf("没有裸露不应平仓")
	}
}

func TestExecutePairOneLegUnwound(t *testing.T) {
	m := execMarket()
	opp := pairOpportunity(m)
	shares := decimal.NewFromInt(50)

	placer := newStubPlacer()
	placer.set("tok-yes", types.SideBuy, filledBuy("o-yes", m.YesAsk, shares))
	placer.set("tok-no", types.SideBuy, killed("o-no"))
	// 平仓价 = YesBid 0.46 − 0.01 = 0.45
	unwindPrice := decimal.RequireFromString("0.45")
	placer.set("tok-yes", types.SideSell, filledSell("o-unwind", unwindPrice, shares))

	eng := newTestEngine(placer, nil)
	result, err := eng.ExecutePair(context.Background(), opp, decimal.RequireFromString("47.6"))
	if err != nil {
		t.Fatalf("ExecutePair: %v", err)
	}
	if result.Status != domain.TradeStatusUnwound {
		t.Fatalf("单腿平仓后应为 unwound: %s", result.Status)
	}
	if !result.OneLegExposure() {
		t.Fatalf("应记录单腿裸露")
	}
	if !result.UnwindAttempted || !result.UnwindFilled {
		t.Fatalf("平仓标记错误: attempted=%v filled=%v", result.UnwindAttempted, result.UnwindFilled)
	}
	if result.WasSuccessful() {
		t.Fatalf("单腿裸露绝不算成功")
	}
	// 卖回 0.45×50 − 买入 0.48×50 = −1.5
	if !result.NetProfit.Equal(decimal.RequireFromString("-1.5")) {
		t.Fatalf("平仓损失应为 −1.5: %s", result.NetProfit)
	}

	uw := placer.find("tok-yes", types.SideSell)
	if uw == nil {
		t.Fatalf("缺少平仓卖单")
	}
	if uw.OrderType != types.OrderTypeFAK {
		t.Fatalf("平仓应用 FAK: %s", uw.OrderType)
	}
	if !uw.Price.Equal(unwindPrice) {
		t.Fatalf("平仓价应为 bestBid 减让价: %s", uw.Price)
	}
}

func TestExecutePairUnwindNotFilled(t *testing.T) {
	m := execMarket()
	opp := pairOpportunity(m)
	shares := decimal.NewFromInt(50)

	placer := newStubPlacer()
	placer.set("tok-yes", types.SideBuy, filledBuy("o-yes", m.YesAsk, shares))
	placer.set("tok-no", types.SideBuy, killed("o-no"))
	placer.set("tok-yes", types.SideSell, killed("o-unwind"))

	eng := newTestEngine(placer, nil)
	result, err := eng.ExecutePair(context.Background(), opp, decimal.RequireFromString("47.6"))
	if err != nil {
		t.Fatalf("ExecutePair: %v", err)
	}
	if result.Status != domain.TradeStatusFailed {
		t.Fatalf("平仓失败应为 failed: %s", result.Status)
	}
	if !result.UnwindAttempted || result.UnwindFilled {
		t.Fatalf("平仓标记错误")
	}
	// 全额损失 0.48×50 = 24
	if !result.NetProfit.Equal(decimal.RequireFromString("-24")) {
		t.Fatalf("裸露损失应为 −24: %s", result.NetProfit)
	}
}

func TestExecuteSingleFilled(t *testing.T) {
	m := execMarket()
	opp := domain.NewOpportunity(domain.StrategyCertainty, m)
	opp.LegAAssetID = "tok-yes"
	opp.LegAPrice = decimal.RequireFromString("0.98")
	opp.LegAFee = decimal.Zero
	opp.TotalCost = decimal.RequireFromString("0.98")
	opp.ExpectedProfit = decimal.RequireFromString("0.02")

	shares := decimal.NewFromInt(50)
	placer := newStubPlacer()
	placer.set("tok-yes", types.SideBuy, filledBuy("o-1", opp.LegAPrice, shares))

	eng := newTestEngine(placer, nil)
	// 49 / 0.98 = 50 份
	result, err := eng.ExecuteSingle(context.Background(), opp, decimal.NewFromInt(49))
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if result.Status != domain.TradeStatusSuccess {
		t.Fatalf("应为 success: %s", result.Status)
	}
	if result.OneLegExposure() {
		t.Fatalf("单腿路径不应报告裸露")
	}
	// 收益等裁决赎回后落袋，成交时绝不入账
	if !result.NetProfit.IsZero() {
		t.Fatalf("方向性成交净收益应为 0: %s", result.NetProfit)
	}
	if result.Opened == nil {
		t.Fatalf("方向性成交应登记持仓")
	}
	// 0.98 × 50 = 49
	if !result.Opened.CostUSD.Equal(decimal.NewFromInt(49)) {
		t.Fatalf("建仓成本应为 49: %s", result.Opened.CostUSD)
	}
	if !result.Opened.Shares.Equal(shares) {
		t.Fatalf("持仓份额应为 50: %s", result.Opened.Shares)
	}
	if result.Opened.AssetID != "tok-yes" {
		t.Fatalf("持仓 token 错误: %s", result.Opened.AssetID)
	}
}

func TestExecuteSingleDelayedOrderResolved(t *testing.T) {
	m := execMarket()
	opp := domain.NewOpportunity(domain.StrategyCertainty, m)
	opp.LegAAssetID = "tok-yes"
	opp.LegAPrice = decimal.RequireFromString("0.98")
	opp.LegAFee = decimal.Zero
	opp.TotalCost = decimal.RequireFromString("0.98")
	opp.ExpectedProfit = decimal.RequireFromString("0.02")

	placer := newStubPlacer()
	placer.set("tok-yes", types.SideBuy, &types.OrderResponse{
		Success: true,
		OrderID: "o-delayed",
		Status:  "delayed",
	})
	placer.orders["o-delayed"] = &types.OpenOrder{
		ID:           "o-delayed",
		Status:       "matched",
		Price:        "0.98",
		OriginalSize: "50",
		SizeMatched:  "50",
	}

	eng := newTestEngine(placer, nil)
	result, err := eng.ExecuteSingle(context.Background(), opp, decimal.NewFromInt(49))
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if result.Status != domain.TradeStatusSuccess {
		t.Fatalf("延迟订单成交后应为 success: %s", result.Status)
	}
	if !result.LegA.FillSize.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("成交量应取订单查询结果: %s", result.LegA.FillSize)
	}
}

func TestExecuteSingleNotFilled(t *testing.T) {
	m := execMarket()
	opp := domain.NewOpportunity(domain.StrategyLatency, m)
	opp.LegAAssetID = "tok-no"
	opp.LegAPrice = decimal.RequireFromString("0.45")
	opp.LegAFee = decimal.Zero
	opp.ExpectedProfit = decimal.RequireFromString("0.01")

	placer := newStubPlacer()
	placer.set("tok-no", types.SideBuy, killed("o-1"))

	eng := newTestEngine(placer, nil)
	result, err := eng.ExecuteSingle(context.Background(), opp, decimal.NewFromInt(20))
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if result.Status != domain.TradeStatusFailed {
		t.Fatalf("未成交应为 failed: %s", result.Status)
	}
	if result.UnwindAttempted {
		t.Fatalf("未成交没有裸露，不应平仓")
	}
}

type recordingSink struct {
	mu      sync.Mutex
	records int
}

func (r *recordingSink) RecordSlippage(strategy domain.Strategy, marketID string, expected, actual decimal.Decimal) {
	r.mu.Lock()
	r.records++
	r.mu.Unlock()
}

func TestExecutePairSlippageLoggedNotReversed(t *testing.T) {
	m := execMarket()
	opp := pairOpportunity(m)
	shares := decimal.NewFromInt(50)

	placer := newStubPlacer()
	// YES 腿实际成交 0.49，超出 0.48×1.001 的容忍
	placer.set("tok-yes", types.SideBuy, filledBuy("o-yes", decimal.RequireFromString("0.49"), shares))
	placer.set("tok-no", types.SideBuy, filledBuy("o-no", m.NoAsk, shares))

	sink := &recordingSink{}
	eng := newTestEngine(placer, sink)
	result, err := eng.ExecutePair(context.Background(), opp, decimal.RequireFromString("47.6"))
	if err != nil {
		t.Fatalf("ExecutePair: %v", err)
	}
	// 滑点只记录，绝不反向平仓
	if result.Status != domain.TradeStatusSuccess {
		t.Fatalf("滑点超限不影响终态: %s", result.Status)
	}
	if result.UnwindAttempted {
		t.Fatalf("滑点超限不应触发平仓")
	}
	if sink.records != 1 {
		t.Fatalf("应记录 1 次滑点: %d", sink.records)
	}
}

type venueOrder struct {
	MarketID string
	Outcome  string
	Side     types.Side
	Price    decimal.Decimal
	Size     decimal.Decimal
}

// stubVenue 按 side 返回预设成交，并记录对手平台全部下单
type stubVenue struct {
	mu     sync.Mutex
	fills  map[types.Side]*domain.VenueFill
	placed []venueOrder
}

func newStubVenue() *stubVenue {
	return &stubVenue{fills: make(map[types.Side]*domain.VenueFill)}
}

func (v *stubVenue) set(side types.Side, fill *domain.VenueFill) {
	v.fills[side] = fill
}

func (v *stubVenue) PlaceVenueOrder(ctx context.Context, marketID, outcome string, side types.Side, price, size decimal.Decimal) (*domain.VenueFill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.placed = append(v.placed, venueOrder{
		MarketID: marketID,
		Outcome:  outcome,
		Side:     side,
		Price:    price,
		Size:     size,
	})
	if fill := v.fills[side]; fill != nil {
		return fill, nil
	}
	return &domain.VenueFill{OrderID: "v-killed"}, nil
}

func (v *stubVenue) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.placed)
}

func crossOpportunity(m *domain.Market) *domain.Opportunity {
	opp := domain.NewOpportunity(domain.StrategyCrossVenue, m)
	opp.LegAAssetID = m.YesAssetID
	opp.LegAPrice = m.YesAsk // 0.48
	opp.LegAFee = decimal.Zero
	opp.LegBPrice = decimal.RequireFromString("0.55")
	opp.LegBFee = decimal.Zero
	// 0.48 买入 + 0.02 出金成本
	opp.TotalCost = decimal.RequireFromString("0.50")
	opp.ExpectedProfit = decimal.RequireFromString("0.05")
	opp.ProfitPct = decimal.RequireFromString("0.10")
	opp.SecondVenue = "kalshi"
	opp.SecondVenueMarket = "MKT_1"
	return opp
}

func TestExecuteCrossBothVenuesFilled(t *testing.T) {
	m := execMarket()
	opp := crossOpportunity(m)
	shares := decimal.NewFromInt(50)

	placer := newStubPlacer()
	placer.set("tok-yes", types.SideBuy, filledBuy("o-local", opp.LegAPrice, shares))
	venue := newStubVenue()
	venue.set(types.SideSell, &domain.VenueFill{
		OrderID:   "v-sell",
		Filled:    true,
		FillPrice: opp.LegBPrice,
		FillSize:  shares,
	})

	eng := newTestEngine(placer, nil)
	eng.SetCrossVenue(venue)
	// 25 / 0.50 = 50 份
	result, err := eng.Execute(context.Background(), opp, decimal.NewFromInt(25))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != domain.TradeStatusSuccess {
		t.Fatalf("双平台成交应为 success: %s", result.Status)
	}
	// 本平台买单与对手平台卖单必须都已提交
	if local := placer.find("tok-yes", types.SideBuy); local == nil {
		t.Fatalf("缺少本平台买单")
	}
	if venue.count() != 1 {
		t.Fatalf("对手平台应恰好下 1 单: %d", venue.count())
	}
	sell := venue.placed[0]
	if sell.Side != types.SideSell || sell.MarketID != "MKT_1" || sell.Outcome != "yes" {
		t.Fatalf("对手平台卖单参数错误: %+v", sell)
	}
	if !sell.Size.Equal(shares) {
		t.Fatalf("两腿份额应相等: %s", sell.Size)
	}
	// (0.55 − 0.48 − 0.02) × 50 = 2.5
	if !result.NetProfit.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("价差收益应为 2.5: %s", result.NetProfit)
	}
}

func TestExecuteCrossWithoutVenueClient(t *testing.T) {
	m := execMarket()
	opp := crossOpportunity(m)

	eng := newTestEngine(newStubPlacer(), nil)
	if _, err := eng.Execute(context.Background(), opp, decimal.NewFromInt(25)); !errors.Is(err, ErrCrossVenueUnavailable) {
		t.Fatalf("无对手平台通道应拒绝执行: %v", err)
	}
}

func TestExecuteCrossLocalLegOnlyUnwound(t *testing.T) {
	m := execMarket()
	opp := crossOpportunity(m)
	shares := decimal.NewFromInt(50)

	placer := newStubPlacer()
	placer.set("tok-yes", types.SideBuy, filledBuy("o-local", opp.LegAPrice, shares))
	// 实时盘口买一 0.47 ⇒ 平仓价 0.46
	placer.books["tok-yes"] = &types.OrderBookSummary{
		Bids: []types.OrderSummary{{Price: "0.47", Size: "500"}},
	}
	unwindPrice := decimal.RequireFromString("0.46")
	placer.set("tok-yes", types.SideSell, filledSell("o-unwind", unwindPrice, shares))
	venue := newStubVenue() // 对手平台 FOK 未成交

	eng := newTestEngine(placer, nil)
	eng.SetCrossVenue(venue)
	result, err := eng.Execute(context.Background(), opp, decimal.NewFromInt(25))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != domain.TradeStatusUnwound {
		t.Fatalf("本平台单腿平仓后应为 unwound: %s", result.Status)
	}
	if result.WasSuccessful() {
		t.Fatalf("单腿裸露绝不算成功")
	}
	uw := placer.find("tok-yes", types.SideSell)
	if uw == nil {
		t.Fatalf("缺少本平台平仓卖单")
	}
	if !uw.Price.Equal(unwindPrice) {
		t.Fatalf("平仓价应取实时买一减让价: %s", uw.Price)
	}
}

func TestExecuteCrossVenueLegOnlyBoughtBack(t *testing.T) {
	m := execMarket()
	opp := crossOpportunity(m)
	shares := decimal.NewFromInt(50)

	placer := newStubPlacer()
	placer.set("tok-yes", types.SideBuy, killed("o-local"))
	venue := newStubVenue()
	venue.set(types.SideSell, &domain.VenueFill{
		OrderID:   "v-sell",
		Filled:    true,
		FillPrice: opp.LegBPrice,
		FillSize:  shares,
	})
	// 回补价 = 0.55 + 0.01
	venue.set(types.SideBuy, &domain.VenueFill{
		OrderID:   "v-buyback",
		Filled:    true,
		FillPrice: decimal.RequireFromString("0.56"),
		FillSize:  shares,
	})

	eng := newTestEngine(placer, nil)
	eng.SetCrossVenue(venue)
	result, err := eng.Execute(context.Background(), opp, decimal.NewFromInt(25))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != domain.TradeStatusUnwound {
		t.Fatalf("对手平台回补后应为 unwound: %s", result.Status)
	}
	if !result.UnwindAttempted || !result.UnwindFilled {
		t.Fatalf("回补标记错误: attempted=%v filled=%v", result.UnwindAttempted, result.UnwindFilled)
	}
	if venue.count() != 2 {
		t.Fatalf("对手平台应有卖出与回补两单: %d", venue.count())
	}
	buyback := venue.placed[1]
	if buyback.Side != types.SideBuy || !buyback.Price.Equal(decimal.RequireFromString("0.56")) {
		t.Fatalf("回补单参数错误: %+v", buyback)
	}
	// (0.55 − 0.56) × 50 = −0.5
	if !result.NetProfit.Equal(decimal.RequireFromString("-0.5")) {
		t.Fatalf("回补损失应为 −0.5: %s", result.NetProfit)
	}
}

func TestExecutePairRejectsBelowMinimumOrder(t *testing.T) {
	m := execMarket()
	opp := pairOpportunity(m)

	eng := newTestEngine(newStubPlacer(), nil)
	if _, err := eng.ExecutePair(context.Background(), opp, decimal.NewFromInt(2)); err == nil {
		t.Fatalf("低于最小下单额应报错")
	}
}
