package execution

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	clobclient "github.com/betbot/arbot/clob/client"
	"github.com/betbot/arbot/clob/types"
	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
	"github.com/betbot/arbot/pkg/ratelimit"
)

// OrderClient 订单与盘口接口（由 clob 客户端实现）
type OrderClient interface {
	PlaceOrder(ctx context.Context, order *types.UserOrder, orderType types.OrderType) (*types.OrderResponse, error)
	GetOrder(ctx context.Context, orderID string) (*types.OpenOrder, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderBook(ctx context.Context, tokenID string) (*types.OrderBookSummary, error)
}

// CrossVenueClient 对手平台下单接口（由跨平台报价客户端实现）
type CrossVenueClient interface {
	PlaceVenueOrder(ctx context.Context, marketID, outcome string, side types.Side, price, size decimal.Decimal) (*domain.VenueFill, error)
}

// SlippageSink 滑点统计落点；nil 时不统计
type SlippageSink interface {
	RecordSlippage(strategy domain.Strategy, marketID string, expected, actual decimal.Decimal)
}

var (
	// ErrUnsupportedStrategy 机会变体与执行路径不匹配
	ErrUnsupportedStrategy = errors.New("unsupported strategy for execution")
	// ErrCrossVenueUnavailable 未配置对手平台下单通道
	ErrCrossVenueUnavailable = errors.New("cross-venue order client not configured")
)

// Engine 原子化执行引擎。
// 所有腿一律 FOK，绝不接受部分成交；同一市场同一时刻只允许一笔执行。
// 单腿裸露是关键路径：立即按 bestBid−offset 紧急平仓，
// 无论平仓结果如何该笔都计为失败。
type Engine struct {
	placer      OrderClient
	crossPlacer CrossVenueClient
	cfg         config.ExecutionConfig
	inflight    *InFlightDeduper
	slippage    SlippageSink
	limits      *ratelimit.RateLimitManager

	slippageTol decimal.Decimal
	unwindOff   decimal.Decimal
	minOrder    decimal.Decimal

	log *logrus.Entry
}

// NewEngine 创建执行引擎；limits 为共享的 API 限流管理器
func NewEngine(cfg config.ExecutionConfig, placer OrderClient, slippage SlippageSink, limits *ratelimit.RateLimitManager) *Engine {
	return &Engine{
		placer:      placer,
		cfg:         cfg,
		inflight:    NewInFlightDeduper(time.Duration(cfg.DedupeTTLSeconds)*time.Second, 64),
		slippage:    slippage,
		limits:      limits,
		slippageTol: decimal.NewFromFloat(cfg.SlippageTol),
		unwindOff:   decimal.NewFromFloat(cfg.UnwindBidOffset),
		minOrder:    decimal.NewFromFloat(cfg.MinOrderUSD),
		log:         logger.WithField("component", "execution"),
	}
}

// SetCrossVenue 配置对手平台下单通道（跨平台变体启用时调用）
func (e *Engine) SetCrossVenue(client CrossVenueClient) {
	e.crossPlacer = client
}

// Execute 按机会变体分发执行路径
func (e *Engine) Execute(ctx context.Context, opp *domain.Opportunity, sizeUSD decimal.Decimal) (*domain.TradeResult, error) {
	switch opp.Strategy {
	case domain.StrategyPairedArb:
		return e.ExecutePair(ctx, opp, sizeUSD)
	case domain.StrategyLatency, domain.StrategyCertainty:
		return e.ExecuteSingle(ctx, opp, sizeUSD)
	case domain.StrategyCrossVenue:
		return e.ExecuteCross(ctx, opp, sizeUSD)
	}
	return nil, errors.Wrapf(ErrUnsupportedStrategy, "strategy=%s", opp.Strategy)
}

// ExecutePair 同市场 YES+NO 双腿并发 FOK。
// 恰好一腿成交 ⇒ 紧急平仓并记为失败；双腿成交 ⇒ 校验滑点（只记录，不回撤）。
func (e *Engine) ExecutePair(ctx context.Context, opp *domain.Opportunity, sizeUSD decimal.Decimal) (*domain.TradeResult, error) {
	m := opp.Market
	if m == nil {
		return nil, errors.New("opportunity has no market snapshot")
	}
	if opp.TotalCost.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("opportunity has no pair cost")
	}
	if sizeUSD.LessThan(e.minOrder) {
		return nil, errors.Errorf("size %s below minimum order %s", sizeUSD, e.minOrder)
	}

	if err := e.inflight.TryAcquire(m.ID); err != nil {
		return nil, err
	}
	defer e.inflight.Release(m.ID)

	// 美元规模换算为两腿等量份额
	shares := sizeUSD.Div(opp.TotalCost).RoundDown(2)
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("computed share size is zero")
	}

	result := &domain.TradeResult{
		OpportunityID: opp.ID,
		Strategy:      opp.Strategy,
		MarketID:      m.ID,
		StartedAt:     time.Now(),
	}

	legA := domain.OrderIntent{
		MarketID:    m.ID,
		AssetID:     m.YesAssetID,
		Side:        types.SideBuy,
		LimitPrice:  opp.LegAPrice,
		Size:        shares,
		SlippageTol: e.slippageTol,
		ClientID:    opp.ID + "-a",
	}
	legB := domain.OrderIntent{
		MarketID:    m.ID,
		AssetID:     m.NoAssetID,
		Side:        types.SideBuy,
		LimitPrice:  opp.LegBPrice,
		Size:        shares,
		SlippageTol: e.slippageTol,
		ClientID:    opp.ID + "-b",
	}

	// 双腿并发提交，压缩跨腿时差
	var wg sync.WaitGroup
	errC := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.LegA = e.placeLeg(ctx, legA, types.OrderTypeFOK)
		if result.LegA.Err != "" {
			errC <- errors.New(result.LegA.Err)
		}
	}()
	go func() {
		defer wg.Done()
		result.LegB = e.placeLeg(ctx, legB, types.OrderTypeFOK)
		if result.LegB.Err != "" {
			errC <- errors.New(result.LegB.Err)
		}
	}()
	wg.Wait()
	close(errC)
	for err := range errC {
		e.log.WithError(err).WithField("market", m.ID).Warn("配对腿提交失败")
	}

	switch {
	case result.LegA.Filled && result.LegB.Filled:
		e.settleBothFilled(opp, result)
	case result.LegA.Filled != result.LegB.Filled:
		e.unwindOneLeg(ctx, m, result)
	default:
		result.Status = domain.TradeStatusFailed
		result.RealizedProfit = decimal.Zero
		result.NetProfit = decimal.Zero
	}

	result.FinishedAt = time.Now()
	return result, nil
}

// ExecuteSingle 方向性变体的单腿 FOK
func (e *Engine) ExecuteSingle(ctx context.Context, opp *domain.Opportunity, sizeUSD decimal.Decimal) (*domain.TradeResult, error) {
	m := opp.Market
	if m == nil {
		return nil, errors.New("opportunity has no market snapshot")
	}
	if opp.LegAAssetID == "" || opp.LegAPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("opportunity has no executable leg")
	}
	if sizeUSD.LessThan(e.minOrder) {
		return nil, errors.Errorf("size %s below minimum order %s", sizeUSD, e.minOrder)
	}

	if err := e.inflight.TryAcquire(m.ID); err != nil {
		return nil, err
	}
	defer e.inflight.Release(m.ID)

	unitCost := opp.LegAPrice.Add(opp.LegAPrice.Mul(opp.LegAFee))
	shares := sizeUSD.Div(unitCost).RoundDown(2)
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("computed share size is zero")
	}

	result := &domain.TradeResult{
		OpportunityID: opp.ID,
		Strategy:      opp.Strategy,
		MarketID:      m.ID,
		StartedAt:     time.Now(),
	}

	intent := domain.OrderIntent{
		MarketID:    m.ID,
		AssetID:     opp.LegAAssetID,
		Side:        types.SideBuy,
		LimitPrice:  opp.LegAPrice,
		Size:        shares,
		SlippageTol: e.slippageTol,
		ClientID:    opp.ID + "-a",
	}
	result.LegA = e.placeLeg(ctx, intent, types.OrderTypeFOK)
	// 单腿路径 LegB 置为「已满足」占位，避免被误判为单腿裸露
	result.LegB = domain.LegResult{Filled: result.LegA.Filled}

	if !result.LegA.Filled {
		result.Status = domain.TradeStatusFailed
		result.FinishedAt = time.Now()
		return result, nil
	}

	e.checkSlippage(opp, &result.LegA)
	result.Status = domain.TradeStatusSuccess
	// 方向性持仓的损益要等市场裁决赎回后才落袋，这里只记建仓成本
	result.RealizedProfit = decimal.Zero
	result.NetProfit = decimal.Zero
	result.Opened = &domain.Position{
		ID:          opp.ID,
		MarketID:    m.ID,
		ConditionID: m.ConditionID,
		AssetID:     opp.LegAAssetID,
		Strategy:    opp.Strategy,
		Shares:      result.LegA.FillSize,
		CostUSD:     result.LegA.FillPrice.Mul(result.LegA.FillSize).Mul(decimal.NewFromInt(1).Add(opp.LegAFee)),
		Deadline:    m.Deadline,
		OpenedAt:    result.StartedAt,
	}
	result.FinishedAt = time.Now()
	return result, nil
}

// ExecuteCross 跨平台双腿：本平台 FOK 买入 + 对手平台 FOK 卖出并发提交。
// 两腿都成交才是套利；只有本平台腿成交走常规紧急平仓，
// 只有对手平台腿成交则在对手平台原价回补。
func (e *Engine) ExecuteCross(ctx context.Context, opp *domain.Opportunity, sizeUSD decimal.Decimal) (*domain.TradeResult, error) {
	if e.crossPlacer == nil {
		return nil, ErrCrossVenueUnavailable
	}
	m := opp.Market
	if m == nil {
		return nil, errors.New("opportunity has no market snapshot")
	}
	if opp.LegAAssetID == "" || opp.LegAPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("opportunity has no executable leg")
	}
	if opp.SecondVenueMarket == "" || opp.LegBPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("opportunity has no second-venue leg")
	}
	if opp.TotalCost.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("opportunity has no total cost")
	}
	if sizeUSD.LessThan(e.minOrder) {
		return nil, errors.Errorf("size %s below minimum order %s", sizeUSD, e.minOrder)
	}

	if err := e.inflight.TryAcquire(m.ID); err != nil {
		return nil, err
	}
	defer e.inflight.Release(m.ID)

	shares := sizeUSD.Div(opp.TotalCost).RoundDown(2)
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("computed share size is zero")
	}

	outcome := "yes"
	if opp.LegAAssetID == m.NoAssetID {
		outcome = "no"
	}

	result := &domain.TradeResult{
		OpportunityID: opp.ID,
		Strategy:      opp.Strategy,
		MarketID:      m.ID,
		StartedAt:     time.Now(),
	}

	buyLeg := domain.OrderIntent{
		MarketID:    m.ID,
		AssetID:     opp.LegAAssetID,
		Side:        types.SideBuy,
		LimitPrice:  opp.LegAPrice,
		Size:        shares,
		SlippageTol: e.slippageTol,
		ClientID:    opp.ID + "-a",
	}

	// 双平台并发提交，压缩跨腿时差
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.LegA = e.placeLeg(ctx, buyLeg, types.OrderTypeFOK)
	}()
	go func() {
		defer wg.Done()
		result.LegB = e.placeVenueLeg(ctx, opp, outcome, types.SideSell, opp.LegBPrice, shares, opp.ID+"-b")
	}()
	wg.Wait()

	for _, leg := range []*domain.LegResult{&result.LegA, &result.LegB} {
		if leg.Err != "" {
			e.log.WithField("market", m.ID).WithField("err", leg.Err).Warn("跨平台腿提交失败")
		}
	}

	switch {
	case result.LegA.Filled && result.LegB.Filled:
		e.settleCrossFilled(opp, result)
	case result.LegA.Filled:
		e.unwindOneLeg(ctx, m, result)
	case result.LegB.Filled:
		e.unwindCrossLeg(ctx, opp, outcome, result)
	default:
		result.Status = domain.TradeStatusFailed
		result.RealizedProfit = decimal.Zero
		result.NetProfit = decimal.Zero
	}

	result.FinishedAt = time.Now()
	return result, nil
}

// placeVenueLeg 在对手平台提交一条腿并折算为统一的腿结果
func (e *Engine) placeVenueLeg(ctx context.Context, opp *domain.Opportunity, outcome string, side types.Side, price, size decimal.Decimal, clientID string) domain.LegResult {
	res := domain.LegResult{Intent: domain.OrderIntent{
		MarketID:    opp.SecondVenueMarket,
		AssetID:     opp.SecondVenueMarket,
		Side:        side,
		LimitPrice:  price,
		Size:        size,
		SlippageTol: e.slippageTol,
		ClientID:    clientID,
	}}

	legCtx, cancel := context.WithTimeout(ctx, e.cfg.LegTimeout())
	defer cancel()

	fill, err := e.crossPlacer.PlaceVenueOrder(legCtx, opp.SecondVenueMarket, outcome, side, price, size)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.OrderID = fill.OrderID
	if !fill.Filled {
		return res
	}
	res.Filled = true
	res.FillPrice = fill.FillPrice
	res.FillSize = fill.FillSize
	return res
}

// settleCrossFilled 双平台成交：按实际成交价与费率计算价差收益
func (e *Engine) settleCrossFilled(opp *domain.Opportunity, result *domain.TradeResult) {
	e.checkSlippage(opp, &result.LegA)
	e.checkSlippage(opp, &result.LegB)

	shares := decimal.Min(result.LegA.FillSize, result.LegB.FillSize)
	// 出金/时间成本 = 扫描时总成本里两腿价费之外的部分
	extra := opp.TotalCost.
		Sub(opp.LegAPrice.Mul(decimal.NewFromInt(1).Add(opp.LegAFee))).
		Sub(opp.LegBPrice.Mul(opp.LegBFee))
	perShare := result.LegB.FillPrice.
		Sub(result.LegA.FillPrice.Mul(decimal.NewFromInt(1).Add(opp.LegAFee))).
		Sub(result.LegB.FillPrice.Mul(opp.LegBFee)).
		Sub(extra)

	result.Status = domain.TradeStatusSuccess
	result.RealizedProfit = perShare.Mul(shares)
	result.NetProfit = result.RealizedProfit
}

// unwindCrossLeg 只有对手平台卖出腿成交时的紧急回补：
// 在对手平台按卖价加让价反向买回，出清裸空头。
func (e *Engine) unwindCrossLeg(ctx context.Context, opp *domain.Opportunity, outcome string, result *domain.TradeResult) {
	sold := result.LegB
	price := opp.LegBPrice.Add(e.unwindOff)
	if ceiling := decimal.NewFromFloat(0.99); price.GreaterThan(ceiling) {
		price = ceiling
	}

	e.log.WithFields(logrus.Fields{
		"venue":        opp.SecondVenue,
		"market":       opp.SecondVenueMarket,
		"sold_size":    sold.FillSize.String(),
		"unwind_price": price.String(),
	}).Error("对手平台单腿裸露，提交紧急回补")

	result.UnwindAttempted = true
	buyback := e.placeVenueLeg(ctx, opp, outcome, types.SideBuy, price, sold.FillSize, result.OpportunityID+"-unwind")

	proceeds := sold.FillPrice.Mul(sold.FillSize)
	if buyback.Filled {
		result.UnwindFilled = true
		result.Status = domain.TradeStatusUnwound
		result.RealizedProfit = proceeds.Sub(buyback.FillPrice.Mul(buyback.FillSize))
	} else {
		// 回补失败：按对手平台满额赔付的最坏负债入账，留给人工处理
		result.Status = domain.TradeStatusFailed
		result.RealizedProfit = proceeds.Sub(sold.FillSize)
		e.log.WithField("market", opp.SecondVenueMarket).Error("对手平台回补未成交，空头裸露")
	}
	result.NetProfit = result.RealizedProfit
}

// placeLeg 提交一条腿并解析成交结果
func (e *Engine) placeLeg(ctx context.Context, intent domain.OrderIntent, orderType types.OrderType) domain.LegResult {
	res := domain.LegResult{Intent: intent}

	legCtx, cancel := context.WithTimeout(ctx, e.cfg.LegTimeout())
	defer cancel()

	if e.limits != nil {
		if err := e.limits.Wait(legCtx, "clob:order:post"); err != nil {
			res.Err = err.Error()
			return res
		}
	}

	resp, err := e.placer.PlaceOrder(legCtx, &types.UserOrder{
		TokenID: intent.AssetID,
		Price:   intent.LimitPrice,
		Size:    intent.Size,
		Side:    intent.Side,
	}, orderType)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.OrderID = resp.OrderID
	if !resp.Success {
		res.Err = resp.ErrorMsg
		return res
	}
	if orderDelayed(resp.Status) {
		return e.resolveDelayed(legCtx, res)
	}
	if !orderMatched(resp.Status) {
		// FOK 未成交即整单取消，不算错误
		return res
	}

	res.Filled = true
	res.FillPrice, res.FillSize = fillFromResponse(resp, intent)
	return res
}

// 撮合延迟确认时的订单状态轮询间隔
const delayedPollInterval = 500 * time.Millisecond

// resolveDelayed 撮合引擎标记为延迟的订单：轮询到终态，
// 腿超时仍未成交则取消订单，维持全有全无语义。
func (e *Engine) resolveDelayed(ctx context.Context, res domain.LegResult) domain.LegResult {
	ticker := time.NewTicker(delayedPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := e.placer.CancelOrder(cancelCtx, res.OrderID); err != nil {
				e.log.WithError(err).WithField("order", res.OrderID).Error("延迟订单取消失败")
			}
			return res
		case <-ticker.C:
		}

		order, err := e.placer.GetOrder(ctx, res.OrderID)
		if err != nil {
			continue
		}
		if clobclient.IsOrderFilled(order) {
			res.Filled = true
			res.FillPrice, res.FillSize = fillFromOrder(order, res.Intent)
			return res
		}
	}
}

// fillFromOrder 从订单查询结果推导成交价与成交量；
// 字段不可解析时退回限价与意图数量。
func fillFromOrder(order *types.OpenOrder, intent domain.OrderIntent) (price, size decimal.Decimal) {
	price = intent.LimitPrice
	size = intent.Size
	if p, err := decimal.NewFromString(order.Price); err == nil && p.IsPositive() {
		price = p
	}
	if s, err := decimal.NewFromString(order.SizeMatched); err == nil && s.IsPositive() {
		size = s
	}
	return price, size
}

// settleBothFilled 双腿成交：滑点只记录，绝不反向平仓
func (e *Engine) settleBothFilled(opp *domain.Opportunity, result *domain.TradeResult) {
	e.checkSlippage(opp, &result.LegA)
	e.checkSlippage(opp, &result.LegB)

	shares := decimal.Min(result.LegA.FillSize, result.LegB.FillSize)
	costPerShare := result.LegA.FillPrice.Add(result.LegB.FillPrice).
		Add(opp.LegAFee).Add(opp.LegBFee)

	result.Status = domain.TradeStatusSuccess
	result.RealizedProfit = decimal.NewFromInt(1).Sub(costPerShare).Mul(shares)
	result.NetProfit = result.RealizedProfit
}

// unwindOneLeg 单腿裸露的紧急平仓：
// 对已成交腿反向 FAK，价格取快照 bestBid 减让价，尽量快速出清。
func (e *Engine) unwindOneLeg(ctx context.Context, m *domain.Market, result *domain.TradeResult) {
	filled := result.LegA
	if result.LegB.Filled {
		filled = result.LegB
	}

	bid := m.YesBid
	if filled.Intent.AssetID == m.NoAssetID {
		bid = m.NoBid
	}
	// 平仓价尽量用实时盘口，拉取失败退回扫描快照
	if book, err := e.placer.GetOrderBook(ctx, filled.Intent.AssetID); err == nil {
		if live := bestBid(book); live.IsPositive() {
			bid = live
		}
	}
	price := bid.Sub(e.unwindOff)
	if floor := decimal.NewFromFloat(0.01); price.LessThan(floor) {
		price = floor
	}

	e.log.WithFields(logrus.Fields{
		"market":       m.ID,
		"asset":        filled.Intent.AssetID,
		"filled_size":  filled.FillSize.String(),
		"unwind_price": price.String(),
	}).Error("单腿裸露，提交紧急平仓")

	result.UnwindAttempted = true
	unwind := e.placeLeg(ctx, domain.OrderIntent{
		MarketID:    m.ID,
		AssetID:     filled.Intent.AssetID,
		Side:        types.SideSell,
		LimitPrice:  price,
		Size:        filled.FillSize,
		SlippageTol: e.slippageTol,
		ClientID:    result.OpportunityID + "-unwind",
	}, types.OrderTypeFAK)

	cost := filled.FillPrice.Mul(filled.FillSize)
	if unwind.Filled {
		result.UnwindFilled = true
		result.Status = domain.TradeStatusUnwound
		result.RealizedProfit = unwind.FillPrice.Mul(unwind.FillSize).Sub(cost)
	} else {
		// 平仓也失败：按全额损失入账，留给人工处理
		result.Status = domain.TradeStatusFailed
		result.RealizedProfit = cost.Neg()
		e.log.WithField("market", m.ID).Error("紧急平仓未成交，持仓裸露")
	}
	result.NetProfit = result.RealizedProfit
}

// checkSlippage 成交价超出容忍范围时记日志并计入统计
func (e *Engine) checkSlippage(opp *domain.Opportunity, leg *domain.LegResult) {
	if !leg.Filled || leg.Intent.WithinSlippage(leg.FillPrice) {
		return
	}
	e.log.WithFields(logrus.Fields{
		"market":   leg.Intent.MarketID,
		"asset":    leg.Intent.AssetID,
		"expected": leg.Intent.LimitPrice.String(),
		"actual":   leg.FillPrice.String(),
	}).Warn("成交价超出滑点容忍")
	if e.slippage != nil {
		e.slippage.RecordSlippage(opp.Strategy, leg.Intent.MarketID, leg.Intent.LimitPrice, leg.FillPrice)
	}
}

func orderMatched(status string) bool {
	switch status {
	case "matched", "filled", "MATCHED", "FILLED":
		return true
	}
	return false
}

func orderDelayed(status string) bool {
	switch status {
	case "delayed", "DELAYED":
		return true
	}
	return false
}

// bestBid 订单簿最优买价；不可解析的档位跳过
func bestBid(book *types.OrderBookSummary) decimal.Decimal {
	best := decimal.Zero
	for _, lvl := range book.Bids {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		if price.GreaterThan(best) {
			best = price
		}
	}
	return best
}

// fillFromResponse 从撮合响应推导成交价与成交量；
// 金额字段缺失或不可解析时退回限价与意图数量（FOK 只会全量成交）。
func fillFromResponse(resp *types.OrderResponse, intent domain.OrderIntent) (price, size decimal.Decimal) {
	making, errM := decimal.NewFromString(resp.MakingAmount)
	taking, errT := decimal.NewFromString(resp.TakingAmount)
	if errM != nil || errT != nil || making.IsZero() || taking.IsZero() {
		return intent.LimitPrice, intent.Size
	}
	if intent.Side == types.SideBuy {
		// 买入：付出 USDC（making），得到份额（taking）
		return making.Div(taking), taking
	}
	// 卖出：付出份额（making），得到 USDC（taking）
	return taking.Div(making), making
}
