package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/internal/common"
	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/internal/feed"
	"github.com/betbot/arbot/internal/oracle"
	"github.com/betbot/arbot/internal/risk"
	"github.com/betbot/arbot/internal/scanner"
	"github.com/betbot/arbot/internal/storage"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
)

// MarketSource 周期性行情快照来源
type MarketSource interface {
	Markets(ctx context.Context) ([]domain.Market, error)
}

// QuoteSource 对手平台报价来源；nil 表示跨平台变体未启用
type QuoteSource interface {
	Quotes(ctx context.Context, markets []domain.Market) map[string]scanner.VenueQuote
}

// Executor 机会执行入口（由执行引擎实现）
type Executor interface {
	Execute(ctx context.Context, opp *domain.Opportunity, sizeUSD decimal.Decimal) (*domain.TradeResult, error)
}

// Settler 配对持仓的结算回收入口
type Settler interface {
	Merge(ctx context.Context, marketID, conditionID string, amount decimal.Decimal) (*domain.SettlementReceipt, error)
}

// Redeemer 方向性持仓的裁决赎回入口；nil 表示未启用
type Redeemer interface {
	Resolved(ctx context.Context, conditionID string) (bool, error)
	Redeem(ctx context.Context, conditionID string) (*domain.RedemptionReceipt, error)
}

// TradeSink 交易历史与错误的落盘入口
type TradeSink interface {
	RecordTrade(result *domain.TradeResult)
	RecordError(scope string, err error)
}

// Advisor 外部决策顾问；nil 表示未启用
type Advisor interface {
	Advise(ctx context.Context, prompt string) (*oracle.Advice, error)
}

// HealthProber RPC 连通性探测（由交易管理器实现）
type HealthProber interface {
	Heartbeat(ctx context.Context) error
}

// FeedHealth 行情流健康检查
type FeedHealth interface {
	Healthy() bool
}

// slippageReporter 可选的滑点统计来源（心跳日志用）
type slippageReporter interface {
	SlippageStats() map[domain.Strategy]storage.SlippageStat
}

// Deps 引擎依赖集合
type Deps struct {
	Pool    *scanner.Pool
	Gate    *risk.Gate
	State   *risk.State
	Breaker *risk.CircuitBreaker
	Funds   risk.Funds

	Markets MarketSource
	Quotes  QuoteSource
	Feed    *feed.Buffer
	FeedUp  FeedHealth
	Chain   HealthProber

	// Resync 行情流重连等事件触发的立即重扫信号；nil 表示不用
	Resync <-chan struct{}

	Executor Executor
	Settler  Settler
	Redeemer Redeemer
	Sink     TradeSink
	Advisor  Advisor
}

// Engine 主编排循环：每周期 Scan→Gate→Execute→Settle→Record，
// 周期之间睡眠扫描间隔；心跳任务独立运行。
// 周期内的执行一律跑到终态，停机信号只在周期边界生效，
// 绝不在配对中途中断。
type Engine struct {
	cfg  config.EngineConfig
	deps Deps

	minCapital   decimal.Decimal
	gasCeiling   decimal.Decimal
	marginalEdge decimal.Decimal // 低于此利润率的机会需过顾问
	pendingLimit int

	hbOnce   sync.Once
	hbCancel context.CancelFunc

	log *logrus.Entry
}

// New 创建编排引擎
func New(cfg *config.Config, deps Deps) *Engine {
	return &Engine{
		cfg:          cfg.Engine,
		deps:         deps,
		minCapital:   decimal.NewFromFloat(cfg.Risk.MinCapitalUSD),
		gasCeiling:   decimal.NewFromFloat(cfg.Risk.GasCeilingGwei),
		marginalEdge: decimal.NewFromFloat(cfg.Risk.MinEdgePct).Mul(decimal.NewFromInt(2)),
		pendingLimit: cfg.TxManager.PendingLimit,
		log:          logger.WithField("component", "engine"),
	}
}

// Run 阻塞运行主循环直到 ctx 取消。
// 返回前会完成当前周期并把风控状态落盘。
func (e *Engine) Run(ctx context.Context) error {
	common.StartLoopOnce(ctx, &e.hbOnce, func(c context.CancelFunc) { e.hbCancel = c },
		e.cfg.HeartbeatInterval(), e.heartbeatLoop)

	e.log.WithFields(logrus.Fields{
		"scan_interval": e.cfg.ScanInterval().String(),
		"dry_run":       e.cfg.DryRun,
	}).Info("编排引擎启动")

	ticker := time.NewTicker(e.cfg.ScanInterval())
	defer ticker.Stop()

	e.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			e.persist()
			e.log.Info("编排引擎已停止")
			return nil
		case <-ticker.C:
			e.runCycle(ctx)
		case <-e.deps.Resync:
			e.runCycle(ctx)
		}
	}
}

// runCycle 执行一个完整扫描周期
func (e *Engine) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if e.deps.Breaker.IsOpen() {
		e.log.WithField("reason", e.deps.Breaker.TripReason()).Debug("断路器打开，跳过扫描周期")
		return
	}

	e.redeemResolved(ctx)

	markets, err := e.deps.Markets.Markets(ctx)
	if err != nil {
		e.recordError("ingest", err)
		return
	}

	snap := &scanner.Snapshot{
		Markets: markets,
		Feed:    e.deps.Feed,
		Now:     time.Now(),
	}
	if e.deps.Quotes != nil {
		snap.CrossQuotes = e.deps.Quotes.Quotes(ctx, markets)
	}

	opps := e.deps.Pool.ScanAll(ctx, snap)
	for _, opp := range opps {
		if ctx.Err() != nil {
			break
		}

		decision := e.deps.Gate.Evaluate(ctx, opp)
		if !decision.Approved {
			e.log.WithFields(logrus.Fields{
				"strategy": opp.Strategy,
				"market":   opp.Market.ID,
				"reason":   decision.Reason,
			}).Debug("机会被风控拒绝")
			continue
		}
		if e.vetoed(ctx, opp) {
			continue
		}

		if e.cfg.DryRun {
			e.log.WithFields(logrus.Fields{
				"strategy":   opp.Strategy,
				"market":     opp.Market.ID,
				"size":       decision.Size.String(),
				"profit_pct": opp.ProfitPct.String(),
			}).Info("dry-run：跳过真实下单")
			continue
		}

		e.trade(ctx, opp, decision.Size)
	}

	e.persist()
}

// trade 执行单个机会并记账。
// 执行上下文与停机解耦：一旦开始必须跑到终态。
func (e *Engine) trade(ctx context.Context, opp *domain.Opportunity, size decimal.Decimal) {
	asset := ""
	if opp.Market != nil {
		asset = opp.Market.Asset
	}

	e.deps.State.ReserveExposure(asset, size)
	result, err := e.deps.Executor.Execute(context.WithoutCancel(ctx), opp, size)
	e.deps.State.ReleaseExposure(asset, size)

	if err != nil {
		// 执行前置失败（去重、规模不足等）不计入熔断
		e.recordError("execution", err)
		return
	}

	e.deps.State.RecordTrade(result)
	if result.WasSuccessful() {
		e.deps.Breaker.RecordSuccess()
	} else {
		weight := int64(1)
		if result.OneLegExposure() {
			// 单腿裸露按三倍权重计入连续失败
			weight = 3
		}
		e.deps.Breaker.RecordFailure(weight)
	}
	if e.deps.Sink != nil {
		e.deps.Sink.RecordTrade(result)
	}

	e.log.WithFields(logrus.Fields{
		"strategy": result.Strategy,
		"market":   result.MarketID,
		"status":   result.Status,
		"net":      result.NetProfit.String(),
	}).Info("交易终态")

	if result.WasSuccessful() && opp.Strategy == domain.StrategyPairedArb {
		e.settle(ctx, opp, result)
	}
}

// settle 配对成交后把完整对合并回 USDC
func (e *Engine) settle(ctx context.Context, opp *domain.Opportunity, result *domain.TradeResult) {
	if e.deps.Settler == nil || opp.Market == nil || opp.Market.ConditionID == "" {
		return
	}
	amount := decimal.Min(result.LegA.FillSize, result.LegB.FillSize)
	if !amount.IsPositive() {
		return
	}

	receipt, err := e.deps.Settler.Merge(context.WithoutCancel(ctx), opp.Market.ID, opp.Market.ConditionID, amount)
	if err != nil {
		e.recordError("settlement", err)
		return
	}
	e.log.WithFields(logrus.Fields{
		"market":  opp.Market.ID,
		"amount":  amount.String(),
		"tx":      receipt.TxHash,
		"gas_usd": receipt.GasCost.String(),
	}).Info("配对持仓已合并回收")
}

// redeemResolved 巡检未裁决持仓，已裁决的赎回并按实测派彩记账。
// 截止时间未到的不查询，省掉无意义的状态请求。
func (e *Engine) redeemResolved(ctx context.Context) {
	if e.deps.Redeemer == nil {
		return
	}

	now := time.Now()
	seen := make(map[string]bool)
	for _, pos := range e.deps.State.OpenPositions() {
		if pos.ConditionID == "" || seen[pos.ConditionID] {
			continue
		}
		seen[pos.ConditionID] = true
		if !pos.Deadline.IsZero() && pos.Deadline.After(now) {
			continue
		}

		resolved, err := e.deps.Redeemer.Resolved(ctx, pos.ConditionID)
		if err != nil {
			e.recordError("redemption", err)
			continue
		}
		if !resolved {
			continue
		}

		receipt, err := e.deps.Redeemer.Redeem(context.WithoutCancel(ctx), pos.ConditionID)
		if err != nil {
			e.recordError("redemption", err)
			continue
		}
		e.deps.State.SettleCondition(pos.ConditionID, receipt.Payout.Sub(receipt.GasCost))
		e.log.WithFields(logrus.Fields{
			"condition": pos.ConditionID,
			"payout":    receipt.Payout.String(),
			"gas_usd":   receipt.GasCost.String(),
		}).Info("方向性持仓已赎回入账")
	}
}

// vetoed 顾问裁决。只有边缘机会需要过顾问，
// 顾问超时或响应不可解析一律按否决处理：错过边缘机会代价很小。
func (e *Engine) vetoed(ctx context.Context, opp *domain.Opportunity) bool {
	if e.deps.Advisor == nil || opp.ProfitPct.GreaterThanOrEqual(e.marginalEdge) {
		return false
	}

	marketID := ""
	if opp.Market != nil {
		marketID = opp.Market.ID
	}
	prompt := fmt.Sprintf("strategy=%s market=%s profit_pct=%s total_cost=%s",
		opp.Strategy, marketID, opp.ProfitPct, opp.TotalCost)

	advice, err := e.deps.Advisor.Advise(ctx, prompt)
	if err != nil {
		e.log.WithError(err).WithField("market", marketID).Warn("顾问不可用，边缘机会按否决处理")
		return true
	}
	if !advice.Approve {
		e.log.WithFields(logrus.Fields{
			"market":     marketID,
			"confidence": advice.Confidence,
			"reason":     advice.Reason,
		}).Info("顾问否决边缘机会")
		return true
	}
	return false
}

// persist 把风控状态（含断路器）快照落盘
func (e *Engine) persist() {
	if err := e.deps.State.Persist(e.deps.Breaker.IsOpen(), e.deps.Breaker.TripReason()); err != nil {
		e.log.WithError(err).Warn("风控状态落盘失败")
	}
}

func (e *Engine) recordError(scope string, err error) {
	e.log.WithError(err).WithField("scope", scope).Warn("周期步骤失败")
	if e.deps.Sink != nil {
		e.deps.Sink.RecordError(scope, err)
	}
}

// heartbeatLoop 心跳任务：周期性体检，连续失败会熔断
func (e *Engine) heartbeatLoop(loopCtx context.Context, tickC <-chan time.Time) {
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-tickC:
			e.runHeartbeat(loopCtx)
		}
	}
}

// runHeartbeat 单次心跳检查与状态上报
func (e *Engine) runHeartbeat(ctx context.Context) {
	if err := e.checkHealth(ctx); err != nil {
		e.deps.Breaker.RecordHeartbeatFailure()
		e.recordError("heartbeat", err)
		return
	}
	e.deps.Breaker.RecordHeartbeatSuccess()

	profit, trades := e.deps.State.DailyStats(time.Now())
	e.log.WithFields(logrus.Fields{
		"capital":        e.deps.State.Capital().String(),
		"exposure":       e.deps.State.OpenExposure().String(),
		"open_positions": len(e.deps.State.OpenPositions()),
		"daily_profit":   profit.String(),
		"daily_trades":   trades,
	}).Info("心跳正常")

	if reporter, ok := e.deps.Sink.(slippageReporter); ok {
		for strategy, stat := range reporter.SlippageStats() {
			e.log.WithFields(logrus.Fields{
				"strategy": strategy,
				"count":    stat.Count,
				"avg_abs":  stat.AvgAbs.String(),
				"last_abs": stat.LastAbs.String(),
			}).Info("滑点统计")
		}
	}
}

// checkHealth 体检项：资金下限、gas 上限、在途笔数、RPC 连通、行情流
func (e *Engine) checkHealth(ctx context.Context) error {
	if capital := e.deps.State.Capital(); capital.LessThan(e.minCapital) {
		return errors.Errorf("capital %s below minimum %s", capital, e.minCapital)
	}

	gas, err := e.deps.Funds.CurrentGasPrice(ctx)
	if err != nil {
		return errors.Wrap(err, "gas price probe")
	}
	if e.gasCeiling.IsPositive() && gas.GreaterThan(e.gasCeiling) {
		return errors.Errorf("gas %s gwei above ceiling %s", gas, e.gasCeiling)
	}

	if e.pendingLimit > 0 && e.deps.Funds.PendingTransactionCount() >= e.pendingLimit {
		return errors.Errorf("pending transactions at limit %d", e.pendingLimit)
	}

	if e.deps.Chain != nil {
		if err := e.deps.Chain.Heartbeat(ctx); err != nil {
			return errors.Wrap(err, "rpc connectivity")
		}
	}

	if e.deps.FeedUp != nil && !e.deps.FeedUp.Healthy() {
		return errors.New("feed has no recent observations")
	}
	return nil
}
