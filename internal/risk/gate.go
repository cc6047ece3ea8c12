package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
)

// 拒绝原因标签。拒绝是值不是错误：正常运行时大多数机会都会被拒。
const (
	ReasonBreakerOpen      = "breaker_open"
	ReasonGasCeiling       = "gas_ceiling_exceeded"
	ReasonPendingLimit     = "pending_limit_reached"
	ReasonDailyDrawdown    = "daily_drawdown_exceeded"
	ReasonCapitalBelowMin  = "capital_below_minimum"
	ReasonHeatLimit        = "heat_limit_exceeded"
	ReasonPerAssetCap      = "per_asset_cap_reached"
	ReasonEdgeBelowMin     = "edge_below_minimum"
	ReasonSizeBelowMin     = "size_below_minimum"
	ReasonFundsUnavailable = "funds_unavailable"
)

// Decision 风控裁决。Approved 为 false 时 Reason 必填。
type Decision struct {
	Approved bool
	Size     decimal.Decimal
	Reason   string
}

func approve(size decimal.Decimal) Decision {
	return Decision{Approved: true, Size: size}
}

func reject(reason string) Decision {
	return Decision{Approved: false, Reason: reason}
}

// Funds 资金与链上状况的只读视图
type Funds interface {
	CurrentCapital(ctx context.Context) (decimal.Decimal, error)
	PendingTransactionCount() int
	CurrentGasPrice(ctx context.Context) (decimal.Decimal, error) // gwei
}

// Gate 风控闸门：按固定顺序做短路检查，全部通过才放行。
type Gate struct {
	cfg     config.RiskConfig
	breaker *CircuitBreaker
	sizer   *Sizer
	state   *State
	funds   Funds

	gasCeiling    decimal.Decimal
	maxHeatPct    decimal.Decimal
	minCapital    decimal.Decimal
	dailyDrawdown decimal.Decimal
	pendingLimit  int

	log *logrus.Entry
}

// NewGate 创建风控闸门
func NewGate(cfg config.RiskConfig, pendingLimit int, breaker *CircuitBreaker, sizer *Sizer, state *State, funds Funds) *Gate {
	return &Gate{
		cfg:           cfg,
		breaker:       breaker,
		sizer:         sizer,
		state:         state,
		funds:         funds,
		gasCeiling:    decimal.NewFromFloat(cfg.GasCeilingGwei),
		maxHeatPct:    decimal.NewFromFloat(cfg.MaxHeatPct),
		minCapital:    decimal.NewFromFloat(cfg.MinCapitalUSD),
		dailyDrawdown: decimal.NewFromFloat(cfg.DailyDrawdownPct),
		pendingLimit:  pendingLimit,
		log:           logger.WithField("component", "risk-gate"),
	}
}

// Evaluate 裁决一个机会。检查顺序固定：
// 断路器 → gas → 在途交易数 → 日回撤 → 最低资金 → 热度 → 单标的仓位数 → Kelly。
func (g *Gate) Evaluate(ctx context.Context, opp *domain.Opportunity) Decision {
	if err := g.breaker.AllowTrading(); err != nil {
		return reject(ReasonBreakerOpen)
	}

	if g.gasCeiling.IsPositive() {
		gas, err := g.funds.CurrentGasPrice(ctx)
		if err != nil {
			return reject(ReasonFundsUnavailable)
		}
		if gas.GreaterThan(g.gasCeiling) {
			g.log.WithFields(logrus.Fields{
				"gas_gwei":     gas.String(),
				"ceiling_gwei": g.gasCeiling.String(),
			}).Warn("gas 超过上限，拒绝全部机会")
			return reject(ReasonGasCeiling)
		}
	}

	if g.pendingLimit > 0 && g.funds.PendingTransactionCount() >= g.pendingLimit {
		return reject(ReasonPendingLimit)
	}

	now := time.Now()
	if g.dailyDrawdown.IsPositive() &&
		g.state.DailyDrawdownPct(now).GreaterThanOrEqual(g.dailyDrawdown) {
		return reject(ReasonDailyDrawdown)
	}

	capital := g.state.Capital()
	if capital.LessThan(g.minCapital) {
		return reject(ReasonCapitalBelowMin)
	}

	// 单标的并发仓位数
	if g.cfg.PerAssetCap > 0 && opp.Market != nil && opp.Market.Asset != "" {
		if g.state.AssetOpenCount(opp.Market.Asset) >= g.cfg.PerAssetCap {
			return reject(ReasonPerAssetCap)
		}
	}

	trailing, haveSample := g.state.TrailingWinRate()
	size, ok := g.sizer.Size(capital, opp.ProfitPct, trailing, haveSample)
	if !ok {
		if g.sizer.Edge(opp.ProfitPct).LessThan(decimal.NewFromFloat(g.cfg.MinEdgePct)) {
			return reject(ReasonEdgeBelowMin)
		}
		return reject(ReasonSizeBelowMin)
	}

	// 扫描器的流动性上限：薄腿份额 × 每份成本，折算成美元容量
	if opp.ProposedSize.IsPositive() && opp.TotalCost.IsPositive() {
		liquidityUSD := opp.ProposedSize.Mul(opp.TotalCost)
		if size.GreaterThan(liquidityUSD) {
			size = liquidityUSD
			if size.LessThan(decimal.NewFromFloat(g.cfg.MinPositionUSD)) {
				return reject(ReasonSizeBelowMin)
			}
		}
	}

	// 组合热度：本单成交后总敞口不得超过上限
	heatCap := g.sizer.HeatCap(capital, g.maxHeatPct)
	if heatCap.IsPositive() {
		postHeat := g.state.OpenExposure().Add(size)
		if postHeat.GreaterThan(capital.Mul(heatCap)) {
			return reject(ReasonHeatLimit)
		}
	}

	return approve(size)
}
