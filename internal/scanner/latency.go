package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
	"github.com/betbot/arbot/pkg/marketmath"
)

// LatencyScanner 外部行情延迟套利：
// 标的现货在观察窗口内出现显著变动，而市场中价尚未跟进时，
// 顺方向吃入未定价一侧。1 分钟波动率超过上限时全部抑制
// （剧烈震荡下"延迟"不可区分于噪声）。
type LatencyScanner struct {
	calc           *marketmath.FeeCalculator
	defaultMove    decimal.Decimal
	moveThresholds map[string]decimal.Decimal
	minLag         decimal.Decimal
	volCeiling     decimal.Decimal
	minProfit      decimal.Decimal
	lookback       time.Duration

	// 上一周期的市场中价，用于衡量市场自身的跟进幅度
	mu       sync.Mutex
	lastMids map[string]decimal.Decimal

	log *logrus.Entry
}

// NewLatencyScanner 创建延迟套利扫描器
func NewLatencyScanner(cfg config.LatencyArbConfig, calc *marketmath.FeeCalculator, lookback time.Duration) *LatencyScanner {
	thresholds := make(map[string]decimal.Decimal, len(cfg.MoveThresholds))
	for asset, v := range cfg.MoveThresholds {
		thresholds[asset] = decimal.NewFromFloat(v)
	}
	if lookback <= 0 {
		lookback = 2 * time.Minute
	}
	return &LatencyScanner{
		calc:           calc,
		defaultMove:    decimal.NewFromFloat(cfg.DefaultMoveThreshold),
		moveThresholds: thresholds,
		minLag:         decimal.NewFromFloat(cfg.MinLagPct),
		volCeiling:     decimal.NewFromFloat(cfg.VolatilityCeiling),
		minProfit:      decimal.NewFromFloat(cfg.MinProfitPct),
		lookback:       lookback,
		lastMids:       make(map[string]decimal.Decimal),
		log:            logger.WithField("component", "strategy").WithField("scanner", "latency"),
	}
}

func (s *LatencyScanner) Name() domain.Strategy {
	return domain.StrategyLatency
}

// moveThreshold 返回标的的触发阈值
func (s *LatencyScanner) moveThreshold(asset string) decimal.Decimal {
	if t, ok := s.moveThresholds[asset]; ok {
		return t
	}
	return s.defaultMove
}

func (s *LatencyScanner) Scan(ctx context.Context, snap *Snapshot) []*domain.Opportunity {
	var opps []*domain.Opportunity
	if snap.Feed == nil {
		return opps
	}

	two := decimal.NewFromInt(2)

	for i := range snap.Markets {
		select {
		case <-ctx.Done():
			return opps
		default:
		}

		m := &snap.Markets[i]
		if m.Asset == "" {
			continue
		}
		if err := m.Validate(snap.Now); err != nil {
			continue
		}

		move, ok := snap.Feed.MoveSince(m.Asset, s.lookback, snap.Now)
		if !ok || move.Abs().LessThan(s.moveThreshold(m.Asset)) {
			continue
		}

		// 高波动下抑制：1 分钟波幅超上限
		if vol, ok := snap.Feed.Volatility(m.Asset, time.Minute, snap.Now); ok && vol.GreaterThan(s.volCeiling) {
			continue
		}

		mid := m.YesBid.Add(m.YesAsk).Div(two)

		s.mu.Lock()
		prevMid, seen := s.lastMids[m.ID]
		s.lastMids[m.ID] = mid
		s.mu.Unlock()
		if !seen {
			// 第一次见到该市场，没有跟进基准
			continue
		}

		// 市场自身的跟进幅度；不足说明报价滞后
		marketMove := mid.Sub(prevMid)
		lag := move.Abs().Sub(marketMove.Abs())
		if lag.LessThan(s.minLag) {
			continue
		}

		// 顺现货方向选择腿：上涨买 YES，下跌买 NO
		var price decimal.Decimal
		var assetID string
		if move.IsPositive() {
			price, assetID = m.YesAsk, m.YesAssetID
		} else {
			price, assetID = m.NoAsk, m.NoAssetID
		}
		fee := s.calc.Rate(price)

		cost := price.Add(price.Mul(fee))
		// 预期收敛幅度按滞后量计，收益为滞后减去成本摩擦
		profit := lag.Sub(price.Mul(fee))
		if profit.LessThanOrEqual(decimal.Zero) {
			continue
		}
		pct := marketmath.ProfitPct(profit, cost)
		if pct.LessThan(s.minProfit) {
			continue
		}

		opp := domain.NewOpportunity(domain.StrategyLatency, m)
		opp.LegAAssetID = assetID
		opp.LegAPrice = price
		opp.LegAFee = fee
		opp.TotalCost = cost
		opp.ExpectedProfit = profit
		opp.ProfitPct = pct
		opp.ProposedSize = m.ThinnerLegLiquidity()

		s.log.WithFields(logrus.Fields{
			"market":     m.ID,
			"asset":      m.Asset,
			"move":       move.String(),
			"lag":        lag.String(),
			"profit_pct": pct.String(),
		}).Debug("发现延迟套利机会")

		opps = append(opps, opp)
	}

	return opps
}
