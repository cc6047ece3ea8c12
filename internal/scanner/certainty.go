package scanner

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
	"github.com/betbot/arbot/pkg/marketmath"
)

// CertaintyScanner 临近结算确定性收割：
// 距截止只剩很短窗口、一侧价格已进入高确信区间（默认 0.97–0.99）
// 时买入该侧。问题文本含歧义关键词的市场一律跳过；
// 有标的参照时要求行情方向与买入侧一致。
type CertaintyScanner struct {
	calc      *marketmath.FeeCalculator
	window    time.Duration
	bandLow   decimal.Decimal
	bandHigh  decimal.Decimal
	minProfit decimal.Decimal
	log       *logrus.Entry
}

// NewCertaintyScanner 创建确定性收割扫描器
func NewCertaintyScanner(cfg config.CertaintyConfig, calc *marketmath.FeeCalculator) *CertaintyScanner {
	window := time.Duration(cfg.WindowSeconds) * time.Second
	if window <= 0 {
		window = 120 * time.Second
	}
	return &CertaintyScanner{
		calc:      calc,
		window:    window,
		bandLow:   decimal.NewFromFloat(cfg.BandLow),
		bandHigh:  decimal.NewFromFloat(cfg.BandHigh),
		minProfit: decimal.NewFromFloat(cfg.MinProfitPct),
		log:       logger.WithField("component", "strategy").WithField("scanner", "certainty"),
	}
}

func (s *CertaintyScanner) Name() domain.Strategy {
	return domain.StrategyCertainty
}

func (s *CertaintyScanner) Scan(ctx context.Context, snap *Snapshot) []*domain.Opportunity {
	var opps []*domain.Opportunity

	for i := range snap.Markets {
		select {
		case <-ctx.Done():
			return opps
		default:
		}

		m := &snap.Markets[i]
		if err := m.Validate(snap.Now); err != nil {
			continue
		}
		if m.Ambiguous {
			continue
		}

		ttl := m.TimeToDeadline(snap.Now)
		if ttl <= 0 || ttl > s.window {
			continue
		}

		// 选取进入确信区间的一侧
		var price decimal.Decimal
		var yesSide bool
		switch {
		case s.inBand(m.YesAsk):
			price, yesSide = m.YesAsk, true
		case s.inBand(m.NoAsk):
			price, yesSide = m.NoAsk, false
		default:
			continue
		}

		if !s.directionConfirmed(snap, m, yesSide) {
			continue
		}

		fee := s.calc.Rate(price)
		feeAmt := price.Mul(fee)
		cost := price.Add(feeAmt)
		profit := decimal.NewFromInt(1).Sub(cost)
		if profit.LessThanOrEqual(decimal.Zero) {
			continue
		}
		pct := marketmath.ProfitPct(profit, cost)
		if pct.LessThan(s.minProfit) {
			continue
		}

		opp := domain.NewOpportunity(domain.StrategyCertainty, m)
		if yesSide {
			opp.LegAAssetID = m.YesAssetID
		} else {
			opp.LegAAssetID = m.NoAssetID
		}
		opp.LegAPrice = price
		opp.LegAFee = fee
		opp.TotalCost = cost
		opp.ExpectedProfit = profit
		opp.ProfitPct = pct
		opp.ProposedSize = m.ThinnerLegLiquidity()

		s.log.WithFields(logrus.Fields{
			"market":      m.ID,
			"side_yes":    yesSide,
			"price":       price.String(),
			"ttl_seconds": int(ttl.Seconds()),
			"profit_pct":  pct.String(),
		}).Debug("发现确定性收割机会")

		opps = append(opps, opp)
	}

	return opps
}

func (s *CertaintyScanner) inBand(price decimal.Decimal) bool {
	return !price.IsZero() &&
		price.GreaterThanOrEqual(s.bandLow) &&
		price.LessThanOrEqual(s.bandHigh)
}

// directionConfirmed 有标的参照时要求行情方向与买入侧一致；
// 有标的但无行情数据视为未确认（跳过），无标的则不做方向约束。
func (s *CertaintyScanner) directionConfirmed(snap *Snapshot, m *domain.Market, yesSide bool) bool {
	if m.Asset == "" {
		return true
	}
	if snap.Feed == nil {
		return false
	}
	move, ok := snap.Feed.MoveSince(m.Asset, s.window, snap.Now)
	if !ok {
		return false
	}
	if yesSide {
		return !move.IsNegative()
	}
	return !move.IsPositive()
}
