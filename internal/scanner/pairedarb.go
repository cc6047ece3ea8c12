package scanner

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
	"github.com/betbot/arbot/pkg/marketmath"
)

// PairedArbScanner 同场内配对套利：
// 同时吃进 YES 与 NO 的 ask，两腿含费总成本 < 1 − 阈值时产生机会。
// 结算时 1 YES + 1 NO 合并回 1 USDC，收益与市场结果无关。
type PairedArbScanner struct {
	calc      *marketmath.FeeCalculator
	threshold decimal.Decimal
	log       *logrus.Entry
}

// NewPairedArbScanner 创建配对套利扫描器
func NewPairedArbScanner(cfg config.PairedArbConfig, calc *marketmath.FeeCalculator) *PairedArbScanner {
	return &PairedArbScanner{
		calc:      calc,
		threshold: decimal.NewFromFloat(cfg.MinProfitPct),
		log:       logger.WithField("component", "strategy").WithField("scanner", "paired_arb"),
	}
}

func (s *PairedArbScanner) Name() domain.Strategy {
	return domain.StrategyPairedArb
}

func (s *PairedArbScanner) Scan(ctx context.Context, snap *Snapshot) []*domain.Opportunity {
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

		cost := marketmath.PairCost(s.calc, m.YesAsk, m.NoAsk)
		profit := marketmath.PairProfit(s.calc, m.YesAsk, m.NoAsk)
		pct := marketmath.ProfitPct(profit, cost)

		if profit.LessThanOrEqual(decimal.Zero) || pct.LessThan(s.threshold) {
			continue
		}

		opp := domain.NewOpportunity(domain.StrategyPairedArb, m)
		opp.LegAPrice = m.YesAsk
		opp.LegBPrice = m.NoAsk
		opp.LegAFee = s.calc.Rate(m.YesAsk)
		opp.LegBFee = s.calc.Rate(m.NoAsk)
		opp.TotalCost = cost
		opp.ExpectedProfit = profit
		opp.ProfitPct = pct
		opp.ProposedSize = m.ThinnerLegLiquidity()

		s.log.WithFields(logrus.Fields{
			"market":     m.ID,
			"cost":       cost.String(),
			"profit_pct": pct.String(),
		}).Debug("发现配对套利机会")

		opps = append(opps, opp)
	}

	return opps
}
