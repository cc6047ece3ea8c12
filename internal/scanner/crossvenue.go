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

// CrossVenueScanner 跨平台价差套利：
// 本平台 ask 与对手平台同向 bid 之间的价差，扣除双边费率与
// 出金/时间成本后仍为正时产生机会。两个方向各最多一个机会。
type CrossVenueScanner struct {
	calc      *marketmath.FeeCalculator
	threshold decimal.Decimal
	extraCost decimal.Decimal // 双边出金/时间成本之和
	quoteTTL  time.Duration
	venue     string
	log       *logrus.Entry
}

// NewCrossVenueScanner 创建跨平台扫描器
func NewCrossVenueScanner(cfg config.CrossVenueConfig, calc *marketmath.FeeCalculator) *CrossVenueScanner {
	ttl := time.Duration(cfg.QuoteTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &CrossVenueScanner{
		calc:      calc,
		threshold: decimal.NewFromFloat(cfg.MinProfitPct),
		extraCost: decimal.NewFromFloat(cfg.WithdrawalFeeA).Add(decimal.NewFromFloat(cfg.WithdrawalFeeB)),
		quoteTTL:  ttl,
		venue:     cfg.SecondVenueName,
		log:       logger.WithField("component", "strategy").WithField("scanner", "cross_venue"),
	}
}

func (s *CrossVenueScanner) Name() domain.Strategy {
	return domain.StrategyCrossVenue
}

func (s *CrossVenueScanner) Scan(ctx context.Context, snap *Snapshot) []*domain.Opportunity {
	var opps []*domain.Opportunity
	if len(snap.CrossQuotes) == 0 {
		return opps
	}

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

		quote, ok := snap.CrossQuotes[m.ID]
		if !ok || snap.Now.Sub(quote.FetchedAt) > s.quoteTTL {
			continue
		}

		// 方向一：本平台买 YES，对手平台卖 YES
		if opp := s.direction(m, &quote, m.YesAsk, quote.YesBid, "yes"); opp != nil {
			opps = append(opps, opp)
		}
		// 方向二：本平台买 NO，对手平台卖 NO
		if opp := s.direction(m, &quote, m.NoAsk, quote.NoBid, "no"); opp != nil {
			opps = append(opps, opp)
		}
	}

	return opps
}

// direction 检查单个方向：本平台按 ask 买入、对手平台按 bid 卖出
func (s *CrossVenueScanner) direction(m *domain.Market, quote *VenueQuote, buyAsk, sellBid decimal.Decimal, side string) *domain.Opportunity {
	if buyAsk.IsZero() || sellBid.IsZero() {
		return nil
	}

	ourFee := s.calc.Rate(buyAsk)
	cost := buyAsk.Add(buyAsk.Mul(ourFee)).
		Add(sellBid.Mul(quote.FeePct)).
		Add(s.extraCost)
	profit := sellBid.Sub(cost)
	if profit.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	pct := marketmath.ProfitPct(profit, cost)
	if pct.LessThan(s.threshold) {
		return nil
	}

	opp := domain.NewOpportunity(domain.StrategyCrossVenue, m)
	if side == "yes" {
		opp.LegAAssetID = m.YesAssetID
	} else {
		opp.LegAAssetID = m.NoAssetID
	}
	opp.LegAPrice = buyAsk
	opp.LegAFee = ourFee
	// 对手平台卖出腿的限价与费率，执行层据此在第二平台下单
	opp.LegBPrice = sellBid
	opp.LegBFee = quote.FeePct
	opp.TotalCost = cost
	opp.ExpectedProfit = profit
	opp.ProfitPct = pct
	opp.ProposedSize = m.ThinnerLegLiquidity()
	opp.SecondVenue = s.venue
	opp.SecondVenueMarket = quote.MarketID

	s.log.WithFields(logrus.Fields{
		"market":     m.ID,
		"side":       side,
		"buy_ask":    buyAsk.String(),
		"sell_bid":   sellBid.String(),
		"profit_pct": pct.String(),
	}).Debug("发现跨平台套利机会")

	return opp
}
