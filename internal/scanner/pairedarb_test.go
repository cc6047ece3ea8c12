package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/marketmath"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testMarket(id, yesAsk, noAsk string, now time.Time) domain.Market {
	return domain.Market{
		ID:          id,
		YesAssetID:  id + "-yes",
		NoAssetID:   id + "-no",
		ConditionID: "0x" + id,
		YesAsk:      d(yesAsk),
		NoAsk:       d(noAsk),
		YesBid:      d(yesAsk).Sub(d("0.01")),
		NoBid:       d(noAsk).Sub(d("0.01")),

		YesAskLiquidity: d("100"),
		NoAskLiquidity:  d("80"),
		Deadline:        now.Add(24 * time.Hour),
		Timestamp:       now,
	}
}

func pairedConfig() config.PairedArbConfig {
	cfg := config.PairedArbConfig{Enabled: true}
	cfg.Defaults()
	return cfg
}

func TestPairedArbScan_ProfitablePair(t *testing.T) {
	now := time.Now()
	s := NewPairedArbScanner(pairedConfig(), marketmath.NewFeeCalculator())

	snap := &Snapshot{
		Markets: []domain.Market{testMarket("m1", "0.48", "0.47", now)},
		Now:     now,
	}

	opps := s.Scan(context.Background(), snap)
	if len(opps) != 1 {
		t.Fatalf("期望 1 个机会，得到 %d", len(opps))
	}

	opp := opps[0]
	// 0.48+0.47+0.0288+0.0282 = 0.977
	if !opp.TotalCost.Equal(d("0.977")) {
		t.Fatalf("总成本错误: %s", opp.TotalCost)
	}
	if !opp.ExpectedProfit.Equal(d("0.023")) {
		t.Fatalf("预期收益错误: %s", opp.ExpectedProfit)
	}
	if opp.ProfitPct.LessThan(d("0.0235")) || opp.ProfitPct.GreaterThan(d("0.0236")) {
		t.Fatalf("收益率错误: %s", opp.ProfitPct)
	}
	// 规模取较薄一腿
	if !opp.ProposedSize.Equal(d("80")) {
		t.Fatalf("建议规模错误: %s", opp.ProposedSize)
	}
	if opp.Strategy != domain.StrategyPairedArb {
		t.Fatalf("策略标签错误: %s", opp.Strategy)
	}
}

func TestPairedArbScan_BalancedBookNoEmission(t *testing.T) {
	now := time.Now()
	s := NewPairedArbScanner(pairedConfig(), marketmath.NewFeeCalculator())

	// 0.50+0.50+0.03+0.03 = 1.06，无套利
	snap := &Snapshot{
		Markets: []domain.Market{testMarket("m1", "0.50", "0.50", now)},
		Now:     now,
	}

	if opps := s.Scan(context.Background(), snap); len(opps) != 0 {
		t.Fatalf("平衡盘口不应产生机会，得到 %d 个", len(opps))
	}
}

func TestPairedArbScan_BelowThresholdNoEmission(t *testing.T) {
	now := time.Now()
	s := NewPairedArbScanner(pairedConfig(), marketmath.NewFeeCalculator())

	// 0.49+0.475+费用 ≈ 0.9937，收益率 ≈0.63% 超过 0.5% 阈值 ⇒ 产生机会；
	// 0.495+0.48+费用 ≈ 1.0047 ⇒ 无机会
	snap := &Snapshot{
		Markets: []domain.Market{testMarket("m1", "0.495", "0.48", now)},
		Now:     now,
	}

	if opps := s.Scan(context.Background(), snap); len(opps) != 0 {
		t.Fatalf("成本超过 1 不应产生机会")
	}
}

func TestPairedArbScan_SkipsInvalidMarket(t *testing.T) {
	now := time.Now()
	s := NewPairedArbScanner(pairedConfig(), marketmath.NewFeeCalculator())

	expired := testMarket("m1", "0.48", "0.47", now)
	expired.Deadline = now.Add(-time.Minute)

	missing := testMarket("m2", "0.48", "0.47", now)
	missing.YesAssetID = ""

	snap := &Snapshot{
		Markets: []domain.Market{expired, missing},
		Now:     now,
	}

	if opps := s.Scan(context.Background(), snap); len(opps) != 0 {
		t.Fatalf("无效快照不应产生机会")
	}
}
