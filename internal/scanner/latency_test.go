package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/internal/feed"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/marketmath"
)

func latencyConfig() config.LatencyArbConfig {
	cfg := config.LatencyArbConfig{Enabled: true}
	cfg.Defaults()
	return cfg
}

func latencySnapshot(now time.Time, movePct string) *Snapshot {
	buf := feed.NewBuffer(5 * time.Minute)
	base := d("50000")
	buf.Add(feed.Observation{Symbol: "BTCUSDT", Price: base, At: now.Add(-90 * time.Second)})
	buf.Add(feed.Observation{Symbol: "BTCUSDT", Price: base.Add(base.Mul(d(movePct))), At: now})

	m := testMarket("l1", "0.55", "0.46", now)
	m.Asset = "BTCUSDT"

	return &Snapshot{
		Markets: []domain.Market{m},
		Feed:    buf,
		Now:     now,
	}
}

func TestLatencyScan_RequiresBaseline(t *testing.T) {
	now := time.Now()
	s := NewLatencyScanner(latencyConfig(), marketmath.NewFeeCalculator(), 2*time.Minute)

	// 第一周期只建立基准，不产生机会
	snap := latencySnapshot(now, "0.02")
	if opps := s.Scan(context.Background(), snap); len(opps) != 0 {
		t.Fatalf("第一周期不应产生机会")
	}

	// 第二周期：行情已动 2%，市场中价未跟进 ⇒ 产生机会
	snap2 := latencySnapshot(now.Add(5*time.Second), "0.02")
	opps := s.Scan(context.Background(), snap2)
	if len(opps) != 1 {
		t.Fatalf("期望 1 个机会，得到 %d", len(opps))
	}
	opp := opps[0]
	if opp.Strategy != domain.StrategyLatency {
		t.Fatalf("策略标签错误: %s", opp.Strategy)
	}
	// 上涨方向应买 YES
	if !opp.LegAPrice.Equal(d("0.55")) {
		t.Fatalf("应按 YES ask 买入: %s", opp.LegAPrice)
	}
}

func TestLatencyScan_BelowMoveThreshold(t *testing.T) {
	now := time.Now()
	s := NewLatencyScanner(latencyConfig(), marketmath.NewFeeCalculator(), 2*time.Minute)

	s.Scan(context.Background(), latencySnapshot(now, "0.002"))
	opps := s.Scan(context.Background(), latencySnapshot(now.Add(5*time.Second), "0.002"))
	if len(opps) != 0 {
		t.Fatalf("变动低于阈值不应产生机会")
	}
}

func TestLatencyScan_VolatilitySuppression(t *testing.T) {
	now := time.Now()
	s := NewLatencyScanner(latencyConfig(), marketmath.NewFeeCalculator(), 2*time.Minute)

	buildSnap := func(at time.Time) *Snapshot {
		buf := feed.NewBuffer(5 * time.Minute)
		// 1 分钟内 8% 波幅，超过 5% 上限
		buf.Add(feed.Observation{Symbol: "BTCUSDT", Price: d("50000"), At: at.Add(-50 * time.Second)})
		buf.Add(feed.Observation{Symbol: "BTCUSDT", Price: d("54000"), At: at.Add(-20 * time.Second)})
		buf.Add(feed.Observation{Symbol: "BTCUSDT", Price: d("51000"), At: at})

		m := testMarket("l1", "0.55", "0.46", at)
		m.Asset = "BTCUSDT"
		return &Snapshot{Markets: []domain.Market{m}, Feed: buf, Now: at}
	}

	s.Scan(context.Background(), buildSnap(now))
	opps := s.Scan(context.Background(), buildSnap(now.Add(5*time.Second)))
	if len(opps) != 0 {
		t.Fatalf("高波动期不应产生机会")
	}
}
