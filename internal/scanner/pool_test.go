package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/betbot/arbot/internal/domain"
)

// stubScanner 返回预置机会的扫描器
type stubScanner struct {
	name domain.Strategy
	opps []*domain.Opportunity
}

func (s *stubScanner) Name() domain.Strategy { return s.name }

func (s *stubScanner) Scan(ctx context.Context, snap *Snapshot) []*domain.Opportunity {
	return s.opps
}

func stubOpp(strategy domain.Strategy, profitPct string) *domain.Opportunity {
	opp := domain.NewOpportunity(strategy, nil)
	opp.ProfitPct = d(profitPct)
	return opp
}

func TestPoolRanking(t *testing.T) {
	low := stubOpp(domain.StrategyPairedArb, "0.005")
	high := stubOpp(domain.StrategyLatency, "0.03")
	mid := stubOpp(domain.StrategyCertainty, "0.01")

	pool := NewPool([]Scanner{
		&stubScanner{name: domain.StrategyPairedArb, opps: []*domain.Opportunity{low}},
		&stubScanner{name: domain.StrategyLatency, opps: []*domain.Opportunity{high}},
		&stubScanner{name: domain.StrategyCertainty, opps: []*domain.Opportunity{mid}},
	}, domain.AllStrategies)

	opps := pool.ScanAll(context.Background(), &Snapshot{Now: time.Now()})
	if len(opps) != 3 {
		t.Fatalf("期望 3 个机会，得到 %d", len(opps))
	}
	if opps[0] != high || opps[1] != mid || opps[2] != low {
		t.Fatalf("排序错误: %s %s %s", opps[0].Strategy, opps[1].Strategy, opps[2].Strategy)
	}
}

func TestPoolTieBreakByPriority(t *testing.T) {
	paired := stubOpp(domain.StrategyPairedArb, "0.01")
	latency := stubOpp(domain.StrategyLatency, "0.01")

	pool := NewPool([]Scanner{
		&stubScanner{name: domain.StrategyLatency, opps: []*domain.Opportunity{latency}},
		&stubScanner{name: domain.StrategyPairedArb, opps: []*domain.Opportunity{paired}},
	}, domain.AllStrategies)

	opps := pool.ScanAll(context.Background(), &Snapshot{Now: time.Now()})
	if len(opps) != 2 {
		t.Fatalf("期望 2 个机会，得到 %d", len(opps))
	}
	// 收益率相同时配对套利优先
	if opps[0] != paired {
		t.Fatalf("并列时应按策略优先级: %s", opps[0].Strategy)
	}
}
