package scanner

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/logger"
	"github.com/betbot/arbot/pkg/syncgroup"
)

// Pool 扫描器池：同一快照并发跑全部扫描器，汇总后统一排序。
// 排序规则：收益率降序，相同收益率按策略优先级。
type Pool struct {
	scanners []Scanner
	priority map[domain.Strategy]int
	log      *logrus.Entry
}

// NewPool 创建扫描器池。priority 为策略优先级顺序（靠前优先），
// 未列出的策略排在所有已列出策略之后。
func NewPool(scanners []Scanner, priority []domain.Strategy) *Pool {
	prio := make(map[domain.Strategy]int, len(priority))
	for i, s := range priority {
		prio[s] = i
	}
	return &Pool{
		scanners: scanners,
		priority: prio,
		log:      logger.WithField("component", "scanner-pool"),
	}
}

// ScanAll 并发执行全部扫描器并返回排序后的机会列表
func (p *Pool) ScanAll(ctx context.Context, snap *Snapshot) []*domain.Opportunity {
	results := make([][]*domain.Opportunity, len(p.scanners))

	group := syncgroup.NewSyncGroup()
	for i, s := range p.scanners {
		group.Add(func() {
			results[i] = s.Scan(ctx, snap)
		})
	}
	group.Run()
	group.Wait()

	var all []*domain.Opportunity
	for _, r := range results {
		all = append(all, r...)
	}

	p.rank(all)

	if len(all) > 0 {
		p.log.WithFields(logrus.Fields{
			"markets":       len(snap.Markets),
			"opportunities": len(all),
		}).Info("扫描周期完成")
	}
	return all
}

// rank 收益率降序；并列时按策略优先级
func (p *Pool) rank(opps []*domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if !opps[i].ProfitPct.Equal(opps[j].ProfitPct) {
			return opps[i].ProfitPct.GreaterThan(opps[j].ProfitPct)
		}
		return p.strategyRank(opps[i].Strategy) < p.strategyRank(opps[j].Strategy)
	})
}

func (p *Pool) strategyRank(s domain.Strategy) int {
	if r, ok := p.priority[s]; ok {
		return r
	}
	return len(p.priority)
}
