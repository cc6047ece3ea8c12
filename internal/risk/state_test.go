package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/persistence"
)

func winTrade(profit string) *domain.TradeResult {
	return &domain.TradeResult{
		Status:    domain.TradeStatusSuccess,
		LegA:      domain.LegResult{Filled: true},
		LegB:      domain.LegResult{Filled: true},
		NetProfit: decimal.RequireFromString(profit),
	}
}

func lossTrade(loss string) *domain.TradeResult {
	return &domain.TradeResult{
		Status:    domain.TradeStatusFailed,
		NetProfit: decimal.RequireFromString(loss),
	}
}

func TestStateRecordTradeUpdatesCapital(t *testing.T) {
	s := NewState(decimal.NewFromInt(100), 20, nil)

	s.RecordTrade(winTrade("2.5"))
	s.RecordTrade(lossTrade("-1"))

	if !s.Capital().Equal(decimal.RequireFromString("101.5")) {
		t.Fatalf("资金应为 101.5: %s", s.Capital())
	}

	profit, trades := s.DailyStats(time.Now())
	if !profit.Equal(decimal.RequireFromString("1.5")) || trades != 2 {
		t.Fatalf("日统计错误: profit=%s trades=%d", profit, trades)
	}
}

func TestStateTrailingWinRate(t *testing.T) {
	s := NewState(decimal.NewFromInt(100), 4, nil)

	if _, ok := s.TrailingWinRate(); ok {
		t.Fatalf("无样本时 ok 应为 false")
	}

	// 窗口 4：旧的失败被挤出后胜率按最近 4 笔计
	s.RecordTrade(lossTrade("-1"))
	s.RecordTrade(winTrade("1"))
	s.RecordTrade(winTrade("1"))
	s.RecordTrade(winTrade("1"))
	s.RecordTrade(winTrade("1"))

	rate, ok := s.TrailingWinRate()
	if !ok {
		t.Fatalf("应有样本")
	}
	if !rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("最近 4 笔全胜，胜率应为 1: %s", rate)
	}
}

func TestStateExposureLifecycle(t *testing.T) {
	s := NewState(decimal.NewFromInt(100), 20, nil)

	s.ReserveExposure("BTCUSDT", decimal.NewFromInt(10))
	s.ReserveExposure("BTCUSDT", decimal.NewFromInt(5))
	if s.AssetOpenCount("BTCUSDT") != 2 {
		t.Fatalf("标的仓位数应为 2: %d", s.AssetOpenCount("BTCUSDT"))
	}
	if !s.OpenExposure().Equal(decimal.NewFromInt(15)) {
		t.Fatalf("敞口应为 15: %s", s.OpenExposure())
	}

	s.ReleaseExposure("BTCUSDT", decimal.NewFromInt(10))
	s.ReleaseExposure("BTCUSDT", decimal.NewFromInt(5))
	if s.AssetOpenCount("BTCUSDT") != 0 {
		t.Fatalf("释放后仓位数应为 0")
	}
	if !s.OpenExposure().IsZero() {
		t.Fatalf("释放后敞口应为 0: %s", s.OpenExposure())
	}

	// 重复释放不允许变成负数
	s.ReleaseExposure("BTCUSDT", decimal.NewFromInt(1))
	if s.OpenExposure().IsNegative() {
		t.Fatalf("敞口不应为负")
	}
}

func openTrade(id, conditionID, cost, shares string) *domain.TradeResult {
	return &domain.TradeResult{
		Status: domain.TradeStatusSuccess,
		LegA:   domain.LegResult{Filled: true},
		LegB:   domain.LegResult{Filled: true},
		Opened: &domain.Position{
			ID:          id,
			MarketID:    "mkt-1",
			ConditionID: conditionID,
			AssetID:     "tok-yes",
			Strategy:    domain.StrategyCrossVenue,
			Shares:      decimal.RequireFromString(shares),
			CostUSD:     decimal.RequireFromString(cost),
			OpenedAt:    time.Now(),
		},
	}
}

func TestStateOpenPositionDebitsCostOnly(t *testing.T) {
	s := NewState(decimal.NewFromInt(100), 20, nil)

	s.RecordTrade(openTrade("pos-1", "0xc1", "49", "50"))

	if !s.Capital().Equal(decimal.NewFromInt(51)) {
		t.Fatalf("建仓只扣成本: %s", s.Capital())
	}
	// 浮盈不入账：损益等赎回时结算
	profit, trades := s.DailyStats(time.Now())
	if !profit.IsZero() || trades != 1 {
		t.Fatalf("建仓不应产生已实现损益: profit=%s trades=%d", profit, trades)
	}
	if _, ok := s.TrailingWinRate(); ok {
		t.Fatalf("未裁决持仓不应计入胜率窗口")
	}
	if len(s.OpenPositions()) != 1 {
		t.Fatalf("应登记 1 个持仓: %d", len(s.OpenPositions()))
	}
}

func TestStateSettleConditionCreditsPayout(t *testing.T) {
	s := NewState(decimal.NewFromInt(100), 20, nil)
	s.RecordTrade(openTrade("pos-1", "0xc1", "49", "50"))

	s.SettleCondition("0xc1", decimal.RequireFromString("49.5"))

	if !s.Capital().Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("赎回后资金应为 100.5: %s", s.Capital())
	}
	profit, _ := s.DailyStats(time.Now())
	if !profit.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("已实现损益应为 0.5: %s", profit)
	}
	if rate, ok := s.TrailingWinRate(); !ok || !rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("赎回才计入胜率窗口: rate=%s ok=%v", rate, ok)
	}
	if len(s.OpenPositions()) != 0 {
		t.Fatalf("赎回后持仓应清空")
	}
}

func TestStateSettleConditionProRata(t *testing.T) {
	s := NewState(decimal.NewFromInt(100), 20, nil)
	s.RecordTrade(openTrade("pos-1", "0xc1", "30", "30"))
	s.RecordTrade(openTrade("pos-2", "0xc1", "15", "10"))
	s.RecordTrade(openTrade("pos-3", "0xc2", "5", "5"))

	// 派彩 40 按份额 30:10 摊分：pos-1 得 30（持平），pos-2 得 10（亏 5）
	s.SettleCondition("0xc1", decimal.NewFromInt(40))

	if !s.Capital().Equal(decimal.NewFromInt(90)) {
		t.Fatalf("资金应为 100−30−15−5+40=90: %s", s.Capital())
	}
	profit, _ := s.DailyStats(time.Now())
	if !profit.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("已实现损益应为 -5: %s", profit)
	}
	// 无关 condition 的持仓不受影响
	remaining := s.OpenPositions()
	if len(remaining) != 1 || remaining[0].ID != "pos-3" {
		t.Fatalf("仅 0xc2 的持仓应保留: %+v", remaining)
	}
	// 持平算胜、亏损算负
	if rate, ok := s.TrailingWinRate(); !ok || !rate.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("胜率应为 0.5: %s", rate)
	}
}

func TestStateDailyDrawdown(t *testing.T) {
	s := NewState(decimal.NewFromInt(200), 20, nil)

	// 盈利日回撤为 0
	s.RecordTrade(winTrade("5"))
	if !s.DailyDrawdownPct(time.Now()).IsZero() {
		t.Fatalf("盈利时回撤应为 0")
	}

	// 净亏 15：回撤 = 15 / 200 = 7.5%
	s.RecordTrade(lossTrade("-20"))
	dd := s.DailyDrawdownPct(time.Now())
	if !dd.Equal(decimal.RequireFromString("0.075")) {
		t.Fatalf("回撤应为 0.075: %s", dd)
	}
}

func TestStatePersistRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	service := persistence.NewJSONFileService(dir)

	s := NewState(decimal.NewFromInt(100), 20, service)
	s.RecordTrade(winTrade("3"))
	s.ReserveExposure("ETHUSDT", decimal.NewFromInt(12))
	if err := s.Persist(true, "heartbeat_failures"); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	restored := NewState(decimal.NewFromInt(100), 20, service)
	breakerOpen, reason, err := restored.Restore()
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !breakerOpen || reason != "heartbeat_failures" {
		t.Fatalf("断路器状态应跨重启保留: open=%v reason=%q", breakerOpen, reason)
	}
	if !restored.Capital().Equal(decimal.NewFromInt(103)) {
		t.Fatalf("资金应恢复为 103: %s", restored.Capital())
	}
	if !restored.OpenExposure().Equal(decimal.NewFromInt(12)) {
		t.Fatalf("敞口应恢复为 12: %s", restored.OpenExposure())
	}
	if restored.AssetOpenCount("ETHUSDT") != 1 {
		t.Fatalf("标的仓位数应恢复为 1")
	}
	if rate, ok := restored.TrailingWinRate(); !ok || !rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("滚动窗口应恢复: rate=%s ok=%v", rate, ok)
	}
}

func TestStatePositionsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	service := persistence.NewJSONFileService(dir)

	s := NewState(decimal.NewFromInt(100), 20, service)
	s.RecordTrade(openTrade("pos-1", "0xc1", "49", "50"))
	if err := s.Persist(false, ""); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	restored := NewState(decimal.NewFromInt(100), 20, service)
	if _, _, err := restored.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !restored.Capital().Equal(decimal.NewFromInt(51)) {
		t.Fatalf("资金应恢复为 51: %s", restored.Capital())
	}
	positions := restored.OpenPositions()
	if len(positions) != 1 || positions[0].ConditionID != "0xc1" {
		t.Fatalf("持仓应跨重启保留: %+v", positions)
	}
	// 重启后仍可正常赎回入账
	restored.SettleCondition("0xc1", decimal.NewFromInt(50))
	if !restored.Capital().Equal(decimal.NewFromInt(101)) {
		t.Fatalf("赎回后资金应为 101: %s", restored.Capital())
	}
}

func TestStateRestoreWithoutSnapshot(t *testing.T) {
	service := persistence.NewJSONFileService(t.TempDir())

	s := NewState(decimal.NewFromInt(50), 20, service)
	breakerOpen, reason, err := s.Restore()
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if breakerOpen || reason != "" {
		t.Fatalf("无快照时断路器应为关闭")
	}
	if !s.Capital().Equal(decimal.NewFromInt(50)) {
		t.Fatalf("无快照时保持初始资金: %s", s.Capital())
	}
}
