package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Strategy 扫描器变体标签（封闭集合）
type Strategy string

const (
	StrategyPairedArb  Strategy = "paired_arb"  // 同场内 YES+NO 配对套利
	StrategyCrossVenue Strategy = "cross_venue" // 跨平台价差套利
	StrategyCertainty  Strategy = "certainty"   // 临近结算确定性收割
	StrategyLatency    Strategy = "latency"     // 外部行情延迟套利
)

// AllStrategies 按默认优先级排列的全部变体
var AllStrategies = []Strategy{
	StrategyPairedArb,
	StrategyCrossVenue,
	StrategyCertainty,
	StrategyLatency,
}

// Valid 判断是否为已知变体
func (s Strategy) Valid() bool {
	switch s {
	case StrategyPairedArb, StrategyCrossVenue, StrategyCertainty, StrategyLatency:
		return true
	}
	return false
}

// Opportunity 一次候选获利动作。
// 每周期由扫描器新建、立即被风控消费；被拒绝或执行失败即丢弃，
// 从不持久化或原样重试——下一周期必须重新推导。
type Opportunity struct {
	ID       string
	Strategy Strategy
	Market   *Market

	// 两腿价格与费用。配对套利：A=YES、B=NO；
	// 方向性变体（latency/certainty）只用 LegA，LegB 为零值；
	// 跨平台变体 LegA 为本平台买入、LegB 为对手平台卖出。
	// LegAAssetID 指明买入哪个 token。
	LegAAssetID string
	LegAPrice   decimal.Decimal
	LegBPrice   decimal.Decimal
	LegAFee     decimal.Decimal
	LegBFee     decimal.Decimal

	TotalCost      decimal.Decimal
	ExpectedProfit decimal.Decimal // 配对变体恒等于 1.00 − TotalCost
	ProfitPct      decimal.Decimal // ExpectedProfit / TotalCost

	ProposedSize decimal.Decimal // 扫描器建议规模（风控可下调）
	GasEstimate  decimal.Decimal // 预估链上成本（美元）

	// 跨平台变体的第二平台引用
	SecondVenue       string
	SecondVenueMarket string

	CreatedAt time.Time
}

// NewOpportunity 创建带 ID 与时间戳的机会
func NewOpportunity(strategy Strategy, market *Market) *Opportunity {
	return &Opportunity{
		ID:        uuid.NewString(),
		Strategy:  strategy,
		Market:    market,
		CreatedAt: time.Now(),
	}
}
