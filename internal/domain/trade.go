package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus 一次完整执行尝试的终态
type TradeStatus string

const (
	TradeStatusSuccess TradeStatus = "success" // 两腿全部成交
	TradeStatusFailed  TradeStatus = "failed"  // 两腿都未成交，或其他失败
	TradeStatusUnwound TradeStatus = "unwound" // 单腿成交后已平掉（仍计为失败）
)

// TradeResult 一次完整执行尝试的结果，创建后不可变。
// 不变量：Success 要求两腿都成交；单腿成交永远是失败（需紧急平仓），
// 绝不是部分成功。
type TradeResult struct {
	OpportunityID string
	Strategy      Strategy
	MarketID      string

	LegA LegResult
	LegB LegResult

	Status         TradeStatus
	RealizedProfit decimal.Decimal
	GasCost        decimal.Decimal
	NetProfit      decimal.Decimal

	UnwindAttempted bool
	UnwindFilled    bool

	// Opened 方向性成交留下的未裁决持仓；配对与平仓路径为 nil
	Opened *Position

	StartedAt  time.Time
	FinishedAt time.Time
}

// WasSuccessful 两腿全部成交才算成功
func (r *TradeResult) WasSuccessful() bool {
	return r.Status == TradeStatusSuccess && r.LegA.Filled && r.LegB.Filled
}

// OneLegExposure 是否出现过单腿裸露
func (r *TradeResult) OneLegExposure() bool {
	return r.LegA.Filled != r.LegB.Filled
}
