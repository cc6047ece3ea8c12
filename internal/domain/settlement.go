package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementReceipt 一次链上合并结算的回执
type SettlementReceipt struct {
	MarketID    string
	ConditionID string
	TxHash      string

	Amount          decimal.Decimal // 合并数量（= 预期抵押品回收量）
	CollateralDelta decimal.Decimal // 实测抵押品余额变化
	GasUsed         uint64
	GasCost         decimal.Decimal // 美元计

	SubmittedAt time.Time
	ConfirmedAt time.Time
}

// Exact 合并结算必须精确：余额增量与合并数量逐位相等
func (r *SettlementReceipt) Exact() bool {
	return r.CollateralDelta.Equal(r.Amount)
}

// RedemptionReceipt 市场裁决后一次链上赎回的回执。
// Payout 取赎回前后抵押品余额的实测差值，不用任何预期值。
type RedemptionReceipt struct {
	ConditionID string
	TxHash      string

	Payout  decimal.Decimal
	GasUsed uint64
	GasCost decimal.Decimal // 美元计

	SubmittedAt time.Time
	ConfirmedAt time.Time
}
