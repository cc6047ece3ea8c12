package domain

import (
	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/clob/types"
)

// OrderIntent 一条腿的下单意图。
// 所有订单一律 FOK：要么全部成交要么全部取消，绝不接受部分成交。
// 失败的订单不会修改条件后重发——失败意味着进入新的决策周期。
type OrderIntent struct {
	MarketID    string
	AssetID     string
	Side        types.Side
	LimitPrice  decimal.Decimal
	Size        decimal.Decimal
	SlippageTol decimal.Decimal // 固定小常数，默认 0.1%
	ClientID    string          // 去重/追踪用
}

// MaxAcceptablePrice 买单可接受的最差成交价（限价 × (1+容忍)）
func (o *OrderIntent) MaxAcceptablePrice() decimal.Decimal {
	return o.LimitPrice.Mul(decimal.NewFromInt(1).Add(o.SlippageTol))
}

// MinAcceptablePrice 卖单可接受的最差成交价（限价 × (1−容忍)）
func (o *OrderIntent) MinAcceptablePrice() decimal.Decimal {
	return o.LimitPrice.Mul(decimal.NewFromInt(1).Sub(o.SlippageTol))
}

// WithinSlippage 校验成交价是否在容忍范围内
func (o *OrderIntent) WithinSlippage(fillPrice decimal.Decimal) bool {
	if o.Side == types.SideBuy {
		return fillPrice.LessThanOrEqual(o.MaxAcceptablePrice())
	}
	return fillPrice.GreaterThanOrEqual(o.MinAcceptablePrice())
}

// LegResult 单腿执行结果
type LegResult struct {
	Intent    OrderIntent
	OrderID   string
	Filled    bool
	FillPrice decimal.Decimal
	FillSize  decimal.Decimal
	Err       string // 失败原因（为空表示正常）
}

// VenueFill 对手平台一笔订单的成交回报
type VenueFill struct {
	OrderID   string
	Filled    bool
	FillPrice decimal.Decimal
	FillSize  decimal.Decimal
}
