package marketmath

import (
	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/pkg/cache"
)

// 费率曲线常量：峰值 3%（price=0.50），两端下限 0.1%。
var (
	one      = decimal.NewFromInt(1)
	two      = decimal.NewFromInt(2)
	feePeak  = decimal.RequireFromString("0.03")
	feeFloor = decimal.RequireFromString("0.001")
)

// FeeRate 计算给定价格的费率：max(0.001, 0.03 × (1 − |2p − 1|))。
// 纯函数，decimal 精确计算，相同输入必然返回逐位相同的结果。
func FeeRate(price decimal.Decimal) decimal.Decimal {
	skew := two.Mul(price).Sub(one).Abs()
	rate := feePeak.Mul(one.Sub(skew))
	if rate.LessThan(feeFloor) {
		return feeFloor
	}
	return rate
}

// FeeAmount 按价格与数量计算费用金额：price × size × FeeRate(price)。
func FeeAmount(price, size decimal.Decimal) decimal.Decimal {
	return price.Mul(size).Mul(FeeRate(price))
}

// FeeCalculator 带缓存的费率计算器。
// 缓存只是优化：key 为价格的规范字符串，命中与未命中返回结果逐位一致。
type FeeCalculator struct {
	cache *cache.FeeCache
}

// NewFeeCalculator 创建费率计算器
func NewFeeCalculator() *FeeCalculator {
	return &FeeCalculator{cache: cache.NewFeeCache()}
}

// Rate 计算（或从缓存取出）费率
func (c *FeeCalculator) Rate(price decimal.Decimal) decimal.Decimal {
	key := price.String()
	if r, ok := c.cache.Get(key); ok {
		return r
	}
	r := FeeRate(price)
	c.cache.Set(key, r)
	return r
}

// Amount 计算费用金额
func (c *FeeCalculator) Amount(price, size decimal.Decimal) decimal.Decimal {
	return price.Mul(size).Mul(c.Rate(price))
}
