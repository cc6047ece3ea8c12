package marketmath

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidatePrice 校验概率型价格必须落在 (0, 1) 开区间。
// 价格来自外部快照，使用前必须重新校验，不信任上游。
func ValidatePrice(price decimal.Decimal) error {
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThanOrEqual(one) {
		return fmt.Errorf("price out of range (0,1): %s", price)
	}
	return nil
}

// PairCost 计算买入 YES+NO 完整对的总成本（含双边费率）：
//
//	cost = askYes + askNo + fee(askYes) + fee(askNo)
//
// 这里费率项按单位数量计价（rate 本身），与成本公式同量纲。
func PairCost(calc *FeeCalculator, askYes, askNo decimal.Decimal) decimal.Decimal {
	return askYes.Add(askNo).Add(calc.Rate(askYes)).Add(calc.Rate(askNo))
}

// PairProfit 完整对的单位利润：1.00 − cost。合并赎回固定得 $1.00。
func PairProfit(calc *FeeCalculator, askYes, askNo decimal.Decimal) decimal.Decimal {
	return one.Sub(PairCost(calc, askYes, askNo))
}

// ProfitPct 利润率 = profit / cost。cost 为 0 时返回 0（调用侧已排除）。
func ProfitPct(profit, cost decimal.Decimal) decimal.Decimal {
	if cost.IsZero() {
		return decimal.Zero
	}
	return profit.Div(cost)
}
