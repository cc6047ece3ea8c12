package marketmath

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TopOfBook 表示 YES/NO 的一档盘口。
//
// 说明：
// - 本结构只承载"最小决策必要信息"，扫描层可在其上构建更丰富的视图。
// - 零值表示该侧缺失（盘口为空）。
type TopOfBook struct {
	YesBid decimal.Decimal
	YesAsk decimal.Decimal
	NoBid  decimal.Decimal
	NoAsk  decimal.Decimal
}

func (t TopOfBook) Validate() error {
	// 允许单边缺失，但不能全缺。
	if t.YesBid.IsZero() && t.YesAsk.IsZero() && t.NoBid.IsZero() && t.NoAsk.IsZero() {
		return fmt.Errorf("top-of-book is empty")
	}
	check := func(name string, v decimal.Decimal) error {
		if v.IsZero() {
			return nil
		}
		if err := ValidatePrice(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
	if err := check("yesBid", t.YesBid); err != nil {
		return err
	}
	if err := check("yesAsk", t.YesAsk); err != nil {
		return err
	}
	if err := check("noBid", t.NoBid); err != nil {
		return err
	}
	return check("noAsk", t.NoAsk)
}

// EffectivePrices 有效价格（考虑订单簿镜像特性）。
//
// 核心等价关系：
//
//	Buy YES @ P  ≡  Sell NO @ (1-P)
//	Buy NO  @ P  ≡  Sell YES @ (1-P)
//
// 因此，买入某一侧的"有效成本"应同时考虑：
// - 直接在该 token 的 ask 买入
// - 通过对侧 bid 的镜像价格买入
type EffectivePrices struct {
	BuyYes  decimal.Decimal
	BuyNo   decimal.Decimal
	SellYes decimal.Decimal
	SellNo  decimal.Decimal
}

// GetEffectivePrices 计算有效价格。
func GetEffectivePrices(t TopOfBook) (EffectivePrices, error) {
	if err := t.Validate(); err != nil {
		return EffectivePrices{}, err
	}

	// helper: min/max，忽略零值（缺失侧）
	minPos := func(a, b decimal.Decimal) decimal.Decimal {
		if a.IsZero() {
			return b
		}
		if b.IsZero() {
			return a
		}
		if a.LessThan(b) {
			return a
		}
		return b
	}
	maxPos := func(a, b decimal.Decimal) decimal.Decimal {
		if a.IsZero() {
			return b
		}
		if b.IsZero() {
			return a
		}
		if a.GreaterThan(b) {
			return a
		}
		return b
	}

	// 镜像换算：1 - price
	mirror := func(p decimal.Decimal) decimal.Decimal {
		if p.IsZero() {
			return decimal.Zero
		}
		return one.Sub(p)
	}

	e := EffectivePrices{
		// 买 YES：min(YES.ask, 1 - NO.bid)
		BuyYes: minPos(t.YesAsk, mirror(t.NoBid)),
		// 买 NO：min(NO.ask, 1 - YES.bid)
		BuyNo: minPos(t.NoAsk, mirror(t.YesBid)),
		// 卖 YES：max(YES.bid, 1 - NO.ask)
		SellYes: maxPos(t.YesBid, mirror(t.NoAsk)),
		// 卖 NO：max(NO.bid, 1 - YES.ask)
		SellNo: maxPos(t.NoBid, mirror(t.YesAsk)),
	}
	return e, nil
}
