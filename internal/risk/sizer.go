package risk

import (
	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/pkg/config"
)

// SizerConfig 仓位计算配置（从 config.RiskConfig 转换为 decimal）
type SizerConfig struct {
	WinProb          decimal.Decimal
	MinEdgePct       decimal.Decimal
	KellyFractionMin decimal.Decimal
	KellyFractionMax decimal.Decimal
	MaxPositionPct   decimal.Decimal
	MinPositionUSD   decimal.Decimal
	CapitalTiers     []CapitalTier
}

// CapitalTier 小资金分层：资金低于 BelowUSD 时放宽仓位/热度上限
type CapitalTier struct {
	BelowUSD       decimal.Decimal
	MaxPositionPct decimal.Decimal
	MaxHeatPct     decimal.Decimal
}

// NewSizerConfig 从配置节构建
func NewSizerConfig(cfg config.RiskConfig) SizerConfig {
	tiers := make([]CapitalTier, 0, len(cfg.CapitalTiers))
	for _, t := range cfg.CapitalTiers {
		tiers = append(tiers, CapitalTier{
			BelowUSD:       decimal.NewFromFloat(t.BelowUSD),
			MaxPositionPct: decimal.NewFromFloat(t.MaxPositionPct),
			MaxHeatPct:     decimal.NewFromFloat(t.MaxHeatPct),
		})
	}
	return SizerConfig{
		WinProb:          decimal.NewFromFloat(cfg.WinProb),
		MinEdgePct:       decimal.NewFromFloat(cfg.MinEdgePct),
		KellyFractionMin: decimal.NewFromFloat(cfg.KellyFractionMin),
		KellyFractionMax: decimal.NewFromFloat(cfg.KellyFractionMax),
		MaxPositionPct:   decimal.NewFromFloat(cfg.MaxPositionPct),
		MinPositionUSD:   decimal.NewFromFloat(cfg.MinPositionUSD),
		CapitalTiers:     tiers,
	}
}

// Sizer 分数 Kelly 仓位计算。
// edge = winProb×profitPct − (1−winProb)，赔率取收益率本身；
// 分数在 [min, max] 间按最近 20 笔胜率自适应。
type Sizer struct {
	cfg SizerConfig
}

// NewSizer 创建仓位计算器
func NewSizer(cfg SizerConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Edge 机会的期望边际
func (s *Sizer) Edge(profitPct decimal.Decimal) decimal.Decimal {
	lossProb := decimal.NewFromInt(1).Sub(s.cfg.WinProb)
	return s.cfg.WinProb.Mul(profitPct).Sub(lossProb)
}

// fraction 按滚动胜率选择 Kelly 分数：
// ≥95% 用上限，85–95% 用中值，<85% 用下限；样本不足用下限。
func (s *Sizer) fraction(trailingWinRate decimal.Decimal, haveSample bool) decimal.Decimal {
	if !haveSample {
		return s.cfg.KellyFractionMin
	}
	switch {
	case trailingWinRate.GreaterThanOrEqual(decimal.NewFromFloat(0.95)):
		return s.cfg.KellyFractionMax
	case trailingWinRate.GreaterThanOrEqual(decimal.NewFromFloat(0.85)):
		return s.cfg.KellyFractionMin.Add(s.cfg.KellyFractionMax).Div(decimal.NewFromInt(2))
	default:
		return s.cfg.KellyFractionMin
	}
}

// positionCap 资金分层后的单仓上限比例
func (s *Sizer) positionCap(capital decimal.Decimal) decimal.Decimal {
	for _, tier := range s.cfg.CapitalTiers {
		if capital.LessThan(tier.BelowUSD) {
			return tier.MaxPositionPct
		}
	}
	return s.cfg.MaxPositionPct
}

// HeatCap 资金分层后的组合热度上限比例
func (s *Sizer) HeatCap(capital, strictHeatPct decimal.Decimal) decimal.Decimal {
	for _, tier := range s.cfg.CapitalTiers {
		if capital.LessThan(tier.BelowUSD) {
			return tier.MaxHeatPct
		}
	}
	return strictHeatPct
}

// Size 计算建议仓位（美元）。
// 边际不足或仓位低于平台下限时返回 ok=false。
func (s *Sizer) Size(capital, profitPct, trailingWinRate decimal.Decimal, haveSample bool) (decimal.Decimal, bool) {
	edge := s.Edge(profitPct)
	if edge.LessThan(s.cfg.MinEdgePct) {
		return decimal.Zero, false
	}
	if profitPct.LessThanOrEqual(decimal.Zero) || capital.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}

	// f* = edge / odds；套利场景赔率即收益率
	kelly := edge.Div(profitPct)
	f := kelly.Mul(s.fraction(trailingWinRate, haveSample))

	size := capital.Mul(f)

	// 上限：分层后的单仓比例
	limit := capital.Mul(s.positionCap(capital))
	if size.GreaterThan(limit) {
		size = limit
	}

	// 下限：平台最小单
	if size.LessThan(s.cfg.MinPositionUSD) {
		if limit.LessThan(s.cfg.MinPositionUSD) {
			return decimal.Zero, false
		}
		size = s.cfg.MinPositionUSD
	}

	return size, true
}
