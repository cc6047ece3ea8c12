package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position 方向性变体留下的未裁决持仓。
// 成本在开仓时从资金中扣除，裁决赎回后按实际派彩回补，
// 期间绝不把预期收益计入资金。
type Position struct {
	ID          string          `json:"id"` // 机会 ID，同时作为持仓主键
	MarketID    string          `json:"market_id"`
	ConditionID string          `json:"condition_id"`
	AssetID     string          `json:"asset_id"`
	Strategy    Strategy        `json:"strategy"`
	Shares      decimal.Decimal `json:"shares"`
	CostUSD     decimal.Decimal `json:"cost_usd"` // 含手续费的建仓成本
	Deadline    time.Time       `json:"deadline"` // 市场截止时间，之前不查裁决
	OpenedAt    time.Time       `json:"opened_at"`
}
