package types

// OrderBookSummary 订单簿摘要
type OrderBookSummary struct {
	Market       string         `json:"market"`
	AssetID      string         `json:"asset_id"`
	Timestamp    string         `json:"timestamp"`
	Bids         []OrderSummary `json:"bids"`
	Asks         []OrderSummary `json:"asks"`
	MinOrderSize string         `json:"min_order_size"`
	TickSize     string         `json:"tick_size"`
	NegRisk      bool           `json:"neg_risk"`
	Hash         string         `json:"hash"`
}

// OrderSummary 订单摘要（价格与数量均为十进制字符串）
type OrderSummary struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookParams 订单簿查询参数
type BookParams struct {
	TokenID string
	Side    Side
}

// ClobToken 市场的单个 outcome token
type ClobToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// ClobMarket /markets 返回的市场条目（扫描快照的原始来源）
type ClobMarket struct {
	ConditionID   string      `json:"condition_id"`
	QuestionID    string      `json:"question_id"`
	Question      string      `json:"question"`
	MarketSlug    string      `json:"market_slug"`
	EndDateISO    string      `json:"end_date_iso"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
	AcceptingOrders bool      `json:"accepting_orders"`
	MinimumOrderSize string   `json:"minimum_order_size"`
	MinimumTickSize  string   `json:"minimum_tick_size"`
	NegRisk       bool        `json:"neg_risk"`
	Tokens        []ClobToken `json:"tokens"`
	Tags          []string    `json:"tags"`
}

// MarketsResponse /markets 分页响应
type MarketsResponse struct {
	Data       []ClobMarket `json:"data"`
	NextCursor string       `json:"next_cursor"`
	Limit      int          `json:"limit"`
	Count      int          `json:"count"`
}

// BalanceAllowanceParams 余额和授权查询参数
type BalanceAllowanceParams struct {
	AssetType     AssetType
	TokenID       *string
	SignatureType *SignatureType
}

// BalanceAllowanceResponse 余额和授权响应
type BalanceAllowanceResponse struct {
	Balance             string            `json:"balance"`
	Allowance           string            `json:"allowance"`
	CollateralBalance   string            `json:"collateralBalance,omitempty"`
	CollateralAllowance string            `json:"collateralAllowance,omitempty"`
	Allowances          map[string]string `json:"allowances,omitempty"`
}

// TickSizes 价格精度映射
type TickSizes map[string]TickSize

// NegRisk 负风险映射
type NegRisk map[string]bool

// FeeRates 手续费率映射
type FeeRates map[string]int
