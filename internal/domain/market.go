package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/pkg/marketmath"
)

// Market 单个二元市场的不可变快照。
// 每个扫描周期由行情摄取层重新构建，周期内不会被修改。
type Market struct {
	ID          string // 市场唯一标识（condition id 或 slug）
	Slug        string
	Question    string
	YesAssetID  string // YES token 资产 ID
	NoAssetID   string // NO token 资产 ID
	ConditionID string

	YesAsk decimal.Decimal // YES 最优卖价
	NoAsk  decimal.Decimal // NO 最优卖价
	YesBid decimal.Decimal // YES 最优买价
	NoBid  decimal.Decimal // NO 最优买价

	YesAskLiquidity decimal.Decimal // YES ask 侧可吃数量
	NoAskLiquidity  decimal.Decimal // NO ask 侧可吃数量
	Volume          decimal.Decimal

	Deadline  time.Time // 市场结算截止时间
	Asset     string    // 关联标的（如 BTC、ETH），用于延迟套利与限仓
	Ambiguous bool      // 问题文本含歧义关键词
	Timestamp time.Time // 快照时间
}

// ambiguityKeywords 歧义关键词：命中则不参与临近结算套利。
var ambiguityKeywords = []string{
	"approximately", "roughly", "about", "around",
	"大约", "左右", "接近",
}

// DetectAmbiguity 根据问题文本判断是否存在结算歧义
func DetectAmbiguity(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range ambiguityKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Validate 校验快照可用性：价格必须在 (0,1)，截止时间未过。
// 校验失败的快照直接丢弃，绝不进入扫描。
func (m *Market) Validate(now time.Time) error {
	if m.ID == "" || m.YesAssetID == "" || m.NoAssetID == "" {
		return ErrMarketIncomplete
	}
	if !m.Deadline.IsZero() && m.Deadline.Before(now) {
		return ErrMarketExpired
	}
	if err := marketmath.ValidatePrice(m.YesAsk); err != nil {
		return err
	}
	if err := marketmath.ValidatePrice(m.NoAsk); err != nil {
		return err
	}
	if m.YesAskLiquidity.IsNegative() || m.NoAskLiquidity.IsNegative() {
		return ErrMarketIncomplete
	}
	return nil
}

// TopOfBook 转换为盘口视图
func (m *Market) TopOfBook() marketmath.TopOfBook {
	return marketmath.TopOfBook{
		YesBid: m.YesBid,
		YesAsk: m.YesAsk,
		NoBid:  m.NoBid,
		NoAsk:  m.NoAsk,
	}
}

// ThinnerLegLiquidity 两腿中较薄一侧的可用数量（配对下单上限）
func (m *Market) ThinnerLegLiquidity() decimal.Decimal {
	if m.YesAskLiquidity.LessThan(m.NoAskLiquidity) {
		return m.YesAskLiquidity
	}
	return m.NoAskLiquidity
}

// TimeToDeadline 距离结算截止的剩余时间
func (m *Market) TimeToDeadline(now time.Time) time.Duration {
	if m.Deadline.IsZero() {
		return 0
	}
	return m.Deadline.Sub(now)
}
