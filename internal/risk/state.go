package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/persistence"
)

// TradeOutcome 滚动窗口内的单次交易结果
type TradeOutcome struct {
	Win       bool            `json:"win"`
	NetProfit decimal.Decimal `json:"net_profit"`
	Strategy  domain.Strategy `json:"strategy"`
	At        time.Time       `json:"at"`
}

// stateSnapshot 持久化快照。字段通过 persistence 标签逐项存储，
// 进程重启后恢复；断路器打开状态跨重启保留。
type stateSnapshot struct {
	Capital       decimal.Decimal            `persistence:"capital"`
	OpenExposure  decimal.Decimal            `persistence:"open_exposure"`
	Outcomes      []TradeOutcome             `persistence:"outcomes"`
	AssetOpen     map[string]int             `persistence:"asset_open"`
	Positions     map[string]domain.Position `persistence:"positions"`
	DailyProfit   decimal.Decimal            `persistence:"daily_profit"`
	DailyTrades   int                        `persistence:"daily_trades"`
	DailyAnchor   decimal.Decimal            `persistence:"daily_anchor"` // 当日起始资金
	DayKey        string                     `persistence:"day_key"`      // UTC YYYY-MM-DD
	BreakerOpen   bool                       `persistence:"breaker_open"`
	BreakerReason string                     `persistence:"breaker_reason"`
}

// State 风控可变状态。唯一写入方是引擎的 Record 步骤；
// 每次变更后快照落盘。
type State struct {
	mu sync.RWMutex

	capital      decimal.Decimal
	openExposure decimal.Decimal
	outcomes     []TradeOutcome
	assetOpen    map[string]int
	positions    map[string]domain.Position

	dailyProfit decimal.Decimal
	dailyTrades int
	dailyAnchor decimal.Decimal
	dayKey      string

	trailingWindow int
	service        persistence.Service
}

// NewState 创建风控状态；trailingWindow 为自适应 Kelly 的窗口长度。
func NewState(initialCapital decimal.Decimal, trailingWindow int, service persistence.Service) *State {
	if trailingWindow <= 0 {
		trailingWindow = 20
	}
	return &State{
		capital:        initialCapital,
		dailyAnchor:    initialCapital,
		dayKey:         dayKeyUTC(time.Now()),
		assetOpen:      make(map[string]int),
		positions:      make(map[string]domain.Position),
		trailingWindow: trailingWindow,
		service:        service,
	}
}

func dayKeyUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Restore 从持久化恢复状态；无快照时保持初始值。
// 返回恢复出的断路器状态，供调用方回放到 CircuitBreaker。
func (s *State) Restore() (breakerOpen bool, breakerReason string, err error) {
	if s.service == nil {
		return false, "", nil
	}

	var snap stateSnapshot
	if err := persistence.LoadFields(&snap, "risk", s.service); err != nil {
		return false, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !snap.Capital.IsZero() {
		s.capital = snap.Capital
	}
	s.openExposure = snap.OpenExposure
	s.outcomes = snap.Outcomes
	if snap.AssetOpen != nil {
		s.assetOpen = snap.AssetOpen
	}
	if snap.Positions != nil {
		s.positions = snap.Positions
	}
	s.dailyProfit = snap.DailyProfit
	s.dailyTrades = snap.DailyTrades
	if !snap.DailyAnchor.IsZero() {
		s.dailyAnchor = snap.DailyAnchor
	}
	if snap.DayKey != "" {
		s.dayKey = snap.DayKey
	}
	s.rollDayLocked(time.Now())
	return snap.BreakerOpen, snap.BreakerReason, nil
}

// Persist 快照落盘。breaker 状态由调用方传入（断路器自身无持久化依赖）。
func (s *State) Persist(breakerOpen bool, breakerReason string) error {
	if s.service == nil {
		return nil
	}

	s.mu.RLock()
	snap := stateSnapshot{
		Capital:       s.capital,
		OpenExposure:  s.openExposure,
		Outcomes:      append([]TradeOutcome(nil), s.outcomes...),
		AssetOpen:     copyAssetOpen(s.assetOpen),
		Positions:     copyPositions(s.positions),
		DailyProfit:   s.dailyProfit,
		DailyTrades:   s.dailyTrades,
		DailyAnchor:   s.dailyAnchor,
		DayKey:        s.dayKey,
		BreakerOpen:   breakerOpen,
		BreakerReason: breakerReason,
	}
	s.mu.RUnlock()

	return persistence.SaveFields(&snap, "risk", s.service)
}

func copyAssetOpen(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyPositions(m map[string]domain.Position) map[string]domain.Position {
	out := make(map[string]domain.Position, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// rollDayLocked 午夜（UTC）翻转日计数
func (s *State) rollDayLocked(now time.Time) {
	key := dayKeyUTC(now)
	if key == s.dayKey {
		return
	}
	s.dayKey = key
	s.dailyProfit = decimal.Zero
	s.dailyTrades = 0
	s.dailyAnchor = s.capital
}

// Capital 当前可用资金
func (s *State) Capital() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capital
}

// SetCapital 启动时以链上余额校准资金
func (s *State) SetCapital(capital decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capital = capital
	if s.dailyAnchor.IsZero() {
		s.dailyAnchor = capital
	}
}

// OpenExposure 当前在途敞口
func (s *State) OpenExposure() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openExposure
}

// AssetOpenCount 指定标的的在途仓位数
func (s *State) AssetOpenCount(asset string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assetOpen[asset]
}

// DailyDrawdownPct 当日回撤比例（相对当日起始资金），盈利时为 0
func (s *State) DailyDrawdownPct(now time.Time) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked(now)
	if s.dailyAnchor.IsZero() || !s.dailyProfit.IsNegative() {
		return decimal.Zero
	}
	return s.dailyProfit.Neg().Div(s.dailyAnchor)
}

// DailyStats 当日收益与交易笔数
func (s *State) DailyStats(now time.Time) (profit decimal.Decimal, trades int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked(now)
	return s.dailyProfit, s.dailyTrades
}

// TrailingWinRate 最近 trailingWindow 笔交易的胜率；
// 样本不足时返回 ok=false。
func (s *State) TrailingWinRate() (rate decimal.Decimal, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.outcomes)
	if n == 0 {
		return decimal.Zero, false
	}
	window := s.outcomes
	if n > s.trailingWindow {
		window = s.outcomes[n-s.trailingWindow:]
	}
	wins := 0
	for _, o := range window {
		if o.Win {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(window)))), true
}

// ReserveExposure 交易提交前占用敞口与标的名额
func (s *State) ReserveExposure(asset string, size decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openExposure = s.openExposure.Add(size)
	if asset != "" {
		s.assetOpen[asset]++
	}
}

// ReleaseExposure 交易终态后释放敞口与标的名额
func (s *State) ReleaseExposure(asset string, size decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openExposure = s.openExposure.Sub(size)
	if s.openExposure.IsNegative() {
		s.openExposure = decimal.Zero
	}
	if asset != "" {
		if s.assetOpen[asset] > 0 {
			s.assetOpen[asset]--
		}
		if s.assetOpen[asset] == 0 {
			delete(s.assetOpen, asset)
		}
	}
}

// RecordTrade 记录一笔终态交易：更新资金、日计数与滚动窗口。
// 带持仓的方向性成交只扣建仓成本并登记持仓，
// 胜负与损益等 SettleCondition 赎回时再入账。
func (s *State) RecordTrade(result *domain.TradeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.rollDayLocked(now)

	if result.Opened != nil && result.WasSuccessful() {
		s.positions[result.Opened.ID] = *result.Opened
		s.capital = s.capital.Sub(result.Opened.CostUSD)
		s.dailyTrades++
		return
	}

	s.capital = s.capital.Add(result.NetProfit)
	s.dailyProfit = s.dailyProfit.Add(result.NetProfit)
	s.dailyTrades++

	s.appendOutcomeLocked(TradeOutcome{
		Win:       result.WasSuccessful(),
		NetProfit: result.NetProfit,
		Strategy:  result.Strategy,
		At:        now,
	})
}

func (s *State) appendOutcomeLocked(o TradeOutcome) {
	s.outcomes = append(s.outcomes, o)
	// 有界保留，远大于自适应窗口即可
	if max := s.trailingWindow * 10; len(s.outcomes) > max {
		s.outcomes = s.outcomes[len(s.outcomes)-max:]
	}
}

// OpenPositions 当前未裁决持仓的拷贝
func (s *State) OpenPositions() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}

// SettleCondition 按实测派彩关闭一个 condition 下的全部持仓。
// 资金回补派彩全额，损益取派彩减总成本；
// 多个持仓共享一次派彩时按份额比例摊分胜负。
func (s *State) SettleCondition(conditionID string, payout decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.rollDayLocked(now)

	totalShares := decimal.Zero
	var closed []domain.Position
	for id, p := range s.positions {
		if p.ConditionID != conditionID {
			continue
		}
		closed = append(closed, p)
		totalShares = totalShares.Add(p.Shares)
		delete(s.positions, id)
	}
	if len(closed) == 0 {
		return
	}

	s.capital = s.capital.Add(payout)
	for _, p := range closed {
		allocated := payout
		if totalShares.IsPositive() {
			allocated = payout.Mul(p.Shares).Div(totalShares)
		}
		pnl := allocated.Sub(p.CostUSD)
		s.dailyProfit = s.dailyProfit.Add(pnl)
		s.appendOutcomeLocked(TradeOutcome{
			Win:       !pnl.IsNegative(),
			NetProfit: pnl,
			Strategy:  p.Strategy,
			At:        now,
		})
	}
}
