package feed

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Observation 单个价格观测
type Observation struct {
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

// Buffer 按符号维护时间窗口内的价格观测序列。
// 写入方是 websocket 读取循环，读取方是扫描器（同步读，不阻塞写入方）。
type Buffer struct {
	mu     sync.RWMutex
	window time.Duration
	series map[string][]Observation
}

// NewBuffer 创建观测缓冲，window 之外的观测在写入时被裁剪
func NewBuffer(window time.Duration) *Buffer {
	if window <= 0 {
		window = 2 * time.Minute
	}
	return &Buffer{
		window: window,
		series: make(map[string][]Observation),
	}
}

// Add 追加一个观测并裁剪过期数据
func (b *Buffer) Add(obs Observation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := append(b.series[obs.Symbol], obs)
	cutoff := obs.At.Add(-b.window)
	i := 0
	for i < len(s) && s[i].At.Before(cutoff) {
		i++
	}
	b.series[obs.Symbol] = s[i:]
}

// Latest 返回符号的最新观测，无数据时 ok 为 false
func (b *Buffer) Latest(symbol string) (Observation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.series[symbol]
	if len(s) == 0 {
		return Observation{}, false
	}
	return s[len(s)-1], true
}

// MoveSince 返回 lookback 时间内的相对价格变化（(latest-ref)/ref）。
// 参考点取窗口内不早于 lookback 的第一个观测。
func (b *Buffer) MoveSince(symbol string, lookback time.Duration, now time.Time) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.series[symbol]
	if len(s) < 2 {
		return decimal.Zero, false
	}

	latest := s[len(s)-1]
	cutoff := now.Add(-lookback)
	var ref *Observation
	for i := range s {
		if !s[i].At.Before(cutoff) {
			ref = &s[i]
			break
		}
	}
	if ref == nil || ref.Price.IsZero() || ref.At.Equal(latest.At) {
		return decimal.Zero, false
	}
	return latest.Price.Sub(ref.Price).Div(ref.Price), true
}

// Volatility 返回 lookback 时间内的价格波幅 (max-min)/min
func (b *Buffer) Volatility(symbol string, lookback time.Duration, now time.Time) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.series[symbol]
	cutoff := now.Add(-lookback)

	var min, max decimal.Decimal
	found := false
	for i := range s {
		if s[i].At.Before(cutoff) {
			continue
		}
		p := s[i].Price
		if !found {
			min, max = p, p
			found = true
			continue
		}
		if p.LessThan(min) {
			min = p
		}
		if p.GreaterThan(max) {
			max = p
		}
	}
	if !found || min.IsZero() {
		return decimal.Zero, false
	}
	return max.Sub(min).Div(min), true
}

// Symbols 返回当前有观测数据的符号列表
func (b *Buffer) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.series))
	for sym, s := range b.series {
		if len(s) > 0 {
			out = append(out, sym)
		}
	}
	return out
}
