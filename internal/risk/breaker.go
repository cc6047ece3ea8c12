package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrCircuitBreakerOpen 表示断路器已打开，禁止继续交易。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// BreakerConfig 断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type BreakerConfig struct {
	// MaxConsecutiveFailures 连续执行失败上限
	MaxConsecutiveFailures int64

	// WinRateFloor 滚动窗口最低胜率（如 0.90）
	WinRateFloor float64

	// WinRateWindow 胜率统计窗口（满窗后才评估）
	WinRateWindow int

	// MaxHeartbeatFailures 连续心跳失败上限
	MaxHeartbeatFailures int64
}

// CircuitBreaker 三类触发条件共用一个熔断状态：
// 连续失败、滚动胜率跌破下限、连续心跳失败。
// 打开后只能人工 Reset，任何成功结果都不会自动恢复。
// 快路径（AllowTrading）用原子变量，胜率窗口用互斥锁。
type CircuitBreaker struct {
	halted     atomic.Bool
	tripReason atomic.Value // string

	consecutiveFailures atomic.Int64
	heartbeatFailures   atomic.Int64

	maxConsecutiveFailures atomic.Int64
	maxHeartbeatFailures   atomic.Int64
	winRateFloor           atomic.Value // float64

	mu      sync.Mutex
	results []bool // 滚动窗口内的胜负序列
	window  int
}

// NewCircuitBreaker 创建断路器
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{window: cfg.WinRateWindow}
	cb.tripReason.Store("")
	cb.SetConfig(cfg)
	return cb
}

// SetConfig 更新阈值（热更新安全）
func (cb *CircuitBreaker) SetConfig(cfg BreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveFailures.Store(cfg.MaxConsecutiveFailures)
	cb.maxHeartbeatFailures.Store(cfg.MaxHeartbeatFailures)
	cb.winRateFloor.Store(cfg.WinRateFloor)
}

// AllowTrading 快路径检查是否允许交易。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}
	if cb.halted.Load() {
		return ErrCircuitBreakerOpen
	}
	return nil
}

// IsOpen 返回断路器是否已打开
func (cb *CircuitBreaker) IsOpen() bool {
	return cb != nil && cb.halted.Load()
}

// TripReason 返回最近一次熔断原因，未熔断时为空串
func (cb *CircuitBreaker) TripReason() string {
	if cb == nil {
		return ""
	}
	if s, ok := cb.tripReason.Load().(string); ok {
		return s
	}
	return ""
}

// trip 打开断路器并记录原因（首个原因保留）
func (cb *CircuitBreaker) trip(reason string) {
	if cb.halted.CompareAndSwap(false, true) {
		cb.tripReason.Store(reason)
	}
}

// ForceOpen 外部强制熔断（心跳连续失败、人工介入）
func (cb *CircuitBreaker) ForceOpen(reason string) {
	if cb == nil {
		return
	}
	cb.trip(reason)
}

// Reset 人工复位：清空计数与胜率窗口，关闭断路器。
// 这是唯一的恢复路径。
func (cb *CircuitBreaker) Reset() {
	if cb == nil {
		return
	}
	cb.consecutiveFailures.Store(0)
	cb.heartbeatFailures.Store(0)
	cb.mu.Lock()
	cb.results = nil
	cb.mu.Unlock()
	cb.tripReason.Store("")
	cb.halted.Store(false)
}

// RecordSuccess 记录一次成功执行：清零连续失败计数。
// 不会关闭已打开的断路器。
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveFailures.Store(0)
	cb.recordResult(true)
}

// RecordFailure 记录一次失败执行，weight 为计入连续失败计数的权重
//（单腿暴露按 3 计）。
func (cb *CircuitBreaker) RecordFailure(weight int64) {
	if cb == nil {
		return
	}
	if weight <= 0 {
		weight = 1
	}
	n := cb.consecutiveFailures.Add(weight)
	max := cb.maxConsecutiveFailures.Load()
	if max > 0 && n >= max {
		cb.trip(fmt.Sprintf("consecutive failures: %d", n))
	}
	cb.recordResult(false)
}

// recordResult 维护胜率窗口并在满窗后评估胜率下限
func (cb *CircuitBreaker) recordResult(win bool) {
	if cb.window <= 0 {
		return
	}

	cb.mu.Lock()
	cb.results = append(cb.results, win)
	if len(cb.results) > cb.window {
		cb.results = cb.results[len(cb.results)-cb.window:]
	}
	full := len(cb.results) == cb.window
	wins := 0
	for _, w := range cb.results {
		if w {
			wins++
		}
	}
	cb.mu.Unlock()

	floor, _ := cb.winRateFloor.Load().(float64)
	if full && floor > 0 {
		rate := float64(wins) / float64(cb.window)
		if rate < floor {
			cb.trip(fmt.Sprintf("win rate %.3f below floor %.3f", rate, floor))
		}
	}
}

// RecordHeartbeatFailure 记录一次心跳失败；连续达到上限即熔断。
func (cb *CircuitBreaker) RecordHeartbeatFailure() {
	if cb == nil {
		return
	}
	n := cb.heartbeatFailures.Add(1)
	max := cb.maxHeartbeatFailures.Load()
	if max > 0 && n >= max {
		cb.trip(fmt.Sprintf("heartbeat failures: %d", n))
	}
}

// RecordHeartbeatSuccess 心跳成功清零连续失败计数
func (cb *CircuitBreaker) RecordHeartbeatSuccess() {
	if cb == nil {
		return
	}
	cb.heartbeatFailures.Store(0)
}
