package txmgr

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNonceNotSeeded 分配器未用链上值初始化
var ErrNonceNotSeeded = errors.New("nonce allocator not seeded")

// NonceAllocator 互斥锁保护的 nonce 分配器。
// 启动时用 PendingNonceAt 播种；分配出去的 nonce 在确认或放弃前
// 绝不重发给第二笔交易。永久失败释放的 nonce 优先复用，
// 否则链上会留下空洞阻塞后续交易。
type NonceAllocator struct {
	mu     sync.Mutex
	seeded bool
	next   uint64
	inUse  map[uint64]struct{}
	freed  map[uint64]struct{}
}

// NewNonceAllocator 创建空分配器（使用前必须 Seed）
func NewNonceAllocator() *NonceAllocator {
	return &NonceAllocator{
		inUse: make(map[uint64]struct{}),
		freed: make(map[uint64]struct{}),
	}
}

// Seed 用链上 pending nonce 初始化
func (a *NonceAllocator) Seed(nonce uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next = nonce
	a.seeded = true
}

// Acquire 取下一个可用 nonce；优先复用已释放的最小值。
func (a *NonceAllocator) Acquire() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.seeded {
		return 0, ErrNonceNotSeeded
	}

	if len(a.freed) > 0 {
		var lowest uint64
		first := true
		for n := range a.freed {
			if first || n < lowest {
				lowest = n
				first = false
			}
		}
		delete(a.freed, lowest)
		a.inUse[lowest] = struct{}{}
		return lowest, nil
	}

	n := a.next
	a.next++
	a.inUse[n] = struct{}{}
	return n, nil
}

// Confirm 交易确认后永久消费该 nonce
func (a *NonceAllocator) Confirm(nonce uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, nonce)
}

// Release 永久失败后释放 nonce 供下一笔复用
func (a *NonceAllocator) Release(nonce uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.inUse[nonce]; !ok {
		return
	}
	delete(a.inUse, nonce)
	a.freed[nonce] = struct{}{}
}

// InUse 当前已分配未终态的 nonce 数
func (a *NonceAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}
