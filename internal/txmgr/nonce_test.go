package txmgr

import "testing"

func TestNonceAllocatorRequiresSeed(t *testing.T) {
	a := NewNonceAllocator()
	if _, err := a.Acquire(); err != ErrNonceNotSeeded {
		t.Fatalf("未播种应报错, got %v", err)
	}
}

func TestNonceAllocatorSequence(t *testing.T) {
	a := NewNonceAllocator()
	a.Seed(42)

	for want := uint64(42); want < 45; want++ {
		n, err := a.Acquire()
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if n != want {
			t.Fatalf("期望 nonce %d, got %d", want, n)
		}
	}
	if a.InUse() != 3 {
		t.Fatalf("在用数应为 3: %d", a.InUse())
	}

	a.Confirm(42)
	a.Confirm(43)
	if a.InUse() != 1 {
		t.Fatalf("确认后在用数应为 1: %d", a.InUse())
	}
}

func TestNonceAllocatorReleaseReuse(t *testing.T) {
	a := NewNonceAllocator()
	a.Seed(10)

	n1, _ := a.Acquire() // 10
	n2, _ := a.Acquire() // 11
	if n1 != 10 || n2 != 11 {
		t.Fatalf("初始分配错误: %d %d", n1, n2)
	}

	// 永久失败释放：空洞必须先被填上
	a.Release(n1)
	n3, _ := a.Acquire()
	if n3 != 10 {
		t.Fatalf("释放的 nonce 应优先复用: %d", n3)
	}

	n4, _ := a.Acquire()
	if n4 != 12 {
		t.Fatalf("之后继续递增: %d", n4)
	}
}

func TestNonceAllocatorReleaseUnknownIsNoop(t *testing.T) {
	a := NewNonceAllocator()
	a.Seed(0)

	a.Release(99)
	n, _ := a.Acquire()
	if n != 0 {
		t.Fatalf("释放未分配的 nonce 不应有副作用: %d", n)
	}
}
