package execution

import (
	"testing"
	"time"
)

func TestInFlightDeduperBlocksDuplicate(t *testing.T) {
	d := NewInFlightDeduper(time.Second, 8)

	if err := d.TryAcquire("mkt-1"); err != nil {
		t.Fatalf("首次占用应成功: %v", err)
	}
	if err := d.TryAcquire("mkt-1"); err != ErrMarketInFlight {
		t.Fatalf("重复占用应拒绝, got %v", err)
	}
	// 不同市场互不影响
	if err := d.TryAcquire("mkt-2"); err != nil {
		t.Fatalf("其他市场应可占用: %v", err)
	}
}

func TestInFlightDeduperRelease(t *testing.T) {
	d := NewInFlightDeduper(time.Hour, 8)

	if err := d.TryAcquire("mkt-1"); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	d.Release("mkt-1")
	if err := d.TryAcquire("mkt-1"); err != nil {
		t.Fatalf("释放后应可重新占用: %v", err)
	}
}

func TestInFlightDeduperTTLExpiry(t *testing.T) {
	d := NewInFlightDeduper(30*time.Millisecond, 8)

	if err := d.TryAcquire("mkt-1"); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := d.TryAcquire("mkt-1"); err != nil {
		t.Fatalf("TTL 过期后应可重新占用: %v", err)
	}
}

func TestInFlightDeduperEmptyKey(t *testing.T) {
	d := NewInFlightDeduper(time.Second, 8)

	// 空 key 永远放行
	if err := d.TryAcquire(""); err != nil {
		t.Fatalf("空 key 应放行: %v", err)
	}
	if err := d.TryAcquire(""); err != nil {
		t.Fatalf("空 key 应放行: %v", err)
	}
}
