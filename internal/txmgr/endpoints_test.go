package txmgr

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func TestEndpointManagerFailoverAndReturn(t *testing.T) {
	primary := newFakeRPC()
	backup := newFakeRPC()
	clients := map[string]RPCClient{
		"fake://primary": primary,
		"fake://backup":  backup,
	}

	em, err := NewEndpointManagerWithDialer(
		[]string{"fake://primary", "fake://backup"},
		func(url string) (RPCClient, error) { return clients[url], nil },
	)
	if err != nil {
		t.Fatalf("NewEndpointManagerWithDialer: %v", err)
	}

	if em.ActiveURL() != "fake://primary" {
		t.Fatalf("初始应为主节点: %s", em.ActiveURL())
	}

	em.Failover()
	if em.ActiveURL() != "fake://backup" {
		t.Fatalf("故障转移后应为备用节点: %s", em.ActiveURL())
	}

	// 主节点仍不可用时不回切
	primary.mu.Lock()
	primary.gasErr = errors.New("connection refused")
	primary.mu.Unlock()
	em.ReturnToPrimary(context.Background())
	if em.ActiveURL() != "fake://backup" {
		t.Fatalf("主节点未恢复不应回切: %s", em.ActiveURL())
	}

	// 主节点恢复后心跳回切
	primary.mu.Lock()
	primary.gasErr = nil
	primary.mu.Unlock()
	em.ReturnToPrimary(context.Background())
	if em.ActiveURL() != "fake://primary" {
		t.Fatalf("主节点恢复应回切: %s", em.ActiveURL())
	}
}

func TestEndpointManagerSkipsUnreachable(t *testing.T) {
	backup := newFakeRPC()
	em, err := NewEndpointManagerWithDialer(
		[]string{"fake://down", "fake://backup"},
		func(url string) (RPCClient, error) {
			if url == "fake://down" {
				return nil, errors.New("dial refused")
			}
			return backup, nil
		},
	)
	if err != nil {
		t.Fatalf("NewEndpointManagerWithDialer: %v", err)
	}

	c, err := em.Current()
	if err != nil {
		t.Fatalf("应落到可用端点: %v", err)
	}
	if c != RPCClient(backup) {
		t.Fatalf("应返回备用客户端")
	}
	if em.ActiveURL() != "fake://backup" {
		t.Fatalf("活跃端点应为备用: %s", em.ActiveURL())
	}
}

func TestEndpointManagerHealthy(t *testing.T) {
	rpc := newFakeRPC()
	em, err := NewEndpointManagerWithDialer(
		[]string{"fake://primary"},
		func(url string) (RPCClient, error) { return rpc, nil },
	)
	if err != nil {
		t.Fatalf("NewEndpointManagerWithDialer: %v", err)
	}

	if err := em.Healthy(context.Background()); err != nil {
		t.Fatalf("健康检查应通过: %v", err)
	}

	rpc.mu.Lock()
	rpc.gasErr = errors.New("timeout")
	rpc.mu.Unlock()
	if err := em.Healthy(context.Background()); err == nil {
		t.Fatalf("节点异常健康检查应失败")
	}
}

func TestEndpointManagerEmptyList(t *testing.T) {
	if _, err := NewEndpointManagerWithDialer(nil, nil); err == nil {
		t.Fatalf("空端点列表应报错")
	}
}
