package txmgr

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/pkg/logger"
)

// RPCClient 交易生命周期用到的节点能力子集（ethclient.Client 天然满足）
type RPCClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// Dialer 建立到单个 RPC 端点的连接
type Dialer func(url string) (RPCClient, error)

func ethDial(url string) (RPCClient, error) {
	c, err := ethclient.Dial(url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// EndpointManager 按优先级管理 RPC 端点。
// 传输层故障时切换到下一个备用节点；回切主节点只在心跳时发生，
// 绝不在一次操作中途换端点。
type EndpointManager struct {
	mu      sync.Mutex
	urls    []string
	clients map[int]RPCClient // 惰性建连
	active  int
	dial    Dialer

	log *logrus.Entry
}

// NewEndpointManager 创建端点管理器；urls 首个为主节点。
func NewEndpointManager(urls []string) (*EndpointManager, error) {
	return NewEndpointManagerWithDialer(urls, ethDial)
}

// NewEndpointManagerWithDialer 指定拨号函数（测试注入用）
func NewEndpointManagerWithDialer(urls []string, dial Dialer) (*EndpointManager, error) {
	if len(urls) == 0 {
		return nil, errors.New("no rpc endpoints configured")
	}
	return &EndpointManager{
		urls:    urls,
		clients: make(map[int]RPCClient),
		dial:    dial,
		log:     logger.WithField("component", "rpc-endpoints"),
	}, nil
}

// Current 返回当前活跃端点的客户端；当前端点无法建连时自动后移。
func (m *EndpointManager) Current() (RPCClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for i := 0; i < len(m.urls); i++ {
		idx := (m.active + i) % len(m.urls)
		c, err := m.clientLocked(idx)
		if err != nil {
			lastErr = err
			m.log.WithError(err).WithField("endpoint", m.urls[idx]).Warn("RPC 建连失败，尝试下一个")
			continue
		}
		if idx != m.active {
			m.log.WithFields(logrus.Fields{
				"from": m.urls[m.active],
				"to":   m.urls[idx],
			}).Warn("RPC 端点切换")
			m.active = idx
		}
		return c, nil
	}
	return nil, errors.Wrap(lastErr, "all rpc endpoints unreachable")
}

func (m *EndpointManager) clientLocked(idx int) (RPCClient, error) {
	if c, ok := m.clients[idx]; ok {
		return c, nil
	}
	c, err := m.dial(m.urls[idx])
	if err != nil {
		return nil, err
	}
	m.clients[idx] = c
	return c, nil
}

// ActiveURL 当前活跃端点地址
func (m *EndpointManager) ActiveURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.urls[m.active]
}

// Failover 传输失败后切到下一个端点
func (m *EndpointManager) Failover() {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := (m.active + 1) % len(m.urls)
	m.log.WithFields(logrus.Fields{
		"from": m.urls[m.active],
		"to":   m.urls[next],
	}).Warn("RPC 故障转移")
	m.active = next
}

// ReturnToPrimary 主节点恢复则回切；仅在心跳时调用。
func (m *EndpointManager) ReturnToPrimary(ctx context.Context) {
	m.mu.Lock()
	if m.active == 0 {
		m.mu.Unlock()
		return
	}
	primary, err := m.clientLocked(0)
	m.mu.Unlock()
	if err != nil {
		return
	}

	// 活性探测：主节点能报 gas price 即认为已恢复
	if _, err := primary.SuggestGasPrice(ctx); err != nil {
		return
	}

	m.mu.Lock()
	m.log.WithField("endpoint", m.urls[0]).Info("主 RPC 节点恢复，回切")
	m.active = 0
	m.mu.Unlock()
}

// Healthy 心跳连通性检查
func (m *EndpointManager) Healthy(ctx context.Context) error {
	c, err := m.Current()
	if err != nil {
		return err
	}
	if _, err := c.SuggestGasPrice(ctx); err != nil {
		return errors.Wrap(err, "rpc connectivity check")
	}
	return nil
}
