package txmgr

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	clobclient "github.com/betbot/arbot/clob/client"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
)

var (
	// ErrPendingLimit 在途交易数已达上限
	ErrPendingLimit = errors.New("pending transaction limit reached")
	// ErrTxAbandoned gas 抬价达到上限后放弃
	ErrTxAbandoned = errors.New("transaction abandoned after max gas escalations")
	// ErrTxReverted 链上回滚
	ErrTxReverted = errors.New("transaction reverted on-chain")
)

// 保守的 gas 上限兜底（估算失败时使用）
const fallbackGasLimit = uint64(200_000)

// Confirmation 一笔已确认交易的回执摘要
type Confirmation struct {
	TxHash      common.Hash
	GasUsed     uint64
	GasPriceWei *big.Int
	Escalations int
}

// GasCostUSD 按 POL 价格折算的 gas 成本（美元）
func (c *Confirmation) GasCostUSD(polPriceUSD decimal.Decimal) decimal.Decimal {
	wei := new(big.Int).Mul(c.GasPriceWei, new(big.Int).SetUint64(c.GasUsed))
	return decimal.NewFromBigInt(wei, -18).Mul(polPriceUSD)
}

type pendingTx struct {
	nonce       uint64
	hash        common.Hash
	gasPrice    *big.Int
	submittedAt time.Time
	escalations int
}

// Manager 链上交易生命周期管理：nonce 分配、在途上限、
// 卡死抬价重发、传输退避重试与端点故障转移。
type Manager struct {
	cfg       config.TxManagerConfig
	endpoints *EndpointManager
	nonces    *NonceAllocator
	key       *ecdsa.PrivateKey
	address   common.Address
	chainID   *big.Int

	// 测试可缩短
	pollInterval time.Duration
	stuckTimeout time.Duration

	mu       sync.Mutex
	pending  map[uint64]*pendingTx
	reserved int // 已过上限检查但尚未进 pending 的名额

	log *logrus.Entry
}

// NewManager 创建交易管理器
func NewManager(cfg config.TxManagerConfig, endpoints *EndpointManager, key *ecdsa.PrivateKey, chainID *big.Int) *Manager {
	return &Manager{
		cfg:          cfg,
		endpoints:    endpoints,
		nonces:       NewNonceAllocator(),
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:      chainID,
		pollInterval: 3 * time.Second,
		stuckTimeout: cfg.StuckTimeout(),
		pending:      make(map[uint64]*pendingTx),
		log:          logger.WithField("component", "txmgr"),
	}
}

// Address 签名地址
func (m *Manager) Address() common.Address {
	return m.address
}

// Init 用链上 pending nonce 播种分配器
func (m *Manager) Init(ctx context.Context) error {
	client, err := m.endpoints.Current()
	if err != nil {
		return err
	}
	var nonce uint64
	err = retryTransport(ctx, m.cfg, "pending nonce", func() error {
		var e error
		nonce, e = client.PendingNonceAt(ctx, m.address)
		return e
	})
	if err != nil {
		return err
	}
	m.nonces.Seed(nonce)
	m.log.WithField("nonce", nonce).Info("nonce 分配器已初始化")
	return nil
}

// PendingCount 当前在途交易数，含已占名额（风控闸门与心跳读取）
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) + m.reserved
}

// reservePending 上限检查与占名额在同一把锁下完成，
// 并发 Submit 不可能瞬时超限。
func (m *Manager) reservePending() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending)+m.reserved >= m.cfg.PendingLimit {
		return ErrPendingLimit
	}
	m.reserved++
	return nil
}

// commitPending 把占用的名额转成真正的在途记录
func (m *Manager) commitPending(pend *pendingTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved--
	m.pending[pend.nonce] = pend
}

// releasePending 发送失败时归还名额
func (m *Manager) releasePending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved--
}

// CurrentGasPrice 当前建议 gas price（gwei）
func (m *Manager) CurrentGasPrice(ctx context.Context) (decimal.Decimal, error) {
	client, err := m.endpoints.Current()
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := client.SuggestGasPrice(ctx)
	if err != nil {
		m.endpoints.Failover()
		return decimal.Zero, errors.Wrap(err, "suggest gas price")
	}
	return decimal.NewFromBigInt(wei, -9), nil
}

// CallContract 只读合约调用（为 CTF 客户端提供当前端点）
func (m *Manager) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	client, err := m.endpoints.Current()
	if err != nil {
		return nil, err
	}
	out, err := client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		m.endpoints.Failover()
		return nil, err
	}
	return out, nil
}

// Heartbeat 连通性检查；主节点恢复时回切（只在这里回切）。
func (m *Manager) Heartbeat(ctx context.Context) error {
	if err := m.endpoints.Healthy(ctx); err != nil {
		m.endpoints.Failover()
		return err
	}
	m.endpoints.ReturnToPrimary(ctx)
	return nil
}

// Submit 发送一笔合约调用并阻塞等待确认。
// 超过 stuckTimeout 未上链 ⇒ 同 nonce 按 GasBumpPct 抬价重发，
// 连续 MaxEscalations 次后放弃并释放 nonce。
func (m *Manager) Submit(ctx context.Context, call clobclient.TxCall) (*Confirmation, error) {
	if err := m.reservePending(); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			m.releasePending()
		}
	}()

	client, err := m.endpoints.Current()
	if err != nil {
		return nil, err
	}

	var gasPrice *big.Int
	err = retryTransport(ctx, m.cfg, "gas price", func() error {
		var e error
		gasPrice, e = client.SuggestGasPrice(ctx)
		return e
	})
	if err != nil {
		m.endpoints.Failover()
		return nil, err
	}

	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  m.address,
		To:    &call.To,
		Value: value,
		Data:  call.Data,
	})
	if err != nil {
		gasLimit = fallbackGasLimit
		m.log.WithError(err).WithField("fallback", gasLimit).Warn("gas 估算失败，使用兜底上限")
	}
	// 20% 余量
	gasLimit = gasLimit * 12 / 10

	nonce, err := m.nonces.Acquire()
	if err != nil {
		return nil, err
	}

	signed, err := m.signTx(nonce, call.To, value, gasLimit, gasPrice, call.Data)
	if err != nil {
		m.nonces.Release(nonce)
		return nil, err
	}

	err = retryTransport(ctx, m.cfg, "send transaction", func() error {
		return client.SendTransaction(ctx, signed)
	})
	if err != nil {
		m.endpoints.Failover()
		m.nonces.Release(nonce)
		return nil, err
	}

	pend := &pendingTx{
		nonce:       nonce,
		hash:        signed.Hash(),
		gasPrice:    gasPrice,
		submittedAt: time.Now(),
	}
	m.commitPending(pend)
	committed = true
	defer func() {
		m.mu.Lock()
		delete(m.pending, nonce)
		m.mu.Unlock()
	}()

	m.log.WithFields(logrus.Fields{
		"tx":    pend.hash.Hex(),
		"nonce": nonce,
		"to":    call.To.Hex(),
	}).Info("交易已发送")

	return m.waitConfirm(ctx, client, call, value, gasLimit, pend)
}

// waitConfirm 轮询回执；卡死则抬价重发同一 nonce。
func (m *Manager) waitConfirm(ctx context.Context, client RPCClient, call clobclient.TxCall, value *big.Int, gasLimit uint64, pend *pendingTx) (*Confirmation, error) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// 关停时不放弃 nonce：交易可能仍会上链
			return nil, ctx.Err()
		case <-ticker.C:
		}

		receipt, err := client.TransactionReceipt(ctx, pend.hash)
		if err == nil && receipt != nil {
			m.nonces.Confirm(pend.nonce)
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return nil, errors.Wrapf(ErrTxReverted, "tx=%s", pend.hash.Hex())
			}
			return &Confirmation{
				TxHash:      pend.hash,
				GasUsed:     receipt.GasUsed,
				GasPriceWei: pend.gasPrice,
				Escalations: pend.escalations,
			}, nil
		}

		if time.Since(pend.submittedAt) < m.stuckTimeout {
			continue
		}

		if pend.escalations >= m.cfg.MaxEscalations {
			m.nonces.Release(pend.nonce)
			m.log.WithFields(logrus.Fields{
				"tx":    pend.hash.Hex(),
				"nonce": pend.nonce,
			}).Error("gas 抬价达到上限，放弃交易")
			return nil, ErrTxAbandoned
		}

		// 同 nonce 抬价重发
		pend.gasPrice = bumpGas(pend.gasPrice, m.cfg.GasBumpPct)
		signed, err := m.signTx(pend.nonce, call.To, value, gasLimit, pend.gasPrice, call.Data)
		if err != nil {
			return nil, err
		}
		if err := retryTransport(ctx, m.cfg, "resubmit transaction", func() error {
			return client.SendTransaction(ctx, signed)
		}); err != nil {
			m.endpoints.Failover()
			return nil, err
		}
		pend.hash = signed.Hash()
		pend.submittedAt = time.Now()
		pend.escalations++
		m.log.WithFields(logrus.Fields{
			"tx":         pend.hash.Hex(),
			"nonce":      pend.nonce,
			"escalation": pend.escalations,
			"gas_price":  pend.gasPrice.String(),
		}).Warn("交易卡死，抬价重发")
	}
}

func (m *Manager) signTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) (*ethtypes.Transaction, error) {
	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(m.chainID), m.key)
	if err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	return signed, nil
}

// bumpGas gas price × (1 + pct)，向上取整到 wei
func bumpGas(price *big.Int, pct float64) *big.Int {
	mult := int64(100 + pct*100 + 0.5)
	bumped := new(big.Int).Mul(price, big.NewInt(mult))
	return bumped.Div(bumped, big.NewInt(100))
}
