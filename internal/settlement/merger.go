package settlement

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	clobclient "github.com/betbot/arbot/clob/client"
	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/internal/txmgr"
	"github.com/betbot/arbot/pkg/logger"
)

var (
	// ErrInsufficientPair 任一侧 token 余额不足以合并
	ErrInsufficientPair = errors.New("insufficient outcome token balance for merge")
	// ErrInexactSettlement 抵押品增量与合并数量不符
	ErrInexactSettlement = errors.New("collateral delta does not match merge amount")
)

// TokenReader CTF 只读能力（由 clob 的 CTF 客户端实现）
type TokenReader interface {
	PositionIDs(ctx context.Context, conditionID string) (yes, no *big.Int, err error)
	ConditionalBalance(ctx context.Context, address common.Address, positionID *big.Int) (decimal.Decimal, error)
	CollateralBalance(ctx context.Context, address common.Address) (decimal.Decimal, error)
	MergeCalldata(conditionID string, amount decimal.Decimal) (*clobclient.TxCall, error)
}

// Submitter 交易提交能力（由交易管理器实现）
type Submitter interface {
	Submit(ctx context.Context, call clobclient.TxCall) (*txmgr.Confirmation, error)
	Address() common.Address
}

// Merger 把 YES+NO 完整对合并回 USDC。
// 余额检查永远读链上最新值；确认后抵押品增量必须与合并数量
// 逐位相等，任何差额都按事故处理。
type Merger struct {
	ctf      TokenReader
	tx       Submitter
	polPrice decimal.Decimal // gas 折美元用的 POL 价格

	log *logrus.Entry
}

// NewMerger 创建合并器
func NewMerger(ctf TokenReader, tx Submitter, polPriceUSD decimal.Decimal) *Merger {
	return &Merger{
		ctf:      ctf,
		tx:       tx,
		polPrice: polPriceUSD,
		log:      logger.WithField("component", "settlement"),
	}
}

// Mergeable 返回该市场当前可合并的数量（两侧余额的较小值）
func (m *Merger) Mergeable(ctx context.Context, conditionID string) (decimal.Decimal, error) {
	yesID, noID, err := m.ctf.PositionIDs(ctx, conditionID)
	if err != nil {
		return decimal.Zero, err
	}
	addr := m.tx.Address()
	yesBal, err := m.ctf.ConditionalBalance(ctx, addr, yesID)
	if err != nil {
		return decimal.Zero, err
	}
	noBal, err := m.ctf.ConditionalBalance(ctx, addr, noID)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Min(yesBal, noBal), nil
}

// Merge 合并 amount 份完整对。
// 提交前重新核对两侧余额；确认后核对抵押品增量。
func (m *Merger) Merge(ctx context.Context, marketID, conditionID string, amount decimal.Decimal) (*domain.SettlementReceipt, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("merge amount must be positive")
	}

	addr := m.tx.Address()

	// 余额必须取链上最新值，绝不依赖缓存
	yesID, noID, err := m.ctf.PositionIDs(ctx, conditionID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve position ids")
	}
	yesBal, err := m.ctf.ConditionalBalance(ctx, addr, yesID)
	if err != nil {
		return nil, errors.Wrap(err, "read yes balance")
	}
	noBal, err := m.ctf.ConditionalBalance(ctx, addr, noID)
	if err != nil {
		return nil, errors.Wrap(err, "read no balance")
	}
	if yesBal.LessThan(amount) || noBal.LessThan(amount) {
		return nil, errors.Wrapf(ErrInsufficientPair,
			"yes=%s no=%s want=%s", yesBal, noBal, amount)
	}

	before, err := m.ctf.CollateralBalance(ctx, addr)
	if err != nil {
		return nil, errors.Wrap(err, "read collateral before merge")
	}

	call, err := m.ctf.MergeCalldata(conditionID, amount)
	if err != nil {
		return nil, errors.Wrap(err, "build merge calldata")
	}

	receipt := &domain.SettlementReceipt{
		MarketID:    marketID,
		ConditionID: conditionID,
		Amount:      amount,
		SubmittedAt: time.Now(),
	}

	conf, err := m.tx.Submit(ctx, *call)
	if err != nil {
		return nil, errors.Wrap(err, "submit merge transaction")
	}
	receipt.TxHash = conf.TxHash.Hex()
	receipt.GasUsed = conf.GasUsed
	receipt.GasCost = conf.GasCostUSD(m.polPrice)
	receipt.ConfirmedAt = time.Now()

	after, err := m.ctf.CollateralBalance(ctx, addr)
	if err != nil {
		return receipt, errors.Wrap(err, "read collateral after merge")
	}
	receipt.CollateralDelta = after.Sub(before)

	if !receipt.Exact() {
		m.log.WithFields(logrus.Fields{
			"market":    marketID,
			"condition": conditionID,
			"amount":    amount.String(),
			"delta":     receipt.CollateralDelta.String(),
			"tx":        receipt.TxHash,
		}).Error("合并结算金额不符，需要人工核查")
		return receipt, errors.Wrapf(ErrInexactSettlement,
			"amount=%s delta=%s", amount, receipt.CollateralDelta)
	}

	m.log.WithFields(logrus.Fields{
		"market": marketID,
		"amount": amount.String(),
		"tx":     receipt.TxHash,
	}).Info("合并结算完成")
	return receipt, nil
}
