package settlement

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	clobclient "github.com/betbot/arbot/clob/client"
	"github.com/betbot/arbot/clob/types"
	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/logger"
)

// RedeemBuilder 赎回所需的 CTF 能力（由 clob 的 CTF 客户端实现）
type RedeemBuilder interface {
	RedeemCalldata(conditionID string) (*clobclient.TxCall, error)
	CollateralBalance(ctx context.Context, address common.Address) (decimal.Decimal, error)
}

// MarketStatusReader 市场裁决状态查询（由 clob 客户端实现）
type MarketStatusReader interface {
	GetMarket(ctx context.Context, conditionID string) (*types.ClobMarket, error)
}

// Redeemer 方向性持仓的裁决赎回器。
// 只在市场关闭且已标出赢家后提交赎回；
// 派彩取赎回前后抵押品余额的实测差值。
type Redeemer struct {
	ctf      RedeemBuilder
	tx       Submitter
	markets  MarketStatusReader
	polPrice decimal.Decimal

	log *logrus.Entry
}

// NewRedeemer 创建赎回器
func NewRedeemer(ctf RedeemBuilder, tx Submitter, markets MarketStatusReader, polPriceUSD decimal.Decimal) *Redeemer {
	return &Redeemer{
		ctf:      ctf,
		tx:       tx,
		markets:  markets,
		polPrice: polPriceUSD,
		log:      logger.WithField("component", "redeemer"),
	}
}

// Resolved 市场是否已裁决：已关闭且任一侧被标为赢家
func (r *Redeemer) Resolved(ctx context.Context, conditionID string) (bool, error) {
	market, err := r.markets.GetMarket(ctx, conditionID)
	if err != nil {
		return false, errors.Wrap(err, "fetch market status")
	}
	if !market.Closed {
		return false, nil
	}
	for _, tok := range market.Tokens {
		if tok.Winner {
			return true, nil
		}
	}
	return false, nil
}

// Redeem 赎回一个已裁决 condition 下的全部仓位
func (r *Redeemer) Redeem(ctx context.Context, conditionID string) (*domain.RedemptionReceipt, error) {
	addr := r.tx.Address()

	before, err := r.ctf.CollateralBalance(ctx, addr)
	if err != nil {
		return nil, errors.Wrap(err, "read collateral before redeem")
	}

	call, err := r.ctf.RedeemCalldata(conditionID)
	if err != nil {
		return nil, errors.Wrap(err, "build redeem calldata")
	}

	receipt := &domain.RedemptionReceipt{
		ConditionID: conditionID,
		SubmittedAt: time.Now(),
	}

	conf, err := r.tx.Submit(ctx, *call)
	if err != nil {
		return nil, errors.Wrap(err, "submit redeem transaction")
	}
	receipt.TxHash = conf.TxHash.Hex()
	receipt.GasUsed = conf.GasUsed
	receipt.GasCost = conf.GasCostUSD(r.polPrice)
	receipt.ConfirmedAt = time.Now()

	after, err := r.ctf.CollateralBalance(ctx, addr)
	if err != nil {
		return receipt, errors.Wrap(err, "read collateral after redeem")
	}
	receipt.Payout = after.Sub(before)

	r.log.WithFields(logrus.Fields{
		"condition": conditionID,
		"payout":    receipt.Payout.String(),
		"tx":        receipt.TxHash,
	}).Info("持仓赎回完成")
	return receipt, nil
}
