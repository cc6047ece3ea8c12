package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CollateralReader 链上抵押品余额读取（由 CTF 客户端实现）
type CollateralReader interface {
	CollateralBalance(ctx context.Context, address common.Address) (decimal.Decimal, error)
}

// ChainStatus 交易管理器暴露的链上状况
type ChainStatus interface {
	Address() common.Address
	PendingCount() int
	CurrentGasPrice(ctx context.Context) (decimal.Decimal, error)
}

// ChainFunds 风控的资金视图：资本取链上 USDC 余额，
// 在途笔数与 gas 价取交易管理器。实现 risk.Funds。
type ChainFunds struct {
	ctf CollateralReader
	tx  ChainStatus
}

// NewChainFunds 创建链上资金视图
func NewChainFunds(ctf CollateralReader, tx ChainStatus) *ChainFunds {
	return &ChainFunds{ctf: ctf, tx: tx}
}

// CurrentCapital 钱包当前 USDC 余额
func (f *ChainFunds) CurrentCapital(ctx context.Context) (decimal.Decimal, error) {
	return f.ctf.CollateralBalance(ctx, f.tx.Address())
}

// PendingTransactionCount 在途链上交易笔数
func (f *ChainFunds) PendingTransactionCount() int {
	return f.tx.PendingCount()
}

// CurrentGasPrice 当前 gas 价（gwei）
func (f *ChainFunds) CurrentGasPrice(ctx context.Context) (decimal.Decimal, error) {
	return f.tx.CurrentGasPrice(ctx)
}
