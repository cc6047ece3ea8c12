package engine

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type stubCollateral struct {
	balances map[common.Address]decimal.Decimal
}

func (s *stubCollateral) CollateralBalance(ctx context.Context, address common.Address) (decimal.Decimal, error) {
	return s.balances[address], nil
}

type stubChain struct {
	address common.Address
	pending int
	gas     decimal.Decimal
}

func (s *stubChain) Address() common.Address { return s.address }
func (s *stubChain) PendingCount() int       { return s.pending }
func (s *stubChain) CurrentGasPrice(ctx context.Context) (decimal.Decimal, error) {
	return s.gas, nil
}

func TestChainFundsReadsOwnWallet(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	ctf := &stubCollateral{balances: map[common.Address]decimal.Decimal{
		addr: decimal.RequireFromString("123.45"),
	}}
	chain := &stubChain{address: addr, pending: 2, gas: decimal.NewFromInt(55)}

	funds := NewChainFunds(ctf, chain)

	capital, err := funds.CurrentCapital(context.Background())
	if err != nil {
		t.Fatalf("CurrentCapital: %v", err)
	}
	if !capital.Equal(decimal.RequireFromString("123.45")) {
		t.Fatalf("资本应取本钱包余额: %s", capital)
	}
	if funds.PendingTransactionCount() != 2 {
		t.Fatalf("在途笔数应透传")
	}
	gas, err := funds.CurrentGasPrice(context.Background())
	if err != nil || !gas.Equal(decimal.NewFromInt(55)) {
		t.Fatalf("gas 价应透传: %s %v", gas, err)
	}
}
