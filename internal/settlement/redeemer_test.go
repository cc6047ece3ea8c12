package settlement

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	clobclient "github.com/betbot/arbot/clob/client"
	"github.com/betbot/arbot/clob/types"
	"github.com/betbot/arbot/internal/txmgr"
)

// fakeRedeemCTF 赎回路径的 CTF 桩：赎回确认后抵押品增加派彩额
type fakeRedeemCTF struct {
	collateral decimal.Decimal
	payout     decimal.Decimal
	redeemed   bool
}

func (f *fakeRedeemCTF) CollateralBalance(ctx context.Context, address common.Address) (decimal.Decimal, error) {
	if f.redeemed {
		return f.collateral.Add(f.payout), nil
	}
	return f.collateral, nil
}

func (f *fakeRedeemCTF) RedeemCalldata(conditionID string) (*clobclient.TxCall, error) {
	return &clobclient.TxCall{
		To:    common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"),
		Data:  []byte{0x02},
		Value: big.NewInt(0),
	}, nil
}

type fakeRedeemSubmitter struct {
	ctf       *fakeRedeemCTF
	submitErr error
	submits   int
}

func (f *fakeRedeemSubmitter) Submit(ctx context.Context, call clobclient.TxCall) (*txmgr.Confirmation, error) {
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.ctf.redeemed = true
	return &txmgr.Confirmation{
		TxHash:      common.HexToHash("0xdef"),
		GasUsed:     120_000,
		GasPriceWei: big.NewInt(50_000_000_000),
	}, nil
}

func (f *fakeRedeemSubmitter) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000aa")
}

type fakeMarketReader struct {
	market *types.ClobMarket
	err    error
}

func (f *fakeMarketReader) GetMarket(ctx context.Context, conditionID string) (*types.ClobMarket, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.market, nil
}

func resolvedMarket(closed, winner bool) *types.ClobMarket {
	return &types.ClobMarket{
		ConditionID: testCondition,
		Closed:      closed,
		Tokens: []types.ClobToken{
			{TokenID: "tok-yes", Outcome: "Yes", Winner: winner},
			{TokenID: "tok-no", Outcome: "No"},
		},
	}
}

func TestRedeemerResolved(t *testing.T) {
	cases := []struct {
		name   string
		market *types.ClobMarket
		want   bool
	}{
		{"已关闭且有赢家", resolvedMarket(true, true), true},
		{"未关闭", resolvedMarket(false, true), false},
		{"已关闭但未裁决", resolvedMarket(true, false), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctf := &fakeRedeemCTF{}
			r := NewRedeemer(ctf, &fakeRedeemSubmitter{ctf: ctf}, &fakeMarketReader{market: tc.market}, d("0.5"))

			got, err := r.Resolved(context.Background(), testCondition)
			if err != nil {
				t.Fatalf("Resolved: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Resolved = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRedeemerResolvedFetchError(t *testing.T) {
	ctf := &fakeRedeemCTF{}
	reader := &fakeMarketReader{err: errors.New("gateway timeout")}
	r := NewRedeemer(ctf, &fakeRedeemSubmitter{ctf: ctf}, reader, d("0.5"))

	if _, err := r.Resolved(context.Background(), testCondition); err == nil {
		t.Fatalf("查询失败应报错")
	}
}

func TestRedeemerPayoutFromBalanceDelta(t *testing.T) {
	ctf := &fakeRedeemCTF{
		collateral: d("500"),
		payout:     d("50"),
	}
	sub := &fakeRedeemSubmitter{ctf: ctf}
	r := NewRedeemer(ctf, sub, &fakeMarketReader{market: resolvedMarket(true, true)}, d("0.5"))

	receipt, err := r.Redeem(context.Background(), testCondition)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if sub.submits != 1 {
		t.Fatalf("应提交 1 次: %d", sub.submits)
	}
	// 派彩取赎回前后余额实测差值
	if !receipt.Payout.Equal(d("50")) {
		t.Fatalf("派彩应为 50: %s", receipt.Payout)
	}
	if receipt.GasCost.IsZero() {
		t.Fatalf("gas 成本应折算为美元")
	}
	if receipt.TxHash == "" {
		t.Fatalf("回执应带交易哈希")
	}
}

func TestRedeemerSubmitFailure(t *testing.T) {
	ctf := &fakeRedeemCTF{collateral: d("500")}
	sub := &fakeRedeemSubmitter{ctf: ctf, submitErr: errors.New("rpc down")}
	r := NewRedeemer(ctf, sub, &fakeMarketReader{market: resolvedMarket(true, true)}, d("0.5"))

	if _, err := r.Redeem(context.Background(), testCondition); err == nil {
		t.Fatalf("上链失败应报错")
	}
}
