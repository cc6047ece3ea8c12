package marketmath

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGetEffectivePrices(t *testing.T) {
	tob := TopOfBook{
		YesBid: d("0.55"),
		YesAsk: d("0.56"),
		NoBid:  d("0.47"),
		NoAsk:  d("0.48"),
	}
	eff, err := GetEffectivePrices(tob)
	if err != nil {
		t.Fatalf("GetEffectivePrices error: %v", err)
	}
	// effectiveBuyYes = min(0.56, 1-0.47=0.53) => 0.53
	if !eff.BuyYes.Equal(d("0.53")) {
		t.Fatalf("BuyYes got=%s want=0.53", eff.BuyYes)
	}
	// effectiveBuyNo = min(0.48, 1-0.55=0.45) => 0.45
	if !eff.BuyNo.Equal(d("0.45")) {
		t.Fatalf("BuyNo got=%s want=0.45", eff.BuyNo)
	}
	// effectiveSellYes = max(0.55, 1-0.48=0.52) => 0.55
	if !eff.SellYes.Equal(d("0.55")) {
		t.Fatalf("SellYes got=%s want=0.55", eff.SellYes)
	}
	// effectiveSellNo = max(0.47, 1-0.56=0.44) => 0.47
	if !eff.SellNo.Equal(d("0.47")) {
		t.Fatalf("SellNo got=%s want=0.47", eff.SellNo)
	}
}

func TestGetEffectivePrices_MissingSide(t *testing.T) {
	tob := TopOfBook{
		YesAsk: d("0.56"),
		NoAsk:  d("0.48"),
	}
	eff, err := GetEffectivePrices(tob)
	if err != nil {
		t.Fatalf("GetEffectivePrices error: %v", err)
	}
	// 无对侧 bid 时直接用 ask
	if !eff.BuyYes.Equal(d("0.56")) {
		t.Fatalf("BuyYes got=%s want=0.56", eff.BuyYes)
	}
	if !eff.BuyNo.Equal(d("0.48")) {
		t.Fatalf("BuyNo got=%s want=0.48", eff.BuyNo)
	}
}

func TestTopOfBookValidate(t *testing.T) {
	if err := (TopOfBook{}).Validate(); err == nil {
		t.Fatal("expected error for empty book")
	}
	bad := TopOfBook{YesAsk: d("1.2")}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for price >= 1")
	}
}
