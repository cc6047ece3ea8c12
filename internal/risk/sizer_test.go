package risk

import (
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/pkg/config"
)

func testSizer() *Sizer {
	cfg := config.RiskConfig{}
	cfg.Defaults()
	return NewSizer(NewSizerConfig(cfg))
}

func TestSizerEdge(t *testing.T) {
	s := testSizer()

	// edge = 0.995×0.03 − 0.005 = 0.02485 < 0.025 ⇒ 不足
	if _, ok := s.Size(decimal.NewFromInt(1000), decimal.NewFromFloat(0.03), decimal.Zero, false); ok {
		t.Fatalf("边际不足时不应给出仓位")
	}

	// edge = 0.995×0.035 − 0.005 = 0.029825 ≥ 0.025 ⇒ 放行
	size, ok := s.Size(decimal.NewFromInt(1000), decimal.NewFromFloat(0.035), decimal.Zero, false)
	if !ok {
		t.Fatalf("边际足够时应给出仓位")
	}
	if size.LessThanOrEqual(decimal.Zero) {
		t.Fatalf("仓位应为正: %s", size)
	}
}

func TestSizerRespectsPositionCap(t *testing.T) {
	s := testSizer()
	capital := decimal.NewFromInt(1000)

	// 高收益率机会：Kelly 原始值很大，必须被 5% 上限夹住
	size, ok := s.Size(capital, decimal.NewFromFloat(0.20), decimal.NewFromFloat(0.99), true)
	if !ok {
		t.Fatalf("应给出仓位")
	}
	maxAllowed := capital.Mul(decimal.NewFromFloat(0.05))
	if size.GreaterThan(maxAllowed) {
		t.Fatalf("仓位 %s 超过 5%% 上限 %s", size, maxAllowed)
	}
}

func TestSizerMinPositionFloor(t *testing.T) {
	s := testSizer()

	// 资金 $8（<$10 分层上限 60% = $4.80）：Kelly 结果约 $1.79，
	// 抬到平台下限 $3.50
	size, ok := s.Size(decimal.NewFromInt(8), decimal.NewFromFloat(0.05), decimal.Zero, false)
	if !ok {
		t.Fatalf("应给出仓位")
	}
	if !size.Equal(decimal.NewFromFloat(3.50)) {
		t.Fatalf("应抬到平台下限 $3.50: %s", size)
	}
}

func TestSizerTierCapBelowPlatformFloor(t *testing.T) {
	s := testSizer()

	// 资金 $4：分层上限 80% = $3.20 < 平台下限 $3.50 ⇒ 无法下单
	if _, ok := s.Size(decimal.NewFromInt(4), decimal.NewFromFloat(0.05), decimal.Zero, false); ok {
		t.Fatalf("分层上限低于平台下限时不应给出仓位")
	}
}

func TestSizerAdaptiveFraction(t *testing.T) {
	s := testSizer()

	hot := s.fraction(decimal.NewFromFloat(0.96), true)
	mid := s.fraction(decimal.NewFromFloat(0.90), true)
	cold := s.fraction(decimal.NewFromFloat(0.80), true)
	noSample := s.fraction(decimal.Zero, false)

	if !hot.Equal(decimal.NewFromFloat(0.50)) {
		t.Fatalf("高胜率应用上限分数: %s", hot)
	}
	if !mid.Equal(decimal.NewFromFloat(0.375)) {
		t.Fatalf("中胜率应用中值分数: %s", mid)
	}
	if !cold.Equal(decimal.NewFromFloat(0.25)) {
		t.Fatalf("低胜率应用下限分数: %s", cold)
	}
	if !noSample.Equal(decimal.NewFromFloat(0.25)) {
		t.Fatalf("样本不足应用下限分数: %s", noSample)
	}
}

func TestSizerBoundsHoldForAnyInput(t *testing.T) {
	s := testSizer()
	floor := decimal.NewFromFloat(3.50)
	strictCap := decimal.NewFromFloat(0.05)

	// 资金 ≥ $70（5% 上限不低于平台下限）且边际足够时，
	// 任意资金/收益率/胜率组合给出的仓位必落在 [下限, 5% 上限] 内
	err := quick.Check(func(c, p, w uint16) bool {
		capital := decimal.NewFromInt(int64(c%10000) + 70)
		profitPct := decimal.New(int64(p%4650)+350, -4) // [0.035, 0.4999]
		winRate := decimal.New(int64(w%10001), -4)      // [0, 1]

		size, ok := s.Size(capital, profitPct, winRate, true)
		if !ok {
			return false
		}
		return size.GreaterThanOrEqual(floor) &&
			size.LessThanOrEqual(capital.Mul(strictCap))
	}, &quick.Config{MaxCount: 500, Rand: rand.New(rand.NewSource(1))})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSizerCapAlwaysBinds(t *testing.T) {
	s := testSizer()
	capital := decimal.NewFromInt(10000)

	// 套利场景 Kelly 原始分数远超单仓上限，最终仓位恒为 5% 上限
	size, ok := s.Size(capital, decimal.NewFromFloat(0.04), decimal.NewFromFloat(0.96), true)
	if !ok {
		t.Fatalf("应给出仓位")
	}
	if !size.Equal(capital.Mul(decimal.NewFromFloat(0.05))) {
		t.Fatalf("仓位应等于 5%% 上限: %s", size)
	}
}
