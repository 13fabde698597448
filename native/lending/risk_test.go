package lending

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
)

func tokens(n uint64) TokenAmount {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func TestComputeLTV(t *testing.T) {
	tests := []struct {
		name       string
		collateral TokenAmount
		debt       TokenAmount
		want       float64
	}{
		{"seventy five percent", tokens(100), tokens(75), 75},
		{"zero collateral", Zero(), tokens(10), 0},
		{"nil collateral", nil, tokens(10), 0},
		{"zero debt", tokens(100), Zero(), 0},
		{"over collateral", tokens(50), tokens(100), 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeLTV(tt.collateral, tt.debt); got != tt.want {
				t.Fatalf("ComputeLTV() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeLTVIsPure(t *testing.T) {
	c, d := tokens(300), tokens(97)
	first := ComputeLTV(c, d)
	second := ComputeLTV(c, d)
	if math.Float64bits(first) != math.Float64bits(second) {
		t.Fatalf("ComputeLTV not deterministic: %v vs %v", first, second)
	}
}

func TestIsInsolvent(t *testing.T) {
	if !IsInsolvent(Zero(), tokens(1)) {
		t.Fatalf("expected debt without collateral to be insolvent")
	}
	if IsInsolvent(Zero(), Zero()) || IsInsolvent(tokens(1), tokens(1)) {
		t.Fatalf("unexpected insolvency")
	}
}

func TestComputeHealthFactor(t *testing.T) {
	if got := ComputeHealthFactor(tokens(100), tokens(80), 80); got != 1.0 {
		t.Fatalf("boundary health factor = %v, want exactly 1", got)
	}
	if got := ComputeHealthFactor(tokens(100), Zero(), 80); !math.IsInf(got, 1) {
		t.Fatalf("zero debt should be +Inf, got %v", got)
	}
	if got := ComputeHealthFactor(tokens(100), nil, 80); !math.IsInf(got, 1) {
		t.Fatalf("nil debt should be +Inf, got %v", got)
	}
	if got := ComputeHealthFactor(tokens(200), tokens(80), 80); got != 2 {
		t.Fatalf("health factor = %v, want 2", got)
	}
	if got := ComputeHealthFactor(tokens(100), tokens(85), 80); got >= 1 {
		t.Fatalf("expected liquidatable health factor, got %v", got)
	}
	if got := ComputeHealthFactor(tokens(100), tokens(50), math.NaN()); got != 0 {
		t.Fatalf("NaN threshold should yield 0, got %v", got)
	}
}

func TestComputeHealthFactorBoundaryFractionalThreshold(t *testing.T) {
	// 1000 * 82.5 / 100 == 825
	if got := ComputeHealthFactor(tokens(1000), tokens(825), 82.5); got != 1.0 {
		t.Fatalf("boundary health factor = %v, want exactly 1", got)
	}
}

func TestClassifyHealth(t *testing.T) {
	tests := []struct {
		hf   float64
		want RiskLevel
	}{
		{math.Inf(1), RiskNone},
		{0.95, RiskLiquidatable},
		{1.0, RiskWarning},
		{1.29, RiskWarning},
		{1.3, RiskSafe},
		{4, RiskSafe},
	}
	for _, tt := range tests {
		if got := ClassifyHealth(tt.hf, 0); got != tt.want {
			t.Fatalf("ClassifyHealth(%v) = %s, want %s", tt.hf, got, tt.want)
		}
	}
	if got := ClassifyHealth(1.4, 1.5); got != RiskWarning {
		t.Fatalf("custom warning threshold ignored: %s", got)
	}
}

func TestFormatHealthFactor(t *testing.T) {
	if got := FormatHealthFactor(math.Inf(1)); got != "∞" {
		t.Fatalf("FormatHealthFactor(+Inf) = %q", got)
	}
	if got := FormatHealthFactor(1.23456); got != "1.23" {
		t.Fatalf("FormatHealthFactor() = %q", got)
	}
}

func TestMaxBorrow(t *testing.T) {
	if got := MaxBorrow(tokens(100), tokens(30), 7_500); !got.Eq(tokens(45)) {
		t.Fatalf("MaxBorrow() = %s, want 45 tokens", got.ToBig())
	}
	if got := MaxBorrow(tokens(100), tokens(90), 7_500); !got.IsZero() {
		t.Fatalf("MaxBorrow() should clamp at zero, got %s", got.ToBig())
	}
}

func TestCollateralForDebt(t *testing.T) {
	if got := CollateralForDebt(tokens(80), 8_000); !got.Eq(tokens(100)) {
		t.Fatalf("CollateralForDebt() = %s, want 100 tokens", got.ToBig())
	}
	if got := CollateralForDebt(tokens(80), 0); !got.IsZero() {
		t.Fatalf("zero threshold should yield zero")
	}
}

func TestPositionDerivedFigures(t *testing.T) {
	pos := Position{
		Principal:       tokens(60),
		AccruedInterest: tokens(15),
		CollateralValue: tokens(100),
	}
	if !pos.Debt().Eq(tokens(75)) {
		t.Fatalf("Debt() = %s", pos.Debt().ToBig())
	}
	if got := pos.LTV(); got != 75 {
		t.Fatalf("LTV() = %v", got)
	}
	hf := pos.HealthFactor(75)
	if hf != 1 {
		t.Fatalf("HealthFactor() = %v", hf)
	}
}
