package lending

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestUtilization(t *testing.T) {
	if got := Utilization(tokens(75), tokens(100)); got != 7_500 {
		t.Fatalf("Utilization() = %d, want 7500", got)
	}
	if got := Utilization(tokens(75), Zero()); got != 0 {
		t.Fatalf("no liquidity should report zero utilization, got %d", got)
	}
	if got := Utilization(nil, tokens(10)); got != 0 {
		t.Fatalf("nil borrowed should report zero utilization, got %d", got)
	}
}

func TestBorrowRateJumpCurve(t *testing.T) {
	model := DefaultInterestRateModel
	tests := []struct {
		util BasisPoints
		want BasisPoints
	}{
		{0, 300},
		{5_000, 700},
		{8_000, 940},
		{9_000, 1_440},
		{10_000, 1_940},
	}
	for _, tt := range tests {
		if got := model.BorrowRate(tt.util); got != tt.want {
			t.Fatalf("BorrowRate(%d) = %d, want %d", tt.util, got, tt.want)
		}
	}
}

func TestBorrowRateMonotonic(t *testing.T) {
	model := DefaultInterestRateModel
	prev := model.BorrowRate(0)
	for u := BasisPoints(100); u <= 10_000; u += 100 {
		rate := model.BorrowRate(u)
		if rate < prev {
			t.Fatalf("borrow rate decreased at %d: %d < %d", u, rate, prev)
		}
		prev = rate
	}
}

func TestSupplyRate(t *testing.T) {
	model := DefaultInterestRateModel
	if got := model.SupplyRate(0, 8_000); got != 0 {
		t.Fatalf("SupplyRate at zero utilization = %d", got)
	}
	// 940 * 0.8 * 0.8, truncated
	if got := model.SupplyRate(8_000, 8_000); got != 601 {
		t.Fatalf("SupplyRate(8000) = %d, want 601", got)
	}
}

func TestCurve(t *testing.T) {
	model := DefaultInterestRateModel
	points := model.Curve(0, 8_000)
	if len(points) != 21 {
		t.Fatalf("expected 21 samples, got %d", len(points))
	}
	if points[0].Utilization != 0 || points[20].Utilization != 10_000 {
		t.Fatalf("unexpected curve bounds: %+v .. %+v", points[0], points[20])
	}
	uneven := model.Curve(3_000, 8_000)
	if len(uneven) != 5 || uneven[len(uneven)-1].Utilization != 10_000 {
		t.Fatalf("curve must end at full utilization: %+v", uneven)
	}
}

func TestRateFormatting(t *testing.T) {
	if got := FormatAPY(300); got != "3.00%" {
		t.Fatalf("FormatAPY() = %q", got)
	}
	if got := FormatUtilization(8_000); got != "80.0%" {
		t.Fatalf("FormatUtilization() = %q", got)
	}
	if got := BasisPointsToPercent(7_500); got != 75 {
		t.Fatalf("BasisPointsToPercent() = %v", got)
	}
}

func TestInterpolateTimeWeightedInterest(t *testing.T) {
	total := uint256.NewInt(1_000)
	tests := []struct {
		name    string
		elapsed int64
		span    int64
		want    uint64
	}{
		{"halfway", 50, 100, 500},
		{"start", 0, 100, 0},
		{"negative elapsed", -5, 100, 0},
		{"complete", 100, 100, 1_000},
		{"past the end", 250, 100, 1_000},
		{"zero span", 10, 0, 0},
		{"truncates", 1, 3, 333},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InterpolateTimeWeightedInterest(total, tt.elapsed, tt.span)
			if got.Uint64() != tt.want {
				t.Fatalf("InterpolateTimeWeightedInterest(%d, %d) = %d, want %d", tt.elapsed, tt.span, got.Uint64(), tt.want)
			}
		})
	}
	if got := InterpolateTimeWeightedInterest(nil, 5, 10); !got.IsZero() {
		t.Fatalf("nil total should interpolate to zero")
	}
}

func TestInterpolateDoesNotAliasTotal(t *testing.T) {
	total := uint256.NewInt(42)
	got := InterpolateTimeWeightedInterest(total, 10, 10)
	got.AddUint64(got, 1)
	if total.Uint64() != 42 {
		t.Fatalf("result aliases input: total mutated to %d", total.Uint64())
	}
}

func TestInterpolateLargeValues(t *testing.T) {
	total := new(uint256.Int).SetAllOne()
	got := InterpolateTimeWeightedInterest(total, 1, 2)
	want := new(uint256.Int).Rsh(total, 1)
	if !got.Eq(want) {
		t.Fatalf("expected half of max, got %s", got.ToBig())
	}
}
