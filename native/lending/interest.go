package lending

import (
	"fmt"

	"github.com/holiman/uint256"
)

// InterestRateModel carries the parameters of the vault's jump-rate curve.
// All values are annual figures in basis points. The vault computes the
// live rates itself; the model is only evaluated to draw the curve.
type InterestRateModel struct {
	// BaseRate is the borrow APR at zero utilization.
	BaseRate BasisPoints `toml:"BaseRateBps" json:"baseRate"`
	// Multiplier is the APR added per 100% utilization below the kink.
	Multiplier BasisPoints `toml:"MultiplierBps" json:"multiplier"`
	// Jump is the APR added per 100% utilization above the kink.
	Jump BasisPoints `toml:"JumpBps" json:"jump"`
	// Kink is the utilization where the jump slope takes over.
	Kink BasisPoints `toml:"KinkBps" json:"kink"`
}

// DefaultInterestRateModel mirrors the parameters of the deployed vault.
var DefaultInterestRateModel = InterestRateModel{
	BaseRate:   300,
	Multiplier: 800,
	Jump:       5000,
	Kink:       8000,
}

// Utilization returns totalBorrowed / totalSupplied in basis points. When no
// liquidity exists the utilization is defined as zero.
func Utilization(totalBorrowed, totalSupplied TokenAmount) BasisPoints {
	if totalBorrowed == nil || totalBorrowed.IsZero() || totalSupplied == nil || totalSupplied.IsZero() {
		return 0
	}
	ratio := mulDiv(totalBorrowed, basisPoints, totalSupplied)
	if !ratio.IsUint64() {
		return 0
	}
	return BasisPoints(ratio.Uint64())
}

// BorrowRate evaluates the borrow APR at the given utilization.
func (m InterestRateModel) BorrowRate(utilization BasisPoints) BasisPoints {
	rate := uint64(m.BaseRate)
	if m.Kink == 0 || utilization <= m.Kink {
		return BasisPoints(rate + uint64(utilization)*uint64(m.Multiplier)/10_000)
	}
	// Rate at the kink, then the steeper slope for the excess.
	rate += uint64(m.Kink) * uint64(m.Multiplier) / 10_000
	excess := uint64(utilization - m.Kink)
	return BasisPoints(rate + excess*uint64(m.Jump)/10_000)
}

// SupplyRate derives the supplier APY from the borrow rate, the utilization
// and the share of interest routed to lenders.
func (m InterestRateModel) SupplyRate(utilization, lenderShare BasisPoints) BasisPoints {
	if utilization == 0 {
		return 0
	}
	borrow := uint64(m.BorrowRate(utilization))
	supply := borrow * uint64(utilization) / 10_000
	return BasisPoints(supply * uint64(lenderShare) / 10_000)
}

// CurvePoint is a single sample of the rate curve.
type CurvePoint struct {
	Utilization BasisPoints `json:"utilization"`
	BorrowRate  BasisPoints `json:"borrowRate"`
	SupplyRate  BasisPoints `json:"supplyRate"`
}

// Curve samples the model from 0% to 100% utilization in step increments.
func (m InterestRateModel) Curve(step, lenderShare BasisPoints) []CurvePoint {
	if step == 0 {
		step = 500
	}
	points := make([]CurvePoint, 0, 10_000/step+2)
	for u := BasisPoints(0); u <= 10_000; u += step {
		points = append(points, CurvePoint{
			Utilization: u,
			BorrowRate:  m.BorrowRate(u),
			SupplyRate:  m.SupplyRate(u, lenderShare),
		})
	}
	if last := points[len(points)-1]; last.Utilization != 10_000 {
		points = append(points, CurvePoint{
			Utilization: 10_000,
			BorrowRate:  m.BorrowRate(10_000),
			SupplyRate:  m.SupplyRate(10_000, lenderShare),
		})
	}
	return points
}

// BasisPointsToPercent converts basis points to a percentage (8000 -> 80).
// Display rounding is left to the caller.
func BasisPointsToPercent(bp BasisPoints) float64 {
	return float64(bp) / 100
}

// FormatAPY renders a rate as a percentage with two decimals ("3.00%").
func FormatAPY(bp BasisPoints) string {
	return fmt.Sprintf("%.2f%%", BasisPointsToPercent(bp))
}

// FormatUtilization renders a utilization ratio with one decimal ("80.0%").
func FormatUtilization(bp BasisPoints) string {
	return fmt.Sprintf("%.1f%%", BasisPointsToPercent(bp))
}

// InterpolateTimeWeightedInterest estimates how much of totalInterest had
// accrued elapsedSeconds into a span of totalTimeSpanSeconds, assuming
// linear growth. The product uses a 512-bit intermediate and the remainder is
// truncated.
//
// This is a charting approximation. Real accrual depends on the sequence of
// events and the rate curve at each point, so the estimate can diverge from
// the vault's ledger whenever rates move between events.
func InterpolateTimeWeightedInterest(totalInterest TokenAmount, elapsedSeconds, totalTimeSpanSeconds int64) TokenAmount {
	if totalInterest == nil || totalInterest.IsZero() || totalTimeSpanSeconds <= 0 || elapsedSeconds <= 0 {
		return new(uint256.Int)
	}
	if elapsedSeconds >= totalTimeSpanSeconds {
		return totalInterest.Clone()
	}
	return mulDiv(totalInterest, uint256.NewInt(uint64(elapsedSeconds)), uint256.NewInt(uint64(totalTimeSpanSeconds)))
}
