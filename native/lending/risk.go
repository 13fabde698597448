package lending

import (
	"fmt"
	"math"
	"math/big"
)

// RiskLevel buckets a health factor for display.
type RiskLevel string

const (
	RiskNone         RiskLevel = "none"
	RiskSafe         RiskLevel = "safe"
	RiskWarning      RiskLevel = "warning"
	RiskLiquidatable RiskLevel = "liquidatable"
)

// DefaultHealthWarning is the health factor below which a position is shown
// as at risk.
const DefaultHealthWarning = 1.3

// ComputeLTV returns debtValue / collateralValue as a percentage.
//
// Zero collateral reports 0% rather than infinity so the figure always
// renders; callers that must detect the insolvent case use IsInsolvent.
// Zero debt is 0% regardless of collateral.
func ComputeLTV(collateralValue, debtValue TokenAmount) float64 {
	if collateralValue == nil || collateralValue.IsZero() || debtValue == nil || debtValue.IsZero() {
		return 0
	}
	ratio := new(big.Rat).Quo(ratFromAmount(debtValue), ratFromAmount(collateralValue))
	ratio.Mul(ratio, big.NewRat(100, 1))
	f, _ := ratio.Float64()
	return f
}

// IsInsolvent reports debt outstanding against no collateral at all, the
// case ComputeLTV deliberately renders as 0%.
func IsInsolvent(collateralValue, debtValue TokenAmount) bool {
	return debtValue != nil && !debtValue.IsZero() && (collateralValue == nil || collateralValue.IsZero())
}

// ComputeHealthFactor returns
// (collateralValue * liquidationThresholdPercent / 100) / debtValue.
//
// A position without debt cannot be liquidated and reports +Inf. Values below
// 1.0 are eligible for liquidation. The ratio is evaluated exactly, so a
// position sitting on the threshold reports exactly 1.0. A negative or
// non-finite threshold is treated as zero.
func ComputeHealthFactor(collateralValue, debtValue TokenAmount, liquidationThresholdPercent float64) float64 {
	if debtValue == nil || debtValue.IsZero() {
		return math.Inf(1)
	}
	if math.IsNaN(liquidationThresholdPercent) || math.IsInf(liquidationThresholdPercent, 0) || liquidationThresholdPercent <= 0 {
		return 0
	}
	threshold := new(big.Rat).SetFloat64(liquidationThresholdPercent)
	adjusted := new(big.Rat).Mul(ratFromAmount(collateralValue), threshold)
	adjusted.Quo(adjusted, big.NewRat(100, 1))
	adjusted.Quo(adjusted, ratFromAmount(debtValue))
	f, _ := adjusted.Float64()
	return f
}

// ClassifyHealth maps a health factor to a risk level. warning is the upper
// bound of the at-risk band; zero selects DefaultHealthWarning.
func ClassifyHealth(healthFactor, warning float64) RiskLevel {
	if warning <= 0 {
		warning = DefaultHealthWarning
	}
	switch {
	case math.IsInf(healthFactor, 1):
		return RiskNone
	case healthFactor < 1:
		return RiskLiquidatable
	case healthFactor < warning:
		return RiskWarning
	default:
		return RiskSafe
	}
}

// FormatHealthFactor renders a health factor with two decimals, or "∞" for a
// debt-free position.
func FormatHealthFactor(healthFactor float64) string {
	if math.IsInf(healthFactor, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.2f", healthFactor)
}

// MaxBorrow returns the additional debt the position can take on before
// reaching maxLTV, clamped at zero.
func MaxBorrow(collateralValue, debtValue TokenAmount, maxLTV BasisPoints) TokenAmount {
	capacity := mulDiv(collateralValue, uint256FromBps(maxLTV), basisPoints)
	return SaturatingSub(capacity, debtValue)
}

// CollateralForDebt returns the collateral value at which debtValue sits
// exactly on the liquidation threshold.
func CollateralForDebt(debtValue TokenAmount, liquidationThreshold BasisPoints) TokenAmount {
	if liquidationThreshold == 0 {
		return Zero()
	}
	return mulDiv(debtValue, basisPoints, uint256FromBps(liquidationThreshold))
}
