package analytics

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"infrafi/native/lending"
	"infrafi/subgraph"
)

// AccountType classifies a user by the sides of the market they use.
type AccountType string

const (
	AccountLender   AccountType = "Lender"
	AccountBorrower AccountType = "Borrower"
	AccountBoth     AccountType = "Lender+Borrower"
	AccountInactive AccountType = "Inactive"
)

const (
	secondsPerDay = 86_400
	daysPerYear   = 365
	apyPlaces     = 8
)

// Insights summarises a user's position for the dashboard panels. Amounts
// are exact decimal strings; NetInterest and NetWorth may be negative.
type Insights struct {
	Address string `json:"address"`

	Supplied       string `json:"supplied"`
	SupplyInterest string `json:"supplyInterest"`
	Borrowed       string `json:"borrowed"`
	BorrowInterest string `json:"borrowInterest"`
	Debt           string `json:"debt"`
	Collateral     string `json:"collateral"`

	LTV float64 `json:"ltv"`
	// HealthFactor is nil for a position without debt.
	HealthFactor        *float64          `json:"healthFactor"`
	HealthFactorDisplay string            `json:"healthFactorDisplay"`
	Risk                lending.RiskLevel `json:"risk"`
	Insolvent           bool              `json:"insolvent"`
	BorrowCapacity      string            `json:"borrowCapacity"`
	CapacityUsed        float64           `json:"capacityUsed"`
	// LiquidationCollateral is the collateral value at which the current
	// debt reaches the liquidation threshold.
	LiquidationCollateral string `json:"liquidationCollateral"`

	NetInterest     string      `json:"netInterest"`
	NetWorth        string      `json:"netWorth"`
	CollateralRatio string      `json:"collateralRatio"`
	AccountType     AccountType `json:"accountType"`
	DaysActive      int64       `json:"daysActive"`
	SupplyAPY       string      `json:"effectiveSupplyAPY"`
	BorrowAPY       string      `json:"effectiveBorrowAPY"`
	Nodes           uint64      `json:"depositedNodes"`
	AvgPerNode      string      `json:"avgCollateralPerNode"`
}

// Insights derives the position panel figures for user under params.
func (b *Builder) Insights(user subgraph.UserSnapshot, params lending.Params) Insights {
	decimals := params.Decimals
	if decimals == 0 {
		decimals = b.scale()
	}
	pos := user.Position()
	debt := pos.Debt()
	hf := pos.HealthFactor(params.LiquidationThresholdPercent())

	out := Insights{
		Address:             user.Address,
		Supplied:            lending.ToDecimalString(user.TotalSupplied, decimals),
		SupplyInterest:      lending.ToDecimalString(user.TotalSupplyInterest, decimals),
		Borrowed:            lending.ToDecimalString(user.TotalBorrowed, decimals),
		BorrowInterest:      lending.ToDecimalString(user.TotalBorrowInterest, decimals),
		Debt:                lending.ToDecimalString(debt, decimals),
		Collateral:          lending.ToDecimalString(user.CollateralValue, decimals),
		LTV:                 pos.LTV(),
		HealthFactorDisplay: lending.FormatHealthFactor(hf),
		Risk:                lending.ClassifyHealth(hf, params.HealthWarning),
		Insolvent:           lending.IsInsolvent(user.CollateralValue, debt),
		BorrowCapacity:      lending.ToDecimalString(lending.MaxBorrow(user.CollateralValue, debt, params.MaxLTVBps), decimals),
		CapacityUsed:        capacityUsed(user.CollateralValue, debt, params.MaxLTVBps),
		NetInterest:         signedDifference(user.TotalSupplyInterest, user.TotalBorrowInterest, decimals),
		NetWorth:            signedDifference(lending.SaturatingAdd(user.TotalSupplied, user.CollateralValue), debt, decimals),
		CollateralRatio:     collateralRatio(user.CollateralValue, debt),
		AccountType:         accountType(user),
		Nodes:               user.DepositedNodesCount,
		AvgPerNode:          lending.ZeroDecimalString(decimals),
	}
	out.LiquidationCollateral = lending.ToDecimalString(lending.CollateralForDebt(debt, params.LiquidationThresholdBps), decimals)
	if !math.IsInf(hf, 1) {
		out.HealthFactor = &hf
	}
	if user.FirstInteraction > 0 {
		if days := (b.clock() - user.FirstInteraction) / secondsPerDay; days > 0 {
			out.DaysActive = days
		}
	}
	out.SupplyAPY = effectiveAPY(user.TotalSupplyInterest, user.TotalSupplied, out.DaysActive)
	out.BorrowAPY = effectiveAPY(user.TotalBorrowInterest, user.TotalBorrowed, out.DaysActive)
	if user.DepositedNodesCount > 0 && user.CollateralValue != nil {
		avg := new(uint256.Int).Div(user.CollateralValue, uint256.NewInt(user.DepositedNodesCount))
		out.AvgPerNode = lending.ToDecimalString(avg, decimals)
	}
	return out
}

func accountType(user subgraph.UserSnapshot) AccountType {
	switch {
	case user.IsLender && user.IsBorrower:
		return AccountBoth
	case user.IsLender:
		return AccountLender
	case user.IsBorrower:
		return AccountBorrower
	default:
		return AccountInactive
	}
}

func toBig(v lending.TokenAmount) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// signedDifference renders a - b with full precision.
func signedDifference(a, b lending.TokenAmount, decimals uint8) string {
	diff := new(big.Int).Sub(toBig(a), toBig(b))
	return decimal.NewFromBigInt(diff, -int32(decimals)).StringFixed(int32(decimals))
}

// collateralRatio renders collateral / debt as a whole percentage, or "∞"
// without debt.
func collateralRatio(collateral, debt lending.TokenAmount) string {
	if debt == nil || debt.IsZero() {
		return "∞"
	}
	ratio := decimal.NewFromBigInt(toBig(collateral), 2).Div(decimal.NewFromBigInt(debt.ToBig(), 0))
	return ratio.StringFixed(0)
}

// capacityUsed returns debt as a percentage of the borrowing limit implied
// by maxLTV. Debt with no limit at all counts as fully used.
func capacityUsed(collateral, debt lending.TokenAmount, maxLTV lending.BasisPoints) float64 {
	if debt == nil || debt.IsZero() {
		return 0
	}
	limit := new(big.Rat).SetFrac(new(big.Int).Mul(toBig(collateral), new(big.Int).SetUint64(uint64(maxLTV))), big.NewInt(10_000))
	if limit.Sign() == 0 {
		return 100
	}
	used := new(big.Rat).Quo(new(big.Rat).SetInt(debt.ToBig()), limit)
	used.Mul(used, big.NewRat(100, 1))
	f, _ := used.Float64()
	return f
}

// effectiveAPY annualises interest earned on principal over days as a
// percentage with eight decimals.
func effectiveAPY(interest, principal lending.TokenAmount, days int64) string {
	if principal == nil || principal.IsZero() || days <= 0 {
		return "0.00"
	}
	apy := new(big.Rat).SetFrac(toBig(interest), principal.ToBig())
	apy.Mul(apy, big.NewRat(daysPerYear*100, days))
	return apy.FloatString(apyPlaces)
}
