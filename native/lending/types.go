package lending

import "github.com/holiman/uint256"

// TokenAmount is a non-negative fixed-point quantity scaled by 10^decimals.
// Amounts reported by the vault and the indexer use 18 decimals.
type TokenAmount = *uint256.Int

// BasisPoints expresses a rate or ratio where 10_000 equals 100%. Borrow
// rates may legitimately exceed 10_000 once utilization passes the kink.
type BasisPoints uint64

// EventKind tags the discrete protocol events that move a user's balances.
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventSupply
	EventWithdraw
	EventBorrow
	EventRepay
	EventNodeDeposit
	EventNodeWithdrawal
)

var eventKindNames = map[EventKind]string{
	EventUnknown:        "unknown",
	EventSupply:         "supply",
	EventWithdraw:       "withdraw",
	EventBorrow:         "borrow",
	EventRepay:          "repay",
	EventNodeDeposit:    "nodeDeposit",
	EventNodeWithdrawal: "nodeWithdrawal",
}

// String returns the camel-cased name used by the dashboard API.
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return eventKindNames[EventUnknown]
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Position is a point-in-time snapshot of a borrower. It is built fresh from
// every fetch and never mutated after the derived figures are computed.
type Position struct {
	// Principal is the outstanding borrowed amount before interest.
	Principal TokenAmount
	// AccruedInterest is the interest owed on top of Principal.
	AccruedInterest TokenAmount
	// CollateralValue is the aggregate asset value of deposited nodes.
	CollateralValue TokenAmount
}

// Debt returns principal plus accrued interest.
func (p Position) Debt() TokenAmount {
	return SaturatingAdd(p.Principal, p.AccruedInterest)
}

// LTV returns the loan-to-value ratio of the position as a percentage.
func (p Position) LTV() float64 {
	return ComputeLTV(p.CollateralValue, p.Debt())
}

// HealthFactor returns the position's health factor for the supplied
// liquidation threshold percentage.
func (p Position) HealthFactor(liquidationThresholdPercent float64) float64 {
	return ComputeHealthFactor(p.CollateralValue, p.Debt(), liquidationThresholdPercent)
}

// TimeSeriesPoint is an immutable historical event used to draw balance and
// interest curves.
type TimeSeriesPoint struct {
	Timestamp int64
	Kind      EventKind
	Amount    TokenAmount
}
