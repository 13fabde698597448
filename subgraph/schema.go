package subgraph

import (
	"sort"
	"strings"

	"infrafi/native/lending"
)

// Collection names exposed by the InfraFi subgraph. The user entity nests
// node events under shorter names than the top-level collections.
const (
	collectionSupply              = "supplyEvents"
	collectionWithdraw            = "withdrawEvents"
	collectionBorrow              = "borrowEvents"
	collectionRepay               = "repayEvents"
	collectionNodeDeposit         = "nodeDepositEvents"
	collectionNodeWithdrawal      = "nodeWithdrawalEvents"
	nestedCollectionNodeDeposit   = "nodeDeposits"
	nestedCollectionNodeWithdraws = "nodeWithdrawals"
)

var collectionKinds = map[string]lending.EventKind{
	collectionSupply:              lending.EventSupply,
	collectionWithdraw:            lending.EventWithdraw,
	collectionBorrow:              lending.EventBorrow,
	collectionRepay:               lending.EventRepay,
	collectionNodeDeposit:         lending.EventNodeDeposit,
	collectionNodeWithdrawal:      lending.EventNodeWithdrawal,
	nestedCollectionNodeDeposit:   lending.EventNodeDeposit,
	nestedCollectionNodeWithdraws: lending.EventNodeWithdrawal,
}

// topLevelCollections lists the event collections in a stable order.
var topLevelCollections = []string{
	collectionSupply,
	collectionWithdraw,
	collectionBorrow,
	collectionRepay,
	collectionNodeDeposit,
	collectionNodeWithdrawal,
}

// ParseEventKind maps a GraphQL collection name or an event kind name
// ("supply", "nodeDeposit") to its kind. Unknown names map to
// lending.EventUnknown.
func ParseEventKind(name string) lending.EventKind {
	name = strings.TrimSpace(name)
	if kind, ok := collectionKinds[name]; ok {
		return kind
	}
	for _, kind := range []lending.EventKind{
		lending.EventSupply,
		lending.EventWithdraw,
		lending.EventBorrow,
		lending.EventRepay,
		lending.EventNodeDeposit,
		lending.EventNodeWithdrawal,
	} {
		if strings.EqualFold(kind.String(), name) {
			return kind
		}
	}
	return lending.EventUnknown
}

// Event is a validated protocol event. Amount fields absent for the kind are
// zero, never nil.
type Event struct {
	ID          string
	Kind        lending.EventKind
	User        string
	Timestamp   int64
	BlockNumber uint64
	TxHash      string
	Amount      lending.TokenAmount
	// Principal and Interest split a withdrawal into its parts.
	Principal lending.TokenAmount
	Interest  lending.TokenAmount
	NodeID    string
	NodeType  string
	// AssetValue is the collateral value credited by a node deposit.
	AssetValue lending.TokenAmount
}

// Value returns the amount by which the event moves its running balance.
// Node deposits move collateral by their asset value; node withdrawals carry
// no value.
func (e Event) Value() lending.TokenAmount {
	switch e.Kind {
	case lending.EventNodeDeposit:
		return e.AssetValue
	case lending.EventNodeWithdrawal:
		return lending.Zero()
	default:
		return e.Amount
	}
}

// Point reduces the event to a time series point.
func (e Event) Point() lending.TimeSeriesPoint {
	return lending.TimeSeriesPoint{Timestamp: e.Timestamp, Kind: e.Kind, Amount: e.Value()}
}

// SortEvents orders events by timestamp, then block number, then id.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.ID < b.ID
	})
}

// ProtocolSnapshot is the protocol entity as indexed.
type ProtocolSnapshot struct {
	TotalLiquidity       lending.TokenAmount
	TotalDebt            lending.TokenAmount
	TotalCollateralValue lending.TokenAmount
	TotalNodesDeposited  uint64
	SupplyAPY            lending.BasisPoints
	BorrowAPY            lending.BasisPoints
	UtilizationRate      lending.BasisPoints
	TotalUsers           uint64
	TotalLenders         uint64
	TotalBorrowers       uint64
	LastUpdateTimestamp  int64
}

// UserSnapshot is the aggregate user entity as indexed.
type UserSnapshot struct {
	Address             string
	TotalSupplied       lending.TokenAmount
	TotalSupplyInterest lending.TokenAmount
	TotalBorrowed       lending.TokenAmount
	TotalBorrowInterest lending.TokenAmount
	CollateralValue     lending.TokenAmount
	DepositedNodesCount uint64
	IsLender            bool
	IsBorrower          bool
	FirstInteraction    int64
	LastInteraction     int64
}

// Position converts the indexed aggregates into a borrower position.
func (u UserSnapshot) Position() lending.Position {
	return lending.Position{
		Principal:       u.TotalBorrowed,
		AccruedInterest: u.TotalBorrowInterest,
		CollateralValue: u.CollateralValue,
	}
}

// EventCounts tallies a day's events by kind.
type EventCounts struct {
	Supplies        uint64 `json:"supplies"`
	Withdrawals     uint64 `json:"withdrawals"`
	Borrows         uint64 `json:"borrows"`
	Repays          uint64 `json:"repays"`
	NodeDeposits    uint64 `json:"nodeDeposits"`
	NodeWithdrawals uint64 `json:"nodeWithdrawals"`
}

// DailySnapshot aggregates one UTC day of protocol activity.
type DailySnapshot struct {
	Date                 int64
	TotalLiquidity       lending.TokenAmount
	TotalDebt            lending.TokenAmount
	TotalCollateralValue lending.TokenAmount
	SupplyAPY            lending.BasisPoints
	BorrowAPY            lending.BasisPoints
	UtilizationRate      lending.BasisPoints
	ActiveUsers          uint64
	ActiveLenders        uint64
	ActiveBorrowers      uint64
	TotalNodesDeposited  uint64
	Counts               EventCounts
	SupplyVolume         lending.TokenAmount
	WithdrawVolume       lending.TokenAmount
	BorrowVolume         lending.TokenAmount
	RepayVolume          lending.TokenAmount
}

// RateSnapshot records the vault rates after a state-changing block.
type RateSnapshot struct {
	ID              string
	Timestamp       int64
	BlockNumber     uint64
	SupplyAPY       lending.BasisPoints
	BorrowAPY       lending.BasisPoints
	UtilizationRate lending.BasisPoints
	// BorrowIndex and SupplyIndex are 1e18-scaled cumulative indexes.
	BorrowIndex    lending.TokenAmount
	SupplyIndex    lending.TokenAmount
	TotalLiquidity lending.TokenAmount
	TotalDebt      lending.TokenAmount
}

// Timeline is a user's event history, oldest first, together with the user
// aggregate when the indexer has one.
type Timeline struct {
	User   *UserSnapshot
	Events []Event
}
