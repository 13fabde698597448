package analytics

import (
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"infrafi/native/lending"
	"infrafi/subgraph"
)

// NotAvailable fills report cells that have no source value.
const NotAvailable = "N/A"

const (
	userPrefixLen   = 10
	amountPlaces    = 6
	percentPlaces   = 4
	isoMillisLayout = "2006-01-02T15:04:05.000Z"
)

var eventLabels = map[lending.EventKind]string{
	lending.EventSupply:         "Supply",
	lending.EventWithdraw:       "Withdraw",
	lending.EventBorrow:         "Borrow",
	lending.EventRepay:          "Repay",
	lending.EventNodeDeposit:    "NodeDeposit",
	lending.EventNodeWithdrawal: "NodeWithdrawal",
}

// EventLabel returns the report label for kind.
func EventLabel(kind lending.EventKind) string {
	if label, ok := eventLabels[kind]; ok {
		return label
	}
	return "Unknown"
}

// CombinedRow pairs one event with the rate snapshots around it. Every
// column except the integers is pre-formatted for the report.
type CombinedRow struct {
	BlockNumber           uint64 `json:"blockNumber"`
	Timestamp             int64  `json:"timestamp"`
	DateTime              string `json:"dateTime"`
	EventType             string `json:"eventType"`
	User                  string `json:"eventUser"`
	Amount                string `json:"eventAmount"`
	TxHash                string `json:"eventTxHash"`
	SupplyAPYBefore       string `json:"supplyAPYBefore"`
	BorrowAPYBefore       string `json:"borrowAPYBefore"`
	SupplyAPYAfter        string `json:"supplyAPYAfter"`
	BorrowAPYAfter        string `json:"borrowAPYAfter"`
	SupplyAPYChange       string `json:"supplyAPYChange"`
	BorrowAPYChange       string `json:"borrowAPYChange"`
	UtilizationBefore     string `json:"utilizationBefore"`
	UtilizationAfter      string `json:"utilizationAfter"`
	BorrowIndexBefore     string `json:"borrowIndexBefore"`
	SupplyIndexBefore     string `json:"supplyIndexBefore"`
	BorrowIndexAfter      string `json:"borrowIndexAfter"`
	SupplyIndexAfter      string `json:"supplyIndexAfter"`
	TotalLiquidity        string `json:"totalLiquidity"`
	TotalDebt             string `json:"totalDebt"`
	SecondsSinceLastEvent int64  `json:"secondsSinceLastEvent"`
}

// CombineEvents builds report rows for events in timestamp order. Each event
// is matched by block number with the latest snapshot strictly before it
// and the earliest snapshot at or after it; among snapshots sharing a block
// the first one supplied wins. Neither input is modified.
func CombineEvents(events []subgraph.Event, rates []subgraph.RateSnapshot) []CombinedRow {
	const decimals = lending.DefaultDecimals
	ordered := append([]subgraph.Event(nil), events...)
	subgraph.SortEvents(ordered)
	snaps := append([]subgraph.RateSnapshot(nil), rates...)
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].BlockNumber < snaps[j].BlockNumber })

	rows := make([]CombinedRow, 0, len(ordered))
	var lastEvent int64
	for _, e := range ordered {
		before, after := bracket(snaps, e.BlockNumber)
		row := CombinedRow{
			BlockNumber:       e.BlockNumber,
			Timestamp:         e.Timestamp,
			DateTime:          time.Unix(e.Timestamp, 0).UTC().Format(isoMillisLayout),
			EventType:         EventLabel(e.Kind),
			User:              shortUser(e.User),
			Amount:            eventAmount(e, decimals),
			TxHash:            e.TxHash,
			SupplyAPYChange:   NotAvailable,
			BorrowAPYChange:   NotAvailable,
			SupplyAPYBefore:   NotAvailable,
			BorrowAPYBefore:   NotAvailable,
			UtilizationBefore: NotAvailable,
			BorrowIndexBefore: NotAvailable,
			SupplyIndexBefore: NotAvailable,
			SupplyAPYAfter:    NotAvailable,
			BorrowAPYAfter:    NotAvailable,
			UtilizationAfter:  NotAvailable,
			BorrowIndexAfter:  NotAvailable,
			SupplyIndexAfter:  NotAvailable,
			TotalLiquidity:    NotAvailable,
			TotalDebt:         NotAvailable,
		}
		if lastEvent > 0 {
			row.SecondsSinceLastEvent = e.Timestamp - lastEvent
		}
		if before != nil {
			row.SupplyAPYBefore = formatPercent(before.SupplyAPY)
			row.BorrowAPYBefore = formatPercent(before.BorrowAPY)
			row.UtilizationBefore = formatPercent(before.UtilizationRate)
			row.BorrowIndexBefore = lending.ToDecimalString(before.BorrowIndex, lending.DefaultDecimals)
			row.SupplyIndexBefore = lending.ToDecimalString(before.SupplyIndex, lending.DefaultDecimals)
			row.TotalLiquidity = lending.ToFixedString(before.TotalLiquidity, decimals, amountPlaces)
			row.TotalDebt = lending.ToFixedString(before.TotalDebt, decimals, amountPlaces)
		}
		if after != nil {
			row.SupplyAPYAfter = formatPercent(after.SupplyAPY)
			row.BorrowAPYAfter = formatPercent(after.BorrowAPY)
			row.UtilizationAfter = formatPercent(after.UtilizationRate)
			row.BorrowIndexAfter = lending.ToDecimalString(after.BorrowIndex, lending.DefaultDecimals)
			row.SupplyIndexAfter = lending.ToDecimalString(after.SupplyIndex, lending.DefaultDecimals)
			row.TotalLiquidity = lending.ToFixedString(after.TotalLiquidity, decimals, amountPlaces)
			row.TotalDebt = lending.ToFixedString(after.TotalDebt, decimals, amountPlaces)
		}
		if before != nil && after != nil {
			row.SupplyAPYChange = formatPercentChange(before.SupplyAPY, after.SupplyAPY)
			row.BorrowAPYChange = formatPercentChange(before.BorrowAPY, after.BorrowAPY)
		}
		rows = append(rows, row)
		lastEvent = e.Timestamp
	}
	return rows
}

// bracket finds the snapshots around block in snaps, which must be sorted
// by block number.
func bracket(snaps []subgraph.RateSnapshot, block uint64) (before, after *subgraph.RateSnapshot) {
	idx := sort.Search(len(snaps), func(i int) bool { return snaps[i].BlockNumber >= block })
	if idx < len(snaps) {
		after = &snaps[idx]
	}
	if idx > 0 {
		prev := snaps[idx-1].BlockNumber
		first := sort.Search(idx, func(i int) bool { return snaps[i].BlockNumber >= prev })
		before = &snaps[first]
	}
	return before, after
}

func shortUser(user string) string {
	if len(user) > userPrefixLen {
		user = user[:userPrefixLen]
	}
	return user + "..."
}

// eventAmount formats the event's amount, or the node asset value for node
// events. A node withdrawal indexed without an asset value has no amount.
func eventAmount(e subgraph.Event, decimals uint8) string {
	switch e.Kind {
	case lending.EventNodeDeposit:
		return lending.ToFixedString(e.AssetValue, decimals, amountPlaces)
	case lending.EventNodeWithdrawal:
		if e.AssetValue == nil || e.AssetValue.IsZero() {
			return NotAvailable
		}
		return lending.ToFixedString(e.AssetValue, decimals, amountPlaces)
	default:
		return lending.ToFixedString(e.Amount, decimals, amountPlaces)
	}
}

func bpsDecimal(bp lending.BasisPoints) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(bp)), -2)
}

func formatPercent(bp lending.BasisPoints) string {
	return bpsDecimal(bp).StringFixed(percentPlaces) + "%"
}

func formatPercentChange(before, after lending.BasisPoints) string {
	change := bpsDecimal(after).Sub(bpsDecimal(before))
	sign := ""
	if !change.IsNegative() {
		sign = "+"
	}
	return sign + change.StringFixed(percentPlaces) + "%"
}
